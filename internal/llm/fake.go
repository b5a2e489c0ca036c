package llm

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedClient replays canned responses in order; the final response
// repeats once the script runs out. It records every request it sees, so
// tests and the scenario harness can assert on prompts.
type ScriptedClient struct {
	name string

	mu        sync.Mutex
	responses []string
	served    int
	calls     []CompletionRequest
}

// NewScripted builds a scripted client. name appears as "fake:<name>".
func NewScripted(name string, responses ...string) *ScriptedClient {
	return &ScriptedClient{name: name, responses: responses}
}

// Name identifies the fake.
func (c *ScriptedClient) Name() string { return "fake:" + c.name }

// Complete returns the next scripted response.
func (c *ScriptedClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, req)
	if len(c.responses) == 0 {
		return nil, ErrEmptyCompletion
	}

	idx := c.served
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	c.served++

	return &CompletionResponse{Text: c.responses[idx], LatencyMs: 1}, nil
}

// Calls returns a copy of every request served so far.
func (c *ScriptedClient) Calls() []CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CompletionRequest, len(c.calls))
	copy(out, c.calls)
	return out
}

// EchoClient answers with the content of the last user message. Useful
// for exercising the pipeline without keys or scripts.
type EchoClient struct{}

// NewEcho builds an echo client.
func NewEcho() *EchoClient { return &EchoClient{} }

// Name identifies the fake.
func (c *EchoClient) Name() string { return "fake:echo" }

// Complete echoes the last user turn.
func (c *EchoClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			return &CompletionResponse{Text: req.Messages[i].Content, LatencyMs: 1}, nil
		}
	}
	return nil, ErrEmptyCompletion
}

var (
	fakesMu sync.RWMutex
	fakes   = map[string]func() Client{
		"echo": func() Client { return NewEcho() },
	}
)

// RegisterFake makes a fake constructible through the factory as
// provider "fake:<name>". Each factory call gets a fresh instance, since
// fakes carry per-run state.
func RegisterFake(name string, build func() Client) {
	fakesMu.Lock()
	defer fakesMu.Unlock()
	fakes[name] = build
}

func fakeByName(name string) (Client, error) {
	fakesMu.RLock()
	build, ok := fakes[name]
	fakesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: fake:%s", ErrUnknownProvider, name)
	}
	return build(), nil
}

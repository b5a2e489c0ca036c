// Package scenario replays fixed query scripts against isolated
// orchestrators, one per memory mode, and aggregates the evaluator's
// scores so the modes can be compared on identical conversations.
package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"datanerd/internal/clock"
)

// Step is one scripted user query.
type Step struct {
	ID    string `json:"id,omitempty" yaml:"id,omitempty"`
	Query string `json:"query" yaml:"query"`
}

// Scenario is a conversation script plus its dataset fixture parameters.
// Seed and Today pin the world the script was written against.
type Scenario struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	Seed  int64  `json:"seed" yaml:"seed"`
	Today string `json:"today,omitempty" yaml:"today,omitempty"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// Load reads a scenario file. The format is keyed by extension: .yaml
// and .yml parse as YAML, everything else as JSON.
func Load(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var sc Scenario
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &sc)
	default:
		err = json.Unmarshal(raw, &sc)
	}
	if err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks the script is runnable. An empty Today is allowed and
// means the system clock.
func (s *Scenario) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("scenario: id is required")
	}
	if len(s.Steps) == 0 {
		return errors.New("scenario: at least one step is required")
	}
	if s.Today != "" {
		if _, err := clock.ContextFor(s.Today); err != nil {
			return fmt.Errorf("scenario: %w", err)
		}
	}
	for i, step := range s.Steps {
		if strings.TrimSpace(step.Query) == "" {
			return fmt.Errorf("scenario: step %d has an empty query", i+1)
		}
	}
	return nil
}

// This file implements the interactive chat interface using bubbletea.
package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"datanerd/internal/orchestrator"
	"datanerd/internal/types"
)

var chatMode string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive analytics chat",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatMode, "mode", "", "Memory mode: baseline, read, readwrite, readwrite_cache (default: config)")
}

// ===== STYLES =====

type chatStyles struct {
	header    lipgloss.Style
	badge     lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	muted     lipgloss.Style
	errText   lipgloss.Style
	spinner   lipgloss.Style
	inputBox  lipgloss.Style
}

func defaultChatStyles() chatStyles {
	accent := lipgloss.Color("#8BC34A")
	primary := lipgloss.Color("#2196F3")
	return chatStyles{
		header:    lipgloss.NewStyle().Bold(true).Foreground(primary),
		badge:     lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107")),
		user:      lipgloss.NewStyle().Bold(true).Foreground(primary).MarginTop(1),
		assistant: lipgloss.NewStyle().Bold(true).Foreground(accent).MarginTop(1),
		muted:     lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		errText:   lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")),
		spinner:   lipgloss.NewStyle().Foreground(accent),
		inputBox:  lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accent).Padding(0, 1),
	}
}

// ===== MODEL =====

type chatMessage struct {
	role    string // "user" or "assistant"
	content string
	meta    string // eval summary line, muted
}

type (
	askResultMsg *types.Run
	askErrMsg    struct{ err error }
)

type chatModel struct {
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	styles    chatStyles
	renderer  *glamour.TermRenderer

	history   []chatMessage
	session   types.SessionState
	isLoading bool
	err       error
	width     int
	height    int
	ready     bool

	rt        *runtime
	orch      *orchestrator.Orchestrator
	turnCount int
}

func initChatModel(rt *runtime, orch *orchestrator.Orchestrator) chatModel {
	styles := defaultChatStyles()

	ti := textinput.New()
	ti.Placeholder = "Ask about your sales, traffic or benchmarks... (Enter to send, Ctrl+C to exit)"
	ti.Focus()
	ti.Prompt = "| "
	ti.CharLimit = 1024
	ti.Width = 80

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.spinner

	vp := viewport.New(80, 20)
	vp.SetContent("")

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)

	return chatModel{
		textinput: ti,
		viewport:  vp,
		spinner:   sp,
		styles:    styles,
		renderer:  renderer,
		rt:        rt,
		orch:      orch,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if !m.isLoading {
				return m.handleSubmit()
			}
		}
		if !m.isLoading {
			m.textinput, tiCmd = m.textinput.Update(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 3
		footerHeight := 2
		inputHeight := 3
		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-headerHeight-footerHeight-inputHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - headerHeight - footerHeight - inputHeight
		}
		m.textinput.Width = msg.Width - 6
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(max(msg.Width-8, 20)),
		)
		m.viewport.SetContent(m.renderHistory())

	case spinner.TickMsg:
		if m.isLoading {
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, spCmd
		}

	case askResultMsg:
		run := (*types.Run)(msg)
		m.isLoading = false
		m.err = nil
		m.turnCount++
		m.session = run.Session
		m.history = append(m.history, chatMessage{
			role:    "assistant",
			content: run.Response,
			meta:    evalSummary(run),
		})
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()

	case askErrMsg:
		m.isLoading = false
		m.err = msg.err
	}

	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

func (m chatModel) handleSubmit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textinput.Value())
	if input == "" {
		return m, nil
	}
	if strings.HasPrefix(input, "/") {
		return m.handleCommand(input)
	}

	m.history = append(m.history, chatMessage{role: "user", content: input})
	m.textinput.Reset()
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
	m.isLoading = true
	m.err = nil

	return m, tea.Batch(m.spinner.Tick, m.processQuery(input))
}

// processQuery runs the pipeline off the UI loop.
func (m chatModel) processQuery(query string) tea.Cmd {
	orch := m.orch
	session := m.session.Clone()
	return func() tea.Msg {
		run, err := orch.Ask(context.Background(), query, session)
		if err != nil {
			return askErrMsg{err: err}
		}
		return askResultMsg(run)
	}
}

func (m chatModel) handleCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	m.textinput.Reset()

	switch parts[0] {
	case "/quit", "/exit", "/q":
		return m, tea.Quit

	case "/clear":
		m.history = nil
		m.session = types.SessionState{}
		m.viewport.SetContent("")
		return m, nil

	case "/mode":
		if len(parts) < 2 {
			return m.reply(fmt.Sprintf("Current mode: **%s**. Usage: `/mode <baseline|read|readwrite|readwrite_cache>`", m.orch.Mode())), nil
		}
		mode := types.MemoryMode(parts[1])
		if !mode.Valid() {
			return m.reply(fmt.Sprintf("Invalid mode %q.", parts[1])), nil
		}
		orch, err := m.rt.newOrchestrator(context.Background(), mode)
		if err != nil {
			return m.reply(fmt.Sprintf("Switching mode failed: %v", err)), nil
		}
		m.orch = orch
		return m.reply(fmt.Sprintf("Memory mode switched to **%s**.", mode)), nil

	case "/session":
		if len(m.session.SelectedProductIDs) == 0 {
			return m.reply("No products selected yet. Ask a top-products question first."), nil
		}
		return m.reply(fmt.Sprintf("Selected products: %s", strings.Join(m.session.SelectedProductIDs, ", "))), nil

	case "/help":
		return m.reply(`## Commands

| Command | Description |
|---------|-------------|
| /help | Show this help |
| /clear | Clear history and session |
| /mode <m> | Switch memory mode |
| /session | Show selected products |
| /quit, /exit, /q | Exit |

Ask things like:
- What were my top 10 products by sales last month?
- How is traffic for those products?
- Why did sales drop WoW?`), nil

	default:
		return m.reply(fmt.Sprintf("Unknown command %q. Try `/help`.", parts[0])), nil
	}
}

// reply appends an assistant message without running the pipeline.
func (m chatModel) reply(content string) chatModel {
	m.history = append(m.history, chatMessage{role: "assistant", content: content})
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
	return m
}

// ===== RENDERING =====

func (m chatModel) renderHistory() string {
	var sb strings.Builder
	for _, msg := range m.history {
		if msg.role == "user" {
			sb.WriteString(m.styles.user.Render("You") + "\n")
			sb.WriteString(msg.content)
			sb.WriteString("\n")
			continue
		}
		sb.WriteString(m.styles.assistant.Render("datanerd") + "\n")
		sb.WriteString(m.renderResponse(msg.content))
		sb.WriteString("\n")
		if msg.meta != "" {
			sb.WriteString(m.styles.muted.Render(msg.meta))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// renderResponse passes markdown-looking text through glamour and leaves
// plain tool renderings untouched.
func (m chatModel) renderResponse(content string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = content
		}
	}()
	if m.renderer == nil || !looksLikeMarkdown(content) {
		return content
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

func looksLikeMarkdown(s string) bool {
	if strings.Contains(s, "**") || strings.Contains(s, "```") || strings.Contains(s, "| ") {
		return true
	}
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") || strings.HasPrefix(trimmed, "- ") {
			return true
		}
	}
	return false
}

func evalSummary(run *types.Run) string {
	if run.Eval == nil || run.Eval.Scores == nil {
		return ""
	}
	s := run.Eval.Scores
	return fmt.Sprintf("eval: quality %.2f (correctness %.2f, completeness %.2f, relevance %.2f)",
		s.Quality, s.Correctness, s.Completeness, s.Relevance)
}

func (m chatModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	title := m.styles.header.Render(" datanerd ")
	badge := m.styles.badge.Render(string(m.orch.Mode()))
	status := m.styles.muted.Render("ready")
	if m.isLoading {
		status = m.styles.badge.Render("thinking")
	}
	header := lipgloss.JoinHorizontal(lipgloss.Center, title, " ", badge, "  ", status)

	chatView := m.viewport.View()
	if m.isLoading {
		chatView += "\n" + m.styles.spinner.Render(m.spinner.View()) + " Thinking..."
	}
	if m.err != nil {
		chatView += "\n" + m.styles.errText.Render("Error: "+m.err.Error())
	}

	inputArea := m.styles.inputBox.Render(m.textinput.View())
	footer := m.styles.muted.Render(fmt.Sprintf("turn %d | Enter: send | /help: commands | Ctrl+C: exit", m.turnCount))

	return lipgloss.JoinVertical(lipgloss.Left, header, chatView, inputArea, footer)
}

// ===== LAUNCH =====

func runChat(ctx context.Context) error {
	mode := cfg.MemoryMode()
	if chatMode != "" {
		mode = types.MemoryMode(chatMode)
	}
	if !mode.Valid() {
		return fmt.Errorf("invalid memory mode %q", mode)
	}

	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	orch, err := rt.newOrchestrator(ctx, mode)
	if err != nil {
		return err
	}

	p := tea.NewProgram(initChatModel(rt, orch), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

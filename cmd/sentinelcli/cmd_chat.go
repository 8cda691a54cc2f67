// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var (
		sessionID string
		resume    bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the investigation agent",
		Long: strings.TrimSpace(`
Opens an interactive conversation with the investigation agent. The agent
plans queries, runs them, analyzes issues, and drafts fixes through its
tools; ask in plain language.

Sessions persist server-side. --resume continues the most recent session
from this machine; --session continues a specific one.
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case sessionID != "":
				if _, err := uuid.Parse(sessionID); err != nil {
					return fmt.Errorf("--session must be a UUID: %w", err)
				}
			case resume:
				last, err := loadLastSession()
				if err != nil {
					return fmt.Errorf("no session to resume: %w", err)
				}
				sessionID = last
			default:
				sessionID = uuid.NewString()
			}

			client := newAPIClient(serverBaseURL())
			if err := saveLastSession(sessionID); err != nil {
				fmt.Fprintln(os.Stderr, warnStyle().Render("Warning: could not save session id: "+err.Error()))
			}

			if !isatty.IsTerminal(os.Stdin.Fd()) || !isatty.IsTerminal(os.Stdout.Fd()) {
				return plainChatLoop(cmd.Context(), client, sessionID)
			}

			model := newChatModel(client, sessionID)
			_, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session UUID to continue")
	cmd.Flags().BoolVar(&resume, "resume", false, "Continue the most recent session")
	return cmd
}

// ===== Session bookkeeping =====

func sessionFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".aleutian", "sentinel", "last_session"), nil
}

func loadLastSession() (string, error) {
	path, err := sessionFilePath()
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	id := strings.TrimSpace(string(raw))
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("stored session id is not a UUID: %w", err)
	}
	return id, nil
}

func saveLastSession(id string) error {
	path, err := sessionFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(id+"\n"), 0o644)
}

// ===== Plain fallback =====

// plainChatLoop reads lines from stdin and prints turns, for piped use.
func plainChatLoop(ctx context.Context, client *apiClient, sessionID string) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		turn, err := client.Chat(ctx, sessionID, line)
		if err != nil {
			return err
		}
		for _, use := range turn.ToolsUsed {
			fmt.Printf("[%s] %s\n", use.Name, use.Preview)
		}
		fmt.Println(turn.Response)
	}
	return scanner.Err()
}

// ===== Interactive TUI =====

type turnMsg struct{ turn *chatTurn }
type greetingMsg struct{ greeting *greeting }
type chatErrMsg struct{ err error }

type chatModel struct {
	client    *apiClient
	sessionID string

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	transcript []string
	waiting    bool
	ready      bool
	width      int
	height     int

	userStyle  lipgloss.Style
	agentStyle lipgloss.Style
	toolStyle  lipgloss.Style
	errorStyle lipgloss.Style
}

func newChatModel(client *apiClient, sessionID string) *chatModel {
	ta := textarea.New()
	ta.Placeholder = "Ask about the store's data..."
	ta.Prompt = "┃ "
	ta.SetHeight(2)
	ta.ShowLineNumbers = false
	ta.CharLimit = 4000
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(colorTeal)

	return &chatModel{
		client:     client,
		sessionID:  sessionID,
		textarea:   ta,
		spinner:    sp,
		userStyle:  lipgloss.NewStyle().Bold(true).Foreground(colorTeal),
		agentStyle: lipgloss.NewStyle(),
		toolStyle:  lipgloss.NewStyle().Foreground(colorSlate),
		errorStyle: lipgloss.NewStyle().Foreground(colorRed),
	}
}

func (m *chatModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.fetchGreeting())
}

func (m *chatModel) fetchGreeting() tea.Cmd {
	return func() tea.Msg {
		g, err := m.client.Greeting(context.Background())
		if err != nil {
			return chatErrMsg{err}
		}
		return greetingMsg{g}
	}
}

func (m *chatModel) sendMessage(message string) tea.Cmd {
	return func() tea.Msg {
		turn, err := m.client.Chat(context.Background(), m.sessionID, message)
		if err != nil {
			return chatErrMsg{err}
		}
		return turnMsg{turn}
	}
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		taCmd tea.Cmd
		vpCmd tea.Cmd
	)
	m.textarea, taCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerHeight := 2
		footerHeight := m.textarea.Height() + 2
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.textarea.SetWidth(msg.Width - 2)
		m.refreshViewport()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			message := strings.TrimSpace(m.textarea.Value())
			if message == "" || m.waiting {
				return m, tea.Batch(taCmd, vpCmd)
			}
			if message == "exit" || message == "quit" {
				return m, tea.Quit
			}
			m.textarea.Reset()
			m.transcript = append(m.transcript, m.userStyle.Render("You: ")+message)
			m.refreshViewport()
			m.waiting = true
			return m, tea.Batch(taCmd, vpCmd, m.spinner.Tick, m.sendMessage(message))
		}

	case spinner.TickMsg:
		if m.waiting {
			var spCmd tea.Cmd
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, tea.Batch(taCmd, vpCmd, spCmd)
		}

	case greetingMsg:
		m.transcript = append(m.transcript, m.agentStyle.Render(msg.greeting.Response))
		if len(msg.greeting.Suggestions) > 0 {
			var chips []string
			for _, s := range msg.greeting.Suggestions {
				chips = append(chips, s.Label)
			}
			m.transcript = append(m.transcript,
				m.toolStyle.Render("Try: "+strings.Join(chips, " · ")))
		}
		m.refreshViewport()

	case turnMsg:
		m.waiting = false
		for _, use := range msg.turn.ToolsUsed {
			m.transcript = append(m.transcript,
				m.toolStyle.Render(fmt.Sprintf("  • %s — %s", use.Name, use.Preview)))
		}
		m.transcript = append(m.transcript, m.agentStyle.Render(msg.turn.Response), "")
		m.refreshViewport()

	case chatErrMsg:
		m.waiting = false
		m.transcript = append(m.transcript, m.errorStyle.Render("Error: "+msg.err.Error()), "")
		m.refreshViewport()
	}

	return m, tea.Batch(taCmd, vpCmd)
}

func (m *chatModel) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).
		Render(strings.Join(m.transcript, "\n")))
	m.viewport.GotoBottom()
}

func (m *chatModel) View() string {
	if !m.ready {
		return "Connecting..."
	}
	header := titleStyle().Render("Sentinel Chat") +
		mutedStyle().Render("  session "+m.sessionID[:8])
	status := mutedStyle().Render("Enter to send · Esc to quit")
	if m.waiting {
		status = m.spinner.View() + " thinking..."
	}
	return fmt.Sprintf("%s\n\n%s\n%s\n%s", header, m.viewport.View(), status, m.textarea.View())
}

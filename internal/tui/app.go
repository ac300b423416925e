// Package tui is the terminal dashboard: it signs the user in, runs a scan
// and renders the resulting statistics.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rejectiondash/internal/auth"
	"rejectiondash/internal/model"
	"rejectiondash/internal/quotes"
	"rejectiondash/internal/scan"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/oauth2"
)

type viewState int

const (
	viewLoading viewState = iota
	viewAuth              // waiting for browser consent or a pasted code
	viewStats
)

type AppModel struct {
	// Collaborators
	auth     *auth.Authenticator
	profiles *auth.GoogleResolver
	scanner  *scan.Scanner
	quotes   *quotes.Catalogue

	Err    error
	status string

	// Auth flow
	uiEvents  chan tea.Msg
	pasted    chan string
	textInput textinput.Model
	authURL   string
	tokens    oauth2.TokenSource
	profile   model.UserProfile

	// Scan state
	view     viewState
	scanning bool
	stats    *model.RejectionStats
	quote    string

	// Sub-models
	spinner     spinner.Model
	notableList list.Model

	width, height int

	// Program reference for sending messages from goroutines
	program *tea.Program
}

// SetProgram stores a reference to the tea.Program so goroutines can send
// progress messages back to the Update loop.
func (m *AppModel) SetProgram(p *tea.Program) {
	m.program = p
}

func NewAppModel(a *auth.Authenticator, profiles *auth.GoogleResolver, scanner *scan.Scanner, q *quotes.Catalogue) AppModel {
	ti := textinput.New()
	ti.Placeholder = "Paste auth code or redirect URL here"
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	nl := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	nl.Title = "Notable rejections"
	nl.SetShowHelp(false)
	nl.SetFilteringEnabled(false)
	nl.KeyMap.Quit.SetKeys("q")

	return AppModel{
		auth:        a,
		profiles:    profiles,
		scanner:     scanner,
		quotes:      q,
		status:      "Authenticating...",
		view:        viewLoading,
		uiEvents:    make(chan tea.Msg, 2),
		pasted:      make(chan string, 1),
		textInput:   ti,
		spinner:     sp,
		notableList: nl,
	}
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.authenticateCmd(), m.spinner.Tick, textinput.Blink)
}

// authenticateCmd starts the auth flow in the background and returns its
// first event: either the consent URL or the final result.
func (m *AppModel) authenticateCmd() tea.Cmd {
	m.auth.Prompt = func(authURL string) { m.uiEvents <- authURLMsg(authURL) }
	m.auth.Pasted = m.pasted

	go func() {
		ctx := context.Background()
		var profile model.UserProfile
		ts, err := m.auth.TokenSource(ctx, func(ts oauth2.TokenSource) error {
			p, err := m.profiles.ResolveSource(ctx, ts)
			profile = p
			return err
		})
		if err == nil && profile.Email == "" {
			profile, err = m.profiles.ResolveSource(ctx, ts)
		}
		m.uiEvents <- authResultMsg{tokens: ts, profile: profile, err: err}
	}()
	return m.waitForAuthEvent()
}

func (m *AppModel) waitForAuthEvent() tea.Cmd {
	return func() tea.Msg { return <-m.uiEvents }
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.notableList.SetSize(msg.Width, notableListHeight(msg.Height))
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case authURLMsg:
		m.authURL = string(msg)
		m.view = viewAuth
		return m, m.waitForAuthEvent()

	case authResultMsg:
		if msg.err != nil {
			m.Err = msg.err
			m.status = "Authentication failed!"
			return m, tea.Quit
		}
		m.tokens = msg.tokens
		m.profile = msg.profile
		m.view = viewLoading
		return m, m.startScan()

	case scanProgressMsg:
		m.status = progressStatus(scan.Progress(msg))
		return m, nil

	case scanCompleteMsg:
		m.scanning = false
		if msg.err != nil {
			m.Err = msg.err
			m.status = "Scan failed! Press r to retry."
			if m.stats == nil {
				m.view = viewStats
			}
			return m, nil
		}
		m.Err = nil
		m.stats = &msg.stats
		m.notableList.SetItems(notableItems(msg.stats.NotableRejections))
		m.quote = m.quotes.Random()
		m.view = viewStats
		m.status = fmt.Sprintf("Scan complete (%s)", time.Now().Format("15:04"))
		return m, clearStatusAfter(3 * time.Second)

	case statusMsg:
		if string(msg) == "" && !m.scanning {
			m.status = ""
		}
		return m, nil
	}

	var cmd tea.Cmd
	switch m.view {
	case viewAuth:
		m.textInput, cmd = m.textInput.Update(msg)
	case viewStats:
		m.notableList, cmd = m.notableList.Update(msg)
	}
	return m, cmd
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.view {
	case viewAuth:
		switch key {
		case "enter":
			val := strings.TrimSpace(m.textInput.Value())
			m.textInput.Reset()
			if val == "" {
				return m, nil
			}
			select {
			case m.pasted <- val:
				m.status = "Exchanging code..."
			default:
			}
			return m, nil
		case "ctrl+o":
			if err := auth.OpenBrowser(m.authURL); err != nil {
				m.status = fmt.Sprintf("Could not open browser: %v", err)
			}
			return m, nil
		case "esc":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd

	case viewStats:
		switch key {
		case "q":
			return m, tea.Quit
		case "r":
			if m.scanning {
				return m, nil
			}
			return m, m.startScan()
		}
		var cmd tea.Cmd
		m.notableList, cmd = m.notableList.Update(msg)
		return m, cmd

	default:
		if key == "q" {
			return m, tea.Quit
		}
	}
	return m, nil
}

// Commands

func (m *AppModel) startScan() tea.Cmd {
	m.scanning = true
	m.status = "Searching mailbox..."
	return tea.Batch(m.scanCmd(), m.spinner.Tick)
}

func (m *AppModel) scanCmd() tea.Cmd {
	ts, profile := m.tokens, m.profile
	sc := m.scanner.WithProgress(func(p scan.Progress) {
		if m.program != nil {
			m.program.Send(scanProgressMsg(p))
		}
	})
	return func() tea.Msg {
		if ts == nil {
			return scanCompleteMsg{err: &auth.AuthError{Message: "not signed in"}}
		}
		tok, err := ts.Token()
		if err != nil {
			return scanCompleteMsg{err: &auth.AuthError{Message: "refresh access token", Err: err}}
		}
		stats, err := sc.Scan(context.Background(), tok.AccessToken, profile)
		return scanCompleteMsg{stats: stats, err: err}
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return statusMsg("")
	})
}

func progressStatus(p scan.Progress) string {
	switch p.Phase {
	case scan.PhaseListing:
		return "Searching mailbox..."
	case scan.PhaseFetching:
		return fmt.Sprintf("Reading messages... %d / %d", p.Done, p.Total)
	case scan.PhaseDone:
		return "Tallying results..."
	}
	return ""
}

// View renders the appropriate view based on current state.
func (m *AppModel) View() string {
	if m.view == viewAuth {
		s := "Open this URL in your browser to sign in with Google:\n\n" +
			m.authURL + "\n\n" +
			"ctrl+o opens it. If the browser cannot reach this machine, paste the code or the redirect URL:\n\n" +
			m.textInput.View()
		if m.status != "" {
			s += "\n\n" + m.status
		}
		return s
	}

	if m.view == viewLoading {
		if m.Err != nil {
			return "Error: " + m.Err.Error() + "\n"
		}
		status := m.status
		if status == "" {
			status = "Loading..."
		}
		return m.spinner.View() + " " + status + "\n"
	}

	var b strings.Builder
	if m.stats != nil {
		b.WriteString(renderSummary(*m.stats))
		b.WriteString("\n\n")
		b.WriteString(renderMonths(m.stats.RejectionsPerMonth, m.width))
		b.WriteString("\n\n")
		if len(m.stats.NotableRejections) > 0 {
			b.WriteString(m.notableList.View())
		} else {
			b.WriteString(mutedStyle.Render("No notable rejections."))
		}
		b.WriteString("\n")
		if m.quote != "" {
			b.WriteString(renderQuote(m.quote, m.width))
			b.WriteString("\n")
		}
	}
	if m.Err != nil {
		b.WriteString(errorStyle.Render("Error: " + m.Err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(statsFooter())

	if m.scanning {
		b.WriteString("\n")
		b.WriteString(m.spinner.View() + " " + m.status)
	} else if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.status)
	}
	return b.String()
}

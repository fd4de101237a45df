package terminal

import (
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/JakeFAU/asyncjob/internal/asyncjob"
)

const maxBarWidth = 60

var (
	colorPrimary = lipgloss.Color("#7C3AED")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
	colorMuted   = lipgloss.Color("#6B7280")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	stageStyle   = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorError)
	hintStyle    = lipgloss.NewStyle().Foreground(colorMuted)
)

type (
	titleMsg         string
	labelMsg         string
	stageMsg         string
	progressTextMsg  string
	fractionMsg      float64
	cancelVisibleMsg bool
	warningMsg       struct {
		text    string
		visible bool
	}
	pulseMsg struct{}
	busyMsg  struct{}
	// confirmMsg asks the user whether a running job may be canceled.
	confirmMsg struct {
		reply chan bool
	}
)

type model struct {
	title         string
	label         string
	stage         string
	progressText  string
	warning       string
	fraction      float64
	pulsing       bool
	busy          bool
	cancelVisible bool
	confirm       chan bool

	bar       progress.Model
	spinner   spinner.Model
	requester asyncjob.Requester
}

func newModel() model {
	return model{
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner: spinner.New(spinner.WithSpinner(spinner.Line)),
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		width := msg.Width - 4
		if width > maxBarWidth {
			width = maxBarWidth
		}
		if width > 0 {
			m.bar.Width = width
		}
	case titleMsg:
		m.title = string(msg)
	case labelMsg:
		m.label = string(msg)
	case stageMsg:
		m.stage = string(msg)
	case progressTextMsg:
		m.progressText = string(msg)
	case fractionMsg:
		m.pulsing = false
		m.fraction = float64(msg)
	case pulseMsg:
		m.pulsing = true
		m.spinner, _ = m.spinner.Update(m.spinner.Tick())
	case busyMsg:
		m.busy = true
	case cancelVisibleMsg:
		m.cancelVisible = bool(msg)
	case warningMsg:
		if msg.visible {
			m.warning = msg.text
		} else {
			m.warning = ""
		}
	case confirmMsg:
		if m.confirm != nil {
			// Only one question at a time.
			msg.reply <- false
			break
		}
		m.confirm = msg.reply
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if m.confirm != nil {
		switch key {
		case "y", "Y":
			m.confirm <- true
			m.confirm = nil
		case "n", "N", "esc", "ctrl+c":
			m.confirm <- false
			m.confirm = nil
		}
		return m, nil
	}
	if m.requester == nil {
		return m, nil
	}
	r := m.requester
	switch key {
	case "ctrl+c", "q":
		return m, func() tea.Msg {
			r.RequestClose()
			return nil
		}
	case "c":
		if m.cancelVisible {
			return m, func() tea.Msg {
				r.RequestCancel()
				return nil
			}
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	if m.title != "" {
		b.WriteString(titleStyle.Render(m.title))
		b.WriteString("\n")
	}
	if m.label != "" {
		b.WriteString(m.label)
		b.WriteString("\n")
	}
	if m.pulsing {
		b.WriteString(m.spinner.View())
	} else {
		b.WriteString(m.bar.ViewAs(m.fraction))
	}
	if m.progressText != "" {
		b.WriteString("  ")
		b.WriteString(m.progressText)
	}
	b.WriteString("\n")
	if m.stage != "" {
		b.WriteString(stageStyle.Render(m.stage))
		b.WriteString("\n")
	}
	if m.warning != "" {
		b.WriteString(warningStyle.Render("! " + m.warning))
		b.WriteString("\n")
	}
	switch {
	case m.confirm != nil:
		b.WriteString(warningStyle.Render("Cancel the running job? (y/n)"))
		b.WriteString("\n")
	case m.cancelVisible:
		b.WriteString(hintStyle.Render("c: cancel  ctrl+c: close"))
		b.WriteString("\n")
	}
	return b.String()
}

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"speakup/cue"
	"speakup/feedback"
	"speakup/session"
	"speakup/stats"
)

type engineErrMsg struct {
	op  string
	err error
}
type tickMsg time.Time

type screenInfo struct {
	mode    string
	device  string
	autoEnd bool
}

type tuiModel struct {
	engine *session.Engine
	info   screenInfo

	phase         session.Phase
	elapsed       int
	audioLevel    float64
	silence       *silenceMonitor
	noVoice       bool
	live          string
	report        *feedback.Report
	totals        stats.Stats
	status        string
	copied        bool
	manual        bool
	input         []rune
	frame         int
	width, height int
}

var (
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	recStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Bold(true)
	issueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	meterOnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func newTUIProgram(e *session.Engine, info screenInfo) *tea.Program {
	snap := e.Snapshot()
	m := tuiModel{engine: e, info: info, phase: snap.Phase, totals: snap.Stats}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func engineCmd(op string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return engineErrMsg{op: op, err: fn()}
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		if m.manual {
			return m.updateManual(msg)
		}
		return m.updateKey(msg)

	case tickMsg:
		m.frame++
		if m.phase == session.Recording && m.silence != nil {
			switch m.silence.Observe(m.audioLevel) {
			case silenceWarn, silenceRemind:
				m.noVoice = true
				cue.NoVoice()
			case silenceClear:
				m.noVoice = false
			case silenceAutoEnd:
				m.silence = nil
				m.status = "stopped after " + silenceEndAfter.String() + " of silence"
				return m, tea.Batch(tuiTick(), engineCmd("end", m.engine.End))
			}
		}
		return m, tuiTick()

	case phaseMsg:
		m.phase = msg.to
		m.status = ""
		switch msg.to {
		case session.Recording:
			m.elapsed = 0
			m.audioLevel = 0
			m.silence = newSilenceMonitor(m.info.autoEnd)
			m.noVoice = false
			m.live = ""
			m.report = nil
			m.copied = false
		case session.Analyzing:
			m.audioLevel = 0
			m.silence = nil
			m.noVoice = false
			m.report = nil
		case session.Ready:
			m.report = nil
			m.live = ""
			m.manual = false
		}

	case recordingTickMsg:
		m.elapsed = msg.elapsed

	case audioLevelMsg:
		if m.phase == session.Recording {
			m.audioLevel = m.audioLevel*0.6 + msg.level*0.4
		}

	case liveTranscriptMsg:
		m.live = msg.text

	case feedbackMsg:
		m.report = msg.report
		m.totals = msg.totals
		m.copied = false

	case engineErrMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s: %v", msg.op, msg.err)
		}
	}
	return m, nil
}

func (m tuiModel) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	e := m.engine
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case " ":
		switch m.phase {
		case session.Ready:
			return m, engineCmd("begin", e.Begin)
		case session.Recording:
			return m, engineCmd("end", e.End)
		}
	case "r":
		return m, engineCmd("reset", func() error { e.Reset(); return nil })
	case "m":
		if m.manualAllowed() {
			m.manual = true
			m.input = m.input[:0]
		}
	case "c":
		if m.report != nil {
			if err := clipboard.WriteAll(m.report.CorrectedText); err != nil {
				m.status = "copy: " + err.Error()
			} else {
				m.copied = true
			}
		}
	}
	return m, nil
}

func (m tuiModel) updateManual(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEsc:
		m.manual = false
	case tea.KeyEnter:
		m.manual = false
		text := string(m.input)
		return m, engineCmd("manual", func() error { return m.engine.SubmitManualText(text) })
	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	case tea.KeySpace:
		m.input = append(m.input, ' ')
	case tea.KeyRunes:
		m.input = append(m.input, msg.Runes...)
	}
	return m, nil
}

func (m tuiModel) manualAllowed() bool {
	if m.phase != session.Results {
		return false
	}
	snap := m.engine.Snapshot()
	return snap.Frozen != nil && strings.TrimSpace(snap.Frozen.Transcript()) == ""
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	const sideWidth = 36
	side := m.renderSide()
	mainWidth := max(m.width-sideWidth-1, 20)

	sidePanel := lipgloss.NewStyle().
		Width(sideWidth).
		Height(m.height).
		Render(side)
	mainPanel := lipgloss.NewStyle().
		Width(mainWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(m.renderMain(mainWidth - 2))

	return lipgloss.JoinHorizontal(lipgloss.Top, sidePanel, mainPanel)
}

func (m tuiModel) renderSide() string {
	var lines []string

	switch m.phase {
	case session.Recording:
		lines = append(lines, recStyle.Render("● REC "+feedback.FormatElapsed(m.elapsed)))
		lines = append(lines, renderMeter(m.audioLevel, 24))
		if m.noVoice {
			lines = append(lines, warnStyle.Render("⚠ no voice detected"))
		}
	case session.Analyzing:
		spinner := []string{"◐", "◓", "◑", "◒"}[m.frame%4]
		lines = append(lines, warnStyle.Render(spinner+" ANALYZING"))
	case session.Results:
		lines = append(lines, okStyle.Render("✓ RESULTS"))
	default:
		lines = append(lines, dimStyle.Render("○ READY"))
	}

	lines = append(lines, "")
	if m.info.mode != "" {
		lines = append(lines, dimStyle.Render(m.info.mode))
	}
	if m.info.device != "" {
		lines = append(lines, dimStyle.Render(m.info.device))
	}
	lines = append(lines, dimStyle.Render(fmt.Sprintf("coins %d  streak %d", m.totals.Coins, m.totals.Streak)))

	if m.status != "" {
		lines = append(lines, "", warnStyle.Render(m.status))
	}

	lines = append(lines, "")
	help := [][2]string{{"space", "start / stop"}, {"r", "reset"}, {"q", "quit"}}
	if m.report != nil {
		help = append(help, [2]string{"c", "copy corrected"})
	}
	if m.manualAllowed() {
		help = append(help, [2]string{"m", "type instead"})
	}
	for _, h := range help {
		lines = append(lines, keyStyle.Render(h[0])+helpStyle.Render(" "+h[1]))
	}
	lines = append(lines, helpStyle.Render("speakup "+version))
	return strings.Join(lines, "\n")
}

func renderMeter(level float64, width int) string {
	filled := min(int(level*float64(width)*8), width)
	return meterOnStyle.Render(strings.Repeat("▮", filled)) + dimStyle.Render(strings.Repeat("▯", width-filled))
}

func (m tuiModel) renderMain(width int) string {
	width = max(width, 10)
	var b strings.Builder

	writeWrapped := func(style lipgloss.Style, text string) {
		for _, line := range wrapText(text, width) {
			b.WriteString(style.Render(line) + "\n")
		}
	}

	if m.manual {
		b.WriteString(titleStyle.Render("Type what you meant to say") + "\n\n")
		writeWrapped(textStyle, string(m.input)+"▏")
		b.WriteString("\n" + helpStyle.Render("enter to submit, esc to cancel") + "\n")
		return b.String()
	}

	switch {
	case m.report != nil:
		r := m.report
		score := fmt.Sprintf("Score %d/100", r.Score)
		if r.Degraded {
			score += dimStyle.Render("  (offline check)")
		}
		b.WriteString(titleStyle.Render(score) + dimStyle.Render("  "+feedback.FormatElapsed(r.RecordingSeconds)) + "\n\n")

		b.WriteString(dimStyle.Render("You said") + "\n")
		writeWrapped(textStyle, r.OriginalText)
		b.WriteString("\n" + dimStyle.Render("Corrected"))
		if m.copied {
			b.WriteString(" " + okStyle.Render("[✓ copied]"))
		}
		b.WriteString("\n")
		writeWrapped(okStyle, r.CorrectedText)

		if len(r.Issues) > 0 {
			b.WriteString("\n" + dimStyle.Render(fmt.Sprintf("Issues (%d)", len(r.Issues))) + "\n")
			for _, is := range r.Issues {
				writeWrapped(issueStyle, "• "+is.Message+": "+is.Suggestion)
			}
		}
		b.WriteString("\n" + dimStyle.Render("Suggestions") + "\n")
		for _, s := range r.Suggestions {
			writeWrapped(helpStyle, "• "+s)
		}

	case m.phase == session.Recording || m.phase == session.Analyzing:
		b.WriteString(titleStyle.Render("Live transcript") + "\n\n")
		if m.live == "" {
			b.WriteString(dimStyle.Render("listening...") + "\n")
		} else {
			writeWrapped(textStyle, m.live)
		}

	default:
		b.WriteString(dimStyle.Render("Press space and start speaking.") + "\n")
	}
	return b.String()
}

// wrapText splits text at spaces so no line exceeds width runes.
func wrapText(text string, width int) []string {
	if text == "" {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	runes := []rune(text)
	for len(runes) > width {
		splitAt := width
		for i := width; i > 0; i-- {
			if runes[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, string(runes[:splitAt]))
		runes = []rune(strings.TrimLeft(string(runes[splitAt:]), " "))
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return lines
}

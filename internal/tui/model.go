package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aymanbagabas/go-osc52/v2"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/olliecrow/chapter_generator/internal/chapters"
)

type SubmitFunc func(context.Context, string) (chapters.Outcome, error)
type SaveLicenseFunc func(context.Context, string) error
type SnapshotFunc func(context.Context) chapters.Snapshot

type Options struct {
	Timeout     time.Duration
	NoColor     bool
	AltScreen   bool
	CheckoutURL string
	Submit      SubmitFunc
	SaveLicense SaveLicenseFunc
	Snapshot    SnapshotFunc
	// Clipboard receives OSC 52 copy sequences; defaults to stderr.
	Clipboard io.Writer
}

type focusField int

const (
	focusURL focusField = iota
	focusLicense
)

type Model struct {
	timeout     time.Duration
	submit      SubmitFunc
	saveLicense SaveLicenseFunc
	snapshot    SnapshotFunc
	checkoutURL string
	clipboard   io.Writer

	width  int
	height int

	now time.Time

	focus        focusField
	urlInput     []rune
	licenseInput []rune

	generating   bool
	lastDuration time.Duration
	lastError    string
	notice       string
	chapters     string
	chaptersURL  string
	selected     int

	snap   chapters.Snapshot
	styles styles
}

type styles struct {
	title   lipgloss.Style
	dim     lipgloss.Style
	panel   lipgloss.Style
	focused lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	accent  lipgloss.Style
	error   lipgloss.Style
	mono    lipgloss.Style
	loading lipgloss.Style
}

type clockTickMsg struct {
	at time.Time
}

type snapshotMsg struct {
	snap chapters.Snapshot
}

type submitResultMsg struct {
	duration time.Duration
	outcome  chapters.Outcome
	snap     chapters.Snapshot
	err      error
}

type licenseSavedMsg struct {
	snap chapters.Snapshot
	err  error
}

type copiedMsg struct {
	err error
}

const (
	defaultTimeout  = 3 * time.Minute
	snapshotTimeout = 5 * time.Second
)

func NewModel(opts Options) Model {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	submit := opts.Submit
	if submit == nil {
		submit = func(context.Context, string) (chapters.Outcome, error) {
			return chapters.Outcome{}, errors.New("missing submit function")
		}
	}
	saveLicense := opts.SaveLicense
	if saveLicense == nil {
		saveLicense = func(context.Context, string) error {
			return errors.New("missing license function")
		}
	}
	snapshot := opts.Snapshot
	if snapshot == nil {
		snapshot = func(context.Context) chapters.Snapshot { return chapters.Snapshot{} }
	}
	var clipboard io.Writer = os.Stderr
	if opts.Clipboard != nil {
		clipboard = opts.Clipboard
	}

	return Model{
		timeout:     timeout,
		submit:      submit,
		saveLicense: saveLicense,
		snapshot:    snapshot,
		checkoutURL: strings.TrimSpace(opts.CheckoutURL),
		clipboard:   clipboard,
		now:         time.Now().UTC(),
		styles:      defaultStyles(opts.NoColor),
	}
}

func defaultStyles(noColor bool) styles {
	basePanel := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	if noColor {
		return styles{
			title:   lipgloss.NewStyle().Bold(true),
			dim:     lipgloss.NewStyle(),
			panel:   basePanel,
			focused: basePanel.BorderStyle(lipgloss.DoubleBorder()),
			label:   lipgloss.NewStyle().Bold(true),
			value:   lipgloss.NewStyle(),
			ok:      lipgloss.NewStyle().Bold(true),
			warn:    lipgloss.NewStyle().Bold(true),
			bad:     lipgloss.NewStyle().Bold(true),
			accent:  lipgloss.NewStyle().Bold(true),
			error:   lipgloss.NewStyle().Bold(true),
			mono:    lipgloss.NewStyle(),
			loading: lipgloss.NewStyle(),
		}
	}
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Padding(0, 1),
		dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		panel:   basePanel.BorderForeground(lipgloss.Color("61")),
		focused: basePanel.BorderForeground(lipgloss.Color("81")),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color("109")),
		value:   lipgloss.NewStyle().Foreground(lipgloss.Color("255")),
		ok:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		warn:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		bad:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		accent:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81")),
		error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		mono:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		loading: lipgloss.NewStyle().Foreground(lipgloss.Color("117")),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(refreshCmd(m.snapshot, m.timeout), clockCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch v := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(v)
	case tea.WindowSizeMsg:
		m.width = v.Width
		m.height = v.Height
	case clockTickMsg:
		m.now = v.at.UTC()
		return m, clockCmd()
	case snapshotMsg:
		m.snap = v.snap
		m.clampSelection()
	case submitResultMsg:
		m.generating = false
		m.lastDuration = v.duration
		m.snap = v.snap
		m.clampSelection()
		if v.err != nil {
			m.lastError = chapters.UserMessage(v.err)
			return m, nil
		}
		m.lastError = ""
		m.chapters = v.outcome.Chapters
		m.chaptersURL = v.outcome.Record.URL
		m.selected = 0
	case licenseSavedMsg:
		m.snap = v.snap
		if v.err != nil {
			m.lastError = chapters.UserMessage(v.err)
			return m, nil
		}
		m.lastError = ""
		m.notice = "license saved"
		m.licenseInput = nil
		m.focus = focusURL
	case copiedMsg:
		if v.err != nil {
			m.lastError = "Could not copy to clipboard: " + v.err.Error()
			return m, nil
		}
		m.notice = "copied to clipboard"
	}
	return m, nil
}

func (m Model) handleKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyTab, tea.KeyShiftTab:
		if m.snap.Licensed {
			m.focus = focusURL
		} else if m.focus == focusURL {
			m.focus = focusLicense
		} else {
			m.focus = focusURL
		}
		return m, nil
	case tea.KeyEnter:
		return m.handleEnter()
	case tea.KeyUp:
		if m.selected > 0 {
			m.selected--
		}
		return m, nil
	case tea.KeyDown:
		if m.selected < len(m.snap.History)-1 {
			m.selected++
		}
		return m, nil
	case tea.KeyCtrlL:
		if m.selected >= 0 && m.selected < len(m.snap.History) {
			rec := m.snap.History[m.selected]
			m.urlInput = []rune(rec.URL)
			m.chapters = rec.Chapters
			m.chaptersURL = rec.URL
			m.lastError = ""
			m.focus = focusURL
		}
		return m, nil
	case tea.KeyCtrlY:
		text := m.copyText()
		if text == "" {
			m.notice = "nothing to copy"
			return m, nil
		}
		return m, copyCmd(m.clipboard, text)
	case tea.KeyCtrlU:
		m.setActiveInput(nil)
		return m, nil
	case tea.KeyBackspace:
		in := m.activeInput()
		if len(in) > 0 {
			m.setActiveInput(in[:len(in)-1])
		}
		return m, nil
	case tea.KeySpace:
		m.setActiveInput(append(m.activeInput(), ' '))
		return m, nil
	case tea.KeyRunes:
		m.setActiveInput(append(m.activeInput(), sanitizeRunes(k.Runes)...))
		m.notice = ""
		return m, nil
	}
	return m, nil
}

func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	if m.focus == focusLicense {
		key := strings.TrimSpace(string(m.licenseInput))
		if key == "" {
			return m, nil
		}
		return m, saveLicenseCmd(m.saveLicense, m.snapshot, key, m.timeout)
	}
	// One request at a time.
	if m.generating {
		return m, nil
	}
	m.generating = true
	m.lastError = ""
	m.notice = ""
	m.chapters = ""
	m.chaptersURL = ""
	return m, submitCmd(m.submit, m.snapshot, string(m.urlInput), m.timeout)
}

// copyText is the chapters on screen, else the selected history entry.
func (m Model) copyText() string {
	if m.chapters != "" {
		return m.chapters
	}
	if m.selected >= 0 && m.selected < len(m.snap.History) {
		return m.snap.History[m.selected].Chapters
	}
	return ""
}

func (m *Model) activeInput() []rune {
	if m.focus == focusLicense {
		return m.licenseInput
	}
	return m.urlInput
}

func (m *Model) setActiveInput(v []rune) {
	if m.focus == focusLicense {
		m.licenseInput = v
		return
	}
	m.urlInput = v
}

func (m *Model) clampSelection() {
	if m.selected >= len(m.snap.History) {
		m.selected = max(0, len(m.snap.History)-1)
	}
}

func sanitizeRunes(in []rune) []rune {
	out := make([]rune, 0, len(in))
	for _, r := range in {
		if r == '\n' || r == '\r' || r == '\t' {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (m Model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return "initializing..."
	}

	contentWidth := max(20, m.width-4)
	sections := []string{
		m.renderHeader(),
		m.renderPlanPanel(contentWidth),
		m.renderInputPanel(contentWidth),
	}
	if m.lastError != "" {
		sections = append(sections, m.styles.error.Render(ansi.Truncate("error: "+m.lastError, m.width, "...")))
	} else if m.notice != "" {
		sections = append(sections, m.styles.ok.Render(m.notice))
	}
	if m.chapters != "" || m.generating {
		sections = append(sections, m.renderChaptersPanel(contentWidth))
	}
	if len(m.snap.History) > 0 {
		sections = append(sections, m.renderHistoryPanel(contentWidth))
	}

	hint := "enter generate  tab switch field  up/down select  ctrl+l load  ctrl+y copy  ctrl+c exit"
	exitHint := m.styles.dim.Render(ansi.Truncate(hint, max(1, m.width), "..."))

	top := lipgloss.JoinVertical(lipgloss.Left, sections...)
	combined := pinFooterToBottom(top, exitHint, m.height)
	return clipToViewport(combined, m.width, m.height)
}

func (m Model) renderHeader() string {
	title := m.styles.title.Render(" chapter generator ")

	stateText := "idle"
	stateStyle := m.styles.dim
	if m.generating {
		stateText = "generating"
		stateStyle = m.styles.loading
	} else if m.lastError != "" {
		stateText = "error"
		stateStyle = m.styles.bad
	} else if m.chapters != "" {
		stateText = "ready"
		stateStyle = m.styles.ok
	}

	left := title + "  " + m.styles.label.Render("state: ") + stateStyle.Render(stateText)
	if !m.generating && m.lastDuration > 0 {
		left += " " + m.styles.dim.Render("[last request "+humanDuration(m.lastDuration)+"]")
	}
	right := m.styles.dim.Render("utc " + m.now.Format("2006-01-02 15:04:05"))
	return joinWithPaddingKeepRight(left, right, m.width)
}

func (m Model) renderPlanPanel(width int) string {
	maxLine := max(4, width-4)
	if m.snap.Licensed {
		line := m.styles.ok.Render("Pro activated. Enjoy unlimited generations.")
		return m.styles.panel.Width(width).Render(ansi.Truncate(line, maxLine, "..."))
	}

	remainingStyle := m.styles.ok
	switch {
	case m.snap.Remaining == 0:
		remainingStyle = m.styles.bad
	case m.snap.Remaining == 1:
		remainingStyle = m.styles.warn
	}
	period := m.snap.Period
	if period == "" {
		period = "month"
	}
	lines := []string{
		m.styles.label.Render("free generations remaining: ") +
			remainingStyle.Render(fmt.Sprintf("%d of %d", m.snap.Remaining, m.snap.Limit)) +
			m.styles.dim.Render(" this "+period),
	}
	if m.snap.ResetsAt != nil {
		lines = append(lines, m.styles.label.Render("resets in: ")+m.styles.value.Render(humanDuration(m.snap.ResetsAt.Sub(m.now))))
	}
	if m.checkoutURL != "" {
		lines = append(lines, m.styles.label.Render("upgrade to pro: ")+m.styles.accent.Render(m.checkoutURL))
	}
	lines = append(lines, m.renderField("license key", m.licenseInput, m.focus == focusLicense, "enter your license key", maxLine))
	for i := range lines {
		lines[i] = ansi.Truncate(lines[i], maxLine, "...")
	}
	style := m.styles.panel
	if m.focus == focusLicense {
		style = m.styles.focused
	}
	return style.Width(width).Render(strings.Join(lines, "\n"))
}

func (m Model) renderInputPanel(width int) string {
	maxLine := max(4, width-4)
	line := m.renderField("video url", m.urlInput, m.focus == focusURL, "https://www.youtube.com/watch?v=...", maxLine)
	style := m.styles.panel
	if m.focus == focusURL {
		style = m.styles.focused
	}
	return style.Width(width).Render(line)
}

func (m Model) renderField(label string, value []rune, focused bool, placeholder string, maxWidth int) string {
	prefix := m.styles.label.Render(label + ": ")
	room := max(1, maxWidth-lipgloss.Width(prefix)-1)
	if len(value) == 0 {
		text := m.styles.dim.Render(ansi.Truncate(placeholder, room, "..."))
		if focused {
			return prefix + m.styles.accent.Render("_") + text
		}
		return prefix + text
	}
	text := m.styles.value.Render(tailRunes(value, room))
	if focused {
		text += m.styles.accent.Render("_")
	}
	return prefix + text
}

func (m Model) renderChaptersPanel(width int) string {
	maxLine := max(4, width-4)
	if m.generating {
		return m.styles.panel.Width(width).Render(m.styles.loading.Render("generating chapters..."))
	}
	title := "chapters"
	if m.chaptersURL != "" {
		title += " [" + m.chaptersURL + "]"
	}
	lines := []string{m.styles.accent.Render(ansi.Truncate(title, maxLine, "..."))}
	for _, line := range strings.Split(strings.TrimRight(m.chapters, "\n"), "\n") {
		lines = append(lines, m.styles.mono.Render(ansi.Truncate(line, maxLine, "...")))
	}
	return m.styles.panel.Width(width).Render(strings.Join(lines, "\n"))
}

func (m Model) renderHistoryPanel(width int) string {
	maxLine := max(4, width-4)
	lines := []string{m.styles.accent.Render("Recent Generations")}
	for i, rec := range m.snap.History {
		marker := "  "
		style := m.styles.dim
		if i == m.selected {
			marker = "> "
			style = m.styles.value
		}
		count := chapterLineCount(rec.Chapters)
		line := fmt.Sprintf("%s%s (%d %s)", marker, rec.URL, count, plural(count, "chapter", "chapters"))
		lines = append(lines, style.Render(ansi.Truncate(line, maxLine, "...")))
	}
	return m.styles.panel.Width(width).Render(strings.Join(lines, "\n"))
}

func chapterLineCount(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func tailRunes(r []rune, n int) string {
	if n <= 0 {
		return ""
	}
	if len(r) <= n {
		return string(r)
	}
	if n == 1 {
		return string(r[len(r)-1:])
	}
	return "…" + string(r[len(r)-(n-1):])
}

func clockCmd() tea.Cmd {
	return tea.Tick(1*time.Second, func(t time.Time) tea.Msg {
		return clockTickMsg{at: t}
	})
}

func refreshCmd(snapshot SnapshotFunc, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return snapshotMsg{snap: snapshot(ctx)}
	}
}

func submitCmd(submit SubmitFunc, snapshot SnapshotFunc, videoURL string, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		outcome, err := submit(ctx, videoURL)
		cancel()
		return submitResultMsg{
			duration: time.Since(start),
			outcome:  outcome,
			snap:     freshSnapshot(snapshot),
			err:      err,
		}
	}
}

func saveLicenseCmd(save SaveLicenseFunc, snapshot SnapshotFunc, key string, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := save(ctx, key)
		cancel()
		return licenseSavedMsg{snap: freshSnapshot(snapshot), err: err}
	}
}

// freshSnapshot reads state on its own deadline; the request context may
// already be spent.
func freshSnapshot(snapshot SnapshotFunc) chapters.Snapshot {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	return snapshot(ctx)
}

func copyCmd(w io.Writer, text string) tea.Cmd {
	return func() tea.Msg {
		seq := osc52.New(text)
		switch {
		case os.Getenv("TMUX") != "":
			seq = seq.Tmux()
		case strings.HasPrefix(os.Getenv("TERM"), "screen"):
			seq = seq.Screen()
		}
		_, err := seq.WriteTo(w)
		return copiedMsg{err: err}
	}
}

func Run(opts Options) error {
	model := NewModel(opts)
	progOpts := []tea.ProgramOption{}
	if opts.AltScreen {
		progOpts = append(progOpts, tea.WithAltScreen())
	}
	prog := tea.NewProgram(model, progOpts...)
	_, err := prog.Run()
	return err
}

func joinWithPaddingKeepRight(left, right string, width int) string {
	if width <= 0 {
		return ""
	}
	rightWidth := lipgloss.Width(right)
	if rightWidth >= width {
		return truncateRunes(right, width)
	}
	maxLeftWidth := max(0, width-rightWidth-1)
	left = truncateRunes(left, maxLeftWidth)
	leftWidth := lipgloss.Width(left)
	padding := max(1, width-leftWidth-rightWidth)
	return left + strings.Repeat(" ", padding) + right
}

func truncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	return ansi.Truncate(s, maxRunes, "")
}

func clipToViewport(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for i := range lines {
		lines[i] = truncateRunes(lines[i], width)
		pad := width - lipgloss.Width(lines[i])
		if pad > 0 {
			lines[i] += strings.Repeat(" ", pad)
		}
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

// pinFooterToBottom pads or cuts top so footer lands on the last row.
func pinFooterToBottom(top, footer string, height int) string {
	if height <= 0 {
		return ""
	}
	footerLines := []string{}
	if footer != "" {
		footerLines = strings.Split(footer, "\n")
	}
	topLines := []string{}
	if top != "" {
		topLines = strings.Split(top, "\n")
	}

	maxTopLines := max(0, height-len(footerLines))
	if len(topLines) > maxTopLines {
		topLines = topLines[:maxTopLines]
	}
	for len(topLines) < maxTopLines {
		topLines = append(topLines, "")
	}

	all := append(topLines, footerLines...)
	if len(all) == 0 {
		return ""
	}
	return strings.Join(all, "\n")
}

func humanDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return d.String()
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
}

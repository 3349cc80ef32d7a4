// Package tui provides the Bubble Tea tracking interface.
package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/gazemap/internal/export"
	"github.com/verte-zerg/gazemap/internal/session"
)

const (
	bannerTTL   = 3 * time.Second
	logCapacity = 6
)

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	trackingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	idleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Background(lipgloss.Color("#237804")).Padding(0, 1)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
)

type autoStartMsg struct{}

type bannerExpiredMsg int

type sourceDoneMsg struct{ err error }

// Options configure the tracking UI.
type Options struct {
	// Session is passed to the controller. Clock, Post and Observer are
	// filled in by the model unless already set.
	Session   session.Options
	AutoStart bool
	// SourceDone, when set, is closed once the gaze source is exhausted.
	SourceDone <-chan struct{}
	SourceErr  func() error
	Loop       *Loop
}

// Model implements the Bubble Tea tracking UI.
type Model struct {
	ctrl   *session.Controller
	loop   *Loop
	locale export.Locale
	ctx    context.Context
	cancel context.CancelFunc

	keys      keyMap
	help      help.Model
	input     textinput.Model
	prompting bool

	autoStart  bool
	sourceDone <-chan struct{}
	sourceErr  func() error

	width  int
	height int

	banner    string
	bannerErr bool
	bannerSeq int
	log       []string
	pending   []tea.Cmd
	quitting  bool
}

// NewModel builds the controller and the UI around it.
func NewModel(opts Options) *Model {
	loop := opts.Loop
	if loop == nil {
		loop = NewLoop(0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Model{
		loop:       loop,
		locale:     opts.Session.Locale,
		ctx:        ctx,
		cancel:     cancel,
		keys:       defaultKeys(),
		help:       help.New(),
		autoStart:  opts.AutoStart,
		sourceDone: opts.SourceDone,
		sourceErr:  opts.SourceErr,
	}
	m.input = textinput.New()
	m.input.Prompt = "Page: "
	m.input.Placeholder = "/path?query"

	sopts := opts.Session
	if sopts.Clock == nil {
		sopts.Clock = loop
	}
	if sopts.Post == nil {
		sopts.Post = loop.Post
	}
	next := sopts.Observer
	sopts.Observer = func(ev session.Event) {
		m.observe(ev)
		if next != nil {
			next(ev)
		}
	}
	m.ctrl = session.New(sopts)
	return m
}

// Controller exposes the session controller.
func (m *Model) Controller() *session.Controller {
	return m.ctrl
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.loop.wait()}
	if m.autoStart {
		cmds = append(cmds, func() tea.Msg { return autoStartMsg{} })
	}
	if m.sourceDone != nil {
		done, errFn := m.sourceDone, m.sourceErr
		cmds = append(cmds, func() tea.Msg {
			<-done
			var err error
			if errFn != nil {
				err = errFn()
			}
			return sourceDoneMsg{err: err}
		})
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.loop.handle(msg) {
		return m, m.flush(m.loop.wait())
	}
	switch msg := msg.(type) {
	case autoStartMsg:
		m.start()
	case sourceDoneMsg:
		if msg.err != nil {
			m.notifyErr(fmt.Sprintf("Input failed: %v", msg.err))
		} else {
			m.record("input ended")
		}
	case bannerExpiredMsg:
		if int(msg) == m.bannerSeq {
			m.banner = ""
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.input.Width = maxInt(10, msg.Width-lipgloss.Width(m.input.Prompt)-2)
	case tea.KeyMsg:
		if m.prompting {
			return m.updatePrompt(msg)
		}
		return m, m.handleKey(msg)
	}
	return m, m.flush(nil)
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	header := titleStyle.Render("gazemap") + "  " + m.renderStatus()
	if m.width == 0 || m.height == 0 {
		return header
	}
	footer := m.renderFooter()
	logLines := m.renderLog()
	footerHeight := lipgloss.Height(footer)
	bodyHeight := m.height - 1 - len(logLines) - footerHeight
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	parts := []string{
		fitLines(header, m.width, 1),
		fitLines(m.renderBody(bodyHeight), m.width, bodyHeight),
	}
	if len(logLines) > 0 {
		parts = append(parts, strings.Join(logLines, "\n"))
	}
	parts = append(parts, footer)
	return strings.Join(parts, "\n")
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	case key.Matches(msg, m.keys.Start):
		m.start()
	case key.Matches(msg, m.keys.Stop):
		m.ctrl.Stop()
	case key.Matches(msg, m.keys.Toggle):
		m.ctrl.ToggleHeatmap()
	case key.Matches(msg, m.keys.Clear):
		m.ctrl.Clear()
	case key.Matches(msg, m.keys.Export):
		m.exportNow()
	case key.Matches(msg, m.keys.Goto):
		m.prompting = true
		m.input.SetValue(m.ctrl.Route())
		m.input.CursorEnd()
		return tea.Batch(m.flush(nil), m.input.Focus())
	case key.Matches(msg, m.keys.RadiusUp):
		m.adjust(func(p *paramsEdit) { p.radius(5) })
	case key.Matches(msg, m.keys.RadiusDown):
		m.adjust(func(p *paramsEdit) { p.radius(-5) })
	case key.Matches(msg, m.keys.BlurUp):
		m.adjust(func(p *paramsEdit) { p.blur(1) })
	case key.Matches(msg, m.keys.BlurDown):
		m.adjust(func(p *paramsEdit) { p.blur(-1) })
	case key.Matches(msg, m.keys.OpacityUp):
		m.adjust(func(p *paramsEdit) { p.opacity(0.05) })
	case key.Matches(msg, m.keys.OpacityDown):
		m.adjust(func(p *paramsEdit) { p.opacity(-0.05) })
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m.flush(nil)
}

func (m *Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.prompting = false
		m.input.Blur()
		return m, m.flush(nil)
	case tea.KeyEnter:
		route := strings.TrimSpace(m.input.Value())
		m.prompting = false
		m.input.Blur()
		m.ctrl.Navigate(route)
		return m, m.flush(nil)
	case tea.KeyCtrlC:
		return m, m.quit()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) start() {
	if err := m.ctrl.Start(m.ctx); err != nil {
		m.notifyErr(fmt.Sprintf("Cannot start tracking: %v", err))
	}
}

func (m *Model) exportNow() {
	err := m.ctrl.ExportNow()
	switch {
	case err == nil:
	case errors.Is(err, session.ErrEmptyDataset):
		m.notifyErr("Nothing to export yet")
	case errors.Is(err, session.ErrExportBusy):
		m.notifyErr("Export already in progress")
	case errors.Is(err, session.ErrHeatmapHidden):
		m.notifyErr("Show the heatmap (h) to export")
	default:
		m.notifyErr(err.Error())
	}
}

func (m *Model) quit() tea.Cmd {
	m.ctrl.Stop()
	m.ctrl.Close()
	m.cancel()
	m.loop.Close()
	m.quitting = true
	return tea.Quit
}

func (m *Model) observe(ev session.Event) {
	switch ev.Kind {
	case session.EventStarted:
		m.record(fmt.Sprintf("tracking started on %s", ev.Page))
	case session.EventStopped:
		m.record("tracking stopped")
	case session.EventCleared:
		m.record("buffer cleared")
	case session.EventExported:
		rows := ""
		if ev.Artifact.Rows > 0 {
			rows = fmt.Sprintf(" (%s rows)", m.locale.Count(ev.Artifact.Rows))
		}
		m.record(fmt.Sprintf("saved %s%s", ev.Path, rows))
		m.notify(fmt.Sprintf("Saved %s", filepath.Base(ev.Artifact.Filename)))
	case session.EventExportFailed:
		m.notifyErr(fmt.Sprintf("Export failed for %s: %v", ev.Page, ev.Err))
	case session.EventImageSkipped:
		m.record(fmt.Sprintf("image skipped for %s: %v", ev.Page, ev.Err))
	case session.EventCollision:
		if ev.Dropped > 0 {
			m.record(fmt.Sprintf("dropped %s samples of skipped pages", m.locale.Count(ev.Dropped)))
		} else {
			m.record(fmt.Sprintf("left %s while an export was running", ev.Page))
		}
	}
}

func (m *Model) record(line string) {
	stamp := m.loop.Now().Format("15:04:05")
	m.log = append(m.log, stamp+" "+line)
	if len(m.log) > logCapacity {
		m.log = m.log[len(m.log)-logCapacity:]
	}
}

func (m *Model) notify(text string) {
	m.setBanner(text, false)
}

func (m *Model) notifyErr(text string) {
	m.setBanner(text, true)
}

func (m *Model) setBanner(text string, isErr bool) {
	m.bannerSeq++
	seq := m.bannerSeq
	m.banner = text
	m.bannerErr = isErr
	m.pending = append(m.pending, tea.Tick(bannerTTL, func(time.Time) tea.Msg {
		return bannerExpiredMsg(seq)
	}))
}

func (m *Model) flush(extra tea.Cmd) tea.Cmd {
	cmds := m.pending
	m.pending = nil
	if extra != nil {
		cmds = append(cmds, extra)
	}
	switch len(cmds) {
	case 0:
		return nil
	case 1:
		return cmds[0]
	}
	return tea.Batch(cmds...)
}

func (m *Model) renderStatus() string {
	var state string
	if m.ctrl.State() == session.Tracking {
		state = trackingStyle.Render("● tracking")
	} else {
		state = idleStyle.Render("○ idle")
	}
	samples := fmt.Sprintf("samples %s", m.locale.Count(m.ctrl.Len()))
	if queued := m.ctrl.Total() - m.ctrl.Len(); queued > 0 {
		samples += fmt.Sprintf(" +%s queued", m.locale.Count(queued))
	}
	segments := []string{
		"page " + m.ctrl.Route(),
		samples,
	}
	if m.ctrl.Guard() == session.Busy {
		segments = append(segments, "exporting")
	}
	heat := "heatmap off"
	if m.ctrl.Overlay().Visible() {
		heat = "heatmap on"
	}
	p := m.ctrl.Params()
	segments = append(segments, heat, fmt.Sprintf("r%.0f b%.0f a%.2f-%.2f", p.Radius, p.Blur, p.MinOpacity, p.MaxOpacity))
	rest := strings.Join(segments, "  ")
	if m.width > 0 {
		avail := m.width - lipgloss.Width("gazemap") - 2 - lipgloss.Width(state) - 2
		rest = truncate(rest, maxInt(0, avail))
	}
	return state + "  " + statusStyle.Render(rest)
}

func (m *Model) renderBody(height int) string {
	if m.prompting {
		return m.input.View()
	}
	overlay := m.ctrl.Overlay()
	view := m.ctrl.Viewport()
	switch {
	case !overlay.Visible():
		return mutedStyle.Render("Heatmap hidden. Press h to show it.")
	case overlay.Surface() == nil:
		return mutedStyle.Render(fmt.Sprintf("Waiting for a viewport (%dx%d).", view.Width, view.Height))
	}
	preview := renderPreview(overlay.Surface(), m.width, height)
	return lipgloss.Place(m.width, height, lipgloss.Center, lipgloss.Center, preview)
}

func (m *Model) renderLog() []string {
	if len(m.log) == 0 || m.width == 0 {
		return nil
	}
	var lines []string
	for _, entry := range m.log {
		for _, line := range wrapLine(entry, m.width) {
			lines = append(lines, mutedStyle.Render(line))
		}
	}
	if len(lines) > logCapacity {
		lines = lines[len(lines)-logCapacity:]
	}
	return lines
}

func (m *Model) renderFooter() string {
	lines := []string{}
	if m.banner != "" {
		text := truncate(m.banner, maxInt(0, m.width-2))
		if m.bannerErr {
			lines = append(lines, errorStyle.Render(text))
		} else {
			lines = append(lines, successStyle.Render(text))
		}
	}
	if m.prompting {
		lines = append(lines, mutedStyle.Render("enter: go  esc: cancel"))
	} else {
		lines = append(lines, m.help.View(m.keys))
	}
	return strings.Join(lines, "\n")
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

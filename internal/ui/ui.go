package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/iasync/internal/models"
	"github.com/desertthunder/iasync/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PreviewView ViewState = iota
	ConfirmView
	ProgressView
	ResultView
)

// BatchRunner streams the events of one batch. The channel closes after the terminal event.
type BatchRunner interface {
	Stream(ctx context.Context, req models.UpdateRequest) <-chan tasks.Event
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	view     ViewState
	runner   BatchRunner
	req      models.UpdateRequest
	width    int
	height   int
	items    list.Model
	spinner  spinner.Model
	progress progress.Model
	results  viewport.Model
	events   <-chan tasks.Event
	last     tasks.Event
	log      []tasks.ItemResult
	summary  *tasks.Summary
	err      error
	help     help.Model
	keys     keyMap
}

// NewModel creates a TUI model for a single batch request.
func NewModel(ctx context.Context, runner BatchRunner, req models.UpdateRequest) *Model {
	items := list.New(batchItems(req), list.NewDefaultDelegate(), 0, 0)
	items.Title = fmt.Sprintf("Batch: %d item(s), %d update(s) each", len(req.Items), len(req.Updates))

	return &Model{
		ctx:      ctx,
		view:     PreviewView,
		runner:   runner,
		req:      req,
		items:    items,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		progress: progress.New(progress.WithDefaultGradient()),
		results:  viewport.New(0, 0),
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init does nothing until the batch is confirmed.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Summary returns the final summary once the batch has completed.
func (m *Model) Summary() *tasks.Summary { return m.summary }

// Err returns the fatal batch error, if any.
func (m *Model) Err() error { return m.err }

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.items.SetSize(msg.Width-4, msg.Height-6)
		m.progress.Width = max(msg.Width-8, 10)
		m.results.Width = msg.Width - 4
		m.results.Height = max(msg.Height-10, 3)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case PreviewView:
			return m.handlePreviewKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case ProgressView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != ProgressView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		switch msg.kind {
		case MsgBatchEvent:
			m.handleEvent(msg.data.(tasks.Event))
			return m, m.waitForEvent()
		case MsgStreamClosed:
			m.events = nil
			m.view = ResultView
			m.results.SetContent(m.renderResults())
			return m, nil
		}
	}

	if m.view == PreviewView {
		var cmd tea.Cmd
		m.items, cmd = m.items.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleEvent(ev tasks.Event) {
	m.last = ev
	switch ev.Type {
	case tasks.EventSuccess, tasks.EventError:
		if ev.Result != nil {
			m.log = append(m.log, *ev.Result)
		}
		if ev.Fatal {
			m.err = fmt.Errorf("%s", ev.Message)
		}
	case tasks.EventComplete:
		m.summary = ev.Summary
	}
}

func (m *Model) handlePreviewKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.items.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.items, cmd = m.items.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		m.view = ConfirmView
		return m, nil
	}

	var cmd tea.Cmd
	m.items, cmd = m.items.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit), key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back):
		m.view = PreviewView
		return m, nil
	case key.Matches(msg, m.keys.yes):
		m.view = ProgressView
		return m, tea.Batch(m.spinner.Tick, m.startBatch())
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.quit) {
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.results, cmd = m.results.Update(msg)
	return m, cmd
}

func (m *Model) startBatch() tea.Cmd {
	m.events = m.runner.Stream(m.ctx, m.req)
	return m.waitForEvent()
}

func (m *Model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		if events == nil {
			return streamClosedMsg()
		}
		ev, ok := <-events
		if !ok {
			return streamClosedMsg()
		}
		return batchEventMsg(ev)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case PreviewView:
		return m.renderPreview()
	case ConfirmView:
		return m.renderConfirm()
	case ProgressView:
		return m.renderProgress()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) renderPreview() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.up, m.keys.down, m.keys.enter, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", m.items.View(), helpView)
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render(fmt.Sprintf("Apply %d update(s) to %d item(s)?", len(m.req.Updates), len(m.req.Items)))

	var b strings.Builder
	for _, u := range m.req.Updates {
		b.WriteString(fmt.Sprintf("  %-8s %s = %q\n", u.Op(), u.Field, u.Value))
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no})
	return fmt.Sprintf("%s\n%s\n%s", title, styles.box.Render(strings.TrimRight(b.String(), "\n")), helpView)
}

func (m *Model) renderProgress() string {
	title := styles.title.Render("Updating metadata")

	total := max(m.last.Total, len(m.req.Items))
	percent := 0.0
	if total > 0 {
		percent = float64(m.last.Processed) / float64(total)
	}

	status := "Starting..."
	if m.last.Identifier != "" {
		status = fmt.Sprintf("%s %s (%d/%d)", m.spinner.View(), m.last.Identifier, m.last.Processed, total)
	}
	counts := fmt.Sprintf("%s  %s",
		styles.ok.Render(fmt.Sprintf("%d ok", m.last.SuccessCount)),
		styles.err.Render(fmt.Sprintf("%d failed", m.last.FailureCount)))

	return fmt.Sprintf("%s\n%s\n\n%s\n%s\n\n%s", title, m.progress.ViewAs(percent), status, counts, m.help.ShortHelpView([]key.Binding{m.keys.quit}))
}

func (m *Model) renderResults() string {
	var b strings.Builder
	for _, r := range m.log {
		outcome := "ok"
		switch {
		case r.Aborted:
			outcome = "aborted"
		case !r.Success:
			outcome = "failed"
		case r.Updated == 0 && r.Skipped > 0:
			outcome = "skipped"
		}
		b.WriteString(fmt.Sprintf("%s %s: %s\n", styles.state(outcome).Render(fmt.Sprintf("[%s]", outcome)), r.Identifier, r.Message))
		for _, f := range r.Fields {
			if f.Error != "" {
				b.WriteString(styles.help.Render(fmt.Sprintf("    %s: %s", f.Field, f.Error)) + "\n")
			}
		}
	}
	return b.String()
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.up, m.keys.down, m.keys.quit})

	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Batch failed: %v", m.err)) + "\n\n" + helpView
	}
	if m.summary == nil {
		return styles.warn.Render("Batch ended without a summary") + "\n\n" + m.results.View() + "\n" + helpView
	}

	s := m.summary
	title := styles.ok.Render("✓ Batch complete")
	if s.FailureCount > 0 {
		title = styles.warn.Render(fmt.Sprintf("Batch complete with %d failure(s)", s.FailureCount))
	}
	info := fmt.Sprintf("Items: %d/%d succeeded\nFields: %d updated, %d skipped (%d unchanged, %d no-op)",
		s.SuccessCount, s.Total, s.TotalUpdated, s.TotalSkipped, s.SkippedUnchanged, s.SkippedNoop)

	return fmt.Sprintf("%s\n%s\n\n%s\n%s", title, info, m.results.View(), helpView)
}

// Package tui は直近ジョブの一覧とアクティブなジョブの進捗・結果を表示する端末 UI です。
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/yourusername/text-forge/internal/jobapi"
	"github.com/yourusername/text-forge/internal/render"
	"github.com/yourusername/text-forge/internal/tracker"
)

// Orchestrator は UI が使うトラッカーの操作です。*tracker.Tracker が実装します。
type Orchestrator interface {
	Registry() *tracker.Registry
	Switch(jobID string) error
	Resolve(ctx context.Context, jobID string) (*tracker.Result, error)
	Hydrate(ctx context.Context) error
}

type hydratedMsg struct{ err error }

type resultMsg struct {
	jobID  string
	result *tracker.Result
	err    error
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statusStyles  = map[jobapi.Status]lipgloss.Style{
		jobapi.StatusPending:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		jobapi.StatusRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		jobapi.StatusCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		jobapi.StatusFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// Model は Bubble Tea のモデルです。
type Model struct {
	ctx      context.Context
	orch     Orchestrator
	feed     *Feed
	style    string
	renderer *render.Renderer
	keys     keyMap

	spinner  spinner.Model
	bar      progress.Model
	viewport viewport.Model

	jobs      []tracker.Job
	selected  int
	snap      tracker.Snapshot
	result    *tracker.Result
	resolving string
	err       error

	width  int
	height int
}

// NewModel はモデルを作成します。style は glamour のスタイル名です（"dark", "notty" など）。
func NewModel(ctx context.Context, orch Orchestrator, feed *Feed, style string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:      ctx,
		orch:     orch,
		feed:     feed,
		style:    style,
		renderer: render.New(80, render.WithStyle(style)),
		keys:     newKeyMap(),
		spinner:  sp,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		viewport: viewport.New(80, 16),
		width:    80,
		height:   24,
	}
	m.bar.Width = 40
	m.refreshJobs()
	if active, ok := orch.Registry().Active(); ok {
		m.snap = tracker.Snapshot{State: tracker.StatePolling, Job: active}
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.feed.wait(), m.hydrate())
}

func (m Model) hydrate() tea.Cmd {
	orch, ctx := m.orch, m.ctx
	return func() tea.Msg {
		return hydratedMsg{err: orch.Hydrate(ctx)}
	}
}

func (m Model) resolve(jobID string) tea.Cmd {
	orch, ctx := m.orch, m.ctx
	return func() tea.Msg {
		res, err := orch.Resolve(ctx, jobID)
		return resultMsg{jobID: jobID, result: res, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.renderer = render.New(max(msg.Width-4, 20), render.WithStyle(m.style))
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-m.headerHeight(), 3)
		m.bar.Width = min(max(msg.Width-30, 10), 60)
		if m.result != nil {
			m.viewport.SetContent(m.renderer.Result(m.result))
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case snapshotMsg:
		cmd := m.applySnapshot(tracker.Snapshot(msg))
		return m, tea.Batch(cmd, m.feed.wait())

	case hydratedMsg:
		if msg.err != nil {
			m.err = msg.err
		}
		m.refreshJobs()
		return m, nil

	case resultMsg:
		if msg.jobID != m.resolving {
			return m, nil
		}
		m.resolving = ""
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.result = msg.result
		m.viewport.SetContent(m.renderer.Result(msg.result))
		m.viewport.GotoTop()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Dismiss):
		m.err = nil
		return m, nil
	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}
		return m, nil
	case key.Matches(msg, m.keys.Down):
		if m.selected < len(m.jobs)-1 {
			m.selected++
		}
		return m, nil
	case key.Matches(msg, m.keys.Switch):
		if len(m.jobs) == 0 {
			return m, nil
		}
		job := m.jobs[m.selected]
		if err := m.orch.Switch(job.ID); err != nil {
			m.err = err
			return m, nil
		}
		m.err = nil
		m.result = nil
		m.resolving = ""
		m.viewport.SetContent("")
		m.snap = tracker.Snapshot{State: tracker.StatePolling, Job: job}
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// applySnapshot はアクティブなジョブのスナップショットだけを画面に反映します。
func (m *Model) applySnapshot(snap tracker.Snapshot) tea.Cmd {
	m.refreshJobs()
	active, ok := m.orch.Registry().Active()
	if !ok || active.ID != snap.Job.ID {
		return nil
	}
	m.snap = snap

	switch snap.State {
	case tracker.StateResolved:
		if snap.Job.Status == jobapi.StatusFailed {
			m.err = fmt.Errorf("job %s failed: %s", snap.Job.ID, orDefault(snap.Job.Error, "no error message"))
			return nil
		}
		if m.result == nil && m.resolving == "" {
			m.resolving = snap.Job.ID
			return m.resolve(snap.Job.ID)
		}
	case tracker.StateTimedOut, tracker.StateAborted:
		if snap.Err != nil {
			m.err = snap.Err
		}
	}
	return nil
}

func (m *Model) refreshJobs() {
	m.jobs = m.orch.Registry().Recent()
	if m.selected >= len(m.jobs) {
		m.selected = max(len(m.jobs)-1, 0)
	}
}

func (m Model) headerHeight() int {
	// タイトル、一覧、アクティブジョブ、ヘルプの行数
	return 6 + len(m.jobs)
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("textforge"))
	b.WriteString("\n\n")

	if len(m.jobs) == 0 {
		b.WriteString(mutedStyle.Render("No recent jobs."))
		b.WriteString("\n")
	}
	activeID := ""
	if active, ok := m.orch.Registry().Active(); ok {
		activeID = active.ID
	}
	for i, job := range m.jobs {
		b.WriteString(m.jobLine(i, job, job.ID == activeID))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if activeID != "" {
		b.WriteString(m.activeView())
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(m.renderer.Error(m.err))
		b.WriteString("\n")
	}
	if m.result != nil {
		b.WriteString(m.viewport.View())
		b.WriteString("\n")
	}
	b.WriteString(mutedStyle.Render(m.keys.help()))
	return b.String()
}

func (m Model) jobLine(i int, job tracker.Job, active bool) string {
	cursor := "  "
	if i == m.selected {
		cursor = "> "
	}
	marker := " "
	if active {
		marker = "*"
	}
	name := orDefault(job.Name, job.ID)
	status := statusStyles[job.Status].Render(string(job.Status))
	line := fmt.Sprintf("%s%s %-32s %-22s %s", cursor, marker, truncate(name, 32), job.Kind, status)
	if i == m.selected {
		return selectedStyle.Render(line)
	}
	return line
}

func (m Model) activeView() string {
	job := m.snap.Job
	var b strings.Builder
	switch m.snap.State {
	case tracker.StatePolling:
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
	case tracker.StateResolved:
		b.WriteString("✓ ")
	default:
		b.WriteString("! ")
	}
	fmt.Fprintf(&b, "%s  %s  (%s)", orDefault(job.Name, job.ID), job.Status, m.snap.State)
	if job.Progress != nil {
		fmt.Fprintf(&b, "\n  %s %d/%d", m.bar.ViewAs(job.Progress.Percent()/100), job.Progress.Processed, job.Progress.Total)
	}
	if m.resolving != "" {
		b.WriteString("\n  ")
		b.WriteString(mutedStyle.Render("loading results..."))
	}
	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Run は UI を起動し、終了するまでブロックします。
func Run(ctx context.Context, orch Orchestrator, feed *Feed, style string) error {
	p := tea.NewProgram(NewModel(ctx, orch, feed, style), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

package viz

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/smcfilter/internal/experiment"
)

const (
	canvasWidth  = 60
	canvasHeight = 16
	historyLimit = 2000
)

type (
	TickMsg       time.Time
	generationMsg experiment.GenerationStat
	doneMsg       struct {
		res *experiment.Result
		err error
	}
)

// Feed carries sampler progress from the experiment goroutine to the
// monitor. It is an experiment.Observer.
type Feed struct {
	ch chan tea.Msg
}

// NewFeed buffers enough messages for a run of the given length, so the
// sampler never waits on the UI.
func NewFeed(generations int) *Feed {
	return &Feed{ch: make(chan tea.Msg, generations+2)}
}

func (f *Feed) OnGeneration(stat experiment.GenerationStat) {
	f.ch <- generationMsg(stat)
}

// Finish reports the end of the run. It must be called exactly once.
func (f *Feed) Finish(res *experiment.Result, err error) {
	f.ch <- doneMsg{res: res, err: err}
}

func (f *Feed) wait() tea.Cmd {
	return func() tea.Msg { return <-f.ch }
}

type chart int

const (
	chartEstimate chart = iota
	chartESS
	chartAccepted
	chartEvidence
	numCharts
)

func (c chart) String() string {
	return [...]string{"estimate", "ess", "accepted", "evidence"}[c]
}

// Monitor is a bubbletea model showing a sampler run as it progresses.
type Monitor struct {
	title    string
	total    int
	feed     *Feed
	cancel   func()
	canvas   *Canvas
	gens     []experiment.GenerationStat
	chart    chart
	frame    int
	started  time.Time
	result   *experiment.Result
	err      error
	done     bool
	showHelp bool
}

// NewMonitor watches feed. cancel is called when the user quits before the
// run finishes.
func NewMonitor(title string, total int, feed *Feed, cancel func()) Monitor {
	return Monitor{
		title:   title,
		total:   total,
		feed:    feed,
		cancel:  cancel,
		canvas:  NewCanvas(canvasWidth, canvasHeight),
		gens:    make([]experiment.GenerationStat, 0, min(total+1, historyLimit)),
		started: time.Now(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/10, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Monitor) Init() tea.Cmd {
	return tea.Batch(m.feed.wait(), tick())
}

func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.done && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case "tab":
			m.chart = (m.chart + 1) % numCharts
		case "?":
			m.showHelp = !m.showHelp
		}
	case generationMsg:
		m.gens = append(m.gens, experiment.GenerationStat(msg))
		if len(m.gens) > historyLimit {
			m.gens = m.gens[1:]
		}
		return m, m.feed.wait()
	case doneMsg:
		m.done = true
		m.result, m.err = msg.res, msg.err
	case TickMsg:
		m.frame++
		if !m.done {
			return m, tick()
		}
	}
	return m, nil
}

// Result returns the finished run, if any.
func (m Monitor) Result() (*experiment.Result, error) { return m.result, m.err }

func (m Monitor) series() []float64 {
	out := make([]float64, len(m.gens))
	for i, g := range m.gens {
		switch m.chart {
		case chartESS:
			out[i] = g.ESS
		case chartAccepted:
			out[i] = float64(g.Accepted)
		case chartEvidence:
			out[i] = g.LogEvidence
		default:
			out[i] = g.Estimate
		}
	}
	return out
}

func (m Monitor) draw() {
	m.canvas.Clear()
	ys := m.series()
	if m.chart != chartEstimate {
		m.canvas.Line(FitScale(len(ys), ys), ys)
		return
	}
	lo := make([]float64, len(m.gens))
	hi := make([]float64, len(m.gens))
	spread := make([]float64, len(m.gens))
	for i, g := range m.gens {
		lo[i], hi[i], spread[i] = g.Estimate-g.Spread, g.Estimate+g.Spread, g.Spread
	}
	scale := FitScale(len(ys), lo, hi)
	m.canvas.Band(scale, ys, spread)
	m.canvas.Line(scale, ys)
}

func (m Monitor) status() string {
	switch {
	case m.err != nil:
		return StatusFailed.Render("FAILED")
	case m.done:
		return StatusPaused.Render("DONE")
	default:
		return StatusRunning.Render(AnimatedSpinner(m.frame) + " RUNNING")
	}
}

func (m Monitor) View() string {
	m.draw()

	var s strings.Builder
	s.WriteString(Header.Render(strings.ToUpper(m.title)) + "\n")
	s.WriteString(m.status() + "\n\n")

	completed := max(len(m.gens)-1, 0)
	progress := 1.0
	if m.total > 0 {
		progress = float64(completed) / float64(m.total)
	}
	s.WriteString(ProgressBar(progress, 30) + fmt.Sprintf(" %d/%d\n\n", completed, m.total))

	if n := len(m.gens); n > 0 {
		g := m.gens[n-1]
		s.WriteString(metricLine("Generation", fmt.Sprintf("%d", g.Generation)))
		s.WriteString(metricLine("ESS", fmt.Sprintf("%.1f", g.ESS)))
		s.WriteString(metricLine("Estimate", fmt.Sprintf("%.3f ± %.3f", g.Estimate, g.Spread)))
		s.WriteString(metricLine("Accepted", fmt.Sprintf("%d", g.Accepted)))
		s.WriteString(metricLine("Log evidence", fmt.Sprintf("%.4f", g.LogEvidence)))
		if g.CapHit {
			s.WriteString(StatusFailed.Render("population cap reached") + "\n")
		}
	}
	if m.err != nil {
		s.WriteString("\n" + StatusFailed.Render(m.err.Error()) + "\n")
	}
	s.WriteString("\n" + Separator(30) + "\n")
	s.WriteString(KeyHint.Render("TAB:Chart ?:Help Q:Quit"))

	chartView := lipgloss.JoinVertical(lipgloss.Left,
		Title.Render(m.chart.String()),
		GraphStyle.Render(m.canvas.String()),
	)
	mainView := lipgloss.JoinHorizontal(lipgloss.Top, chartView, Panel.Render(s.String()))
	if m.showHelp {
		return `
  TAB  cycle chart (estimate, ess, accepted, evidence)
  ?    toggle this help
  Q    quit (cancels a running sampler)
` + "\n" + mainView
	}
	return mainView
}

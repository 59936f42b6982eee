// Package viz renders sampler runs in the terminal.
//
//   - [RenderSummary]: lipgloss panel with the headline numbers of a run
//   - [Plot], [PlotTracking]: asciigraph charts of trace columns
//   - [Monitor]: Bubble Tea model that follows a running experiment
//   - [Canvas]: Braille pixel canvas used by the monitor
//
// # Live Monitoring
//
// A [Feed] is an experiment observer. Run the experiment in a goroutine and
// hand the feed to a monitor:
//
//	feed := viz.NewFeed(cfg.Generations)
//	ex.AddObserver(feed)
//	go func() { feed.Finish(ex.Run(ctx)) }()
//	tea.NewProgram(viz.NewMonitor(cfg.Model, cfg.Generations, feed, cancel)).Run()
//
// # Key Bindings
//
//	Tab - Cycle chart (estimate, ess, accepted, evidence)
//	?   - Show help overlay
//	Q   - Quit, cancelling the run if still going
package viz

// Package parallel provides the bounded fan-out/fan-in loops used for
// particle-level work.
//
// Work is split into contiguous index chunks, one goroutine per chunk, with at
// most the configured number of goroutines in flight. A worker count of one
// (or less) runs the loop on the calling goroutine.
package parallel

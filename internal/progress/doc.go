// Package progress fans run progress events out to sinks on a background
// goroutine so the pipeline never blocks on persistence or metrics.
package progress

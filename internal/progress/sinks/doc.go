// Package sinks implements progress consumers: the task store writer,
// Prometheus run gauges and structured logging.
package sinks

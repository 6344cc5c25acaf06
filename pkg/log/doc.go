// Package log wraps zerolog behind a small global logger with helpers for
// component, queue, job, and request scoped child loggers.
package log

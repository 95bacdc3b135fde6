// Package observer defines logging and metrics hooks for sandbox execution.
package observer

import "context"

// MetricsRecorder records sandbox metrics.
type MetricsRecorder interface {
	ObserveCompile(ctx context.Context, languageID string, ok bool, timeMs int64, memoryKB int64)
	ObserveRun(ctx context.Context, languageID string, verdict string, timeMs int64, memoryKB int64, outputKB int64)
}

// NoopMetricsRecorder is a default recorder that does nothing.
type NoopMetricsRecorder struct{}

func (NoopMetricsRecorder) ObserveCompile(ctx context.Context, languageID string, ok bool, timeMs int64, memoryKB int64) {
}

func (NoopMetricsRecorder) ObserveRun(ctx context.Context, languageID string, verdict string, timeMs int64, memoryKB int64, outputKB int64) {
}

// LoggingMetricsRecorder logs every observation through an injected sink
// rather than a package-global logger, so sandbox code stays testable
// without a process-wide logging singleton.
type LoggingMetricsRecorder struct {
	Sink LogSink
}

// LogSink is the minimal structured-logging capability a component needs.
// Implementations wrap pkg/utils/logger without forcing callers onto the
// package-global functions.
type LogSink interface {
	Infof(ctx context.Context, format string, args ...interface{})
}

func (r LoggingMetricsRecorder) ObserveCompile(ctx context.Context, languageID string, ok bool, timeMs int64, memoryKB int64) {
	if r.Sink == nil {
		return
	}
	r.Sink.Infof(ctx, "compile observed lang=%s ok=%v time_ms=%d memory_kb=%d", languageID, ok, timeMs, memoryKB)
}

func (r LoggingMetricsRecorder) ObserveRun(ctx context.Context, languageID string, verdict string, timeMs int64, memoryKB int64, outputKB int64) {
	if r.Sink == nil {
		return
	}
	r.Sink.Infof(ctx, "run observed lang=%s verdict=%s time_ms=%d memory_kb=%d output_kb=%d", languageID, verdict, timeMs, memoryKB, outputKB)
}

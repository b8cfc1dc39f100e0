package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/backmassage/pixmaster/internal/checkpoint"
)

const instrumentationName = "github.com/backmassage/pixmaster/internal/pipeline"

// Metrics records per-run measurements.
// Use NewMetrics for OpenTelemetry or NoopMetrics{} when disabled.
type Metrics interface {
	// RecordFile records one file reaching a terminal state.
	RecordFile(ctx context.Context, status checkpoint.Status, duration time.Duration)

	// RecordRetry records a retry scheduled after a transient failure.
	RecordRetry(ctx context.Context, code string)

	// RecordBytes records input and output sizes of a converted file.
	RecordBytes(ctx context.Context, in, out int64)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordFile(context.Context, checkpoint.Status, time.Duration) {}
func (NoopMetrics) RecordRetry(context.Context, string)                          {}
func (NoopMetrics) RecordBytes(context.Context, int64, int64)                    {}

type otelMetrics struct {
	files    metric.Int64Counter
	retries  metric.Int64Counter
	duration metric.Float64Histogram
	bytes    metric.Int64Counter
}

// NewMetrics creates the pixmaster instruments on mp.
func NewMetrics(mp metric.MeterProvider) (Metrics, error) {
	meter := mp.Meter(instrumentationName)

	files, err := meter.Int64Counter("pixmaster.files",
		metric.WithDescription("Files that reached a terminal state"),
	)
	if err != nil {
		return nil, err
	}

	retries, err := meter.Int64Counter("pixmaster.retries",
		metric.WithDescription("Retries after transient failures"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("pixmaster.file.duration",
		metric.WithDescription("Time spent on one file"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	bytes, err := meter.Int64Counter("pixmaster.bytes",
		metric.WithDescription("Bytes read from inputs and written to outputs"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{files: files, retries: retries, duration: duration, bytes: bytes}, nil
}

func (m *otelMetrics) RecordFile(ctx context.Context, status checkpoint.Status, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", string(status)))
	m.files.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(d.Microseconds())/1000, attrs)
}

func (m *otelMetrics) RecordRetry(ctx context.Context, code string) {
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

func (m *otelMetrics) RecordBytes(ctx context.Context, in, out int64) {
	m.bytes.Add(ctx, in, metric.WithAttributes(attribute.String("direction", "in")))
	m.bytes.Add(ctx, out, metric.WithAttributes(attribute.String("direction", "out")))
}

// endSpan completes span, recording err when set.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

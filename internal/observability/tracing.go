package observability

import (
	"context"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Tracing owns the SDK tracer provider. Finished spans are written to the
// process log at trace level.
type Tracing struct {
	provider *sdktrace.TracerProvider
	exporter *logExporter
}

func NewTracing(serviceName string) *Tracing {
	exporter := &logExporter{logger: log.WithField("object", "Tracing")}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	return &Tracing{provider: provider, exporter: exporter}
}

// Start installs the provider globally.
func (t *Tracing) Start(ctx context.Context) error {
	_ = ctx
	otel.SetTracerProvider(t.provider)
	return nil
}

// Stop flushes pending spans and shuts the provider down.
func (t *Tracing) Stop(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

type logExporter struct {
	logger   *log.Entry
	exported atomic.Int64
}

func (e *logExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		fields := log.Fields{
			"span":     span.Name(),
			"trace_id": span.SpanContext().TraceID().String(),
			"elapsed":  span.EndTime().Sub(span.StartTime()),
		}
		for _, attr := range span.Attributes() {
			fields[string(attr.Key)] = attr.Value.Emit()
		}
		if status := span.Status(); status.Code == codes.Error {
			fields["error"] = status.Description
		}
		e.logger.WithFields(fields).Trace("span finished")
		e.exported.Add(1)
	}
	return nil
}

func (e *logExporter) Shutdown(context.Context) error {
	return nil
}

package observability

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"github.com/gci-tools/reportes-console/internal/config"
	"github.com/gci-tools/reportes-console/internal/pkg/logger"
)

// Setup installs a global tracer provider when an exporter is configured.
// With no exporter the default no-op provider stays in place and gateway
// spans cost nothing. Returns a shutdown func safe to call either way.
func Setup(ctx context.Context, log *logger.Logger, cfg config.TraceConfig) func(context.Context) error {
	exporterName := strings.ToLower(strings.TrimSpace(cfg.Exporter))
	if exporterName == "" || exporterName == "none" {
		return func(context.Context) error { return nil }
	}

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch exporterName {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		opts := []otlptracehttp.Option{}
		if ep := strings.TrimSpace(cfg.Endpoint); ep != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(ep))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default:
		log.Warn("unknown trace exporter, tracing disabled", "exporter", exporterName)
		return func(context.Context) error { return nil }
	}
	if err != nil {
		log.Warn("trace exporter init failed, tracing disabled", "error", err)
		return func(context.Context) error { return nil }
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String("reportes-console"),
	))
	if err != nil {
		log.Warn("otel resource init failed (continuing)", "error", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	log.Debug("tracing initialized", "exporter", exporterName)
	return tp.Shutdown
}

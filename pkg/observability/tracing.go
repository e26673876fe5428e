// Package observability sets up OpenTelemetry tracing for protspace jobs and
// provides the stage helper the pipeline uses to trace and time its steps.
package observability

import (
	"context"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/protspace/pkg/errors"
	"github.com/ajitpratap0/protspace/pkg/metrics"
)

const instrumentationName = "github.com/ajitpratap0/protspace"

// TracingConfig contains tracing configuration
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled" json:"enabled"`
	ServiceName    string  `yaml:"service_name" json:"service_name"`
	ServiceVersion string  `yaml:"service_version" json:"service_version"`
	Environment    string  `yaml:"environment" json:"environment"`
	SamplingRate   float64 `yaml:"sampling_rate" json:"sampling_rate"`
	// OutputPath receives the exported spans as JSON; empty means stderr.
	OutputPath  string `yaml:"output_path" json:"output_path"`
	PrettyPrint bool   `yaml:"pretty_print" json:"pretty_print"`
}

// DefaultTracingConfig returns a disabled tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:        false,
		ServiceName:    "protspace",
		ServiceVersion: "dev",
		Environment:    "local",
		SamplingRate:   1.0,
	}
}

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(ctx context.Context) error

var (
	mu       sync.Mutex
	provider *sdktrace.TracerProvider
)

// Init installs a global tracer provider exporting to a file or stderr.
// When tracing is disabled the global no-op provider stays in place.
func Init(config TracingConfig) (ShutdownFunc, error) {
	if !config.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	var out io.Writer = os.Stderr
	var file *os.File
	if config.OutputPath != "" {
		f, err := os.Create(config.OutputPath)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create trace output")
		}
		out, file = f, f
	}

	opts := []stdouttrace.Option{stdouttrace.WithWriter(out)}
	if config.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		if file != nil {
			_ = file.Close()
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create stdout exporter")
	}

	shutdown, err := install(config, sdktrace.WithBatcher(exporter))
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		err := shutdown(ctx)
		if file != nil {
			if cerr := file.Close(); cerr != nil && err == nil {
				err = errors.Wrap(cerr, errors.ErrorTypeFile, "failed to close trace output")
			}
		}
		return err
	}, nil
}

// InitWithExporter installs a provider that exports synchronously to
// exporter. Used by tests and embedding programs.
func InitWithExporter(config TracingConfig, exporter sdktrace.SpanExporter) (ShutdownFunc, error) {
	return install(config, sdktrace.WithSyncer(exporter))
}

func install(config TracingConfig, export sdktrace.TracerProviderOption) (ShutdownFunc, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create resource")
	}

	var sampler sdktrace.Sampler
	switch {
	case config.SamplingRate <= 0:
		sampler = sdktrace.NeverSample()
	case config.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
		export,
	)

	mu.Lock()
	provider = tp
	mu.Unlock()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		mu.Lock()
		if provider == tp {
			provider = nil
		}
		mu.Unlock()
		if err := tp.Shutdown(ctx); err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "failed to shut down tracer provider")
		}
		return nil
	}, nil
}

// Tracer returns the protspace tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Stage runs fn inside a span named after the stage and records its
// duration in the stage histogram. An error from fn marks the span failed
// and is returned unchanged.
func Stage(ctx context.Context, stage string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := Tracer().Start(ctx, stage, trace.WithAttributes(attrs...))
	defer span.End()

	timer := metrics.NewTimer(stage)
	err := fn(ctx)
	timer.ObserveStage()

	End(span, err)
	return err
}

// End sets the span status from err without ending the span.
func End(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

package tracing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const defaultServiceName = "jwt-cookie-ws"

var tracer trace.Tracer

// Config holds the configuration for OpenTelemetry tracing initialization.
// TracesExport supports "stdout" and "none"/"noop" (default: none, so local
// runs are not flooded with spans).
type Config struct {
	ServiceName  string
	Environment  string
	PrettyPrint  bool
	TracesExport string
}

// InitTracer installs the global tracer provider and propagators.
// It returns a shutdown function that should be called on process exit.
func InitTracer(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		return nil, errors.New("tracing: ServiceName is required")
	}
	if cfg.Environment == "" {
		cfg.Environment = getenvDefault("APP_ENV", "development")
	}
	if cfg.TracesExport == "" {
		cfg.TracesExport = getenvDefault("OTEL_TRACES_EXPORTER", "none")
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	res, err := resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(parseSamplerFromEnv()),
	}

	switch cfg.TracesExport {
	case "none", "noop":
		// No exporter: spans are recorded for propagation only.
	case "stdout":
		expOpts := []stdouttrace.Option{}
		if cfg.PrettyPrint {
			expOpts = append(expOpts, stdouttrace.WithPrettyPrint())
		}
		exporter, err := stdouttrace.New(expOpts...)
		if err != nil {
			return nil, fmt.Errorf("tracing: init stdout exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	default:
		return nil, fmt.Errorf("tracing: unsupported exporter %q", cfg.TracesExport)
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	tracer = tp.Tracer(cfg.ServiceName)

	return tp.Shutdown, nil
}

func GetTracer() trace.Tracer {
	if tracer == nil {
		tracer = otel.Tracer(defaultServiceName)
	}
	return tracer
}

func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, spanName)
}

// EndAuthSpan records the outcome of an authorization check and ends span.
// kind is empty on success.
func EndAuthSpan(span trace.Span, subject, kind string, err error) {
	if subject != "" {
		span.SetAttributes(attribute.String("auth.subject", subject))
	}
	if kind != "" {
		span.SetAttributes(attribute.String("auth.failure", kind))
	}
	if err != nil && kind == "" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func parseSamplerFromEnv() sdktrace.Sampler {
	s := os.Getenv("OTEL_TRACES_SAMPLER")
	arg := os.Getenv("OTEL_TRACES_SAMPLER_ARG")
	switch s {
	case "", "parentbased_always_on":
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		ratio, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			zap.L().Warn("tracing: invalid OTEL_TRACES_SAMPLER_ARG; defaulting to 1.0", zap.String("value", arg))
			ratio = 1.0
		}
		ratio = min(max(ratio, 0), 1)
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	default:
		zap.L().Warn("tracing: unsupported OTEL_TRACES_SAMPLER; defaulting to always_on", zap.String("value", s))
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}

package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracer(t *testing.T) {
	_, err := InitTracer(context.Background(), Config{})
	require.Error(t, err)

	_, err = InitTracer(context.Background(), Config{ServiceName: "svc", TracesExport: "carrier-pigeon"})
	require.Error(t, err)

	shutdown, err := InitTracer(context.Background(), Config{ServiceName: "svc", TracesExport: "none"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestEndAuthSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tr := tp.Tracer("test")

	_, ok := tr.Start(context.Background(), "ok")
	EndAuthSpan(ok, "test", "", nil)
	_, rejected := tr.Start(context.Background(), "rejected")
	EndAuthSpan(rejected, "", "csrf_mismatch", errors.New("CSRF double submit tokens do not match"))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "test", spans[0].Attributes()[0].Value.AsString())
	require.Equal(t, "csrf_mismatch", spans[1].Attributes()[0].Value.AsString())
	require.Empty(t, spans[1].Events(), "authorization failures are not span errors")
}

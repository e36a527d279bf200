// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitDisabled(t *testing.T) {
	cleanup, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, cleanup)
	cleanup()
}

// Init never dials the collector, so an unreachable endpoint must neither
// fail nor block span creation.
func TestInitUnreachableCollector(t *testing.T) {
	for _, url := range []string{"http://127.0.0.1:37999", "https://127.0.0.1:37999", "127.0.0.1:37998", ""} {
		cleanup, err := Init(context.Background(), Config{
			Enabled:        true,
			ExporterURL:    url,
			ServiceName:    "stackopt-test",
			ServiceVersion: "v0.0.0",
		})
		require.NoError(t, err, url)

		_, span := GetTracer().Start(context.Background(), "optimize")
		span.End()
		cleanup()
	}
}

func TestGetTracerUsesGlobalProvider(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))

	ctx, parent := GetTracer().Start(context.Background(), "optimize")
	_, child := GetTracer().Start(ctx, "pass remove-dup-drop")
	child.End()
	parent.End()

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "pass remove-dup-drop", spans[0].Name())
	assert.Equal(t, "optimize", spans[1].Name())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Equal(t, tracerName, spans[0].InstrumentationScope().Name)
}

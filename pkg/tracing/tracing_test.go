package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/madrasah-registration/pkg/config"
)

func TestStdoutProviderExportsSpansOnShutdown(t *testing.T) {
	var out bytes.Buffer
	tp, err := NewProvider(context.Background(), config.TracingConfig{
		Exporter:    config.TracingExporterStdout,
		ServiceName: "registration-test",
		SampleRatio: 1,
	}, config.EnvDevelopment, &out)
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "approval.approve_single")
	assert.True(t, span.SpanContext().IsSampled())
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Contains(t, out.String(), "approval.approve_single")
	assert.Contains(t, out.String(), "registration-test")
}

func TestNoneProviderStillSamplesWithoutOutput(t *testing.T) {
	var out bytes.Buffer
	tp, err := NewProvider(context.Background(), config.TracingConfig{Exporter: config.TracingExporterNone, SampleRatio: 1}, config.EnvDevelopment, &out)
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "payment.IssueSession")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Empty(t, out.String())
}

func TestZeroRatioDropsRootSpans(t *testing.T) {
	tp, err := NewProvider(context.Background(), config.TracingConfig{Exporter: config.TracingExporterNone, SampleRatio: 0}, config.EnvProduction, nil)
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := tp.Tracer("test").Start(context.Background(), "approval.reject")
	assert.False(t, span.SpanContext().IsSampled())
	span.End()
}

func TestUnknownExporterIsRejected(t *testing.T) {
	_, err := NewProvider(context.Background(), config.TracingConfig{Exporter: "zipkin"}, config.EnvDevelopment, nil)
	assert.Error(t, err)
}

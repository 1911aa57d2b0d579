package observability

import (
	"testing"

	"github.com/smallbiznis/marketledger/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(config.Config{Environment: "production", OTLPSamplingRatio: 3})
	assert.Equal(t, "marketledger", cfg.ServiceName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.False(t, cfg.Debug)
}

func TestLoadConfigDebug(t *testing.T) {
	assert.True(t, LoadConfig(config.Config{Environment: "local"}).Debug)
	assert.True(t, LoadConfig(config.Config{Environment: "production", LogLevel: "debug"}).Debug)
}

func TestSplitConfigSharesIdentity(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:           "ledger-worker",
		AppVersion:        "1.4.0",
		Environment:       "staging",
		OTLPEnabled:       true,
		OTLPEndpoint:      "otel:4317",
		OTLPProtocol:      "grpc",
		OTLPSamplingRatio: 0.25,
	})

	parts := splitConfig(cfg)
	assert.Equal(t, "ledger-worker", parts.Logger.ServiceName)
	assert.Equal(t, "1.4.0", parts.Tracing.ServiceVersion)
	assert.Equal(t, 0.25, parts.Tracing.SamplingRatio)
	assert.True(t, parts.Metrics.Enabled)
	assert.Equal(t, "otel:4317", parts.Metrics.ExporterEndpoint)
	assert.Equal(t, parts.Tracing.ExporterProtocol, parts.Metrics.ExporterProtocol)
	assert.True(t, parts.Logger.IncludeCaller)
	assert.False(t, parts.Logger.IncludeStackOnError)
}

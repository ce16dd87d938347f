package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  *Config
		wantErr string
	}{
		{name: "nil config is valid", config: nil},
		{name: "disabled config skips validation", config: &Config{Tracing: &TracingConfig{Enabled: true, Sampling: 5}}},
		{
			name:   "valid prometheus metrics",
			config: &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true}},
		},
		{
			name:    "sampling out of range",
			config:  &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: 1.5}},
			wantErr: "tracing: sampling must be between",
		},
		{
			name:    "unknown exporter",
			config:  &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true, Exporter: "statsd"}},
			wantErr: `metrics: unknown exporter "statsd"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.config.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	assert.Equal(t, DefaultServiceName, cfg.GetServiceName())
	assert.Equal(t, "unknown", cfg.GetServiceVersion())
	assert.Equal(t, DefaultEndpoint, cfg.GetEndpoint())
	assert.Equal(t, DefaultSampling, (&TracingConfig{}).GetSampling())
	assert.Equal(t, ExporterPrometheus, (*MetricsConfig)(nil).GetExporter())
	assert.Equal(t, ExporterOTLP, (&MetricsConfig{Exporter: ExporterOTLP}).GetExporter())
}

package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv(t *testing.T) {
	t.Setenv("DEVGUILD_API_KEY", "secret")
	t.Setenv("DEVGUILD_STORE_TYPE", "sql")
	t.Setenv("DEVGUILD_ANALYZER_TIMEOUT", "5s")
	t.Setenv("DEVGUILD_PAYMENT_AUTO_SETTLE", "true")

	env, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, "secret", env.APIKey)
	assert.Equal(t, "3200", env.HTTPPort)
	assert.Equal(t, "sql", DatabaseEnvFromEnv(env).StoreType)
	assert.Equal(t, 5*time.Second, AnalyzerEnvFromEnv(env).Timeout)
	assert.True(t, PaymentEnvFromEnv(env).AutoSettle)
	assert.Equal(t, "USD", PaymentEnvFromEnv(env).Currency)
	assert.Equal(t, 5*time.Minute, PaymentEnvFromEnv(env).SweepEvery)
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "info", want: slog.LevelInfo},
		{in: "WARN", want: slog.LevelWarn},
		{in: "bogus", want: slog.LevelDebug},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			e := &BaseEnv{LogLevel: tt.in}
			assert.Equal(t, tt.want, e.SlogLevel())
		})
	}

	var nilEnv *BaseEnv
	assert.Equal(t, slog.LevelDebug, nilEnv.SlogLevel())
}

package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		level zapcore.Level
	}{
		{name: "production default", cfg: Config{Environment: EnvironmentProduction}, level: zapcore.InfoLevel},
		{name: "empty environment", cfg: Config{}, level: zapcore.InfoLevel},
		{name: "development default", cfg: Config{Environment: EnvironmentDevelopment}, level: zapcore.DebugLevel},
		{name: "explicit level wins", cfg: Config{Environment: EnvironmentLocal, Level: "warn"}, level: zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, level, err := New(tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, logger)
			assert.Equal(t, tt.level, level.Level())
		})
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	_, _, err := New(Config{Environment: "staging-ish"})
	assert.Error(t, err)

	_, _, err = New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestAtomicLevelAdjusts(t *testing.T) {
	logger, level, err := New(Config{Level: "error"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	level.SetLevel(zapcore.DebugLevel)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

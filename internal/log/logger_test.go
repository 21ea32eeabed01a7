package log

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		level string
		want  zerolog.Level
	}{
		{"explicit warn", "production", "warn", zerolog.WarnLevel},
		{"mixed case", "development", "ERROR", zerolog.ErrorLevel},
		{"empty dev", "development", "", zerolog.DebugLevel},
		{"empty prod", "production", "", zerolog.InfoLevel},
		{"garbage prod", "production", "loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.env, tt.level))
		})
	}
}

func TestComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(zerolog.New(&buf), "auth")
	logger.Info().Msg("hello")
	require.Contains(t, buf.String(), `"component":"auth"`)
}

package log

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/Alturino/storefront/internal/config"
)

func TestLevel(t *testing.T) {
	testCases := []struct {
		name     string
		config   config.Application
		expected zerolog.Level
	}{
		{
			name:     "given development env should trace",
			config:   config.Application{Env: "development"},
			expected: zerolog.TraceLevel,
		},
		{
			name:     "given production env should log info",
			config:   config.Application{Env: "production"},
			expected: zerolog.InfoLevel,
		},
		{
			name:     "given configured level should use it",
			config:   config.Application{Env: "development", LogLevel: "warn"},
			expected: zerolog.WarnLevel,
		},
		{
			name:     "given unknown level should fall back to env",
			config:   config.Application{Env: "production", LogLevel: "loud"},
			expected: zerolog.InfoLevel,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Level(tc.config))
		})
	}
}

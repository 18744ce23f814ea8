package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLevels(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	Init("warn", false)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	Init("bogus", false)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	Init("error", true)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(NewLogger(&buf), "renderer")
	logger.Info().Msg("segment encoded")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "renderer", entry["component"])
	assert.Equal(t, "segment encoded", entry["message"])
}

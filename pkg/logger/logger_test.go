package logger_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/tvinspection/tvinspect/pkg/logger"
)

func TestLog(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	templogger, err := logger.New().FromBuffer(buff).Make()
	require.NoError(t, err)
	require.NotNil(t, templogger)
	require.NotNil(t, templogger.Logger)
	// Get Stats Before
	require.Equal(t, buff.Len(), 0)
	templogger.Logger.Info().Msg("Test")
	// Get Stats After
	require.Contains(t, buff.String(), "Test")
}

func TestLevel(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	templogger, err := logger.New().FromBuffer(buff).WithLevel(zerolog.WarnLevel).Make()
	require.NoError(t, err)
	templogger.Logger.Info().Msg("hidden")
	require.Equal(t, 0, buff.Len())
	templogger.Logger.Warn().Msg("shown")
	require.Contains(t, buff.String(), "shown")
}

func TestChannel(t *testing.T) {
	chn := make(chan string, 1)
	templogger, err := logger.New().FromBuffer(bytes.NewBuffer(nil)).FromChannel(chn).Make()
	require.NoError(t, err)
	templogger.Logger.Info().Msg("first")
	templogger.Logger.Info().Msg("dropped")
	require.Contains(t, <-chn, "first")
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tvinspect.log")
	templogger, err := logger.New().FromPath(path).Make()
	require.NoError(t, err)
	templogger.Logger.Error().Str("form", "CA/F/FSM/17").Msg("written")
	require.NoError(t, templogger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"form":"CA/F/FSM/17"`)
}

func TestParseLevel(t *testing.T) {
	level, err := logger.ParseLevel("")
	require.NoError(t, err)
	require.Equal(t, zerolog.InfoLevel, level)
	level, err = logger.ParseLevel("DEBUG")
	require.NoError(t, err)
	require.Equal(t, zerolog.DebugLevel, level)
	_, err = logger.ParseLevel("loud")
	require.Error(t, err)
}

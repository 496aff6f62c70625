package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestNew_SetsGlobalLevel(t *testing.T) {
	New("debug", false)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	New("error", false)
	assert.Equal(t, zerolog.ErrorLevel, zerolog.GlobalLevel())
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	New("loud", false)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestNew_LevelIsTrimmedAndCaseInsensitive(t *testing.T) {
	New(" WARN ", false)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestNew_ReplacesPackageGlobal(t *testing.T) {
	l := New("info", false)
	assert.Equal(t, l, log.Logger)
}

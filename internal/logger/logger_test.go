package logger_test

import (
	"bytes"
	"testing"

	"codeberg.org/mutker/battmon/internal/errors"
	"codeberg.org/mutker/battmon/internal/logger"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logger.DebugLevel, logger.ParseLevel("debug"))
	assert.Equal(t, logger.InfoLevel, logger.ParseLevel("info"))
	assert.Equal(t, logger.WarnLevel, logger.ParseLevel("warning"))
	assert.Equal(t, logger.ErrorLevel, logger.ParseLevel("error"))
	assert.Equal(t, logger.WarnLevel, logger.ParseLevel("bogus"))
}

func TestComponentLoggerTagsEvents(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "debug", true)
	t.Cleanup(func() { logger.SetLogLevel(logger.WarnLevel) })

	log := logger.Default().With("sysfs")
	log.Debug().Str("path", "/sys/class/power_supply/battery/capacity").Msg("read ok")

	out := buf.String()
	assert.Contains(t, out, "read ok")
	assert.Contains(t, out, "component=sysfs")
	assert.Contains(t, out, "capacity")
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "warning", true)
	t.Cleanup(func() { logger.SetLogLevel(logger.WarnLevel) })

	logger.Debug().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestErrorWithCode(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "info", true)
	t.Cleanup(func() { logger.SetLogLevel(logger.WarnLevel) })

	logger.Default().ErrorWithCode(errors.New().New(errors.ErrTimeout)).Msg("probe failed")

	assert.Contains(t, buf.String(), "operation_timeout")
}

func TestNopDiscards(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "debug", true)
	t.Cleanup(func() { logger.SetLogLevel(logger.WarnLevel) })

	logger.Nop().With("x").Error().Msg("nothing")
	assert.Empty(t, buf.String())
}

package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriterFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.InfoLevel).With(String("component", "usecase"))

	l.Debug("hidden")
	l.Warn("forecast rows dropped",
		Int("unparseable", 2),
		Bool("cached", false),
		Duration("duration_ms", 1500*time.Millisecond),
		Strings("reasons", []string{"date", "negative"}),
		Error(errors.New("boom")),
	)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line), buf.String())
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "forecast rows dropped", line["message"])
	assert.Equal(t, "usecase", line["component"])
	assert.EqualValues(t, 2, line["unparseable"])
	assert.Equal(t, false, line["cached"])
	assert.EqualValues(t, 1500, line["duration_ms"])
	assert.Equal(t, "date, negative", line["reasons"])
	assert.Equal(t, "boom", line["error"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "chatty"})
	assert.Error(t, err)
}

package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "info", "json")
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("certificate_created", "identity", "0xabc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "certificate_created", line["msg"])
	assert.Equal(t, "0xabc", line["identity"])
}

func TestNewRejectsUnknownSettings(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "loud", "json")
	assert.Error(t, err)
	_, err = New(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}

package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(false, &buf)

	Component("sync").Debug("hidden")
	Component("sync").WithField("created", 3).Info("Alerts sync completed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Alerts sync completed", entry["message"])
	assert.Equal(t, "sync", entry["component"])
	assert.EqualValues(t, 3, entry["created"])
}

func TestInitDebugText(t *testing.T) {
	var buf bytes.Buffer
	Init(true, &buf)
	t.Cleanup(func() { Init(false, nil) })

	Log().Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")
}

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel("warn"))
	assert.Equal(t, InfoLevel, ParseLevel("nonsense"))
	assert.Equal(t, InfoLevel, ParseLevel(""))
}

func TestJSONOutputCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: InfoLevel, Output: &buf, JSON: true})

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-42")
	l.WithContext(ctx).Info("stock decremented", "drug_id", 7)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-42", line["request_id"])
	assert.Equal(t, "stock decremented", line["message"])
	assert.EqualValues(t, 7, line["drug_id"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: WarnLevel, Output: &buf, JSON: true})

	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenCounter(t *testing.T) {
	for _, model := range []string{"gpt-4", "dolphin-llama3", "claude-sonnet-4", "gpt-4o"} {
		counter, err := NewTokenCounter(model)
		require.NoError(t, err, model)
		assert.NotNil(t, counter)
	}
}

func TestCountTokensSimple(t *testing.T) {
	tokens := CountTokensSimple("Hello world")
	assert.GreaterOrEqual(t, tokens, 2)
	assert.LessOrEqual(t, tokens, 3)
}

func TestNilCounterFallsBackToEstimate(t *testing.T) {
	var tc *TokenCounter
	assert.Equal(t, 2, tc.CountTokens("12345678"))
}

func TestTruncateToTokenLimit(t *testing.T) {
	counter := DefaultTokenCounter()
	longText := strings.Repeat("This is a sentence. ", 50)
	truncated := counter.TruncateToTokenLimit(longText, 10)

	assert.Less(t, len(truncated), len(longText))
	assert.LessOrEqual(t, counter.CountTokens(truncated), 15)
	assert.Equal(t, "short", counter.TruncateToTokenLimit("short", 10))
	assert.Empty(t, counter.TruncateToTokenLimit("anything", 0))
}

func TestMapHelpers(t *testing.T) {
	m := map[string]any{"name": "x", "raw": []byte("bytes"), "n": 3}
	assert.Equal(t, "x", GetMapFieldOr(m, "name", "d"))
	assert.Equal(t, "d", GetMapFieldOr(m, "n", "d"))
	_, err := GetMapField[string](m, "missing")
	assert.Error(t, err)

	assert.Equal(t, "bytes", StringField(m, "raw"))
	assert.Equal(t, "3", StringField(m, "n"))
	assert.Equal(t, "", StringField(m, "missing"))
}

func TestStringMapNormalizesKeys(t *testing.T) {
	in := map[any]any{
		"1": map[any]any{"type": []byte("shell")},
		2:   "meterpreter",
	}
	out, ok := StringMap(in)
	require.True(t, ok)
	inner, ok := out["1"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "shell", inner["type"])
	assert.Equal(t, "meterpreter", out["2"])

	_, ok = StringMap("not a map")
	assert.False(t, ok)
}

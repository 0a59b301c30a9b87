package sampler_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlens/flowlens/internal/config"
	"github.com/flowlens/flowlens/internal/sampler"
	"github.com/flowlens/flowlens/pkg/api"
)

func testLimits() config.LimitsConfig {
	return config.LimitsConfig{
		MaxPayloadBytes: 1024,
		MaxDepth:        3,
		MaxKeys:         3,
		MaxArrayItems:   2,
		MaxStringLength: 8,
	}
}

func newBuilder(fields ...string) *sampler.PreviewBuilder {
	return sampler.NewPreviewBuilder(testLimits(), config.RedactionConfig{
		Fields: fields,
	})
}

func TestBuildObject(t *testing.T) {
	b := newBuilder()
	preview := b.Build([]byte(`{"a": 1, "b": "hi"}`))

	assert.Equal(t, api.PreviewObject, preview.Type)
	assert.False(t, preview.Truncated)
	assert.Equal(t, 19, preview.Size)

	obj, ok := preview.Preview.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), obj["a"])
	assert.Equal(t, "hi", obj["b"])
}

func TestBuildRedactsDenylistedKeys(t *testing.T) {
	b := newBuilder("password", "ApiKey")
	preview := b.Build(
		[]byte(`{"PassWord": "hunter2", "apikey": "k", "ok": true}`))

	obj := preview.Preview.(map[string]any)
	assert.Equal(t, sampler.Redacted, obj["PassWord"])
	assert.Equal(t, sampler.Redacted, obj["apikey"])
	assert.Equal(t, true, obj["ok"])
}

func TestBuildStringTruncation(t *testing.T) {
	b := newBuilder()
	preview := b.Build([]byte(`"a long string that keeps going"`))

	assert.Equal(t, api.PreviewString, preview.Type)
	assert.True(t, preview.Truncated)
	assert.Equal(t, "a long s", preview.Preview)
}

func TestBuildDepthLimit(t *testing.T) {
	b := newBuilder()
	preview := b.Build([]byte(`{"a": {"b": {"c": {"d": 1}}}}`))

	assert.True(t, preview.Truncated)
	obj := preview.Preview.(map[string]any)
	inner := obj["a"].(map[string]any)["b"].(map[string]any)
	assert.Equal(t, "{…}", inner["c"])
}

func TestBuildKeyLimit(t *testing.T) {
	b := newBuilder()
	preview := b.Build([]byte(`{"a":1,"b":2,"c":3,"d":4,"e":5}`))

	assert.True(t, preview.Truncated)
	obj := preview.Preview.(map[string]any)
	assert.Len(t, obj, 3)
}

func TestBuildArrayLimit(t *testing.T) {
	b := newBuilder()
	preview := b.Build([]byte(`[1, 2, 3, 4]`))

	assert.Equal(t, api.PreviewArray, preview.Type)
	assert.True(t, preview.Truncated)
	assert.Equal(t, []any{float64(1), float64(2)}, preview.Preview)
}

func TestBuildOversizePayload(t *testing.T) {
	b := newBuilder()
	big := `{"a": "` + strings.Repeat("x", 2000) + `"}`
	preview := b.Build([]byte(big))

	assert.True(t, preview.Truncated)
	assert.Equal(t, len(big), preview.Size)
}

func TestBuildNonJSON(t *testing.T) {
	b := newBuilder()
	preview := b.Build([]byte("plain text payload"))

	assert.Equal(t, api.PreviewString, preview.Type)
	assert.True(t, preview.Truncated)
	assert.Equal(t, "plain te", preview.Preview)
}

func TestBuildScalars(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected api.PreviewType
		preview  any
	}{
		{"number", `42.5`, api.PreviewNumber, 42.5},
		{"true", `true`, api.PreviewBoolean, true},
		{"false", `false`, api.PreviewBoolean, false},
		{"null", `null`, api.PreviewNull, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			preview := newBuilder().Build([]byte(tt.raw))
			assert.Equal(t, tt.expected, preview.Type)
			assert.Equal(t, tt.preview, preview.Preview)
		})
	}
}

package sampler

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/flowlens/flowlens/internal/config"
	"github.com/flowlens/flowlens/pkg/api"
	"github.com/flowlens/flowlens/pkg/util"
)

// PreviewBuilder turns raw payload JSON into a bounded, redacted
// api.PayloadPreview. Everything it emits is already safe to put on the
// wire; consumers never see the original payload
type PreviewBuilder struct {
	redacted util.Set[string]
	limits   config.LimitsConfig
}

// Redacted replaces the values of denylisted payload keys
const Redacted = "[redacted]"

// NewPreviewBuilder creates a builder applying the given limits and
// case-insensitive redaction denylist
func NewPreviewBuilder(
	limits config.LimitsConfig, redaction config.RedactionConfig,
) *PreviewBuilder {
	redacted := make(util.Set[string], len(redaction.Fields))
	for _, f := range redaction.Fields {
		redacted.Add(strings.ToLower(f))
	}
	return &PreviewBuilder{
		limits:   limits,
		redacted: redacted,
	}
}

// Build produces a preview of a raw JSON payload. Non-JSON input is treated
// as an opaque string
func (b *PreviewBuilder) Build(raw []byte) api.PayloadPreview {
	size := len(raw)
	oversize := size > b.limits.MaxPayloadBytes

	if !gjson.ValidBytes(raw) {
		preview, cut := util.TruncateString(
			string(raw), b.limits.MaxStringLength,
		)
		return api.PayloadPreview{
			Preview:   preview,
			Type:      api.PreviewString,
			Size:      size,
			Truncated: cut || oversize,
		}
	}

	value := gjson.ParseBytes(raw)
	preview, cut := b.walk(value, 0)
	return api.PayloadPreview{
		Preview:   preview,
		Type:      classify(value),
		Size:      size,
		Truncated: cut || oversize,
	}
}

func (b *PreviewBuilder) walk(value gjson.Result, depth int) (any, bool) {
	switch {
	case value.IsObject():
		return b.walkObject(value, depth)
	case value.IsArray():
		return b.walkArray(value, depth)
	default:
		return b.scalar(value)
	}
}

func (b *PreviewBuilder) walkObject(
	value gjson.Result, depth int,
) (any, bool) {
	if depth >= b.limits.MaxDepth {
		return "{…}", true
	}

	res := map[string]any{}
	cut := false
	value.ForEach(func(key, val gjson.Result) bool {
		if len(res) >= b.limits.MaxKeys {
			cut = true
			return false
		}
		if b.redacted.Contains(strings.ToLower(key.String())) {
			res[key.String()] = Redacted
			return true
		}
		child, childCut := b.walk(val, depth+1)
		cut = cut || childCut
		res[key.String()] = child
		return true
	})
	return res, cut
}

func (b *PreviewBuilder) walkArray(
	value gjson.Result, depth int,
) (any, bool) {
	if depth >= b.limits.MaxDepth {
		return "[…]", true
	}

	var res []any
	cut := false
	value.ForEach(func(_, val gjson.Result) bool {
		if len(res) >= b.limits.MaxArrayItems {
			cut = true
			return false
		}
		child, childCut := b.walk(val, depth+1)
		cut = cut || childCut
		res = append(res, child)
		return true
	})
	if res == nil {
		res = []any{}
	}
	return res, cut
}

func (b *PreviewBuilder) scalar(value gjson.Result) (any, bool) {
	switch value.Type {
	case gjson.String:
		return util.TruncateString(value.String(), b.limits.MaxStringLength)
	case gjson.Number:
		return value.Num, false
	case gjson.True:
		return true, false
	case gjson.False:
		return false, false
	default:
		return nil, false
	}
}

func classify(value gjson.Result) api.PreviewType {
	switch {
	case value.IsObject():
		return api.PreviewObject
	case value.IsArray():
		return api.PreviewArray
	}
	switch value.Type {
	case gjson.String:
		return api.PreviewString
	case gjson.Number:
		return api.PreviewNumber
	case gjson.True, gjson.False:
		return api.PreviewBoolean
	default:
		return api.PreviewNull
	}
}

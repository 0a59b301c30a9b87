package api

type (
	// Direction indicates whether an IOEvent captured a node's input or
	// output side
	Direction string

	// PreviewType classifies the shape of a payload preview
	PreviewType string

	// IOEvent captures one sampled payload crossing a node boundary
	IOEvent struct {
		Payload   PayloadPreview `json:"payload"`
		Direction Direction      `json:"direction"`
		Port      int            `json:"port,omitempty"`
		Timestamp int64          `json:"timestamp"`
	}

	// PayloadPreview is a bounded, already-redacted representation of a
	// payload. The pipeline never receives or stores the original payload;
	// Preview is the largest view of it that will ever exist client-side
	PayloadPreview struct {
		Preview   any         `json:"preview,omitempty"`
		Type      PreviewType `json:"type"`
		Size      int         `json:"size,omitempty"`
		Truncated bool        `json:"truncated"`
	}
)

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

const (
	PreviewObject  PreviewType = "object"
	PreviewString  PreviewType = "string"
	PreviewNumber  PreviewType = "number"
	PreviewArray   PreviewType = "array"
	PreviewNull    PreviewType = "null"
	PreviewBoolean PreviewType = "boolean"
)

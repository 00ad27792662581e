package domain

// Role identifies who authored a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part is one atomic unit of turn content.
type Part interface {
	PartKind() string
}

// Text is a plain text content part.
type Text struct {
	Text string
}

func (Text) PartKind() string { return "text" }

// Blob is binary content with a declared media type, e.g. an image or audio clip.
type Blob struct {
	Data     []byte
	MIMEType string
}

func (Blob) PartKind() string { return "blob" }

// Turn is one message in a conversation. Part order is meaningful to providers.
type Turn struct {
	Role  Role
	Parts []Part
}

// HistoryEntry is the client-supplied shape of a prior turn.
type HistoryEntry struct {
	Role string `json:"role" validate:"omitempty,oneof=user model assistant"`
	Text string `json:"text" validate:"max=32768"`
}

// GenerationOptions are passed verbatim to every provider call.
type GenerationOptions struct {
	SystemPrompt string
	Temperature  *float32
}

package usecase

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"

	"gemini-chat/internal/domain"
)

const (
	defaultImageMIME = "image/jpeg"
	defaultAudioMIME = "audio/webm"
)

// AssembleInput is the raw inbound payload before decoding.
type AssembleInput struct {
	Message string
	Image   string
	Audio   string
	History []domain.HistoryEntry
}

// Assembly is the result of turning a payload into a conversation. Dropped
// lists attachments that failed to decode and were left out.
type Assembly struct {
	Conversation domain.Conversation
	Dropped      []*AttachmentDecodeError
}

// Assembler builds the provider conversation for one request. With
// StrictImage set, an undecodable image aborts the request instead of being
// dropped.
type Assembler struct {
	StrictImage bool
}

func (a Assembler) Assemble(in AssembleInput) (Assembly, error) {
	var out Assembly

	conv := make(domain.Conversation, 0, len(in.History)+1)
	for _, h := range in.History {
		text := strings.TrimSpace(h.Text)
		if text == "" {
			continue
		}
		conv = append(conv, domain.Turn{
			Role:  historyRole(h.Role),
			Parts: []domain.Part{domain.Text{Text: text}},
		})
	}

	var parts []domain.Part
	var hasAudio, hasImage bool

	if raw := strings.TrimSpace(in.Audio); raw != "" {
		blob, err := decodeAttachment(AttachmentAudio, raw)
		if err != nil {
			out.Dropped = append(out.Dropped, err)
		} else {
			parts = append(parts, blob)
			hasAudio = true
		}
	}

	if raw := strings.TrimSpace(in.Image); raw != "" {
		blob, err := decodeAttachment(AttachmentImage, raw)
		if err != nil {
			if a.StrictImage {
				return out, err
			}
			out.Dropped = append(out.Dropped, err)
		} else {
			parts = append(parts, blob)
			hasImage = true
		}
	}

	text := strings.TrimSpace(in.Message)
	if text == "" && (hasAudio || hasImage) {
		text = defaultPrompt(hasAudio, hasImage)
	}
	if text != "" {
		parts = append(parts, domain.Text{Text: text})
	}

	if len(parts) == 0 {
		return out, ErrEmptyRequest
	}

	out.Conversation = append(conv, domain.Turn{Role: domain.RoleUser, Parts: parts})
	return out, nil
}

func historyRole(role string) domain.Role {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "model", "assistant":
		return domain.RoleModel
	default:
		return domain.RoleUser
	}
}

func decodeAttachment(kind AttachmentKind, raw string) (domain.Blob, *AttachmentDecodeError) {
	declared, payload, err := splitDataURL(raw)
	if err != nil {
		return domain.Blob{}, &AttachmentDecodeError{Kind: kind, Err: err}
	}
	data, err := decodeBase64(payload)
	if err != nil {
		return domain.Blob{}, &AttachmentDecodeError{Kind: kind, Err: err}
	}
	if len(data) == 0 {
		return domain.Blob{}, &AttachmentDecodeError{Kind: kind, Err: errors.New("empty payload")}
	}
	return domain.Blob{Data: data, MIMEType: attachmentMIME(kind, declared, data)}, nil
}

// splitDataURL strips an optional "data:<mime>;base64," prefix.
func splitDataURL(raw string) (mimeType, payload string, err error) {
	if !strings.HasPrefix(raw, "data:") {
		return "", raw, nil
	}
	header, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return "", "", errors.New("data URL has no payload")
	}
	mimeType, ok = strings.CutSuffix(header, ";base64")
	if !ok {
		return "", "", fmt.Errorf("data URL is not base64 encoded: %q", header)
	}
	return baseMediaType(mimeType), payload, nil
}

// baseMediaType drops parameters such as "codecs=opus" from a media type.
func baseMediaType(mediaType string) string {
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		return parsed
	}
	base, _, _ := strings.Cut(mediaType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

var base64Encodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// decodeBase64 accepts the standard and URL alphabets, with or without
// padding, ignoring embedded whitespace.
func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	var firstErr error
	for _, enc := range base64Encodings {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, fmt.Errorf("invalid base64: %w", firstErr)
}

func attachmentMIME(kind AttachmentKind, declared string, data []byte) string {
	prefix := string(kind) + "/"
	if strings.HasPrefix(declared, prefix) {
		return declared
	}

	detected := mimetype.Detect(data)
	switch {
	case strings.HasPrefix(detected.String(), prefix):
		return detected.String()
	case kind == AttachmentAudio && detected.Is("video/webm"):
		// MediaRecorder output sniffs as video/webm even when audio only.
		return "audio/webm"
	case kind == AttachmentAudio && detected.Is("application/ogg"):
		return "audio/ogg"
	}

	if kind == AttachmentImage {
		return defaultImageMIME
	}
	return defaultAudioMIME
}

package usecase

import (
	"errors"
	"fmt"
	"strings"
)

const (
	promptAudioOnly     = "Listen to this audio message and reply to it."
	promptImageOnly     = "Describe what is in this image."
	promptAudioAndImage = "Listen to this audio message about the attached image and reply to it."
)

const (
	replyMissingCredential = "⚠️ Error: no API key configured. Check the server settings."
	replyNoCandidates      = "⚠️ Error: no models are configured on the server."
	replyEmptyRequest      = "Empty message."
	replyInvalidInput      = "⚠️ Error: the request could not be read."
	replyImageDecode       = "⚠️ Error: the image could not be read. Please try another file."
	replyAudioDecode       = "⚠️ Error: the audio recording could not be read. Please record again."
	replyProviderPrefix    = "Provider error: "
	replyInternal          = "⚠️ Error: something went wrong. Please try again."
)

// defaultPrompt picks the text sent along with attachments when the user typed nothing.
func defaultPrompt(hasAudio, hasImage bool) string {
	switch {
	case hasAudio && hasImage:
		return promptAudioAndImage
	case hasAudio:
		return promptAudioOnly
	case hasImage:
		return promptImageOnly
	default:
		return ""
	}
}

// Reply converts the result of ChatService.Chat into the text shown to the
// user. Failures are reported as text, never as a transport error.
func Reply(out ChatOutput, err error) string {
	if err == nil {
		if len(out.Notes) == 0 {
			return out.Reply
		}
		return strings.Join(append(append([]string(nil), out.Notes...), out.Reply), "\n\n")
	}

	var ucErr *Error
	if !errors.As(err, &ucErr) {
		return replyInternal
	}
	switch ucErr.Code {
	case ErrorMissingCredential:
		return replyMissingCredential
	case ErrorNoCandidates:
		return replyNoCandidates
	case ErrorEmptyRequest:
		return replyEmptyRequest
	case ErrorInvalidInput:
		return replyInvalidInput
	case ErrorAttachmentDecode:
		return attachmentReply(err)
	case ErrorCandidatesExhausted:
		return replyProviderPrefix + lastErrorMessage(ucErr.Err)
	default:
		return replyInternal
	}
}

func attachmentReply(err error) string {
	var decodeErr *AttachmentDecodeError
	if errors.As(err, &decodeErr) && decodeErr.Kind == AttachmentAudio {
		return replyAudioDecode
	}
	return replyImageDecode
}

// attachmentNote is prepended to a successful reply when an attachment was dropped.
func attachmentNote(e *AttachmentDecodeError) string {
	return fmt.Sprintf("(The %s attachment could not be read and was skipped.)", e.Kind)
}

// lastErrorMessage strips the exhaustion sentinel so only the provider's own
// message is shown.
func lastErrorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) && exhausted.Last != nil {
		return exhausted.Last.Error()
	}
	return err.Error()
}

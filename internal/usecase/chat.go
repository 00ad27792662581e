package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"gemini-chat/internal/domain"
)

// ExchangeRecorder stores completed exchanges. Recording is best effort.
type ExchangeRecorder interface {
	SaveExchange(ctx context.Context, ex domain.Exchange) error
}

// ChatInput is the decoded body of a chat request.
type ChatInput struct {
	Message string                `json:"message" validate:"max=32768"`
	Image   string                `json:"image" validate:"max=20971520"`
	Audio   string                `json:"audio" validate:"max=20971520"`
	History []domain.HistoryEntry `json:"history" validate:"max=200,dive"`
}

type ChatOutput struct {
	Reply string
	Model string
	Notes []string
}

// ChatConfig holds the per-process settings of ChatService.
type ChatConfig struct {
	Candidates  []string
	Options     domain.GenerationOptions
	StrictImage bool
}

type ChatService struct {
	invoker   *Invoker
	assembler Assembler
	cfg       ChatConfig
	recorder  ExchangeRecorder
	validate  *validator.Validate
	logger    *slog.Logger
}

type ChatOption func(*ChatService)

func WithExchangeRecorder(r ExchangeRecorder) ChatOption {
	return func(s *ChatService) {
		s.recorder = r
	}
}

func WithLogger(l *slog.Logger) ChatOption {
	return func(s *ChatService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewChatService(inv *Invoker, cfg ChatConfig, opts ...ChatOption) (*ChatService, error) {
	if inv == nil {
		return nil, errors.New("usecase: invoker must not be nil")
	}
	candidates := make([]string, 0, len(cfg.Candidates))
	for _, c := range cfg.Candidates {
		if c = strings.TrimSpace(c); c != "" {
			candidates = append(candidates, c)
		}
	}
	cfg.Candidates = candidates

	s := &ChatService{
		invoker:   inv,
		assembler: Assembler{StrictImage: cfg.StrictImage},
		cfg:       cfg,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Chat answers one chat request. Every failure is a *Error; use Reply to
// render the result for the user.
func (s *ChatService) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	if err := s.validate.Struct(in); err != nil {
		return ChatOutput{}, newError(ErrorInvalidInput, "validation_failed", err)
	}

	assembly, err := s.assembler.Assemble(AssembleInput{
		Message: in.Message,
		Image:   in.Image,
		Audio:   in.Audio,
		History: in.History,
	})
	for _, dropped := range assembly.Dropped {
		s.logger.Warn("dropped undecodable attachment", "kind", dropped.Kind, "err", dropped.Err)
	}
	if err != nil {
		var decodeErr *AttachmentDecodeError
		switch {
		case errors.As(err, &decodeErr):
			return ChatOutput{}, newError(ErrorAttachmentDecode, string(decodeErr.Kind)+"_decode_failed", err)
		case errors.Is(err, ErrEmptyRequest) && len(assembly.Dropped) > 0:
			// Nothing left to send once the bad attachment was dropped.
			return ChatOutput{}, newError(ErrorAttachmentDecode, string(assembly.Dropped[0].Kind)+"_decode_failed", assembly.Dropped[0])
		case errors.Is(err, ErrEmptyRequest):
			return ChatOutput{}, newError(ErrorEmptyRequest, "empty_request", err)
		default:
			return ChatOutput{}, newError(ErrorInvalidInput, "assemble_failed", err)
		}
	}

	outcome := s.invoker.Invoke(ctx, assembly.Conversation, s.cfg.Candidates, s.cfg.Options)
	if !outcome.Succeeded() {
		s.record(ctx, in, assembly, outcome)
		switch {
		case errors.Is(outcome.Err, ErrMissingCredential):
			return ChatOutput{}, newError(ErrorMissingCredential, "missing_credential", outcome.Err)
		case errors.Is(outcome.Err, ErrNoCandidates):
			return ChatOutput{}, newError(ErrorNoCandidates, "no_candidates", outcome.Err)
		default:
			logArgs := []any{"attempts", outcome.Attempts, "err", outcome.Err}
			var exhausted *ExhaustedError
			if errors.As(outcome.Err, &exhausted) && exhausted.Attempts != nil {
				logArgs = append(logArgs, "attempt_errors", exhausted.Attempts.Error())
			}
			s.logger.Warn("all candidate models failed", logArgs...)
			return ChatOutput{}, newError(ErrorCandidatesExhausted, "candidates_exhausted", outcome.Err)
		}
	}

	out := ChatOutput{Reply: outcome.Text, Model: outcome.Model}
	for _, dropped := range assembly.Dropped {
		out.Notes = append(out.Notes, attachmentNote(dropped))
	}
	s.record(ctx, in, assembly, outcome)
	return out, nil
}

func (s *ChatService) record(ctx context.Context, in ChatInput, assembly Assembly, outcome Outcome) {
	if s.recorder == nil {
		return
	}
	ex := domain.Exchange{
		Message:     strings.TrimSpace(in.Message),
		Attachments: attachmentKinds(assembly),
		Model:       outcome.Model,
		Status:      statusSucceeded,
		Reply:       outcome.Text,
	}
	if !outcome.Succeeded() {
		ex.Status = statusFailed
		ex.Reply = lastErrorMessage(outcome.Err)
	}

	// The inbound request may already be gone; the record should still land.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.recorder.SaveExchange(recordCtx, ex); err != nil {
		s.logger.Warn("failed to record exchange", "err", err)
	}
}

const (
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
)

func attachmentKinds(a Assembly) []string {
	last, ok := a.Conversation.Last()
	if !ok {
		return nil
	}
	var kinds []string
	for _, p := range last.Parts {
		if b, ok := p.(domain.Blob); ok {
			kinds = append(kinds, b.MIMEType)
		}
	}
	return kinds
}

package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"gemini-chat/internal/domain"
)

type generateCall struct {
	model string
	conv  domain.Conversation
	opts  domain.GenerationOptions
}

// scriptedGenerator answers per model: a reply text or an error.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   []generateCall
}

func (g *scriptedGenerator) Generate(_ context.Context, model string, conv domain.Conversation, opts domain.GenerationOptions) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, generateCall{model: model, conv: conv, opts: opts})
	if err, ok := g.errs[model]; ok {
		return "", err
	}
	if text, ok := g.replies[model]; ok {
		return text, nil
	}
	return "", errors.New("404 model not found: " + model)
}

func (g *scriptedGenerator) models() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.calls))
	for _, c := range g.calls {
		out = append(out, c.model)
	}
	return out
}

type observedAttempt struct {
	model string
	err   error
}

type recordingObserver struct {
	attempts []observedAttempt
	cache    []string
}

func (o *recordingObserver) ObserveAttempt(model string, _ time.Duration, err error) {
	o.attempts = append(o.attempts, observedAttempt{model: model, err: err})
}

func (o *recordingObserver) ObserveCache(event string) {
	o.cache = append(o.cache, event)
}

type fakeRecorder struct {
	saved []domain.Exchange
	err   error
}

func (r *fakeRecorder) SaveExchange(_ context.Context, ex domain.Exchange) error {
	r.saved = append(r.saved, ex)
	return r.err
}

func userConversation(text string) domain.Conversation {
	return domain.Conversation{{Role: domain.RoleUser, Parts: []domain.Part{domain.Text{Text: text}}}}
}

// blockingGenerator waits for ctx to end unless the model is in fast.
type blockingGenerator struct {
	fast map[string]string
}

func (g *blockingGenerator) Generate(ctx context.Context, model string, _ domain.Conversation, _ domain.GenerationOptions) (string, error) {
	if text, ok := g.fast[model]; ok {
		return text, nil
	}
	<-ctx.Done()
	return "", ctx.Err()
}

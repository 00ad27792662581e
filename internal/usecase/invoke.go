package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"gemini-chat/internal/domain"
)

var errEmptyResponse = errors.New("empty response")

// Generator produces a reply for a conversation from one named model.
type Generator interface {
	Generate(ctx context.Context, model string, conv domain.Conversation, opts domain.GenerationOptions) (string, error)
}

// AttemptObserver receives one event per provider call and per cache decision.
type AttemptObserver interface {
	ObserveAttempt(model string, elapsed time.Duration, err error)
	ObserveCache(event string)
}

const (
	CacheHit   = "hit"
	CacheStale = "stale"
	CacheStore = "store"
)

// Outcome is the result of a fallback invocation. It succeeded when Err is nil.
type Outcome struct {
	Model    string
	Text     string
	Err      error
	Attempts int
}

func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// ExhaustedError is returned when no candidate produced a reply. Last is the
// error of the final attempt; Attempts keeps every attempt's error.
type ExhaustedError struct {
	Last     error
	Attempts *multierror.Error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("usecase: all candidate models failed: %v", e.Last)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrCandidatesExhausted, e.Last}
}

// Invoker tries candidate models in order until one returns text.
type Invoker struct {
	generator Generator
	cache     *WorkingModelCache
	observer  AttemptObserver
	timeout   time.Duration
	logger    *slog.Logger
}

type InvokerOption func(*Invoker)

// WithWorkingModelCache enables the fast path that tries the last working model first.
func WithWorkingModelCache(c *WorkingModelCache) InvokerOption {
	return func(inv *Invoker) {
		inv.cache = c
	}
}

func WithAttemptObserver(o AttemptObserver) InvokerOption {
	return func(inv *Invoker) {
		inv.observer = o
	}
}

// WithAttemptTimeout bounds every provider call. Zero means no bound beyond ctx.
func WithAttemptTimeout(d time.Duration) InvokerOption {
	return func(inv *Invoker) {
		inv.timeout = d
	}
}

func WithInvokerLogger(l *slog.Logger) InvokerOption {
	return func(inv *Invoker) {
		if l != nil {
			inv.logger = l
		}
	}
}

// NewInvoker creates an Invoker. A nil generator is allowed and means no
// provider credential is configured; every invocation then fails without a call.
func NewInvoker(g Generator, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		generator: g,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke tries candidates in order and returns the first reply. With a working
// model cache the cached model is tried first; if it fails with a stale-model
// error the candidates are re-probed in order, skipping the model that just
// failed. Any other error from the cached model ends the invocation.
func (inv *Invoker) Invoke(ctx context.Context, conv domain.Conversation, candidates []string, opts domain.GenerationOptions) Outcome {
	if len(candidates) == 0 {
		return Outcome{Err: ErrNoCandidates}
	}
	if inv.generator == nil {
		return Outcome{Err: ErrMissingCredential}
	}

	var (
		attempts  *multierror.Error
		lastErr   error
		lastModel string
		calls     int
		tried     string
	)

	if inv.cache != nil {
		if model, ok := inv.cache.Get(); ok {
			calls++
			text, err := inv.attempt(ctx, model, conv, opts)
			if err == nil {
				inv.observeCache(CacheHit)
				return Outcome{Model: model, Text: text, Attempts: calls}
			}
			attempts = multierror.Append(attempts, fmt.Errorf("%s: %w", model, err))
			if !IsStaleModelError(err) {
				return Outcome{Model: model, Err: &ExhaustedError{Last: err, Attempts: attempts}, Attempts: calls}
			}
			inv.cache.Invalidate(model, err)
			inv.observeCache(CacheStale)
			inv.logger.Info("cached model is stale, probing candidates", "model", model, "err", err)
			tried, lastErr, lastModel = model, err, model
		}
	}

	for _, model := range candidates {
		if model == tried {
			continue
		}
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		calls++
		text, err := inv.attempt(ctx, model, conv, opts)
		if err == nil {
			if inv.cache != nil {
				inv.cache.Set(model)
				inv.observeCache(CacheStore)
			}
			return Outcome{Model: model, Text: text, Attempts: calls}
		}
		attempts = multierror.Append(attempts, fmt.Errorf("%s: %w", model, err))
		lastErr, lastModel = err, model
	}

	return Outcome{
		Model:    lastModel,
		Err:      &ExhaustedError{Last: lastErr, Attempts: attempts},
		Attempts: calls,
	}
}

func (inv *Invoker) attempt(ctx context.Context, model string, conv domain.Conversation, opts domain.GenerationOptions) (string, error) {
	if inv.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}
	start := time.Now()
	text, err := inv.generator.Generate(ctx, model, conv, opts)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errEmptyResponse
	}
	if inv.observer != nil {
		inv.observer.ObserveAttempt(model, time.Since(start), err)
	}
	if err != nil {
		inv.logger.Debug("candidate model failed", "model", model, "err", err)
		return "", err
	}
	return text, nil
}

func (inv *Invoker) observeCache(event string) {
	if inv.observer != nil {
		inv.observer.ObserveCache(event)
	}
}

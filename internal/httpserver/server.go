// Package httpserver is the standalone HTTP transport for the chat relay.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gemini-chat/internal/static"
	"gemini-chat/internal/usecase"
)

const (
	PathHealth  = "/health"
	PathMetrics = "/metrics"
	PathChat    = "/api/chat"

	transportHTTP = "http"

	// Two base64 attachments at their limit plus history.
	maxChatBodyBytes = 48 << 20

	shutdownTimeout = 10 * time.Second
)

type ChatUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

type Assets interface {
	Index() static.Asset
	Asset(name string) (static.Asset, error)
}

type RequestObserver interface {
	ObserveRequest(transport, code string)
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server routes chat, static, health and metrics requests.
type Server struct {
	addr     string
	chat     ChatUseCase
	assets   Assets
	observer RequestObserver
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	handler  http.Handler
}

type Option func(*Server)

func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

func WithRequestObserver(o RequestObserver) Option {
	return func(s *Server) {
		s.observer = o
	}
}

// WithMetrics exposes g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(chat ChatUseCase, assets Assets, opts ...Option) (*Server, error) {
	if chat == nil {
		return nil, errors.New("httpserver: chat use case must not be nil")
	}
	if assets == nil {
		return nil, errors.New("httpserver: assets must not be nil")
	}
	s := &Server{addr: ":8080", chat: chat, assets: assets, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = withCorrelationID(withLogging(s.logger, s.routes()))
	return s, nil
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc(PathHealth, s.handleHealth).Methods(http.MethodGet)
	if s.gatherer != nil {
		r.Handle(PathMetrics, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	r.HandleFunc(PathChat, s.handleChat).Methods(http.MethodPost)
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/{filename}", s.handleAsset).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
	})
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("httpserver: listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// Shutdown drains in-flight requests; the signal must not cancel them.
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("httpserver: serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpserver: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleChat always answers 200; failures travel in the reply text.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var (
		in  usecase.ChatInput
		out usecase.ChatOutput
		err error
	)
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if decodeErr := json.NewDecoder(r.Body).Decode(&in); decodeErr != nil {
		err = &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_json", Err: decodeErr}
	} else {
		out, err = s.chat.Chat(r.Context(), in)
	}

	code := usecase.CodeOf(err)
	if s.observer != nil {
		s.observer.ObserveRequest(transportHTTP, string(code))
	}
	logger := loggerFrom(r.Context(), s.logger)
	switch code {
	case "":
		logger.Info("chat answered", "model", out.Model)
	case usecase.ErrorInternal:
		logger.Error("chat failed", "err", err)
	default:
		logger.Warn("chat failed", "code", code, "err", err)
	}

	respondJSON(w, http.StatusOK, chatResponse{Reply: usecase.Reply(out, err)})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	writeAsset(w, s.assets.Index())
}

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]
	asset, err := s.assets.Asset(name)
	if err != nil {
		if !errors.Is(err, static.ErrNotFound) {
			loggerFrom(r.Context(), s.logger).Error("failed to read asset", "name", name, "err", err)
		}
		notFound(w, r)
		return
	}
	writeAsset(w, asset)
}

func writeAsset(w http.ResponseWriter, a static.Asset) {
	w.Header().Set("Content-Type", a.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.Body)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusNotFound, errorResponse{Error: "Not found"})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

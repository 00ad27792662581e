package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"gemini-chat/internal/static"
	"gemini-chat/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	transportLambda     = "lambda"
)

type ChatUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

type Assets interface {
	Index() static.Asset
	Asset(name string) (static.Asset, error)
}

// RequestObserver counts chat requests by result code.
type RequestObserver interface {
	ObserveRequest(transport, code string)
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves the chat API and the front end behind API Gateway.
type Handler struct {
	chat     ChatUseCase
	assets   Assets
	observer RequestObserver
	logger   *slog.Logger
}

type Option func(*Handler)

func WithRequestObserver(o RequestObserver) Option {
	return func(h *Handler) {
		h.observer = o
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHandler(chat ChatUseCase, assets Assets, opts ...Option) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	if assets == nil {
		return nil, errors.New("handler: assets must not be nil")
	}
	h := &Handler{chat: chat, assets: assets, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := h.logger.With("correlation_id", correlationID, "method", req.HTTPMethod, "path", req.Path)

	var resp events.APIGatewayProxyResponse
	switch {
	case req.Path == "/api/chat" && req.HTTPMethod == http.MethodPost:
		resp = h.handleChat(ctx, req, logger)
	case req.Path == "/api/chat":
		resp = jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
	case req.HTTPMethod != http.MethodGet:
		resp = jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
	case req.Path == "/" || req.Path == "":
		resp = assetResponse(h.assets.Index())
	default:
		resp = h.handleAsset(strings.TrimPrefix(req.Path, "/"), logger)
	}

	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	resp.Headers[headerCorrelationID] = correlationID
	return resp, nil
}

func (h *Handler) handleChat(ctx context.Context, req events.APIGatewayProxyRequest, logger *slog.Logger) events.APIGatewayProxyResponse {
	body := req.Body
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return h.chatResult(usecase.ChatOutput{}, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body_encoding", Err: err}, logger)
		}
		body = string(decoded)
	}

	var in usecase.ChatInput
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return h.chatResult(usecase.ChatOutput{}, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_json", Err: err}, logger)
	}

	out, err := h.chat.Chat(ctx, in)
	return h.chatResult(out, err, logger)
}

// chatResult always answers 200; failures travel in the reply text.
func (h *Handler) chatResult(out usecase.ChatOutput, err error, logger *slog.Logger) events.APIGatewayProxyResponse {
	code := usecase.CodeOf(err)
	if h.observer != nil {
		h.observer.ObserveRequest(transportLambda, string(code))
	}
	switch code {
	case "":
		logger.Info("chat answered", "model", out.Model)
	case usecase.ErrorInternal:
		logger.Error("chat failed", "err", err)
	default:
		logger.Warn("chat failed", "code", code, "err", err)
	}
	return jsonResponse(http.StatusOK, chatResponse{Reply: usecase.Reply(out, err)})
}

func (h *Handler) handleAsset(name string, logger *slog.Logger) events.APIGatewayProxyResponse {
	asset, err := h.assets.Asset(name)
	if err != nil {
		if !errors.Is(err, static.ErrNotFound) {
			logger.Error("failed to read asset", "name", name, "err", err)
		}
		return jsonResponse(http.StatusNotFound, errorResponse{Error: "Not found"})
	}
	return assetResponse(asset)
}

func assetResponse(a static.Asset) events.APIGatewayProxyResponse {
	resp := events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": a.ContentType},
	}
	if isText(a.ContentType) {
		resp.Body = string(a.Body)
		return resp
	}
	resp.Body = base64.StdEncoding.EncodeToString(a.Body)
	resp.IsBase64Encoded = true
	return resp
}

func isText(contentType string) bool {
	return strings.HasPrefix(contentType, "text/") ||
		strings.HasPrefix(contentType, "application/javascript") ||
		strings.HasPrefix(contentType, "application/json") ||
		strings.HasPrefix(contentType, "image/svg+xml")
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

package handler

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	headerSecretToken   = "X-Telegram-Bot-Api-Secret-Token"

	codeUnauthorized     = "UNAUTHORIZED"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	codeInvalidUpdate    = "INVALID_UPDATE"
)

var newCorrelationID = func() string { return uuid.NewString() }

// Dispatcher handles one decoded Telegram update.
type Dispatcher interface {
	Dispatch(ctx context.Context, u tgbotapi.Update)
}

type Option func(*Handler)

// WithSecret requires every request to carry the webhook secret token.
func WithSecret(secret string) Option {
	return func(h *Handler) { h.secret = strings.TrimSpace(secret) }
}

func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// Handler is the API Gateway entry point for the Telegram webhook.
type Handler struct {
	dispatcher Dispatcher
	secret     string
	log        *slog.Logger
}

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHandler(d Dispatcher, opts ...Option) (*Handler, error) {
	if d == nil {
		return nil, errors.New("handler: dispatcher must not be nil")
	}
	h := &Handler{dispatcher: d, log: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle dispatches the update synchronously. Telegram redelivers on any
// non-2xx answer, so every decodable update is answered 200 whatever the
// bot did with it.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := header(req.Headers, headerCorrelationID)
	if correlationID == "" {
		correlationID = newCorrelationID()
	}
	log := h.log.With("correlation_id", correlationID)

	if req.HTTPMethod != "" && req.HTTPMethod != http.MethodPost {
		return respond(http.StatusMethodNotAllowed, correlationID, errorResponse{Error: codeMethodNotAllowed}), nil
	}
	if h.secret != "" {
		got := header(req.Headers, headerSecretToken)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			log.Warn("rejected webhook call", "reason", "secret_mismatch")
			return respond(http.StatusUnauthorized, correlationID, errorResponse{Error: codeUnauthorized}), nil
		}
	}

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			log.Warn("invalid webhook body", "error", err)
			return respond(http.StatusBadRequest, correlationID, errorResponse{Error: codeInvalidUpdate}), nil
		}
		body = decoded
	}

	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		log.Warn("invalid webhook body", "error", err)
		return respond(http.StatusBadRequest, correlationID, errorResponse{Error: codeInvalidUpdate}), nil
	}

	log.Debug("webhook update", "update_id", update.UpdateID)
	h.dispatcher.Dispatch(ctx, update)
	return respond(http.StatusOK, correlationID, okResponse{OK: true}), nil
}

// header looks a header up case-insensitively; API Gateway keeps the client's casing.
func header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func respond(status int, correlationID string, payload any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(payload)
	if err != nil {
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
		status = http.StatusInternalServerError
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			headerCorrelationID: correlationID,
		},
		Body: string(body),
	}
}

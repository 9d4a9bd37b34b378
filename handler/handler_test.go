package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
)

type stubDispatcher struct {
	updates []tgbotapi.Update
}

func (s *stubDispatcher) Dispatch(_ context.Context, u tgbotapi.Update) {
	s.updates = append(s.updates, u)
}

const startUpdate = `{"update_id":7,"message":{"message_id":1,"from":{"id":42,"is_bot":false,"first_name":"A","username":"alice"},"chat":{"id":42,"type":"private"},"date":0,"text":"/start","entities":[{"type":"bot_command","offset":0,"length":6}]}}`

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/telegram",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_HappyPath(t *testing.T) {
	d := &stubDispatcher{}
	h, err := NewHandler(d)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(startUpdate))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, parseBody[okResponse](t, resp.Body).OK)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])

	require.Len(t, d.updates, 1)
	require.Equal(t, 7, d.updates[0].UpdateID)
	require.Equal(t, "start", d.updates[0].Message.Command())
}

func TestHandle_Base64Body(t *testing.T) {
	d := &stubDispatcher{}
	h, _ := NewHandler(d)

	event := makeEvent(base64.StdEncoding.EncodeToString([]byte(startUpdate)))
	event.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, d.updates, 1)
}

func TestHandle_InvalidBody(t *testing.T) {
	d := &stubDispatcher{}
	h, _ := NewHandler(d)

	resp, err := h.Handle(context.Background(), makeEvent(`not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, codeInvalidUpdate, parseBody[errorResponse](t, resp.Body).Error)
	require.Empty(t, d.updates)
}

func TestHandle_RejectsOtherMethods(t *testing.T) {
	d := &stubDispatcher{}
	h, _ := NewHandler(d)

	event := makeEvent(startUpdate)
	event.HTTPMethod = http.MethodGet
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	require.Empty(t, d.updates)
}

func TestHandle_Secret(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		status  int
	}{
		{name: "missing", headers: map[string]string{}, status: http.StatusUnauthorized},
		{name: "wrong", headers: map[string]string{"X-Telegram-Bot-Api-Secret-Token": "nope"}, status: http.StatusUnauthorized},
		{name: "match", headers: map[string]string{"X-Telegram-Bot-Api-Secret-Token": "s3cret"}, status: http.StatusOK},
		{name: "match lower-case header", headers: map[string]string{"x-telegram-bot-api-secret-token": "s3cret"}, status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := &stubDispatcher{}
			h, err := NewHandler(d, WithSecret("s3cret"))
			require.NoError(t, err)

			event := makeEvent(startUpdate)
			event.Headers = tc.headers
			resp, err := h.Handle(context.Background(), event)
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
			if tc.status != http.StatusOK {
				require.Empty(t, d.updates)
				require.Equal(t, codeUnauthorized, parseBody[errorResponse](t, resp.Body).Error)
			}
		})
	}
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h, err := NewHandler(&stubDispatcher{})
	require.NoError(t, err)

	event := makeEvent(startUpdate)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

func TestHandle_GeneratesCorrelationID(t *testing.T) {
	orig := newCorrelationID
	t.Cleanup(func() { newCorrelationID = orig })
	newCorrelationID = func() string { return "generated" }

	h, _ := NewHandler(&stubDispatcher{})
	resp, err := h.Handle(context.Background(), makeEvent(startUpdate))
	require.NoError(t, err)
	require.Equal(t, "generated", resp.Headers["X-Correlation-Id"])
}

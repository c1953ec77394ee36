package chat

import (
	"context"
	"net/http"

	"aura/internal/api"
)

// HistoryEntry is one row of server-held history.
type HistoryEntry struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// Transport sends questions and fetches history. token may be empty for Ask.
type Transport interface {
	Ask(ctx context.Context, question, token string) (string, error)
	History(ctx context.Context, token string) ([]HistoryEntry, error)
}

// HTTPTransport is the Transport for the AURA backend.
type HTTPTransport struct {
	client *api.Client
}

// NewHTTPTransport creates a transport over client.
func NewHTTPTransport(client *api.Client) *HTTPTransport {
	return &HTTPTransport{client: client}
}

// Ask posts the question to /api/chat and returns the answer.
func (t *HTTPTransport) Ask(ctx context.Context, question, token string) (string, error) {
	var out struct {
		Answer string `json:"answer"`
	}
	err := t.client.Do(ctx, api.Request{
		Method:   http.MethodPost,
		Path:     "/api/chat",
		Token:    token,
		Body:     map[string]string{"question": question},
		Fallback: "Failed to get a reply",
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Answer, nil
}

// History fetches the signed-in user's stored messages, oldest first.
func (t *HTTPTransport) History(ctx context.Context, token string) ([]HistoryEntry, error) {
	var out []HistoryEntry
	err := t.client.Do(ctx, api.Request{
		Method:   http.MethodGet,
		Path:     "/api/chat/history",
		Token:    token,
		Fallback: "Failed to load chat history",
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

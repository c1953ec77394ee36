package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Do_SendsHeadersAndDecodes(t *testing.T) {
	var gotAuth, gotType, gotID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotID = r.Header.Get("X-Request-ID")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"answer":"42"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL + "/")
	var out struct {
		Answer string `json:"answer"`
	}
	err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/api/chat",
		Token:  "t1",
		Body:   map[string]string{"question": "q"},
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, "42", out.Answer)
	assert.Equal(t, "Bearer t1", gotAuth)
	assert.Equal(t, "application/json", gotType)
	_, parseErr := uuid.Parse(gotID)
	assert.NoError(t, parseErr, "X-Request-ID is a uuid")
}

func TestClient_Do_OmitsAuthorizationForGuests(t *testing.T) {
	sawAuth := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawAuth = r.Header["Authorization"]
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	require.NoError(t, NewClient(server.URL).Do(context.Background(), Request{Method: http.MethodPost, Path: "/x", Body: struct{}{}}, nil))
	assert.False(t, sawAuth)
}

func TestClient_Do_ErrorNormalization(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"string detail", http.StatusNotFound, `{"detail":"No such user"}`, "No such user"},
		{"list detail", http.StatusUnprocessableEntity,
			`{"detail":[{"loc":["body","email"],"msg":"field required","type":"missing"},{"loc":["body","otp"],"msg":"too short","type":"value_error"}]}`,
			"field required; too short"},
		{"empty detail", http.StatusBadRequest, `{"detail":""}`, "Fallback text"},
		{"object detail", http.StatusBadRequest, `{"detail":{"code":7}}`, "Fallback text"},
		{"no json", http.StatusInternalServerError, `Internal Server Error`, "Fallback text"},
		{"empty body", http.StatusBadGateway, ``, "Fallback text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			err := NewClient(server.URL).Do(context.Background(), Request{
				Method:   http.MethodPost,
				Path:     "/auth/x",
				Fallback: "Fallback text",
			}, nil)

			var apiErr *Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, tt.message, err.Error())
			assert.NotEmpty(t, apiErr.RequestID)
		})
	}
}

func TestClient_Do_NetworkFailureUsesFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := NewClient(url).Do(context.Background(), Request{Method: http.MethodGet, Path: "/", Fallback: "Login failed"}, nil)

	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 0, apiErr.Status)
	assert.Equal(t, "Login failed", apiErr.Message)
	assert.NotNil(t, errors.Unwrap(err), "cause is attached")
}

func TestClient_Do_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	err := NewClient(server.URL, WithTimeout(50*time.Millisecond)).Do(context.Background(),
		Request{Method: http.MethodGet, Path: "/slow", Fallback: "slow"}, nil)
	require.Error(t, err)
	assert.Equal(t, "slow", err.Error())
}

func TestClient_Do_ContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewClient(server.URL).Do(ctx, Request{Method: http.MethodGet, Path: "/", Fallback: "f"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Do_BadSuccessBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[not json`))
	}))
	defer server.Close()

	var out map[string]string
	err := NewClient(server.URL).Do(context.Background(), Request{Method: http.MethodGet, Path: "/", Fallback: "Bad reply"}, &out)
	require.Error(t, err)
	assert.Equal(t, http.StatusOK, StatusOf(err))
	assert.Equal(t, "Bad reply", err.Error())
}

func TestIsUnauthorized(t *testing.T) {
	assert.True(t, IsUnauthorized(&Error{Status: http.StatusUnauthorized}))
	assert.False(t, IsUnauthorized(&Error{Status: http.StatusForbidden}))
	assert.False(t, IsUnauthorized(errors.New("plain")))
	assert.Equal(t, 0, StatusOf(errors.New("plain")))
}

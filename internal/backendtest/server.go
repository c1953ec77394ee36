// Package backendtest runs an in-memory imitation of the AURA backend for
// tests: auth with OTP password reset, the chat endpoint with optional auth,
// and per-user history.
package backendtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultOTP is the code issued by request-password-reset unless overridden.
const DefaultOTP = "123456"

// User is a registered account.
type User struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"-"`
}

// HistoryItem is one stored chat row.
type HistoryItem struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// Call records one request as the server saw it.
type Call struct {
	Method    string
	Path      string
	Auth      string
	RequestID string
	Body      map[string]any
}

// Server is the fake backend.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	nextID   int
	users    map[string]*User // by email
	tokens   map[string]string
	otps     map[string]string
	verified map[string]bool
	history  map[string][]HistoryItem
	calls    []Call

	otp         string
	answer      func(question string) string
	chatHandler http.HandlerFunc
}

// New starts a fake backend that is closed when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		users:    make(map[string]*User),
		tokens:   make(map[string]string),
		otps:     make(map[string]string),
		verified: make(map[string]bool),
		history:  make(map[string][]HistoryItem),
		otp:      DefaultOTP,
		answer:   func(q string) string { return "echo: " + q },
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.record)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", s.handleSignup)
		r.Post("/login", s.handleLogin)
		r.Post("/request-password-reset", s.handleRequestReset)
		r.Post("/verify-otp", s.handleVerifyOTP)
		r.Post("/reset-password", s.handleResetPassword)
	})
	r.Post("/api/chat", s.handleChat)
	r.Get("/api/chat/history", s.handleHistory)
	return r
}

// record captures the request and restores its body for the handler.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			var raw json.RawMessage
			if err := json.NewDecoder(r.Body).Decode(&raw); err == nil {
				_ = json.Unmarshal(raw, &body)
				r.Body = readCloser{strings.NewReader(string(raw))}
			}
		}
		s.mu.Lock()
		s.calls = append(s.calls, Call{
			Method:    r.Method,
			Path:      strings.TrimSuffix(r.URL.Path, "/"),
			Auth:      r.Header.Get("Authorization"),
			RequestID: r.Header.Get("X-Request-ID"),
			Body:      body,
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

type readCloser struct{ *strings.Reader }

func (readCloser) Close() error { return nil }

// AddUser registers an account directly.
func (s *Server) AddUser(name, email, password string) User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.addUserLocked(name, email, password)
}

func (s *Server) addUserLocked(name, email, password string) *User {
	s.nextID++
	u := &User{ID: s.nextID, Name: name, Email: email, Password: password}
	s.users[email] = u
	return u
}

// Password returns the current password of email's account.
func (s *Server) Password(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[email]; ok {
		return u.Password
	}
	return ""
}

// IssueToken returns a valid bearer token for email without a login call.
func (s *Server) IssueToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueTokenLocked(email)
}

func (s *Server) issueTokenLocked(email string) string {
	tok := fmt.Sprintf("tok-%d-%d", s.users[email].ID, len(s.tokens)+1)
	s.tokens[tok] = email
	return tok
}

// SetOTP changes the code issued by the next reset request.
func (s *Server) SetOTP(otp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.otp = otp
}

// SetHistory replaces email's stored history.
func (s *Server) SetHistory(email string, items []HistoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[email] = append([]HistoryItem(nil), items...)
}

// History returns email's stored history.
func (s *Server) History(email string) []HistoryItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryItem(nil), s.history[email]...)
}

// SetAnswer replaces the default "echo: <question>" answer.
func (s *Server) SetAnswer(fn func(question string) string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answer = fn
}

// SetChatHandler replaces the /api/chat handler entirely, e.g. to stall or fail.
func (s *Server) SetChatHandler(h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatHandler = h
}

// RevokeTokens makes every issued token invalid.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]string)
}

// Calls returns every recorded request, in arrival order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo returns the recorded requests for path.
func (s *Server) CallsTo(path string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeValidation(w, "field required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[req.Email]; exists {
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}
	s.addUserLocked(req.Name, req.Email, req.Password)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Signup successful"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[req.Email]
	if !ok || u.Password != req.Password {
		writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": s.issueTokenLocked(u.Email),
		"user":  u,
	})
}

func (s *Server) handleRequestReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[req.Email]; !ok {
		writeDetail(w, http.StatusNotFound, "No such user")
		return
	}
	s.otps[req.Email] = s.otp
	delete(s.verified, req.Email)
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	want, ok := s.otps[req.Email]
	if !ok || want != req.OTP {
		writeDetail(w, http.StatusBadRequest, "Invalid OTP")
		return
	}
	s.verified[req.Email] = true
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		OTP         string `json:"otp"`
		NewPassword string `json:"new_password"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.NewPassword == "" {
		writeValidation(w, "new_password must not be empty")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.verified[req.Email] || s.otps[req.Email] != req.OTP {
		writeDetail(w, http.StatusBadRequest, "OTP not verified")
		return
	}
	s.users[req.Email].Password = req.NewPassword
	delete(s.otps, req.Email)
	delete(s.verified, req.Email)
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	override, answerFn := s.chatHandler, s.answer
	s.mu.Unlock()
	if override != nil {
		override(w, r)
		return
	}

	var req struct {
		Question string `json:"question"`
	}
	if !decode(w, r, &req) {
		return
	}

	answer := answerFn(req.Question)

	s.mu.Lock()
	defer s.mu.Unlock()
	// Optional auth: a bad token is treated as a guest.
	if email, ok := s.bearerLocked(r); ok {
		s.history[email] = append(s.history[email],
			HistoryItem{Role: "user", Message: req.Question},
			HistoryItem{Role: "assistant", Message: answer},
		)
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") == "" {
		writeDetail(w, http.StatusForbidden, "Not authenticated")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.bearerLocked(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	items := s.history[email]
	if items == nil {
		items = []HistoryItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) bearerLocked(r *http.Request) (string, bool) {
	tok, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found {
		return "", false
	}
	email, ok := s.tokens[tok]
	return email, ok
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeValidation(w, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeValidation mimics FastAPI's 422 list-shaped detail.
func writeValidation(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []map[string]any{
			{"loc": []string{"body"}, "msg": msg, "type": "value_error"},
		},
	})
}

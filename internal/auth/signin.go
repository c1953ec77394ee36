package auth

import (
	"context"
	"fmt"
	"strings"

	"aura/internal/session"
)

// Form validation messages shown to the user as-is.
const (
	MsgMissingCredentials = "Please enter your email and password"
	MsgMissingFields      = "Please fill in all fields"
	MsgPasswordMismatch   = "Passwords do not match"
)

// ValidationError is a form problem detected before any network call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ErrMissingCredentials is returned before any network call when email or
// password is blank.
var ErrMissingCredentials error = &ValidationError{Message: MsgMissingCredentials}

// Authenticator is the login half of Gateway.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
}

// SignIn validates the form, logs in and persists the session. The store is
// only written on success.
func SignIn(ctx context.Context, gw Authenticator, store session.Store, email, password string) (*session.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	res, err := gw.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	s := session.Session{Token: res.Token, User: res.User}
	if err := store.Set(s); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return &s, nil
}

// SignOut forgets the session.
func SignOut(store session.Store) error {
	if err := store.Clear(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

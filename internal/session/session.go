// Package session holds the persisted login session: the bearer token and the
// opaque user profile returned by the backend. Absence of a session means the
// visitor is a guest.
package session

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// ExpiryBuffer is how early a token is treated as expired.
const ExpiryBuffer = 60 * time.Second

// ErrEmptyToken is returned by Set when the session has no token.
var ErrEmptyToken = errors.New("session token is empty")

// Session is the authenticated identity. User is stored verbatim.
type Session struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user,omitempty"`
}

// Store is the durable holder of at most one Session.
//
// Get never fails: a missing, unreadable or expired session reads as absent.
// Set overwrites any existing session. Clear is idempotent.
type Store interface {
	Get() (*Session, bool)
	Set(Session) error
	Clear() error
}

// Profile is the best-effort display view of the user payload.
type Profile struct {
	ID    any    `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Profile decodes the display fields of User. Unknown shapes yield a zero Profile.
func (s Session) Profile() Profile {
	var p Profile
	if len(s.User) > 0 {
		_ = json.Unmarshal(s.User, &p)
	}
	return p
}

// Expiry returns the token's exp claim, if the token is a JWT that carries one.
// The signature is not verified; the backend remains the authority.
func (s Session) Expiry() (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.Token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// ExpiredAt reports whether the token expires within ExpiryBuffer of now.
// Tokens without an exp claim never expire client-side.
func (s Session) ExpiredAt(now time.Time) bool {
	exp, ok := s.Expiry()
	if !ok {
		return false
	}
	return !now.Add(ExpiryBuffer).Before(exp)
}

func (s Session) clone() *Session {
	c := Session{Token: s.Token}
	if s.User != nil {
		c.User = append(json.RawMessage(nil), s.User...)
	}
	return &c
}

// Option configures a Store implementation.
type Option func(*options)

type options struct {
	logger *zap.Logger
	now    func() time.Time
}

// WithLogger sets the logger used for corrupt or expired sessions.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// usable applies the expiry policy. It returns false for sessions that must be
// treated as absent and reports whether the caller should drop the stored copy.
func (o options) usable(s *Session) (ok, drop bool) {
	if s == nil || s.Token == "" {
		return false, false
	}
	if s.ExpiredAt(o.now()) {
		exp, _ := s.Expiry()
		o.logger.Info("session token expired, clearing", zap.Time("exp", exp))
		return false, true
	}
	return true, false
}

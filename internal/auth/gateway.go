// Package auth wraps the backend's authentication endpoints and the login
// form's effect on the session store.
package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"aura/internal/api"
)

// Fallback messages used when the server gives no detail.
const (
	MsgLoginFailed   = "Login failed"
	MsgSendOTPFailed = "Failed to send OTP"
	MsgInvalidOTP    = "Invalid OTP"
	MsgResetFailed   = "Failed to reset password"
	MsgSignupFailed  = "Signup failed"
)

// LoginResult is the successful login payload.
type LoginResult struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user"`
}

// Gateway is the client for /auth/*. It has no side effects beyond HTTP.
type Gateway struct {
	client *api.Client
	logger *zap.Logger
}

// NewGateway creates a gateway over client.
func NewGateway(client *api.Client, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{client: client, logger: logger}
}

// Login exchanges credentials for a token and profile.
func (g *Gateway) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	err := g.client.Do(ctx, api.Request{
		Method:   http.MethodPost,
		Path:     "/auth/login",
		Body:     map[string]string{"email": email, "password": password},
		Fallback: MsgLoginFailed,
	}, &out)
	if err != nil {
		g.logger.Info("login rejected", zap.String("email", email), zap.Error(err))
		return nil, err
	}
	if out.Token == "" {
		return nil, &api.Error{Status: http.StatusOK, Message: MsgLoginFailed}
	}
	g.logger.Debug("login ok", zap.String("email", email))
	return &out, nil
}

// RequestPasswordReset asks the backend to email an OTP.
func (g *Gateway) RequestPasswordReset(ctx context.Context, email string) error {
	return g.post(ctx, "/auth/request-password-reset", map[string]string{"email": email}, MsgSendOTPFailed)
}

// VerifyOTP checks the emailed code.
func (g *Gateway) VerifyOTP(ctx context.Context, email, otp string) error {
	return g.post(ctx, "/auth/verify-otp", map[string]string{"email": email, "otp": otp}, MsgInvalidOTP)
}

// ResetPassword sets a new password for a verified OTP.
func (g *Gateway) ResetPassword(ctx context.Context, email, otp, newPassword string) error {
	return g.post(ctx, "/auth/reset-password", map[string]string{
		"email":        email,
		"otp":          otp,
		"new_password": newPassword,
	}, MsgResetFailed)
}

// Signup registers an account and returns the server's confirmation message.
func (g *Gateway) Signup(ctx context.Context, name, email, password string) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	err := g.client.Do(ctx, api.Request{
		Method:   http.MethodPost,
		Path:     "/auth/signup",
		Body:     map[string]string{"name": name, "email": email, "password": password},
		Fallback: MsgSignupFailed,
	}, &out)
	if err != nil {
		g.logger.Info("signup rejected", zap.String("email", email), zap.Error(err))
		return "", err
	}
	return out.Message, nil
}

func (g *Gateway) post(ctx context.Context, path string, body any, fallback string) error {
	err := g.client.Do(ctx, api.Request{
		Method:   http.MethodPost,
		Path:     path,
		Body:     body,
		Fallback: fallback,
	}, nil)
	if err != nil {
		g.logger.Info("auth call rejected", zap.String("path", path), zap.Error(err))
		return err
	}
	return nil
}

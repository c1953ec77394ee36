// Package reset implements the three-step password reset protocol:
// request an emailed OTP, verify it, then set a new password.
//
// Each step is its own State type and transitions are methods on the state
// they start from, so a password can only be submitted from OTPVerified and
// OTPVerified can only be produced by a successful verify.
package reset

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrInvalidTransition is returned when a trigger does not apply to the current state.
	ErrInvalidTransition = errors.New("invalid reset transition")
	// ErrBusy is returned when a trigger arrives while another is in flight.
	ErrBusy = errors.New("reset request already in progress")
)

// Validation messages.
const (
	MsgEnterEmail       = "Please enter your email"
	MsgEnterOTP         = "Please enter the OTP"
	MsgEnterPassword    = "Please enter a new password"
	MsgPasswordMismatch = "Passwords do not match"
)

// Success messages.
const (
	MsgOTPSent       = "OTP sent successfully to your email"
	MsgOTPVerified   = "OTP verified successfully"
	MsgResetComplete = "Password reset successful! Redirecting to login..."
)

// ValidationError is a local input problem. The gateway was not called.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Gateway is the subset of auth.Gateway the flow drives.
type Gateway interface {
	RequestPasswordReset(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, otp string) error
	ResetPassword(ctx context.Context, email, otp, newPassword string) error
}

// State is one of EmailEntry, OTPPending, OTPVerified or Completed.
type State interface {
	// Step names the state for display and logging.
	Step() string
	// Email is the address the flow is for; empty only in a fresh EmailEntry.
	Email() string
	sealed()
}

// EmailEntry is the initial state. The email is still editable.
type EmailEntry struct {
	Address string
}

func (s EmailEntry) Step() string  { return "email_entry" }
func (s EmailEntry) Email() string { return s.Address }
func (EmailEntry) sealed()         {}

// RequestCode asks the backend to send an OTP. On success the email is fixed
// for the rest of the flow.
func (s EmailEntry) RequestCode(ctx context.Context, gw Gateway) (State, error) {
	email := strings.TrimSpace(s.Address)
	if email == "" {
		return s, &ValidationError{Message: MsgEnterEmail}
	}
	if err := gw.RequestPasswordReset(ctx, email); err != nil {
		return s, err
	}
	return OTPPending{email: email}, nil
}

// OTPPending waits for the emailed code.
type OTPPending struct {
	email string
}

func (s OTPPending) Step() string  { return "otp_pending" }
func (s OTPPending) Email() string { return s.email }
func (OTPPending) sealed()         {}

// Verify checks otp with the backend.
func (s OTPPending) Verify(ctx context.Context, gw Gateway, otp string) (State, error) {
	if s.email == "" {
		return s, ErrInvalidTransition
	}
	otp = strings.TrimSpace(otp)
	if otp == "" {
		return s, &ValidationError{Message: MsgEnterOTP}
	}
	if err := gw.VerifyOTP(ctx, s.email, otp); err != nil {
		return s, err
	}
	return OTPVerified{email: s.email, otp: otp}, nil
}

// Resend requests a fresh OTP for the same email.
func (s OTPPending) Resend(ctx context.Context, gw Gateway) (State, error) {
	if s.email == "" {
		return s, ErrInvalidTransition
	}
	if err := gw.RequestPasswordReset(ctx, s.email); err != nil {
		return s, err
	}
	return s, nil
}

// OTPVerified holds the code the backend accepted.
type OTPVerified struct {
	email string
	otp   string
}

func (s OTPVerified) Step() string  { return "otp_verified" }
func (s OTPVerified) Email() string { return s.email }
func (OTPVerified) sealed()         {}

// OTP returns the verified code.
func (s OTPVerified) OTP() string { return s.otp }

// Reset submits the new password. A mismatch never reaches the backend.
func (s OTPVerified) Reset(ctx context.Context, gw Gateway, newPassword, confirmPassword string) (State, error) {
	// A zero OTPVerified was not produced by Verify.
	if s.email == "" || s.otp == "" {
		return s, ErrInvalidTransition
	}
	if newPassword == "" {
		return s, &ValidationError{Message: MsgEnterPassword}
	}
	if newPassword != confirmPassword {
		return s, &ValidationError{Message: MsgPasswordMismatch}
	}
	if err := gw.ResetPassword(ctx, s.email, s.otp, newPassword); err != nil {
		return s, err
	}
	return Completed{email: s.email}, nil
}

// Completed is terminal; the caller sends the user to login.
type Completed struct {
	email string
}

func (s Completed) Step() string  { return "completed" }
func (s Completed) Email() string { return s.email }
func (Completed) sealed()         {}

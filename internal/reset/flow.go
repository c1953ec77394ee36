package reset

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultResendCooldown is the minimum spacing between OTP requests.
const DefaultResendCooldown = 30 * time.Second

// View is a consistent snapshot of a Flow for rendering.
type View struct {
	State    State
	Error    string
	Message  string
	OTPInput string
	Busy     bool
}

// Flow drives the reset states for one user-facing form. It remembers the
// last error and message and the OTP the user typed, and admits one
// transition at a time.
type Flow struct {
	gw     Gateway
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	busy     bool
	errMsg   string
	message  string
	otpInput string
	limiter  *rate.Limiter
}

// Option configures a Flow.
type Option func(*Flow)

// WithResendCooldown sets the resend throttle. Zero disables it.
func WithResendCooldown(d time.Duration) Option {
	return func(f *Flow) {
		if d <= 0 {
			f.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		f.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithLogger sets the transition logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Flow) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithClock overrides the clock used by the resend throttle.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		if now != nil {
			f.now = now
		}
	}
}

// NewFlow starts a flow in EmailEntry with the given initial email.
func NewFlow(gw Gateway, email string, opts ...Option) *Flow {
	f := &Flow{
		gw:      gw,
		logger:  zap.NewNop(),
		now:     time.Now,
		state:   EmailEntry{Address: email},
		limiter: rate.NewLimiter(rate.Every(DefaultResendCooldown), 1),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// View returns a snapshot for rendering.
func (f *Flow) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return View{
		State:    f.state,
		Error:    f.errMsg,
		Message:  f.message,
		OTPInput: f.otpInput,
		Busy:     f.busy,
	}
}

// SetEmail edits the email. Only allowed before a code has been sent.
func (f *Flow) SetEmail(email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.state.(EmailEntry); !ok || f.busy {
		return ErrInvalidTransition
	}
	f.state = EmailEntry{Address: email}
	return nil
}

// RequestCode sends the first OTP: EmailEntry -> OTPPending.
func (f *Flow) RequestCode(ctx context.Context) error {
	cur, err := begin[EmailEntry](f)
	if err != nil {
		return err
	}
	next, err := guard(cur, func() (State, error) { return cur.RequestCode(ctx, f.gw) })
	if err == nil {
		f.consumeResend()
	}
	return f.finish("request_code", next, err, MsgOTPSent)
}

// Resend requests another OTP while pending, subject to the cooldown.
func (f *Flow) Resend(ctx context.Context) error {
	cur, err := begin[OTPPending](f)
	if err != nil {
		return err
	}
	if wait := f.resendWait(); wait >= time.Millisecond {
		secs := int(math.Ceil(wait.Truncate(time.Millisecond).Seconds()))
		return f.finish("resend", cur, &ValidationError{
			Message: fmt.Sprintf("Please wait %ds before requesting another code", secs),
		}, "")
	}
	next, err := guard(cur, func() (State, error) { return cur.Resend(ctx, f.gw) })
	if err == nil {
		f.consumeResend()
	}
	return f.finish("resend", next, err, MsgOTPSent)
}

// Verify checks otp: OTPPending -> OTPVerified. The typed OTP is retained on failure.
func (f *Flow) Verify(ctx context.Context, otp string) error {
	cur, err := begin[OTPPending](f)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.otpInput = otp
	f.mu.Unlock()

	next, err := guard(cur, func() (State, error) { return cur.Verify(ctx, f.gw, otp) })
	return f.finish("verify", next, err, MsgOTPVerified)
}

// Reset submits the new password: OTPVerified -> Completed.
func (f *Flow) Reset(ctx context.Context, newPassword, confirmPassword string) error {
	cur, err := begin[OTPVerified](f)
	if err != nil {
		return err
	}
	next, err := guard(cur, func() (State, error) { return cur.Reset(ctx, f.gw, newPassword, confirmPassword) })
	return f.finish("reset", next, err, MsgResetComplete)
}

// guard runs one transition, turning a gateway panic into an error that
// leaves the flow in cur.
func guard(cur State, transition func() (State, error)) (next State, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, err = cur, fmt.Errorf("reset gateway panic: %v", r)
		}
	}()
	return transition()
}

// begin claims the flow for one transition if it is in state S.
func begin[S State](f *Flow) (S, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var zero S
	if f.busy {
		return zero, ErrBusy
	}
	cur, ok := f.state.(S)
	if !ok {
		return zero, ErrInvalidTransition
	}
	f.busy = true
	return cur, nil
}

func (f *Flow) finish(trigger string, next State, err error, successMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev := f.state
	f.state = next
	f.busy = false

	log := f.logger.With(
		zap.String("trigger", trigger),
		zap.String("from", prev.Step()),
		zap.String("to", next.Step()),
	)

	if err != nil {
		f.errMsg = err.Error()
		f.message = ""
		var verr *ValidationError
		if errors.As(err, &verr) {
			log.Debug("reset input rejected", zap.String("reason", verr.Message))
		} else {
			log.Info("reset step failed", zap.Error(err))
		}
		return err
	}

	f.errMsg = ""
	f.message = successMsg
	if _, verified := next.(OTPVerified); verified {
		f.otpInput = ""
	}
	log.Debug("reset step ok")
	return nil
}

func (f *Flow) resendWait() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	limit := f.limiter.Limit()
	if limit == rate.Inf {
		return 0
	}
	tokens := f.limiter.TokensAt(f.now())
	if tokens >= 1 {
		return 0
	}
	return time.Duration((1 - tokens) / float64(limit) * float64(time.Second))
}

func (f *Flow) consumeResend() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limiter.AllowN(f.now(), 1)
}

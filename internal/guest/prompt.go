// Package guest implements the delayed sign-in nudge shown to anonymous visitors.
package guest

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"aura/internal/session"
)

// DefaultDelay is how long a guest chats before the nudge appears.
const DefaultDelay = 1500 * time.Millisecond

// Prompt is a one-shot, dismissible nudge. It is armed only when no session
// exists at construction, and it never touches the session store.
type Prompt struct {
	mu        sync.Mutex
	timer     *time.Timer
	shown     chan struct{}
	visible   bool
	dismissed bool
	closed    bool

	onShow    func()
	callbacks sync.WaitGroup
	logger    *zap.Logger
}

// Option configures a Prompt.
type Option func(*Prompt)

// WithOnShow registers a callback run once when the prompt becomes visible.
// It runs on the timer goroutine.
func WithOnShow(fn func()) Option {
	return func(p *Prompt) {
		p.onShow = fn
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Prompt) {
		if l != nil {
			p.logger = l
		}
	}
}

// New arms the prompt to appear after delay if store has no session.
func New(store session.Store, delay time.Duration, opts ...Option) *Prompt {
	p := &Prompt{
		shown:  make(chan struct{}),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if _, ok := store.Get(); ok {
		p.logger.Debug("session present, guest prompt not armed")
		return p
	}

	p.mu.Lock()
	p.timer = time.AfterFunc(delay, p.fire)
	p.mu.Unlock()
	p.logger.Debug("guest prompt armed", zap.Duration("delay", delay))
	return p
}

func (p *Prompt) fire() {
	p.mu.Lock()
	p.timer = nil
	if p.closed || p.dismissed {
		p.mu.Unlock()
		return
	}
	p.visible = true
	close(p.shown)
	cb := p.onShow
	if cb != nil {
		p.callbacks.Add(1)
	}
	p.mu.Unlock()

	p.logger.Debug("guest prompt shown")
	if cb != nil {
		defer p.callbacks.Done()
		cb()
	}
}

// Armed reports whether the prompt is still waiting to appear.
func (p *Prompt) Armed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}

// Visible reports whether the prompt is currently showing.
func (p *Prompt) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// Shown is closed when the prompt becomes visible. It never closes for a
// prompt that was not armed or was dismissed or closed first.
func (p *Prompt) Shown() <-chan struct{} {
	return p.shown
}

// Dismiss hides the prompt, or cancels it if it has not appeared yet. A
// dismissed prompt never reappears.
func (p *Prompt) Dismiss() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dismissed = true
	p.visible = false
	p.stopLocked()
}

// ContinueAsGuest is the "keep chatting without an account" choice. It
// behaves exactly like Dismiss.
func (p *Prompt) ContinueAsGuest() {
	p.Dismiss()
}

// Close cancels a pending prompt and waits for a running show callback.
// Nothing fires after Close returns.
func (p *Prompt) Close() {
	p.mu.Lock()
	p.closed = true
	p.stopLocked()
	p.mu.Unlock()

	p.callbacks.Wait()
}

func (p *Prompt) stopLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

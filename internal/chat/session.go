// Package chat orchestrates one conversation with the assistant: hydrating
// server-held history for signed-in users, optimistic sends, the loading
// indicator and delivery of replies.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"aura/internal/api"
	"aura/internal/session"
)

const (
	DefaultGreeting = "Hello! I am AURA. How can I assist you today?"
	DefaultApology  = "Sorry, I couldn't reach the assistant right now. Please try again."
	DefaultTimeout  = 60 * time.Second
)

var (
	// ErrNoSession is returned by Hydrate for guests.
	ErrNoSession = errors.New("not signed in")
	// ErrClosed is returned by Exchange.Wait when the session closed before the reply arrived.
	ErrClosed = errors.New("chat session closed")
)

// Session is a single chat view's state. All methods are safe for concurrent use.
type Session struct {
	store     session.Store
	transport Transport
	logger    *zap.Logger
	greeting  string
	apology   string
	timeout   time.Duration
	newID     func() string

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	mu         sync.Mutex
	transcript []Message
	input      string
	inflight   int
	closed     bool
}

// Option configures a Session.
type Option func(*Session)

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithGreeting(text string) Option {
	return func(s *Session) {
		if text != "" {
			s.greeting = text
		}
	}
}

func WithApology(text string) Option {
	return func(s *Session) {
		if text != "" {
			s.apology = text
		}
	}
}

// WithRequestTimeout bounds each send and hydrate. Zero keeps the default.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New creates a session whose transcript holds only the greeting.
func New(store session.Store, transport Transport, opts ...Option) *Session {
	s := &Session{
		store:     store,
		transport: transport,
		logger:    zap.NewNop(),
		greeting:  DefaultGreeting,
		apology:   DefaultApology,
		timeout:   DefaultTimeout,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.transcript = []Message{s.greetingMessage()}
	return s
}

func (s *Session) greetingMessage() Message {
	return Message{ID: s.newID(), Role: RoleBot, Content: s.greeting}
}

// Hydrate replaces the transcript with greeting + stored history when a
// session exists. Messages appended while the history was loading are kept
// after it. Failures leave the transcript as it was; an invalid token also
// clears the stored session. Close cancels an in-flight Hydrate.
func (s *Session) Hydrate(ctx context.Context) error {
	sess, ok := s.store.Get()
	if !ok {
		return ErrNoSession
	}

	s.mu.Lock()
	mark := len(s.transcript)
	s.mu.Unlock()

	hctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	entries, err := s.transport.History(hctx, sess.Token)
	if err != nil {
		s.logger.Warn("failed to load chat history", zap.Error(err))
		if api.IsUnauthorized(err) {
			s.logger.Info("stored token rejected, signing out")
			if cerr := s.store.Clear(); cerr != nil {
				s.logger.Warn("failed to clear rejected session", zap.Error(cerr))
			}
		}
		return fmt.Errorf("hydrate: %w", err)
	}

	history := make([]Message, 0, len(entries))
	for _, e := range entries {
		role, ok := roleFromHistory(e.Role)
		if !ok {
			s.logger.Info("skipping history row with unknown role", zap.String("role", e.Role))
			continue
		}
		history = append(history, Message{ID: s.newID(), Role: role, Content: e.Message})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	// Keep only what was appended while history was loading.
	mark = min(mark, len(s.transcript))
	pending := s.transcript[mark:]
	next := make([]Message, 0, 1+len(history)+len(pending))
	next = append(next, s.transcript[0])
	next = append(next, history...)
	next = append(next, pending...)
	s.transcript = next

	s.logger.Debug("hydrated transcript", zap.Int("messages", len(history)))
	return nil
}

// SetInput replaces the input buffer.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.input = text
}

// Input returns the input buffer.
func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// Submit sends the input buffer.
func (s *Session) Submit(ctx context.Context) (*Exchange, bool) {
	return s.Send(ctx, s.Input())
}

// Send appends the user message, clears the input and raises loading, then
// asks the backend in the background. It returns false, changing nothing,
// for blank text or a closed session.
//
// The reply (or the apology on any failure) is appended when it arrives.
// Cancelling ctx or closing the session cancels the request.
func (s *Session) Send(ctx context.Context, text string) (*Exchange, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, false
	}

	var token string
	if sess, ok := s.store.Get(); ok {
		token = sess.Token
	}

	// Held across group.Go so Close cannot start waiting mid-registration.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	msg := Message{ID: s.newID(), Role: RoleUser, Content: text}
	s.transcript = append(s.transcript, msg)
	s.input = ""
	s.inflight++

	ex := &Exchange{Request: msg, done: make(chan struct{})}
	reqCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	stop := context.AfterFunc(ctx, cancel)

	s.group.Go(func() error {
		defer cancel()
		defer stop()
		answer, err := s.ask(reqCtx, text, token)
		s.deliver(ex, answer, err)
		return nil
	})
	return ex, true
}

// ask calls the transport, converting a panic into an error.
func (s *Session) ask(ctx context.Context, question, token string) (answer string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return s.transport.Ask(ctx, question, token)
}

func (s *Session) deliver(ex *Exchange, answer string, err error) {
	s.mu.Lock()
	s.inflight--
	log := s.logger.With(zap.String("reply_to", ex.Request.ID))

	switch {
	case s.closed:
		ex.err = ErrClosed
		log.Debug("discarding reply after close")
	case err != nil:
		log.Warn("chat request failed", zap.Error(err))
		ex.reply = Message{ID: s.newID(), Role: RoleBot, Content: s.apology, ReplyTo: ex.Request.ID}
		ex.err = err
		s.transcript = append(s.transcript, ex.reply)
	default:
		ex.reply = Message{ID: s.newID(), Role: RoleBot, Content: answer, ReplyTo: ex.Request.ID}
		s.transcript = append(s.transcript, ex.reply)
	}
	s.mu.Unlock()

	close(ex.done)
}

// Transcript returns a copy of the messages in display order.
func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.transcript...)
}

// Loading reports whether any send is still waiting for its reply.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

// Close cancels outstanding requests and waits for their goroutines. Replies
// that arrive afterwards are discarded. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	_ = s.group.Wait()
}

// Exchange is one in-flight send.
type Exchange struct {
	Request Message

	done  chan struct{}
	reply Message
	err   error
}

// Done is closed once the reply has been appended or discarded.
func (e *Exchange) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the exchange settles. On failure it returns the apology
// message that was appended together with the cause. A reply discarded by
// Close yields ErrClosed.
func (e *Exchange) Wait(ctx context.Context) (Message, error) {
	select {
	case <-e.done:
		return e.reply, e.err
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

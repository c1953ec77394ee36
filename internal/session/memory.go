package session

import "sync"

// MemoryStore keeps the session in process memory. Nothing survives restart.
type MemoryStore struct {
	mu      sync.Mutex
	current *Session
	opts    options
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{opts: buildOptions(opts)}
}

func (m *MemoryStore) Get() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ok, drop := m.opts.usable(m.current)
	if drop {
		m.current = nil
	}
	if !ok {
		return nil, false
	}
	return m.current.clone(), true
}

func (m *MemoryStore) Set(s Session) error {
	if s.Token == "" {
		return ErrEmptyToken
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = s.clone()
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	return nil
}

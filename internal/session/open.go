package session

import (
	"fmt"

	"aura/internal/config"
)

// Open builds the Store selected by cfg.Backend. The returned close function
// releases any underlying resources and is always non-nil.
func Open(cfg config.SessionConfig, opts ...Option) (Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.SessionBackendMemory:
		return NewMemoryStore(opts...), noop, nil
	case config.SessionBackendSQLite:
		s, err := OpenSQLiteStore(cfg.DatabasePath, opts...)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case config.SessionBackendFile, "":
		return NewFileStore(cfg.Path, opts...), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

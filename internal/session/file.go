package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileStore persists the session as JSON in a single 0600 file.
type FileStore struct {
	path string
	mu   sync.Mutex
	opts options
}

// NewFileStore creates a store backed by path. The file need not exist.
func NewFileStore(path string, opts ...Option) *FileStore {
	return &FileStore{path: path, opts: buildOptions(opts)}
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Get() (*Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.opts.logger.Warn("failed to read session file", zap.String("path", f.path), zap.Error(err))
		}
		return nil, false
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		f.opts.logger.Warn("ignoring corrupt session file", zap.String("path", f.path), zap.Error(err))
		return nil, false
	}
	// A nil profile written as "user": null reads back as nil.
	if string(bytes.TrimSpace(s.User)) == "null" {
		s.User = nil
	}

	ok, drop := f.opts.usable(&s)
	if drop {
		if err := f.remove(); err != nil {
			f.opts.logger.Warn("failed to remove expired session", zap.Error(err))
		}
	}
	if !ok {
		return nil, false
	}
	return &s, true
}

// Set writes the session atomically: a temp file in the same directory is
// renamed over the target.
func (f *FileStore) Set(s Session) error {
	if s.Token == "" {
		return ErrEmptyToken
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod session file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remove()
}

func (f *FileStore) remove() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

// Watch signals on the returned channel whenever the session file is created,
// replaced or removed, e.g. by `aura login` in another terminal. Signals are
// coalesced. The channel is closed when ctx is done.
func (f *FileStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory: atomic renames replace the file's inode.
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(f.path)
	changes := make(chan struct{}, 1)

	go func() {
		defer close(changes)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) &&
					!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
					continue
				}
				select {
				case changes <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.opts.logger.Warn("session watch error", zap.Error(err))
			}
		}
	}()

	return changes, nil
}

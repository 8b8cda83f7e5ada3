package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/fyrsmithlabs/retrievald/internal/logging"
	"go.uber.org/zap"
)

// Store holds the current configuration snapshot and supports hot reload.
//
// Readers call Current/Version on every request; both are lock-free. Watch
// replaces the snapshot atomically on file change and bumps the version,
// which participates in scope cache keys so stale scopes age out on reload.
// A reload that fails validation is logged and discarded; the previous
// snapshot stays in effect.
type Store struct {
	current atomic.Pointer[Config]
	version atomic.Int64
	path    string
	logger  *logging.Logger
}

// NewStore creates a store with an initial snapshot.
func NewStore(cfg *Config, path string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Store{path: path, logger: logger.Named("config")}
	s.current.Store(cfg)
	s.version.Store(1)
	return s
}

// Current returns the current configuration snapshot.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Version returns the snapshot version, starting at 1.
func (s *Store) Version() int64 {
	return s.version.Load()
}

// Replace swaps in a new snapshot and bumps the version.
func (s *Store) Replace(cfg *Config) {
	s.current.Store(cfg)
	s.version.Add(1)
}

// Watch reloads the config file on change until ctx is cancelled.
// It is a no-op when the store was created without a file path.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory: editors replace files by rename, which drops
	// a watch registered on the file itself.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config dir: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				s.reload(ctx)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn(ctx, "config watcher error", zap.Error(err))
			}
		}
	}()

	return nil
}

func (s *Store) reload(ctx context.Context) {
	cfg, err := Load(s.path)
	if err != nil {
		s.logger.Error(ctx, "config reload rejected, keeping previous snapshot",
			zap.String("path", s.path),
			zap.Error(err),
		)
		return
	}
	s.Replace(cfg)
	s.logger.Info(ctx, "config reloaded",
		zap.String("path", s.path),
		zap.Int64("version", s.Version()),
	)
}

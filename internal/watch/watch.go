// Package watch ingests tool output files as they appear in a drop directory.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ZanzyTHEbar/recon-linker-go/internal/parsers"
)

// DefaultSettle is how long a file must stay unmodified before it is handled.
const DefaultSettle = 500 * time.Millisecond

const minTick = time.Millisecond

// Handler processes one settled file. Errors are logged and do not stop the watcher.
type Handler func(ctx context.Context, path string) error

// Watcher feeds parser-compatible files from one directory to a Handler.
type Watcher struct {
	fs      *fsnotify.Watcher
	log     *zap.Logger
	handle  Handler
	settle  time.Duration
	backlog bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithSettle overrides DefaultSettle.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithBacklog makes Run handle files already present in the directory before watching.
func WithBacklog() Option {
	return func(w *Watcher) { w.backlog = true }
}

// New creates a Watcher. Call Run to start it; Run releases the underlying watcher.
func New(logger *zap.Logger, handle Handler, opts ...Option) (*Watcher, error) {
	if handle == nil {
		return nil, fmt.Errorf("watch: handler is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{fs: fw, log: logger.Named("watch"), handle: handle, settle: DefaultSettle}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run watches dir until ctx is cancelled. Created or written files that a parser claims
// are handed to the Handler once they have settled.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	defer w.fs.Close()

	if err := w.fs.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.log.Info("Watching directory", zap.String("dir", dir), zap.Duration("settle", w.settle))

	if w.backlog {
		if err := w.drainBacklog(ctx, dir); err != nil {
			return err
		}
	}

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(max(w.settle/2, minTick))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if _, _, err := parsers.Detect(ev.Name); err != nil {
				continue
			}
			pending[ev.Name] = time.Now()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("File watcher error", zap.Error(err))
		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < w.settle {
					continue
				}
				delete(pending, path)
				w.dispatch(ctx, path)
			}
		}
	}
}

func (w *Watcher) drainBacklog(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if _, _, err := parsers.Detect(path); err != nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		w.dispatch(ctx, path)
	}
	return nil
}

func (w *Watcher) dispatch(ctx context.Context, path string) {
	start := time.Now()
	if err := w.handle(ctx, path); err != nil {
		w.log.Error("Failed to ingest file", zap.String("path", path), zap.Error(err))
		return
	}
	w.log.Info("Ingested file", zap.String("path", path), zap.Duration("took", time.Since(start)))
}

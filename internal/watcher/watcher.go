// Package watcher reloads the registry when the agents directory changes.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/pleiades-agents/pleiades/internal/agent"
)

const (
	// DefaultDebounce is the quiet period after the last change before reloading.
	DefaultDebounce = 250 * time.Millisecond
	// MaxRetries is the number of extra reload attempts after a failure.
	MaxRetries = 3
	// RetryInitialInterval is the first wait between reload attempts.
	RetryInitialInterval = 200 * time.Millisecond
	// RetryMaxInterval caps the wait between reload attempts.
	RetryMaxInterval = 2 * time.Second
)

// DefaultIgnore skips hidden files and common editor leftovers.
var DefaultIgnore = []string{"**/.*", "**/*~", "**/*.swp", "**/*.tmp"}

// Reloader rebuilds the registry. *dispatch.Dispatcher satisfies it.
type Reloader interface {
	Reload(ctx context.Context, trigger string) (*agent.Registry, error)
}

// Options configures a Watcher.
type Options struct {
	Debounce time.Duration
	// Ignore holds doublestar patterns relative to the watched directory.
	// Nil selects DefaultIgnore.
	Ignore []string
	// Trigger is passed to Reload.
	Trigger string
	// Retry returns the backoff policy for one reload. Nil selects the default.
	Retry func(ctx context.Context) backoff.BackOff
}

// Watcher watches a directory tree and calls Reload after changes settle.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	reloader Reloader
	opts     Options

	ctx     context.Context
	cancel  context.CancelFunc
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
}

// New creates a watcher over dir and every directory below it.
func New(dir string, reloader Reloader, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Ignore == nil {
		opts.Ignore = DefaultIgnore
	}
	for _, p := range opts.Ignore {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid ignore pattern %q", p)
		}
	}
	if opts.Trigger == "" {
		opts.Trigger = "watch"
	}
	if opts.Retry == nil {
		opts.Retry = newRetryBackoff
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("agents directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("agents directory %s is not a directory", dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		watcher:  fw,
		dir:      dir,
		reloader: reloader,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if err := w.addTree(dir); err != nil {
		cancel()
		fw.Close()
		return nil, err
	}

	log.Info().Str("dir", dir).Dur("debounce", opts.Debounce).Msg("agents watcher initialized")
	return w, nil
}

func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

// addTree watches root and its subdirectories. fsnotify is not recursive.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.dir && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// ignored reports whether path matches an ignore pattern.
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range w.opts.Ignore {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Start begins watching for changes.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	timer := time.NewTimer(w.opts.Debounce)
	timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			timer.Stop()
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						log.Warn().Err(err).Str("path", ev.Name).Msg("cannot watch new directory")
					}
				}
			}
			log.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("agents changed")
			timer.Reset(w.opts.Debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("agents watcher error")
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	return !w.ignored(ev.Name)
}

// reload calls the Reloader, retrying with backoff while files may still be
// mid-write. The Reloader keeps the previous snapshot on every failure.
func (w *Watcher) reload() {
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		_, err := w.reloader.Reload(w.ctx, w.opts.Trigger)
		if err != nil && w.ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}, w.opts.Retry(w.ctx))

	if err != nil {
		if w.ctx.Err() == nil {
			log.Error().Err(err).Int("attempts", attempt).Msg("agents reload failed, keeping previous registry")
		}
		return
	}
	log.Info().Int("attempts", attempt).Msg("agents reloaded")
}

// Stop stops the watcher and waits for an in-flight reload to finish.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	select {
	case <-w.stopCh:
		w.mu.Unlock()
		return nil
	default:
		close(w.stopCh)
	}
	w.mu.Unlock()
	w.cancel()

	if started {
		<-w.doneCh
	}
	return w.watcher.Close()
}

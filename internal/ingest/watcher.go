package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig describes a drop folder of entry lists.
type WatchConfig struct {
	Roots       []string      // directories to watch (recursive)
	InitialScan bool          // emit CSV files already present
	Debounce    time.Duration // coalesce write bursts for the same file
}

// Watch emits the path of every CSV file created or rewritten under the roots.
// Both channels are closed once ctx is done.
func Watch(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		return nil, nil, errors.New("no roots provided")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create fsnotify watcher", "error", err)
		return nil, nil, err
	}

	var existing []string
	for _, root := range cfg.Roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if cfg.InitialScan && AllowedUpload(path) {
				existing = append(existing, path)
			}
			return nil
		})
		if err != nil {
			logger.Error("failed to add watch root", "root", root, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}

	evCh := make(chan string, 64)
	errCh := make(chan error, 1)
	pending := &debouncer{out: evCh, timers: map[string]*time.Timer{}, delay: cfg.Debounce}

	go func() {
		defer close(errCh)
		defer close(evCh)
		defer pending.stop()
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("closing watcher", "error", err)
			}
		}()

		for _, p := range existing {
			select {
			case evCh <- p:
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Has(fsnotify.Create) {
					if fi, err := os.Stat(e.Name); err == nil && fi.IsDir() {
						if err := w.Add(e.Name); err != nil {
							logger.Warn("failed to watch new directory", "path", e.Name, "error", err)
						}
						continue
					}
				}
				if AllowedUpload(e.Name) && (e.Has(fsnotify.Create) || e.Has(fsnotify.Write)) {
					pending.touch(ctx, e.Name)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

// debouncer emits a path once it has been quiet for delay.
type debouncer struct {
	mu      sync.Mutex
	out     chan<- string
	timers  map[string]*time.Timer
	delay   time.Duration
	stopped bool
	wg      sync.WaitGroup
}

func (d *debouncer) touch(ctx context.Context, path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.timers[path]; ok && t.Stop() {
		d.wg.Done()
	}
	d.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		if d.timers[path] == t {
			delete(d.timers, path)
		}
		d.mu.Unlock()
		select {
		case d.out <- path:
		case <-ctx.Done():
		}
	})
	d.timers[path] = t
}

// stop waits for fired timers so out can be closed safely.
func (d *debouncer) stop() {
	d.mu.Lock()
	d.stopped = true
	for p, t := range d.timers {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.timers, p)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

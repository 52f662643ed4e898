// Package watchedfolder supplements the HTTP upload surface with a
// filesystem poller for the WatchedFolder import method: a `.uhc` archive
// dropped into a configured directory is picked up and run through the same
// Receiver.Receive entry point an HTTP upload would use.
package watchedfolder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/landtenure/intake/internal/intake/model"
	"github.com/landtenure/intake/internal/intake/receiver"
)

// settleDelay is how long a `.uhc` file must sit with no further write
// events before it is read, so a file still being copied into the
// directory is not opened mid-write.
const settleDelay = 2 * time.Second

// Watcher polls dir for `.uhc` archives and feeds each one to a Receiver
// once it stops changing.
type Watcher struct {
	watcher *fsnotify.Watcher
	dir     string
	recv    *receiver.Receiver
	actorID uuid.UUID
	logger  *slog.Logger

	mu         sync.Mutex
	debouncers map[string]*debouncer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Watcher over dir, an existing directory that field-collection
// devices or a sync client drop `.uhc` archives into. actorID is recorded as
// the ImportPackage's CreatedBy since a folder drop has no authenticated
// request to attribute it to.
func New(dir string, recv *receiver.Receiver, actorID uuid.UUID, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create filesystem watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch directory %s: %w", dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		watcher:    fsw,
		dir:        dir,
		recv:       recv,
		actorID:    actorID,
		logger:     logger,
		debouncers: make(map[string]*debouncer),
	}, nil
}

// Start launches the event loop in the background. It returns immediately;
// call Close to stop it.
func (w *Watcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handleEvent(ctx, event)

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Error("watched folder error", "error", err)

			case <-ctx.Done():
				return
			}
		}
	}()
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !strings.EqualFold(filepath.Ext(event.Name), ".uhc") {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	w.mu.Lock()
	d, ok := w.debouncers[event.Name]
	if !ok {
		path := event.Name
		d = newDebouncer(settleDelay, func() { w.ingest(ctx, path) })
		w.debouncers[event.Name] = d
	}
	w.mu.Unlock()
	d.trigger()
}

// ingest opens path, runs it through the Receiver, and moves it aside so a
// later directory scan does not pick it up again, the same move-on-success
// pattern the CSV upload pipeline uses for the "Uploaded" directory.
func (w *Watcher) ingest(ctx context.Context, path string) {
	w.mu.Lock()
	delete(w.debouncers, path)
	w.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		w.logger.Error("watched folder: open archive", "path", path, "error", err)
		return
	}

	result, err := w.recv.Receive(ctx, filepath.Base(path), f, model.ImportMethodWatchedFolder, w.actorID)
	f.Close()
	if err != nil {
		w.logger.Error("watched folder: receive archive", "path", path, "error", err)
		return
	}

	w.logger.Info("watched folder: package received", "path", path, "package_id", result.Package.PackageID, "status", result.Package.Status)

	if err := w.moveToProcessed(path); err != nil {
		w.logger.Error("watched folder: move processed archive", "path", path, "error", err)
	}
}

func (w *Watcher) moveToProcessed(path string) error {
	processedDir := filepath.Join(w.dir, "processed")
	if err := os.MkdirAll(processedDir, 0o755); err != nil {
		return fmt.Errorf("create processed directory: %w", err)
	}
	dest := filepath.Join(processedDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("move %s to processed: %w", path, err)
	}
	return nil
}

// Close stops the event loop and the underlying filesystem watcher, waiting
// for any in-flight debounced ingests to finish first.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()

	w.mu.Lock()
	for _, d := range w.debouncers {
		d.cancelAndWait()
	}
	w.mu.Unlock()

	return w.watcher.Close()
}

package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeFunc receives the ids of sources whose CSV files changed.
type ChangeFunc func(ctx context.Context, sourceIDs []string)

// Watcher reports changed CSV sources under a CSVDirAdapter root.
// Events are batched until no file has changed for the debounce period.
type Watcher struct {
	adapter  *CSVDirAdapter
	debounce time.Duration
	onChange ChangeFunc
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
}

// NewWatcher watches the adapter root and every source directory in it.
func NewWatcher(adapter *CSVDirAdapter, debounce time.Duration, onChange ChangeFunc, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &Watcher{adapter: adapter, debounce: debounce, onChange: onChange, logger: logger, fsw: fsw}
	if err := w.addTree(); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree() error {
	root := w.adapter.Root()
	if err := w.fsw.Add(root); err != nil {
		return fmt.Errorf("failed to watch csv root %s: %w", root, err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("read csv root: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := w.fsw.Add(filepath.Join(root, e.Name())); err != nil {
				return fmt.Errorf("failed to watch source %s: %w", e.Name(), err)
			}
		}
	}
	return nil
}

// Run processes events until ctx ends, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if id, ok := w.handle(event); ok {
				pending[id] = true
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("csv watcher error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			ids := make([]string, 0, len(pending))
			for id := range pending {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			clear(pending)

			w.logger.Info("csv sources changed", "sources", ids)
			w.onChange(ctx, ids)
		}
	}
}

// handle returns the source affected by a relevant event. New source
// directories are added to the watch list.
func (w *Watcher) handle(event fsnotify.Event) (string, bool) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && filepath.Dir(event.Name) == w.adapter.Root() {
			if err := w.fsw.Add(event.Name); err != nil {
				w.logger.Warn("failed to watch new source", "path", event.Name, "error", err)
			}
			return "", false
		}
	}

	if !strings.EqualFold(filepath.Ext(event.Name), ".csv") {
		return "", false
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return "", false
	}
	if filepath.Dir(filepath.Dir(event.Name)) != w.adapter.Root() {
		return "", false
	}
	return w.adapter.SourceIDFor(event.Name)
}

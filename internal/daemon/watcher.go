package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"curator/internal/config"
	"curator/internal/logging"
)

const watchOps = fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// sourceWatcher turns inotify events on the source mount into cycle
// triggers. It watches the root, the kind subdirectories and any directory
// created directly beneath them.
type sourceWatcher struct {
	watcher *fsnotify.Watcher
	notify  func(reason string)
	logger  *slog.Logger
	done    chan struct{}
}

func newSourceWatcher(cfg *config.Config, notify func(string), logger *slog.Logger) (*sourceWatcher, error) {
	root := strings.TrimSpace(cfg.Source.Root)
	if root == "" {
		return nil, errors.New("source root not configured")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(root); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", root, err)
	}
	for _, sub := range []string{cfg.Source.FilmsSubdir, cfg.Source.ShowsSubdir} {
		if strings.TrimSpace(sub) == "" {
			continue
		}
		dir := filepath.Join(root, sub)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			logger.Debug("kind subdirectory not watched", logging.String("dir", dir), logging.Error(err))
		}
	}
	return &sourceWatcher{
		watcher: watcher,
		notify:  notify,
		logger:  logger,
		done:    make(chan struct{}),
	}, nil
}

func (w *sourceWatcher) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "source watcher error", "watcher_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "some source changes may wait for the next scan interval"),
			)
		}
	}
}

func (w *sourceWatcher) handle(event fsnotify.Event) {
	if !event.Has(watchOps) {
		return
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				w.logger.Debug("new directory not watched", logging.String("dir", event.Name), logging.Error(err))
			}
		}
	}
	w.logger.Debug("source change observed",
		logging.String(logging.FieldSourcePath, event.Name),
		logging.String("op", event.Op.String()),
	)
	w.notify("watch")
}

func (w *sourceWatcher) close() {
	_ = w.watcher.Close()
	<-w.done
}

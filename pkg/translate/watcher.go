package translate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ha1tch/oesql/pkg/errors"
	"github.com/ha1tch/oesql/pkg/log"
)

// Watcher re-translates scripts in a directory as they change.
type Watcher struct {
	mu sync.Mutex

	root   string
	outDir string
	tr     *Translator
	logger *log.Logger

	fsWatcher *fsnotify.Watcher

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	// Events are collected and handled in one batch once the directory
	// has been quiet for debounceDelay.
	debounceDelay time.Duration
	pendingEvents map[string]fsnotify.Op
	eventTimer    *time.Timer

	onTranslate func(res FileResult)
	onRemove    func(path string)
	onError     func(err error)
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets the quiet period before a batch is handled.
// Default is 100ms.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = d
	}
}

// WithOnTranslate sets a callback run after each file is translated.
func WithOnTranslate(fn func(res FileResult)) WatcherOption {
	return func(w *Watcher) {
		w.onTranslate = fn
	}
}

// WithOnRemove sets a callback run after a removed script's output is
// deleted.
func WithOnRemove(fn func(path string)) WatcherOption {
	return func(w *Watcher) {
		w.onRemove = fn
	}
}

// WithOnError sets a callback for errors.
func WithOnError(fn func(err error)) WatcherOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// NewWatcher watches root and writes translations under outDir, or next
// to the sources when outDir is empty.
func NewWatcher(root, outDir string, tr *Translator, logger *log.Logger, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeWatch, "failed to create file watcher").Err()
	}
	if outDir == "" {
		outDir = root
	}
	if logger == nil {
		logger = log.Default()
	}

	w := &Watcher{
		root:          root,
		outDir:        outDir,
		tr:            tr,
		logger:        logger,
		fsWatcher:     fsw,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		debounceDelay: 100 * time.Millisecond,
		pendingEvents: make(map[string]fsnotify.Op),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addWatches(w.root); err != nil {
		return errors.Wrap(err, errors.ErrCodeWatch, "failed to watch directory").
			WithField("dir", w.root).Err()
	}

	w.logger.System().Info("script watcher started", "root", w.root, "out", w.outDir)
	go w.processEvents()
	return nil
}

// Run starts the watcher and blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Stop()
}

// Stop stops the watcher and waits for pending work to finish.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.logger.System().Info("script watcher stopped")
	return w.fsWatcher.Close()
}

// IsRunning reports whether the watcher is running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) addWatches(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			w.logger.System().Warn("failed to watch directory", "path", path, "error", err.Error())
			return nil
		}
		w.logger.System().Debug("watching directory", "path", path)
		return nil
	})
}

func (w *Watcher) processEvents() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			w.mu.Lock()
			if w.eventTimer != nil {
				w.eventTimer.Stop()
			}
			w.mu.Unlock()
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.fail(errors.Wrap(err, errors.ErrCodeWatch, "watcher error").Err())
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !IsScript(event.Name) {
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				w.fsWatcher.Add(event.Name)
				w.logger.System().Debug("added watch for new directory", "path", event.Name)
			}
		}
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// Last operation wins for the same file.
	w.pendingEvents[event.Name] = event.Op
	if w.eventTimer != nil {
		w.eventTimer.Stop()
	}
	w.eventTimer = time.AfterFunc(w.debounceDelay, w.processPending)
}

func (w *Watcher) processPending() {
	w.mu.Lock()
	events := w.pendingEvents
	w.pendingEvents = make(map[string]fsnotify.Op)
	w.mu.Unlock()

	for path, op := range events {
		switch {
		case op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename):
			w.handleRemoved(path)
		case op.Has(fsnotify.Create) || op.Has(fsnotify.Write):
			w.handleChanged(path)
		}
	}
}

func (w *Watcher) output(path string) (string, error) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeWatch, "path outside watched directory").
			WithField("path", path).Err()
	}
	return filepath.Join(w.outDir, OutputName(rel)), nil
}

func (w *Watcher) handleChanged(path string) {
	out, err := w.output(path)
	if err != nil {
		w.fail(err)
		return
	}
	res, err := w.tr.TranslateTo(context.Background(), path, out)
	if err != nil {
		w.fail(err)
		return
	}
	w.logger.System().Info("script re-translated",
		"path", path,
		"out", out,
		"statements", res.Statements,
		"warnings", res.Warnings)
	if w.onTranslate != nil {
		w.onTranslate(res)
	}
}

func (w *Watcher) handleRemoved(path string) {
	out, err := w.output(path)
	if err != nil {
		w.fail(err)
		return
	}
	if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
		w.fail(errors.Wrap(err, errors.ErrCodeScriptWrite, "failed to remove translated script").
			WithField("path", out).Err())
		return
	}
	w.logger.System().Info("script removed", "path", path, "out", out)
	if w.onRemove != nil {
		w.onRemove(path)
	}
}

func (w *Watcher) fail(err error) {
	w.logger.System().Error("watcher error", err)
	if w.onError != nil {
		w.onError(err)
	}
}

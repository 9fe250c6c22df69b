// Package watcher observes a directory tree through inotify and reports
// every visible change to a notice sink. It keeps a watch-descriptor
// cache as the single source of truth for what is being watched and
// rebuilds everything from scratch when the kernel and the cache fall
// out of sync.
package watcher

import (
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hawkingrei/mihari/diskutil"
	"github.com/hawkingrei/mihari/ignore"
	"github.com/hawkingrei/mihari/watcher/internal/inotify"
)

// Config carries the construction inputs for a Watcher.
type Config struct {
	// Root is the directory whose subtree is watched.
	Root string
	// Ignore lists base-name patterns excluded from watching.
	Ignore []string
	// Logger receives the notices. Defaults to the logrus sink.
	Logger Logger
}

// Watcher watches Root and its whole subtree. The control loop runs on a
// single goroutine; only Stop may be called from another one.
type Watcher struct {
	root    string
	ignored *ignore.List
	logger  Logger

	// mu guards in against Stop racing the descriptor swap in recover.
	mu sync.Mutex
	in *inotify.Inotify

	cache   *watchCache
	queue   []inotify.Event
	buf     []byte
	stopped atomic.Bool
}

// New builds a Watcher and eagerly watches the root and every descendant
// directory not excluded by the ignore list. Failure to establish the
// root watch is fatal; no descriptors are leaked on any error path.
func New(cfg Config) (*Watcher, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve root directory: %s", cfg.Root)
	}
	if !diskutil.IsDir(root) {
		return nil, errors.Errorf("failed to watch directory: %s: not a directory", root)
	}
	ignored, err := ignore.New(cfg.Ignore...)
	if err != nil {
		return nil, err
	}
	if ignored.Match(filepath.Base(root)) {
		return nil, errors.Errorf("no watch established: root directory %s is ignored", root)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = NewLogger()
	}

	in, err := inotify.New()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:    root,
		ignored: ignored,
		logger:  logger,
		in:      in,
		cache:   newWatchCache(),
		buf:     make([]byte, inotify.BufferSize),
	}
	if err := w.watchTree(root); err != nil {
		w.cache.clear(in.RemoveWatch)
		_ = in.Close()
		return nil, err
	}
	return w, nil
}

// Root returns the absolute path being watched.
func (w *Watcher) Root() string {
	return w.root
}

// Run drives the watcher until Stop is called, the root disappears, or a
// fatal error occurs. Root disappearance is a clean exit, not an error.
// Run clears the stop flag when it starts, so a Stop made before Run is
// not carried over.
func (w *Watcher) Run() error {
	w.stopped.Store(false)
	for !w.stopped.Load() {
		if err := w.runOnce(); err != nil {
			return err
		}
	}
	return nil
}

// runOnce blocks until events arrive, then interprets the queue. The
// wait on the readiness multiplexer is the only suspension point.
func (w *Watcher) runOnce() error {
	for len(w.queue) == 0 && !w.stopped.Load() {
		ready, err := w.in.Wait()
		if err != nil {
			return err
		}
		if ready != inotify.WatchReady {
			// Interrupted: the stop flag is re-checked on the next turn.
			continue
		}
		n, err := w.in.Drain(w.buf)
		if err != nil {
			logrus.WithError(err).Error("Failed to read events; rebuilding watches")
			if err := w.recover(); err != nil {
				return err
			}
			continue
		}
		w.refill(w.buf[:n])
	}
	for len(w.queue) > 0 && !w.stopped.Load() {
		event := w.queue[0]
		w.queue = w.queue[1:]
		if err := w.processEvent(event); err != nil {
			return err
		}
	}
	return nil
}

// Stop flags the loop to exit and wakes any blocked wait through the
// interrupt descriptor. Safe to call from any goroutine, any number of
// times.
func (w *Watcher) Stop() {
	w.stopped.Store(true)
	w.logger.Logf("Stopping...")
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.in == nil {
		return
	}
	if err := w.in.Interrupt(); err != nil {
		logrus.WithError(err).Error("Failed to interrupt the watcher")
	}
}

// Close releases every watch and all descriptors. Call it only after Run
// has returned.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.in == nil {
		return nil
	}
	w.cache.clear(w.in.RemoveWatch)
	metricWatchesActive.Set(0)
	err := w.in.Close()
	w.in = nil
	return err
}

// refill decodes one drained burst into the queue in arrival order.
// Records carrying IN_IGNORED announce a watch the kernel has already
// revoked; the interpreter manages revocation itself, so letting them
// through would only make the cache oscillate.
func (w *Watcher) refill(buf []byte) int {
	appended := 0
	for _, event := range inotify.ParseEvents(buf) {
		if event.HasEvent(inotify.InIgnored) {
			continue
		}
		w.queue = append(w.queue, event)
		appended++
	}
	metricEventsTotal.Add(float64(appended))
	return appended
}

// watchTree registers path and all of its unignored descendants. The
// walk is a manual stack over one level of children at a time, so the
// ignore decision happens before descending into a subtree. A watch added
// while the cache is empty (at construction and after recovery) is the
// root watch and arms self-delete and self-move.
func (w *Watcher) watchTree(path string) error {
	if !diskutil.IsDir(path) {
		return errors.Errorf("failed to watch directory: %s", path)
	}
	if w.ignored.Match(filepath.Base(path)) {
		return nil
	}
	stack := []string{path}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		wd, err := w.in.AddWatch(dir, w.cache.isEmpty())
		if err != nil {
			return err
		}
		w.cache.insert(wd, dir)
		subdirs, err := diskutil.Subdirectories(dir)
		if err != nil {
			return errors.Wrapf(err, "failed to list directory: %s", dir)
		}
		for _, sub := range subdirs {
			if !w.ignored.Match(filepath.Base(sub)) {
				stack = append(stack, sub)
			}
		}
	}
	metricWatchesActive.Set(float64(w.cache.size()))
	return nil
}

// processEvent dispatches one dequeued record. Self-events end the loop,
// overflow and unknown descriptors force a full rebuild, everything else
// goes to the directory or file handler.
func (w *Watcher) processEvent(event inotify.Event) error {
	switch {
	case event.HasEvent(inotify.InDeleteSelf) || event.HasEvent(inotify.InMoveSelf):
		w.stopped.Store(true)
		w.logger.Logf("Nothing to watch.")
	case event.HasEvent(inotify.InQOverflow):
		// Events were lost; the cache can no longer be trusted.
		metricOverflows.Inc()
		logrus.Warn("Kernel event queue overflowed")
		return w.recover()
	case !w.cache.contains(event.Wd):
		return w.recover()
	case event.HasEvent(inotify.InIsDir):
		return w.processDirectoryEvent(event)
	default:
		return w.processFileEvent(event)
	}
	return nil
}

// processDirectoryEvent handles an event whose subject is a directory.
// Subjects with an ignored base-name are invisible: no notice, no watch.
func (w *Watcher) processDirectoryEvent(event inotify.Event) error {
	parent, _ := w.cache.pathOf(event.Wd)
	full := filepath.Join(parent, event.Name)
	if w.ignored.Match(event.Name) {
		return nil
	}

	switch {
	case event.HasEvent(inotify.InDelete):
		w.notice("deleted_directory", "Deleted directory: %s", full)
		// The kernel revokes the descendant watches itself and announces
		// it with IN_IGNORED records, which ingestion drops. Erasing the
		// direct entry is all that is left to do.
		if wd, ok := w.cache.wdOf(full); ok {
			w.cache.erase(wd)
			metricWatchesActive.Set(float64(w.cache.size()))
		}
	case event.HasEvent(inotify.InCreate) || event.HasEvent(inotify.InMovedTo):
		w.notice("created_directory", "Created directory: %s", full)
		if err := w.watchTree(full); err != nil {
			logrus.WithError(err).Error("Failed to watch new directory; rebuilding watches")
			return w.recover()
		}
	case event.HasEvent(inotify.InMovedFrom):
		return w.directoryMovedFrom(event, parent, full)
	}
	return nil
}

// directoryMovedFrom resolves a directory IN_MOVED_FROM: paired with the
// next queued record when that is an IN_MOVED_TO with the same cookie,
// treated as a move out of the subtree otherwise. Pairing is a bounded
// one-token peek; the follower is consumed only on a full match.
func (w *Watcher) directoryMovedFrom(event inotify.Event, parent, full string) error {
	if len(w.queue) > 0 {
		next := w.queue[0]
		if next.HasEvent(inotify.InMovedTo) && next.Cookie == event.Cookie {
			w.queue = w.queue[1:]
			newParent, ok := w.cache.pathOf(next.Wd)
			if !ok {
				return w.recover()
			}
			newFull := filepath.Join(newParent, next.Name)
			if parent == newParent {
				w.notice("renamed_directory", "Renamed directory: %s -> %s", full, newFull)
			} else {
				w.notice("moved_directory", "Moved directory: %s -> %s", full, newFull)
			}
			// The kernel keeps the watches valid across an in-tree move;
			// only the cached paths need fixing up.
			w.cache.rewritePrefix(full, newFull)
			return nil
		}
	}
	w.notice("moved_out", "Moved out of watch directory: %s", full)
	if _, err := w.cache.zapPrefix(full, w.in.RemoveWatch); err != nil {
		logrus.WithError(err).Error("Failed to remove watches; rebuilding")
		return w.recover()
	}
	metricWatchesActive.Set(float64(w.cache.size()))
	return nil
}

// processFileEvent handles an event whose subject is a file.
func (w *Watcher) processFileEvent(event inotify.Event) error {
	parent, _ := w.cache.pathOf(event.Wd)
	full := filepath.Join(parent, event.Name)

	switch {
	case event.HasEvent(inotify.InCreate) || event.HasEvent(inotify.InMovedTo):
		w.notice("created_file", "Created file: %s", full)
	case event.HasEvent(inotify.InDelete):
		w.notice("deleted_file", "Deleted file: %s", full)
	case event.HasEvent(inotify.InModify):
		w.notice("modified_file", "Modified file: %s", full)
	case event.HasEvent(inotify.InMovedFrom):
		if len(w.queue) > 0 {
			next := w.queue[0]
			if next.HasEvent(inotify.InMovedTo) && next.Cookie == event.Cookie {
				w.queue = w.queue[1:]
				newParent, ok := w.cache.pathOf(next.Wd)
				if !ok {
					return w.recover()
				}
				newFull := filepath.Join(newParent, next.Name)
				if parent == newParent {
					w.notice("renamed_file", "Renamed file: %s -> %s", full, newFull)
				} else {
					w.notice("moved_file", "Moved file: %s -> %s", full, newFull)
				}
				return nil
			}
		}
		w.notice("moved_file_out", "Moved file out of watch directory: %s", full)
	}
	return nil
}

// recover tears the whole watch state down and rebuilds it from the
// configured root: every cached watch is removed, all three descriptors
// are recreated, the queue and buffer are reset. Events that occurred in
// between are gone, matching the kernel's own contract after overflow.
// Failure to re-watch the root is fatal.
func (w *Watcher) recover() error {
	w.logger.Logf("Cache reached inconsistent state; Reinitializing...")
	metricRecoveries.Inc()

	w.cache.clear(w.in.RemoveWatch)
	w.mu.Lock()
	_ = w.in.Close()
	in, err := inotify.New()
	if err != nil {
		w.in = nil
		w.mu.Unlock()
		return errors.Wrap(err, "failed to reinitialize inotify instance")
	}
	w.in = in
	w.mu.Unlock()

	if err := w.watchTree(w.root); err != nil {
		w.logger.Logf("Failed to reinitialize inotify instance")
		return errors.Wrap(err, "failed to reinitialize inotify instance")
	}
	w.queue = nil
	for i := range w.buf {
		w.buf[i] = 0
	}
	w.logger.Logf("Cache reached inconsistent state; Success.")
	return nil
}

func (w *Watcher) notice(kind, format string, args ...interface{}) {
	metricNotices.WithLabelValues(kind).Inc()
	w.logger.Logf(format, args...)
}

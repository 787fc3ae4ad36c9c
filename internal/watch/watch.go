// Package watch feeds external (non-agent) file edits into the
// agentctx.Tracker as UserEdited events — spec.md §4.9's FileContextTracker
// transition table names UserEdited as a source but spec.md never says who
// calls it for edits the agent didn't itself make; this package is that
// caller; FileMentioned detection (text mentioning a path) stays a prompt-
// parsing concern, out of scope here. Grounded on kdlbs-kandev's
// WorkspaceTracker (fsnotify.Watcher + a debounce channel + one dispatch
// goroutine), trimmed to the single UserEdited callback OrbitX needs.
package watch

import (
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/orbitx-dev/orbitx/internal/agentctx"
	"github.com/orbitx-dev/orbitx/internal/logger"
	"github.com/orbitx-dev/orbitx/internal/store"
)

// Watcher watches a workspace root and records every externally-observed
// write as a UserEdited FileContextTracker entry.
type Watcher struct {
	fsw            *fsnotify.Watcher
	tracker        *agentctx.Tracker
	conversationID func() string
	workspaceRoot  string
	done           chan struct{}
}

// New starts watching workspaceRoot recursively and wires writes into
// tracker under whatever conversationID() currently returns. A function
// rather than a fixed ID because one workspace's watcher outlives any
// single conversation — a daemon opens a new conversation whenever a prompt
// is submitted without one (internal/orbitd.Daemon.submit) while the workspace's watcher
// keeps running underneath it. The caller must call Close to stop.
func New(workspaceRoot string, conversationID func() string, tracker *agentctx.Tracker) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := addRecursive(fsw, workspaceRoot); err != nil {
		fsw.Close()
		return nil, err
	}
	w := &Watcher{fsw: fsw, tracker: tracker, conversationID: conversationID, workspaceRoot: workspaceRoot, done: make(chan struct{})}
	go w.run()
	return w, nil
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			_ = fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run() {
	debounce := make(map[string]*time.Timer)
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			path := ev.Name
			if t, pending := debounce[path]; pending {
				t.Stop()
			}
			debounce[path] = time.AfterFunc(200*time.Millisecond, func() {
				conv := w.conversationID()
				if conv == "" {
					return
				}
				if err := w.tracker.Record(conv, w.workspaceRoot, path, store.SourceUserEdited, nil); err != nil {
					logger.Warn("watch: record user edit failed", "path", path, "err", err)
				}
			})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("watch: fsnotify error", "err", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

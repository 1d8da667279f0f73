// Package notify implements the directory-change-notification registry
// a volume forwards path changes to. Watches are one-shot: after a
// matching change is delivered the watcher is unregistered and must
// re-register for further notifications.
package notify

import (
	"fmt"
	"strings"
	"sync"

	"github.com/marmos91/ufsd/internal/logger"
	"github.com/marmos91/ufsd/internal/protocol/fsctl/types"
)

// Completion filter flags specify which changes to watch for
// ([MS-FSCC] 2.6).
const (
	// FileNotifyChangeFileName watches for file name changes (create, delete, rename).
	FileNotifyChangeFileName uint32 = 0x00000001

	// FileNotifyChangeDirName watches for directory name changes.
	FileNotifyChangeDirName uint32 = 0x00000002

	// FileNotifyChangeAttributes watches for attribute changes.
	FileNotifyChangeAttributes uint32 = 0x00000004

	// FileNotifyChangeSize watches for file size changes.
	FileNotifyChangeSize uint32 = 0x00000008

	// FileNotifyChangeLastWrite watches for last write time changes.
	FileNotifyChangeLastWrite uint32 = 0x00000010

	// FileNotifyChangeLastAccess watches for last access time changes.
	FileNotifyChangeLastAccess uint32 = 0x00000020

	// FileNotifyChangeCreation watches for creation time changes.
	FileNotifyChangeCreation uint32 = 0x00000040

	// FileNotifyChangeSecurity watches for security descriptor changes.
	FileNotifyChangeSecurity uint32 = 0x00000100
)

// Change action codes ([MS-FSCC] 2.4.42).
const (
	FileActionAdded          uint32 = 0x00000001
	FileActionRemoved        uint32 = 0x00000002
	FileActionModified       uint32 = 0x00000003
	FileActionRenamedOldName uint32 = 0x00000004
	FileActionRenamedNewName uint32 = 0x00000005
)

// Change describes one delivered path change.
type Change struct {
	Path   string
	Action uint32
}

// Watcher tracks one pending watch registered against a directory.
type Watcher struct {
	// ID identifies the watcher for unregistration.
	ID uint64

	// WatchPath is the watched directory path.
	WatchPath string

	// CompletionFilter specifies which changes trigger delivery.
	// Combination of FileNotifyChange* flags.
	CompletionFilter uint32

	// WatchTree enables recursive watching of subdirectories.
	WatchTree bool

	// Deliver is called with the matching change. If nil, the change
	// is logged and the watch is still consumed.
	Deliver func(Change)
}

// Registry manages pending directory watches for one volume. It maps
// watch paths to pending watchers and supports both exact-path and
// recursive matching: a change walks up the directory hierarchy
// looking for recursive watchers. Thread-safe.
type Registry struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[string][]*Watcher
	byID    map[uint64]*Watcher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		pending: make(map[string][]*Watcher),
		byID:    make(map[uint64]*Watcher),
	}
}

// Register adds a pending watch on a directory and returns its ID.
func (r *Registry) Register(watchPath string, filter uint32, watchTree bool, deliver func(Change)) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	w := &Watcher{
		ID:               r.nextID,
		WatchPath:        watchPath,
		CompletionFilter: filter,
		WatchTree:        watchTree,
		Deliver:          deliver,
	}
	r.pending[watchPath] = append(r.pending[watchPath], w)
	r.byID[w.ID] = w

	logger.Debug("notify: registered watch",
		logger.KeyPath, watchPath,
		"filter", fmt.Sprintf("0x%08X", filter),
		"recursive", watchTree)
	return w.ID
}

// Unregister removes a pending watch. Called when the watching handle
// closes or the request is cancelled.
func (r *Registry) Unregister(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(id)
}

func (r *Registry) removeLocked(id uint64) {
	w, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)

	pending := r.pending[w.WatchPath]
	for i, p := range pending {
		if p.ID == id {
			r.pending[w.WatchPath] = append(pending[:i], pending[i+1:]...)
			break
		}
	}
	if len(r.pending[w.WatchPath]) == 0 {
		delete(r.pending, w.WatchPath)
	}
}

// ReportChange completes watches matching the changed path, filter
// mask, and action, consuming each matched watcher. The path names the
// changed file; watchers on its parent directory match exactly, and
// recursive watchers match from any ancestor. An invalid path yields
// STATUS_OBJECT_NAME_INVALID so the caller can flush the wait set.
func (r *Registry) ReportChange(path string, filter, action uint32) types.Status {
	if path == "" || !strings.HasPrefix(path, `\`) || strings.ContainsRune(path, 0) {
		return types.StatusObjectNameInvalid
	}

	var matched []*Watcher
	r.mu.Lock()
	dir := parentDir(path)
	for _, w := range r.pending[dir] {
		if w.CompletionFilter&filter != 0 {
			matched = append(matched, w)
		}
	}
	// Recursive watchers match from any strict ancestor of the parent.
	for anc := dir; anc != `\`; {
		anc = parentDir(anc)
		for _, w := range r.pending[anc] {
			if w.WatchTree && w.CompletionFilter&filter != 0 {
				matched = append(matched, w)
			}
		}
	}
	for _, w := range matched {
		r.removeLocked(w.ID)
	}
	r.mu.Unlock()

	change := Change{Path: path, Action: action}
	for _, w := range matched {
		if w.Deliver != nil {
			w.Deliver(change)
		} else {
			logger.Debug("notify: change with no deliverer",
				logger.KeyPath, path,
				"action", action)
		}
	}
	return types.StatusSuccess
}

// CleanupAllWaiters drops every pending watch without delivery.
func (r *Registry) CleanupAllWaiters() {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.byID)
	r.pending = make(map[string][]*Watcher)
	r.byID = make(map[uint64]*Watcher)
	if n > 0 {
		logger.Warn("notify: flushed pending watches", "count", n)
	}
}

// PendingCount returns the number of pending watches.
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// parentDir returns the directory containing a backslash path, with
// the root directory as fixpoint.
func parentDir(path string) string {
	i := strings.LastIndexByte(path, '\\')
	if i <= 0 {
		return `\`
	}
	return path[:i]
}

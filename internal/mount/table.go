package mount

import (
	"sync"

	"github.com/marmos91/ufsd/internal/volume"
)

// EntryState tracks whether a table entry is awaiting mount
// sequencing or carries a live volume.
type EntryState int

const (
	StatePending EntryState = iota
	StateActive
)

// String returns a human-readable entry state.
func (s EntryState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// TableEntry is one mount table record, keyed by (device name,
// session id). Mount sequencing flips it from pending to active and
// attaches the volume.
type TableEntry struct {
	DeviceName string
	SessionID  uint32
	State      EntryState
	Options    Options
	Volume     *volume.Volume
}

type tableKey struct {
	name    string
	session uint32
}

// Table is the mount registry. It is an owned object passed into the
// sequencer, guarded by its own lock; its lifetime is scoped to the
// process, created at startup and drained at teardown.
type Table struct {
	mu      sync.RWMutex
	entries map[tableKey]*TableEntry
}

// NewTable creates an empty mount table.
func NewTable() *Table {
	return &Table{entries: make(map[tableKey]*TableEntry)}
}

// AddPending records that a mount for (deviceName, sessionID) has been
// announced and is awaiting sequencing. Re-announcing an existing key
// leaves the entry untouched.
func (t *Table) AddPending(deviceName string, sessionID uint32, options Options) *TableEntry {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := tableKey{deviceName, sessionID}
	if e, ok := t.entries[key]; ok {
		return e
	}
	e := &TableEntry{
		DeviceName: deviceName,
		SessionID:  sessionID,
		State:      StatePending,
		Options:    options,
	}
	t.entries[key] = e
	return e
}

// Activate attaches a volume to the pending entry for (deviceName,
// sessionID) and carries the mount options forward into it. It returns
// false if no pending entry exists, leaving the table unchanged.
func (t *Table) Activate(deviceName string, sessionID uint32, vol *volume.Volume, options Options) (*TableEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[tableKey{deviceName, sessionID}]
	if !ok || e.State != StatePending {
		return nil, false
	}
	e.State = StateActive
	e.Volume = vol
	e.Options = options
	return e, true
}

// Lookup returns the entry for (deviceName, sessionID), if any.
func (t *Table) Lookup(deviceName string, sessionID uint32) (*TableEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[tableKey{deviceName, sessionID}]
	return e, ok
}

// Remove drops the entry for (deviceName, sessionID).
func (t *Table) Remove(deviceName string, sessionID uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, tableKey{deviceName, sessionID})
}

// ActiveCount returns the number of entries carrying a live volume.
func (t *Table) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, e := range t.entries {
		if e.State == StateActive {
			n++
		}
	}
	return n
}

// Len returns the total number of entries, pending included.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

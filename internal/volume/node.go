package volume

import (
	"sync"

	"github.com/marmos91/ufsd/internal/protocol/fsctl/types"
)

// LockTable is the byte-range lock table attached to a node. The table
// implementation is owned by an external collaborator; the control plane
// only asks it whether existing locks would deny a shared oplock.
type LockTable interface {
	// BlocksOplockRequest reports whether any current or in-progress
	// byte-range lock on the file would block a shared oplock request.
	BlocksOplockRequest() bool
}

// Oplock is the opaque per-node oplock handle passed to the external
// oplock engine. The engine keys its grant/break state machine by this
// pointer; the control plane never looks inside.
type Oplock struct {
	node *Node
}

// Node returns the node this oplock handle belongs to.
func (o *Oplock) Node() *Node {
	return o.node
}

// Node is the in-memory state for one open file or directory on a
// mounted volume. Created when the file is first opened, retired when
// the last handle closes and no lease or lock still references it.
type Node struct {
	vol         *Volume
	name        string
	isDirectory bool
	isKeepalive bool

	locks  LockTable
	oplock *Oplock

	// mu guards the fields below. Acquire the volume lock first when
	// both are needed.
	mu            sync.RWMutex
	deletePending bool
	handleCount   int

	// debugMu guards the oplock debug bookkeeping independently, so it
	// can be updated while the node lock is held in either mode.
	debugMu     sync.Mutex
	oplockDebug OplockDebugInfo
}

// Kind implements Identifiable.
func (n *Node) Kind() Kind {
	return KindNode
}

// Volume returns the owning volume. Never nil while the node is live.
func (n *Node) Volume() *Volume {
	return n.vol
}

// Name returns the node's display name.
func (n *Node) Name() string {
	return n.name
}

// IsDirectory reports whether the node represents a directory.
func (n *Node) IsDirectory() bool {
	return n.isDirectory
}

// IsKeepaliveCapable reports whether this node is the volume's
// designated keepalive file.
func (n *Node) IsKeepaliveCapable() bool {
	return n.isKeepalive
}

// LockTable returns the node's byte-range lock table, or nil if none
// was attached.
func (n *Node) LockTable() LockTable {
	return n.locks
}

// OplockHandle returns the stable opaque handle the oplock engine keys
// this node's lease state by.
func (n *Node) OplockHandle() *Oplock {
	return n.oplock
}

// Lock acquires the node lock exclusively.
func (n *Node) Lock() { n.mu.Lock() }

// Unlock releases the exclusive node lock.
func (n *Node) Unlock() { n.mu.Unlock() }

// RLock acquires the node lock shared.
func (n *Node) RLock() { n.mu.RLock() }

// RUnlock releases the shared node lock.
func (n *Node) RUnlock() { n.mu.RUnlock() }

// DeletePending reports whether the node is marked for deletion on the
// last close.
func (n *Node) DeletePending() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.deletePending
}

// DeletePendingLocked is DeletePending for callers already holding the
// node lock in either mode.
func (n *Node) DeletePendingLocked() bool {
	return n.deletePending
}

// SetDeletePending marks or clears the delete-on-close state.
func (n *Node) SetDeletePending(pending bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deletePending = pending
}

// HandleCount returns the number of open handles on the node.
func (n *Node) HandleCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.handleCount
}

// HandleCountLocked is HandleCount for callers already holding the node
// lock in either mode.
func (n *Node) HandleCountLocked() int {
	return n.handleCount
}

// NewHandle opens a new handle context on the node.
func (n *Node) NewHandle() *HandleContext {
	n.mu.Lock()
	n.handleCount++
	n.mu.Unlock()
	return &HandleContext{node: n}
}

// OplockDebugInfo records the most recent oplock traffic seen on a node.
// It is bookkeeping for diagnostics only and tolerates staleness; reads
// for logging may be taken without the node lock.
type OplockDebugInfo struct {
	LastRequestCode types.ControlCode
	LastLevel       uint32
	LastFlags       uint32
	AckSeen         bool
	RequestCount    uint32
}

// RecordOplockRequest notes an oplock request/acknowledge against the
// node's debug bookkeeping.
func (n *Node) RecordOplockRequest(code types.ControlCode, level, flags uint32) {
	n.debugMu.Lock()
	defer n.debugMu.Unlock()
	n.oplockDebug.LastRequestCode = code
	n.oplockDebug.LastLevel = level
	n.oplockDebug.LastFlags = flags
	if flags&types.OplockInputFlagAck != 0 {
		n.oplockDebug.AckSeen = true
	}
	n.oplockDebug.RequestCount++
}

// OplockDebug returns a copy of the oplock debug bookkeeping.
func (n *Node) OplockDebug() OplockDebugInfo {
	n.debugMu.Lock()
	defer n.debugMu.Unlock()
	return n.oplockDebug
}

package volume

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/ufsd/internal/protocol/fsctl/types"
)

// KeepaliveFileName is the reserved path whose handle acts as the
// volume's keepalive signal. A node opened with this name is flagged
// keepalive-capable.
const KeepaliveFileName = `\__ufsd_keepalive`

// NotifyRegistry is the volume's directory-change-notification registry,
// owned by an external collaborator. The control plane forwards path
// changes to it and can ask it to drop every pending waiter.
type NotifyRegistry interface {
	// ReportChange completes directory-watch requests matching the
	// given path, completion filter, and action.
	ReportChange(path string, filter, action uint32) types.Status

	// CleanupAllWaiters cancels every pending watch registered against
	// the volume.
	CleanupAllWaiters()
}

// DeviceInfo is the volume's back-reference to its mount device. Only
// the identity needed by the control plane is exposed here; the device
// itself lives in the mount package.
type DeviceInfo interface {
	DeviceName() string
	SessionID() uint32
}

// Params carries everything the mount sequencer decides at volume
// construction time.
type Params struct {
	Device          DeviceInfo
	Notify          NotifyRegistry
	UserModeLocking bool
	GCInterval      time.Duration
	Label           string
	Serial          uint32
}

// Volume is the in-memory state for one mounted filesystem instance. It
// owns all of its nodes; node-set membership only changes under the
// volume-wide exclusive lock.
type Volume struct {
	device DeviceInfo
	notify NotifyRegistry

	userModeLocking bool
	gcInterval      time.Duration
	label           string
	serial          uint32

	// mu is the volume-wide lock: node-set membership and the garbage
	// list. Always acquired before any node lock.
	mu      sync.RWMutex
	nodes   map[string]*Node
	garbage []*Node

	// mounted and keepaliveActive are flipped outside the volume lock
	// (mount sequencing and the keepalive handler respectively), so
	// they are atomics rather than mu-guarded fields.
	mounted         atomic.Bool
	keepaliveActive atomic.Bool

	directIO     atomic.Bool
	initializing atomic.Bool
}

// New constructs an unmounted volume with an empty node set. The volume
// stays in the initializing state until mount sequencing completes.
func New(p Params) *Volume {
	v := &Volume{
		device:          p.Device,
		notify:          p.Notify,
		userModeLocking: p.UserModeLocking,
		gcInterval:      p.GCInterval,
		label:           p.Label,
		serial:          p.Serial,
		nodes:           make(map[string]*Node),
	}
	v.initializing.Store(true)
	return v
}

// Kind implements Identifiable.
func (v *Volume) Kind() Kind {
	return KindVolume
}

// Device returns the owning mount device.
func (v *Volume) Device() DeviceInfo {
	return v.device
}

// Notify returns the volume's change-notification registry.
func (v *Volume) Notify() NotifyRegistry {
	return v.notify
}

// UserModeLocking reports whether byte-range locking is delegated to the
// userspace filesystem instead of the host's native lock manager.
func (v *Volume) UserModeLocking() bool {
	return v.userModeLocking
}

// GCInterval returns the configured node garbage-collection interval.
// Zero means retired nodes are freed immediately and no collector runs.
func (v *Volume) GCInterval() time.Duration {
	return v.gcInterval
}

// Label returns the volume label.
func (v *Volume) Label() string {
	return v.label
}

// Serial returns the volume serial number.
func (v *Volume) Serial() uint32 {
	return v.serial
}

// Lock acquires the volume-wide lock exclusively.
func (v *Volume) Lock() { v.mu.Lock() }

// Unlock releases the exclusive volume lock.
func (v *Volume) Unlock() { v.mu.Unlock() }

// RLock acquires the volume-wide lock shared.
func (v *Volume) RLock() { v.mu.RLock() }

// RUnlock releases the shared volume lock.
func (v *Volume) RUnlock() { v.mu.RUnlock() }

// Mounted reports whether mount sequencing has completed.
func (v *Volume) Mounted() bool {
	return v.mounted.Load()
}

// SetMounted flips the mounted flag.
func (v *Volume) SetMounted(mounted bool) {
	v.mounted.Store(mounted)
}

// DirectIO reports whether the volume performs direct (unbuffered
// intermediate) I/O.
func (v *Volume) DirectIO() bool {
	return v.directIO.Load()
}

// SetDirectIO flips the direct-I/O flag.
func (v *Volume) SetDirectIO(direct bool) {
	v.directIO.Store(direct)
}

// Initializing reports whether mount sequencing is still in progress.
func (v *Volume) Initializing() bool {
	return v.initializing.Load()
}

// FinishInitializing clears the initializing flag.
func (v *Volume) FinishInitializing() {
	v.initializing.Store(false)
}

// KeepaliveActive reports whether some handle currently keeps the
// volume alive.
func (v *Volume) KeepaliveActive() bool {
	return v.keepaliveActive.Load()
}

// ActivateKeepalive flips both the handle's and the volume's keepalive
// flags under the node's exclusive lock. Validation (capability and
// competing-handle checks) belongs to the caller.
func (v *Volume) ActivateKeepalive(h *HandleContext) {
	n := h.node
	n.mu.Lock()
	defer n.mu.Unlock()
	h.setKeepaliveActiveLocked(true)
	v.keepaliveActive.Store(true)
}

// AllocateNode creates (or returns the existing) node for the given
// name and inserts it into the node set under the volume exclusive lock.
func (v *Volume) AllocateNode(name string, isDirectory bool, locks LockTable) *Node {
	v.mu.Lock()
	defer v.mu.Unlock()

	if n, ok := v.nodes[name]; ok {
		return n
	}

	n := &Node{
		vol:         v,
		name:        name,
		isDirectory: isDirectory,
		isKeepalive: name == KeepaliveFileName,
		locks:       locks,
	}
	n.oplock = &Oplock{node: n}
	v.nodes[name] = n
	return n
}

// LookupNode returns the live node for a name, if any.
func (v *Volume) LookupNode(name string) (*Node, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	n, ok := v.nodes[name]
	return n, ok
}

// NodeCount returns the number of live nodes.
func (v *Volume) NodeCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.nodes)
}

// retireNode removes a node whose last handle closed. With a collection
// interval configured the node parks on the garbage list for the
// background collector; otherwise it is dropped immediately.
func (v *Volume) retireNode(n *Node) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.nodes[n.name] != n {
		return
	}
	delete(v.nodes, n.name)
	if v.gcInterval > 0 {
		v.garbage = append(v.garbage, n)
	}
}

// CollectGarbage drains the garbage list and returns the number of
// nodes freed. Called by the volume's background collector.
func (v *Volume) CollectGarbage() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := len(v.garbage)
	v.garbage = nil
	return n
}

// GarbageCount returns the number of nodes awaiting collection.
func (v *Volume) GarbageCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.garbage)
}

// Package volume holds the in-memory control-plane state for a mounted
// userspace filesystem: the volume itself, its live nodes (one per open
// file or directory), and the per-handle contexts bound to them.
//
// Locking discipline: there are two lock granularities, the volume-wide
// lock (node-set membership and volume flags) and the per-node lock (a
// single node's mutable fields). When both are needed the volume lock is
// always acquired first. Violating that order can deadlock against
// concurrent structural volume changes.
package volume

// Kind discriminates the control-plane entity types. Every request
// resolved from the host carries an identity chain
// (HandleContext -> Node -> Volume) whose kinds are checked once at the
// dispatch boundary; downstream code trusts the chain.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNode
	KindVolume
	KindHandle
	KindDevice
)

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "Node"
	case KindVolume:
		return "Volume"
	case KindHandle:
		return "HandleContext"
	case KindDevice:
		return "MountDevice"
	default:
		return "Unknown"
	}
}

// Identifiable is implemented by every entity in the identity chain.
type Identifiable interface {
	Kind() Kind
}

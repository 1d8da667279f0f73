package volume

// HandleContext is the per-open-handle state bound to a node. Created on
// open, destroyed on close.
type HandleContext struct {
	node *Node

	// keepaliveActive is guarded by the node lock: the keepalive
	// handler flips it together with the volume flag under the node's
	// exclusive lock.
	keepaliveActive bool
}

// Kind implements Identifiable.
func (h *HandleContext) Kind() Kind {
	return KindHandle
}

// Node returns the node this handle is open on.
func (h *HandleContext) Node() *Node {
	return h.node
}

// KeepaliveActive reports whether this handle is the volume's active
// keepalive handle.
func (h *HandleContext) KeepaliveActive() bool {
	if h.node == nil {
		return false
	}
	h.node.mu.RLock()
	defer h.node.mu.RUnlock()
	return h.keepaliveActive
}

// setKeepaliveActiveLocked flips the handle flag. Callers must hold the
// node lock exclusively.
func (h *HandleContext) setKeepaliveActiveLocked(active bool) {
	h.keepaliveActive = active
}

// Close releases the handle. Closing the volume's active keepalive
// handle deactivates the keepalive, so the device's liveness window
// starts counting from here. When the last handle on the node closes,
// the node is retired from the volume's node set (moved to the garbage
// list when collection is configured, freed directly otherwise).
func (h *HandleContext) Close() {
	n := h.node
	if n == nil {
		return
	}
	h.node = nil

	n.mu.Lock()
	if h.keepaliveActive {
		h.keepaliveActive = false
		n.vol.keepaliveActive.Store(false)
	}
	n.handleCount--
	last := n.handleCount == 0
	n.mu.Unlock()

	if last {
		n.vol.retireNode(n)
	}
}

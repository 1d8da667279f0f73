package metrics

import "time"

// ControlMetrics provides observability for the control dispatch path.
//
// This interface is optional - pass nil to disable metrics collection
// with zero overhead.
type ControlMetrics interface {
	// RecordRequest records a completed control request with its
	// control code name, resulting status name, and duration.
	RecordRequest(code string, status string, duration time.Duration)

	// RecordOplock records an arbitrated oplock operation by class
	// ("request" or "acknowledge") and resulting status name.
	RecordOplock(class string, status string)
}

// MountMetrics provides observability for mount sequencing and the
// per-volume background maintenance tasks.
type MountMetrics interface {
	// RecordMount records a completed mount attempt with its duration
	// and resulting status name.
	RecordMount(duration time.Duration, status string)

	// SetActiveVolumes sets the number of currently mounted volumes.
	SetActiveVolumes(n int)

	// RecordNodesCollected records nodes freed by a garbage-collector
	// pass.
	RecordNodesCollected(n int)

	// RecordKeepaliveExpired records a device whose keepalive went
	// stale and was marked for removal.
	RecordKeepaliveExpired()
}

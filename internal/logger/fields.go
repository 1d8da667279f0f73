package logger

// Standard structured-log field keys used across the control plane.
// Keeping them in one place avoids drifting key names between handlers.
const (
	KeyControlCode = "fsctl"
	KeyStatus      = "status"
	KeyVolume      = "volume"
	KeyDevice      = "device"
	KeyMountPoint  = "mount_point"
	KeyNode        = "node"
	KeyPath        = "path"
	KeySessionID   = "session_id"
)

package mount

import (
	"fmt"
	"sync"

	"github.com/marmos91/ufsd/internal/logger"
	"github.com/marmos91/ufsd/internal/protocol/fsctl/types"
	"github.com/marmos91/ufsd/internal/reparse"
)

// MountPointRemover is implemented by registrars that can clear the
// marker binding a mount point directory to its device. The unmount
// path uses it to tear down what CreateMountPoint set up.
type MountPointRemover interface {
	RemoveMountPoint(mountPoint string) error
}

// MarkerRegistrar is a Registrar that maintains mount points directly
// by writing redirection markers onto the mount point directory. It is
// the registrar used when the host's mount manager is not involved:
// arrival notifications have nobody to reach and are no-ops, and
// drive-letter auto-assignment is tracked locally.
type MarkerRegistrar struct {
	dc reparse.DirectoryControl

	mu         sync.Mutex
	autoAssign bool
}

// NewMarkerRegistrar creates a registrar writing markers through the
// given directory control transport.
func NewMarkerRegistrar(dc reparse.DirectoryControl) *MarkerRegistrar {
	return &MarkerRegistrar{dc: dc, autoAssign: true}
}

// SetAutoAssign implements Registrar. Without a mount manager there is
// nothing to suspend; the setting is tracked so callers can restore it.
func (r *MarkerRegistrar) SetAutoAssign(enabled bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := r.autoAssign
	r.autoAssign = enabled
	return previous, nil
}

// NotifyVolumeArrival implements Registrar. There is no mount manager
// to notify; the marker written by CreateMountPoint already exposes
// the volume.
func (r *MarkerRegistrar) NotifyVolumeArrival(deviceName string) error {
	logger.Debug("volume arrival with no mount manager, skipping",
		logger.KeyDevice, deviceName)
	return nil
}

// CreateMountPoint implements Registrar: it builds a redirection
// marker targeting the device and sets it on the mount point
// directory.
func (r *MarkerRegistrar) CreateMountPoint(mountPoint, deviceName string) error {
	buf, n := reparse.BuildMountPointMarker(deviceName)
	if buf == nil {
		return fmt.Errorf("device name %q too long for a mount point marker", deviceName)
	}
	return reparse.SendDirectoryControl(r.dc, mountPoint, types.FSCTLSetReparsePoint, buf[:n])
}

// RemoveMountPoint implements MountPointRemover: it clears the marker
// previously set on the mount point directory.
func (r *MarkerRegistrar) RemoveMountPoint(mountPoint string) error {
	buf, n := reparse.BuildRemovalMarker()
	return reparse.SendDirectoryControl(r.dc, mountPoint, types.FSCTLDeleteReparsePoint, buf[:n])
}

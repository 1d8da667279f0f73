// Package mount implements mount sequencing: constructing a volume for
// a mount device, publishing it in the mount table, and starting the
// per-device background maintenance tasks.
package mount

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/ufsd/internal/volume"
)

// Options is the mount options bitset carried by a device and recorded
// in its mount table entry.
type Options uint32

const (
	// OptionNetwork marks a network-type volume. Mounting one registers
	// a UNC provider and applies a security descriptor to the device.
	OptionNetwork Options = 1 << iota

	// OptionRemovable presents the volume as removable media.
	OptionRemovable

	// OptionWriteProtect mounts the volume read-only.
	OptionWriteProtect

	// OptionMountManager hands mount-point maintenance to the host's
	// mount registrar instead of creating points directly.
	OptionMountManager

	// OptionCurrentSession restricts the mount to the mounting session.
	OptionCurrentSession

	// OptionUserModeLocking delegates byte-range locking to the
	// userspace filesystem instead of the host's native lock manager.
	OptionUserModeLocking
)

// Has reports whether every bit in opt is set.
func (o Options) Has(opt Options) bool {
	return o&opt == opt
}

// Device is the pre-mount representation of one filesystem instance:
// mount configuration plus mount-table linkage. It becomes the back
// reference of its Volume once sequencing succeeds.
type Device struct {
	name            string
	mountPoint      string
	uncName         string
	label           string
	sessionID       uint32
	options         Options
	characteristics uint32

	// resource guards the device's mount-table linkage and its
	// liveness deadline. It is distinct from the table's own lock; the
	// sequencer holds resource around table mutation so a concurrent
	// unmount of the same device serializes against the publish step.
	resource sync.Mutex
	volume   *volume.Volume
	deadline time.Time

	markedForRemoval atomic.Bool
	securityDesc     []byte

	timeoutTask *TimeoutChecker
	gcTask      *Collector
}

// DeviceParams carries the identity and configuration a mount event
// supplies for a device.
type DeviceParams struct {
	Name            string
	MountPoint      string
	UNCName         string
	Label           string
	SessionID       uint32
	Options         Options
	Characteristics uint32
}

// NewDevice constructs an unmounted device.
func NewDevice(p DeviceParams) *Device {
	return &Device{
		name:            p.Name,
		mountPoint:      p.MountPoint,
		uncName:         p.UNCName,
		label:           p.Label,
		sessionID:       p.SessionID,
		options:         p.Options,
		characteristics: p.Characteristics,
	}
}

// Kind implements volume.Identifiable.
func (d *Device) Kind() volume.Kind {
	return volume.KindDevice
}

// DeviceName implements volume.DeviceInfo.
func (d *Device) DeviceName() string {
	return d.name
}

// SessionID implements volume.DeviceInfo.
func (d *Device) SessionID() uint32 {
	return d.sessionID
}

// MountPoint returns the path or drive letter the volume surfaces at.
func (d *Device) MountPoint() string {
	return d.mountPoint
}

// UNCName returns the UNC name for network volumes, empty otherwise.
func (d *Device) UNCName() string {
	return d.uncName
}

// Label returns the volume label the mount event supplied, empty when
// the default applies.
func (d *Device) Label() string {
	return d.label
}

// Options returns the device's mount options bitset.
func (d *Device) Options() Options {
	return d.options
}

// Characteristics returns the device characteristics bits.
func (d *Device) Characteristics() uint32 {
	return d.characteristics
}

// Volume returns the mounted volume, or nil before sequencing
// publishes one.
func (d *Device) Volume() *volume.Volume {
	d.resource.Lock()
	defer d.resource.Unlock()
	return d.volume
}

// MarkedForRemoval reports whether the device is being torn down. A
// mount event arriving after this is set is a duplicate or late event
// and must be rejected.
func (d *Device) MarkedForRemoval() bool {
	return d.markedForRemoval.Load()
}

// MarkForRemoval flags the device for teardown.
func (d *Device) MarkForRemoval() {
	d.markedForRemoval.Store(true)
}

// SecurityDescriptor returns the descriptor applied at creation time,
// if any.
func (d *Device) SecurityDescriptor() []byte {
	return d.securityDesc
}

// RefreshTimeout pushes the device's liveness deadline out by the
// given duration. Called under mount sequencing and whenever keepalive
// traffic arrives.
func (d *Device) RefreshTimeout(timeout time.Duration) {
	d.resource.Lock()
	defer d.resource.Unlock()
	d.deadline = time.Now().Add(timeout)
}

// TimeoutExpired reports whether the liveness deadline has passed.
func (d *Device) TimeoutExpired(now time.Time) bool {
	d.resource.Lock()
	defer d.resource.Unlock()
	return !d.deadline.IsZero() && now.After(d.deadline)
}

// Stop joins the device's background tasks. Safe to call on a device
// whose mount never completed.
func (d *Device) Stop() {
	if d.timeoutTask != nil {
		d.timeoutTask.Stop()
	}
	if d.gcTask != nil {
		d.gcTask.Stop()
	}
}

// IsDriveLetter reports whether a mount point names a drive letter
// ("G:" or "G:\") rather than a directory path.
func IsDriveLetter(mountPoint string) bool {
	p := strings.TrimSuffix(mountPoint, `\`)
	if len(p) != 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

package mount

import (
	"context"
	"time"

	"github.com/marmos91/ufsd/internal/logger"
	"github.com/marmos91/ufsd/internal/protocol/fsctl/types"
	"github.com/marmos91/ufsd/internal/volume"
	"github.com/marmos91/ufsd/pkg/metrics"
)

const (
	// DefaultKeepaliveTimeout is the liveness window granted to a
	// freshly mounted device before keepalive traffic must arrive.
	DefaultKeepaliveTimeout = 15 * time.Second

	// mountTimeoutFactor widens the first deadline set during mount
	// sequencing, giving the client time to open its keepalive handle.
	mountTimeoutFactor = 3

	// DefaultVolumeSerial is the serial number stamped on every volume.
	DefaultVolumeSerial = 0x19831116

	// DefaultVolumeLabel is used when the device supplies no label.
	DefaultVolumeLabel = "UFSD"
)

// Registrar is the host's volume/mount-point registrar. Path-based
// mount points go through arrival notification with drive-letter
// auto-assignment suspended; drive letters are created directly.
type Registrar interface {
	// SetAutoAssign enables or disables automatic drive-letter
	// assignment and returns the previous setting.
	SetAutoAssign(enabled bool) (previous bool, err error)

	// NotifyVolumeArrival announces the device to the registrar.
	NotifyVolumeArrival(deviceName string) error

	// CreateMountPoint binds a drive-letter mount point to the device.
	CreateMountPoint(mountPoint, deviceName string) error
}

// UNCProvider registers network volumes with the host's UNC
// resolution layer.
type UNCProvider interface {
	Register(deviceName, uncName string) error
}

// SecurityProvider supplies the security descriptor applied to
// network-type volume devices at creation time.
type SecurityProvider interface {
	VolumeDescriptor() ([]byte, error)
}

// NotifyFactory builds the change-notification registry for a new
// volume.
type NotifyFactory func(dev *Device) volume.NotifyRegistry

// SequencerConfig wires the sequencer's collaborators. Registrar, UNC,
// and Security are optional; steps needing an absent collaborator are
// skipped.
type SequencerConfig struct {
	Table            *Table
	Notify           NotifyFactory
	Registrar        Registrar
	UNC              UNCProvider
	Security         SecurityProvider
	Metrics          metrics.MountMetrics
	KeepaliveTimeout time.Duration
	GCInterval       time.Duration
}

// Sequencer orchestrates volume creation, mount table publication, and
// background task startup for mount events.
type Sequencer struct {
	table            *Table
	notify           NotifyFactory
	registrar        Registrar
	unc              UNCProvider
	security         SecurityProvider
	metrics          metrics.MountMetrics
	keepaliveTimeout time.Duration
	gcInterval       time.Duration
}

// NewSequencer creates a sequencer from its configuration.
func NewSequencer(cfg SequencerConfig) *Sequencer {
	if cfg.KeepaliveTimeout <= 0 {
		cfg.KeepaliveTimeout = DefaultKeepaliveTimeout
	}
	return &Sequencer{
		table:            cfg.Table,
		notify:           cfg.Notify,
		registrar:        cfg.Registrar,
		unc:              cfg.UNC,
		security:         cfg.Security,
		metrics:          cfg.Metrics,
		keepaliveTimeout: cfg.KeepaliveTimeout,
		gcInterval:       cfg.GCInterval,
	}
}

// Mount runs the mount sequence for one device. It is invoked once per
// mount event. Failures after volume creation are logged with device
// context but previously completed steps are not rolled back: the
// unmount path reconciles whatever was wired in.
func (s *Sequencer) Mount(ctx context.Context, dev *Device) types.Status {
	start := time.Now()
	status := s.mount(ctx, dev)
	if s.metrics != nil {
		s.metrics.RecordMount(time.Since(start), status.String())
		s.metrics.SetActiveVolumes(s.table.ActiveCount())
	}
	return status
}

func (s *Sequencer) mount(ctx context.Context, dev *Device) types.Status {
	if dev == nil || dev.Kind() != volume.KindDevice || dev.DeviceName() == "" {
		logger.Warn("mount event on unrecognized device")
		return types.StatusUnrecognizedVolume
	}

	if dev.MarkedForRemoval() {
		logger.Warn("mount event on device pending removal",
			logger.KeyDevice, dev.DeviceName(),
			logger.KeySessionID, dev.SessionID())
		return types.StatusDeviceRemoved
	}

	logger.Info("mounting volume",
		logger.KeyDevice, dev.DeviceName(),
		logger.KeyMountPoint, dev.MountPoint(),
		logger.KeySessionID, dev.SessionID())

	// Network volumes carry a security descriptor on the device object.
	if dev.Options().Has(OptionNetwork) && s.security != nil {
		desc, err := s.security.VolumeDescriptor()
		if err != nil {
			logger.Error("volume security descriptor unavailable",
				logger.KeyDevice, dev.DeviceName(),
				"error", err)
			return types.StatusInsufficientResources
		}
		dev.securityDesc = desc
	}

	label := dev.Label()
	if label == "" {
		label = DefaultVolumeLabel
	}
	var notify volume.NotifyRegistry
	if s.notify != nil {
		notify = s.notify(dev)
	}
	vol := volume.New(volume.Params{
		Device:          dev,
		Notify:          notify,
		UserModeLocking: dev.Options().Has(OptionUserModeLocking),
		GCInterval:      s.gcInterval,
		Label:           label,
		Serial:          DefaultVolumeSerial,
	})

	if s.gcInterval > 0 {
		dev.gcTask = NewCollector(vol, s.gcInterval, s.metrics)
		dev.gcTask.Start(ctx)
	}

	vol.SetDirectIO(true)
	vol.FinishInitializing()
	vol.SetMounted(true)

	// Publish under the device resource lock so a concurrent removal of
	// the same device serializes against us.
	dev.resource.Lock()
	entry, ok := s.table.Activate(dev.DeviceName(), dev.SessionID(), vol, dev.Options())
	if ok {
		dev.volume = vol
	}
	dev.resource.Unlock()
	if !ok {
		logger.Warn("no pending mount table entry, volume left unpublished",
			logger.KeyDevice, dev.DeviceName(),
			logger.KeySessionID, dev.SessionID())
		if dev.gcTask != nil {
			dev.gcTask.Stop()
		}
		return types.StatusDeviceRemoved
	}

	dev.RefreshTimeout(mountTimeoutFactor * s.keepaliveTimeout)
	dev.timeoutTask = NewTimeoutChecker(dev, s.keepaliveTimeout, s.metrics)
	dev.timeoutTask.Start(ctx)

	s.announceMountPoint(dev)

	if dev.Options().Has(OptionNetwork) && s.unc != nil && dev.UNCName() != "" {
		if err := s.unc.Register(dev.DeviceName(), dev.UNCName()); err != nil {
			logger.Error("UNC provider registration failed",
				logger.KeyDevice, dev.DeviceName(),
				"unc", dev.UNCName(),
				"error", err)
		}
	}

	logger.Info("volume mounted",
		logger.KeyDevice, dev.DeviceName(),
		logger.KeyMountPoint, dev.MountPoint(),
		"options", uint32(entry.Options))
	return types.StatusSuccess
}

// Unmount tears down a mounted device: background tasks are joined,
// the mount point marker is cleared when the registrar can remove it,
// and the mount table entry is dropped. Safe to call on a device whose
// mount never completed.
func (s *Sequencer) Unmount(dev *Device) {
	if dev == nil {
		return
	}

	dev.MarkForRemoval()
	dev.Stop()

	if remover, ok := s.registrar.(MountPointRemover); ok && dev.MountPoint() != "" {
		if err := remover.RemoveMountPoint(dev.MountPoint()); err != nil {
			logger.Error("mount point removal failed",
				logger.KeyDevice, dev.DeviceName(),
				logger.KeyMountPoint, dev.MountPoint(),
				"error", err)
		}
	}

	dev.resource.Lock()
	vol := dev.volume
	dev.volume = nil
	dev.resource.Unlock()
	if vol != nil {
		vol.SetMounted(false)
	}

	s.table.Remove(dev.DeviceName(), dev.SessionID())
	if s.metrics != nil {
		s.metrics.SetActiveVolumes(s.table.ActiveCount())
	}

	logger.Info("volume unmounted",
		logger.KeyDevice, dev.DeviceName(),
		logger.KeyMountPoint, dev.MountPoint())
}

// announceMountPoint surfaces the volume at its mount point through
// the registrar. Failures here leave the volume mounted but unexposed;
// they are logged, not propagated.
func (s *Sequencer) announceMountPoint(dev *Device) {
	if s.registrar == nil {
		return
	}

	if IsDriveLetter(dev.MountPoint()) {
		if err := s.registrar.CreateMountPoint(dev.MountPoint(), dev.DeviceName()); err != nil {
			logger.Error("mount point creation failed",
				logger.KeyDevice, dev.DeviceName(),
				logger.KeyMountPoint, dev.MountPoint(),
				"error", err)
		}
		return
	}

	// Path-based mount point: announce arrival with drive-letter
	// auto-assignment suspended so the registrar does not grab a
	// letter for us, then restore the previous setting.
	previous, err := s.registrar.SetAutoAssign(false)
	if err != nil {
		logger.Error("suspending drive letter auto-assignment failed",
			logger.KeyDevice, dev.DeviceName(),
			"error", err)
		return
	}
	if err := s.registrar.NotifyVolumeArrival(dev.DeviceName()); err != nil {
		logger.Error("volume arrival notification failed",
			logger.KeyDevice, dev.DeviceName(),
			"error", err)
	}
	if _, err := s.registrar.SetAutoAssign(previous); err != nil {
		logger.Error("restoring drive letter auto-assignment failed",
			logger.KeyDevice, dev.DeviceName(),
			"error", err)
	}
}

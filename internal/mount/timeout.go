package mount

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/ufsd/internal/logger"
	"github.com/marmos91/ufsd/pkg/metrics"
)

// TimeoutChecker watches one device's liveness deadline. When the
// deadline passes without keepalive traffic the device is marked for
// removal and the checker exits; teardown proper belongs to the
// unmount path.
type TimeoutChecker struct {
	dev      *Device
	timeout  time.Duration
	interval time.Duration
	metrics  metrics.MountMetrics

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewTimeoutChecker creates a checker polling at half the keepalive
// timeout, so a stale device is caught within one grace period.
func NewTimeoutChecker(dev *Device, keepaliveTimeout time.Duration, m metrics.MountMetrics) *TimeoutChecker {
	if keepaliveTimeout <= 0 {
		keepaliveTimeout = DefaultKeepaliveTimeout
	}
	return &TimeoutChecker{
		dev:      dev,
		timeout:  keepaliveTimeout,
		interval: keepaliveTimeout / 2,
		metrics:  m,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start spawns the checker loop. The loop also exits when ctx is
// cancelled.
func (c *TimeoutChecker) Start(ctx context.Context) {
	go c.run(ctx)
}

// Stop signals the loop and waits for it to exit. Idempotent.
func (c *TimeoutChecker) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

func (c *TimeoutChecker) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case now := <-ticker.C:
			// An active keepalive handle is the liveness signal
			// itself: push the deadline so the device gets a full
			// window once the handle closes.
			if vol := c.dev.Volume(); vol != nil && vol.KeepaliveActive() {
				c.dev.RefreshTimeout(c.timeout)
				continue
			}
			if !c.dev.TimeoutExpired(now) {
				continue
			}
			logger.Warn("device keepalive expired, marking for removal",
				logger.KeyDevice, c.dev.DeviceName(),
				logger.KeySessionID, c.dev.SessionID())
			c.dev.MarkForRemoval()
			if c.metrics != nil {
				c.metrics.RecordKeepaliveExpired()
			}
			return
		}
	}
}

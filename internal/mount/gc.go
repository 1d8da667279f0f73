package mount

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/ufsd/internal/logger"
	"github.com/marmos91/ufsd/internal/volume"
	"github.com/marmos91/ufsd/pkg/metrics"
)

// Collector is a volume's node garbage collector. It only runs when a
// nonzero collection interval is configured; otherwise retired nodes
// are freed inline and no collector exists.
type Collector struct {
	vol      *volume.Volume
	interval time.Duration
	metrics  metrics.MountMetrics

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewCollector creates a collector for the volume's garbage list.
func NewCollector(vol *volume.Volume, interval time.Duration, m metrics.MountMetrics) *Collector {
	return &Collector{
		vol:      vol,
		interval: interval,
		metrics:  m,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start spawns the collection loop.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

// Stop signals the loop and waits for it to exit, draining the
// garbage list one final time. Idempotent.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	defer c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *Collector) collect() {
	n := c.vol.CollectGarbage()
	if n == 0 {
		return
	}
	logger.Debug("collected retired nodes",
		logger.KeyDevice, c.vol.Device().DeviceName(),
		"nodes", n)
	if c.metrics != nil {
		c.metrics.RecordNodesCollected(n)
	}
}

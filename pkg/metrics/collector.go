package metrics

import (
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/types"
)

// Source exposes the supervisor's process records
type Source interface {
	Records(role types.Role) []types.ProcessRecord
}

// Collector periodically publishes process gauges from a Source
type Collector struct {
	source   Source
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a new metrics collector
func NewCollector(source Source, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Collect refreshes the process gauges once
func (c *Collector) Collect() {
	counts := make(map[types.Role]map[types.Status]int)
	for _, role := range []types.Role{types.RoleAgent, types.RoleWorker} {
		counts[role] = make(map[types.Status]int)
		for _, rec := range c.source.Records(role) {
			counts[role][rec.Status]++
		}
	}

	// Stale label pairs would otherwise keep their last value
	ProcessesTotal.Reset()
	for role, statuses := range counts {
		for status, count := range statuses {
			ProcessesTotal.WithLabelValues(string(role), status.String()).Set(float64(count))
		}
	}
}

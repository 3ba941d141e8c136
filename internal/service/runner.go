package service

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultTickInterval = 1 * time.Second

// Runner drives every registered agent's countdown on one wall-clock ticker.
// Each pass hands the loops the real elapsed time, so agents keep honest
// cadence even when a pass is delayed.
type Runner struct {
	registry *Registry
	logger   *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewRunner(registry *Registry, logger *zap.Logger) *Runner {
	return &Runner{
		registry: registry,
		logger:   logger,
		interval: defaultTickInterval,
		stopCh:   make(chan struct{}),
	}
}

func (r *Runner) SetInterval(d time.Duration) {
	r.interval = d
}

// Start runs the tick loop in a background goroutine.
func (r *Runner) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.logger.Info("agent runner started", zap.Duration("interval", r.interval))

		last := time.Now()
		for {
			select {
			case now := <-ticker.C:
				delta := now.Sub(last).Seconds()
				last = now
				for _, a := range r.registry.All() {
					a.Loop.Tick(delta)
				}
			case <-r.stopCh:
				r.logger.Info("agent runner stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the runner.
func (r *Runner) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

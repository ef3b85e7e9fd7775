// internal/commissioning/progress.go
package commissioning

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// MaxProgress is the value at which the ticker stops on its own
const MaxProgress = 100

// ProgressReporter is a time-based liveness ticker. It counts from 0 to
// MaxProgress at a fixed interval and knows nothing about the work it
// accompanies. The ticker never blocks on its consumer.
type ProgressReporter struct {
	interval time.Duration

	value   atomic.Int32
	stopped atomic.Bool

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	updates   chan int
	done      chan struct{}
}

// NewProgressReporter creates a reporter ticking at interval
func NewProgressReporter(interval time.Duration) *ProgressReporter {
	return &ProgressReporter{
		interval: interval,
		stopCh:   make(chan struct{}),
		updates:  make(chan int, MaxProgress+1),
		done:     make(chan struct{}),
	}
}

// Start launches the ticker. Later calls are no-ops.
func (p *ProgressReporter) Start() {
	p.startOnce.Do(func() {
		go p.run()
	})
}

// Stop asks the ticker to exit. Safe to call repeatedly and from any goroutine.
func (p *ProgressReporter) Stop() {
	p.stopped.Store(true)
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
}

// Value returns the current count
func (p *ProgressReporter) Value() int {
	return int(p.value.Load())
}

// Updates streams every new value. Closed when the ticker exits.
func (p *ProgressReporter) Updates() <-chan int {
	return p.updates
}

// Done is closed when the ticker has exited
func (p *ProgressReporter) Done() <-chan struct{} {
	return p.done
}

func (p *ProgressReporter) run() {
	defer close(p.done)
	defer close(p.updates)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for !p.stopped.Load() && p.value.Load() < MaxProgress {
		select {
		case <-ticker.C:
		case <-p.stopCh:
			return
		}

		if p.stopped.Load() {
			return
		}

		v := int(p.value.Inc())
		select {
		case p.updates <- v:
		default:
		}
	}
}

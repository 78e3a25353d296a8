package services

import (
	"sync"
	"time"
)

// PulseScheduler applies the transient highlight to an element and reverts
// it after a fixed duration. Pending reverts are tracked per element.
//
// By default every pulse schedules its own independent revert, so
// overlapping pulses on one element let the earliest revert clear the
// highlight. With cancelStale the pending revert is stopped first and only
// the newest one runs.
type PulseScheduler struct {
	display     Display
	scheduler   Scheduler
	duration    time.Duration
	cancelStale bool

	mu      sync.Mutex
	nextID  uint64
	pending map[string]map[uint64]Task
	stopped bool
}

// NewPulseScheduler creates a pulse scheduler.
func NewPulseScheduler(display Display, scheduler Scheduler, duration time.Duration, cancelStale bool) *PulseScheduler {
	if scheduler == nil {
		scheduler = RealScheduler{}
	}
	return &PulseScheduler{
		display:     display,
		scheduler:   scheduler,
		duration:    duration,
		cancelStale: cancelStale,
		pending:     make(map[string]map[uint64]Task),
	}
}

// Pulse highlights elementID and schedules the revert. It never blocks.
func (p *PulseScheduler) Pulse(elementID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	if p.cancelStale {
		p.cancelLocked(elementID)
	}

	p.display.SetPulse(elementID, true)

	p.nextID++
	id := p.nextID
	tasks, ok := p.pending[elementID]
	if !ok {
		tasks = make(map[uint64]Task)
		p.pending[elementID] = tasks
	}
	tasks[id] = p.scheduler.AfterFunc(p.duration, func() {
		p.revert(elementID, id)
	})
}

// revert clears the highlight unless the task was cancelled meanwhile.
func (p *PulseScheduler) revert(elementID string, id uint64) {
	p.mu.Lock()
	tasks := p.pending[elementID]
	if _, ok := tasks[id]; !ok {
		p.mu.Unlock()
		return
	}
	delete(tasks, id)
	p.mu.Unlock()

	p.display.SetPulse(elementID, false)
}

// Cancel drops every pending revert of elementID without reverting.
func (p *PulseScheduler) Cancel(elementID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked(elementID)
}

func (p *PulseScheduler) cancelLocked(elementID string) {
	for id, task := range p.pending[elementID] {
		task.Stop()
		delete(p.pending[elementID], id)
	}
}

// Pending returns the number of reverts still scheduled for elementID.
func (p *PulseScheduler) Pending(elementID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending[elementID])
}

// Stop abandons all pending reverts. Later pulses are ignored.
func (p *PulseScheduler) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	for elementID := range p.pending {
		p.cancelLocked(elementID)
	}
}

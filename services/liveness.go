package services

import (
	"context"
	"sync"
	"time"

	"sensorboard/models"

	"go.uber.org/zap"
)

// LivenessMonitor is the one-shot readiness gate armed when the session
// succeeds. When the window elapses it either enables the toggle or raises
// the offline notice. It never re-arms.
type LivenessMonitor struct {
	flag      *LivenessFlag
	display   Display
	notifier  Notifier
	scheduler Scheduler
	window    time.Duration
	logger    *zap.Logger

	mu      sync.RWMutex
	state   models.LivenessState
	started bool
	done    chan struct{}
	task    Task
}

// NewLivenessMonitor creates a monitor in the pending state.
func NewLivenessMonitor(flag *LivenessFlag, display Display, notifier Notifier, scheduler Scheduler, window time.Duration, logger *zap.Logger) *LivenessMonitor {
	if scheduler == nil {
		scheduler = RealScheduler{}
	}
	return &LivenessMonitor{
		flag:      flag,
		display:   display,
		notifier:  notifier,
		scheduler: scheduler,
		window:    window,
		logger:    logger,
		state:     models.LivenessPending,
		done:      make(chan struct{}),
	}
}

// Start arms the timer. Only the first call has an effect.
func (m *LivenessMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	m.logger.Info("Starting liveness check", zap.Duration("window", m.window))
	m.task = m.scheduler.AfterFunc(m.window, m.expire)
}

// expire inspects the flag once and resolves the gate.
func (m *LivenessMonitor) expire() {
	online := m.flag.Seen()

	m.mu.Lock()
	if m.state.Resolved() {
		m.mu.Unlock()
		return
	}
	if online {
		m.state = models.LivenessOnline
	} else {
		m.state = models.LivenessOffline
	}
	m.mu.Unlock()

	if online {
		m.logger.Info("Sensor online, enabling control toggle")
		m.display.SetToggle(true)
	} else {
		m.logger.Warn("No telemetry within liveness window, sensor offline",
			zap.Duration("window", m.window))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := m.notifier.Notify(ctx, models.OfflineNotice()); err != nil {
			m.logger.Error("Failed to deliver offline notice", zap.Error(err))
		}
		cancel()
	}

	close(m.done)
}

// State returns the current gate state.
func (m *LivenessMonitor) State() models.LivenessState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Done is closed once the gate resolved.
func (m *LivenessMonitor) Done() <-chan struct{} {
	return m.done
}

// Stop abandons a pending check, as on page teardown.
func (m *LivenessMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.task != nil {
		m.task.Stop()
	}
}

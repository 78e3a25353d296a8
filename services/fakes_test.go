package services

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"sensorboard/models"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func testLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// manualScheduler fires callbacks only when the test advances time.
type manualScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	s       *manualScheduler
	at      time.Duration
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTask) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &manualTask{s: s, at: s.now + d, seq: s.seq, f: f}
	s.tasks = append(s.tasks, t)
	return t
}

// Advance moves time forward and runs every task that became due, in
// deadline order.
func (s *manualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		var due []*manualTask
		for _, t := range s.tasks {
			if !t.stopped && !t.fired && t.at <= target {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			s.now = target
			s.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at != due[j].at {
				return due[i].at < due[j].at
			}
			return due[i].seq < due[j].seq
		})
		next := due[0]
		next.fired = true
		s.now = next.at
		s.mu.Unlock()

		next.f()
	}
}

// Pending returns the number of tasks that have neither fired nor been stopped.
func (s *manualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// displayCall is one recorded Display operation.
type displayCall struct {
	Op      string
	Element string
	Text    string
	Active  bool
	Notice  models.Notice
}

// recordingDisplay records every Display call in order.
type recordingDisplay struct {
	mu    sync.Mutex
	calls []displayCall
}

func (d *recordingDisplay) SetText(elementID, text string) {
	d.record(displayCall{Op: "text", Element: elementID, Text: text})
}

func (d *recordingDisplay) SetPulse(elementID string, active bool) {
	d.record(displayCall{Op: "pulse", Element: elementID, Active: active})
}

func (d *recordingDisplay) SetToggle(enabled bool) {
	d.record(displayCall{Op: "toggle", Active: enabled})
}

func (d *recordingDisplay) ShowNotice(notice models.Notice) {
	d.record(displayCall{Op: "notice", Notice: notice})
}

func (d *recordingDisplay) record(c displayCall) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, c)
}

func (d *recordingDisplay) Calls() []displayCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]displayCall, len(d.calls))
	copy(out, d.calls)
	return out
}

func (d *recordingDisplay) Ops(op string) []displayCall {
	var out []displayCall
	for _, c := range d.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// recordingNotifier records delivered notices.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []models.Notice
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, notice models.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func (n *recordingNotifier) Notices() []models.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.Notice, len(n.notices))
	copy(out, n.notices)
	return out
}

// fakeSession is an in-memory Session. Connect records the options and,
// unless connectErr is set, runs OnSuccess synchronously.
type fakeSession struct {
	mu         sync.Mutex
	events     []string
	opts       ConnectOptions
	handler    MessageHandler
	lost       func(models.ConnectionLost)
	filters    []string
	published  map[string][]string
	connected  bool
	connectErr error
	subErr     error
	publishErr error
	closed     bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{published: make(map[string][]string)}
}

func (s *fakeSession) OnConnectionLost(fn func(models.ConnectionLost)) {
	s.mu.Lock()
	s.events = append(s.events, "onConnectionLost")
	s.lost = fn
	s.mu.Unlock()
}

func (s *fakeSession) OnMessage(h MessageHandler) {
	s.mu.Lock()
	s.events = append(s.events, "onMessage")
	s.handler = h
	s.mu.Unlock()
}

func (s *fakeSession) Connect(_ context.Context, opts ConnectOptions) error {
	s.mu.Lock()
	s.events = append(s.events, "connect")
	s.opts = opts
	if s.connectErr != nil {
		err := s.connectErr
		s.mu.Unlock()
		return err
	}
	s.connected = true
	s.mu.Unlock()

	if opts.OnSuccess != nil {
		opts.OnSuccess()
	}
	return nil
}

func (s *fakeSession) Subscribe(_ context.Context, filter string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "subscribe")
	if !s.connected {
		return ErrNotConnected
	}
	if s.subErr != nil {
		return s.subErr
	}
	s.filters = append(s.filters, filter)
	return nil
}

func (s *fakeSession) Publish(_ context.Context, topic string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	if s.publishErr != nil {
		return s.publishErr
	}
	s.published[topic] = append(s.published[topic], string(payload))
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.connected = false
	return nil
}

// Deliver pushes an inbound message through the registered handler.
func (s *fakeSession) Deliver(topic, payload string) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h != nil {
		h.HandleMessage(models.Message{Topic: topic, Payload: payload, Received: time.Now()})
	}
}

// Lose fires the registered connection-lost callback.
func (s *fakeSession) Lose(lost models.ConnectionLost) {
	s.mu.Lock()
	fn := s.lost
	s.mu.Unlock()
	if fn != nil {
		fn(lost)
	}
}

func (s *fakeSession) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	copy(out, s.events)
	return out
}

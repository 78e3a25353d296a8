package services

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"sensorboard/config"
	"sensorboard/models"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type connFixture struct {
	cfg      *config.Config
	session  *fakeSession
	display  *recordingDisplay
	notifier *recordingNotifier
	sched    *manualScheduler
	flag     *LivenessFlag
	monitor  *LivenessMonitor
	logs     *observer.ObservedLogs
	mgr      *ConnectionManager
}

func newConnFixture(t *testing.T, origin string) *connFixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	f := &connFixture{
		cfg: &config.Config{
			PanelOrigin:      origin,
			BrokerHost:       "mqtt.flespi.io",
			BrokerSecurePort: 443,
			BrokerPlainPort:  80,
			BrokerPath:       "/mqtt",
			BrokerUsername:   "token-abc",
			ClientIDPrefix:   "client-id-",
			SubscribeFilter:  "node/#",
			LivenessWindow:   3 * time.Second,
			PulseDuration:    500 * time.Millisecond,
		},
		session:  newFakeSession(),
		display:  &recordingDisplay{},
		notifier: &recordingNotifier{},
		sched:    &manualScheduler{},
		flag:     &LivenessFlag{},
		logs:     logs,
	}
	f.monitor = NewLivenessMonitor(f.flag, f.display, f.notifier, f.sched, f.cfg.LivenessWindow, logger)
	pulses := NewPulseScheduler(f.display, f.sched, f.cfg.PulseDuration, false)
	router := NewTelemetryRouter(f.display, pulses, f.flag, logger)
	f.mgr = NewConnectionManager(f.cfg, f.session, router, f.monitor, f.display, logger, rand.New(rand.NewSource(1)))
	return f
}

func TestConnectionManager_Options(t *testing.T) {
	tests := []struct {
		origin string
		secure bool
		port   int
	}{
		{"http://localhost:8080", false, 80},
		{"https://example.io", true, 443},
		{"file:///srv/panel/index.html", false, 80},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			f := newConnFixture(t, tt.origin)
			opts := f.mgr.Options()
			if opts.UseSecure != tt.secure || opts.Port != tt.port {
				t.Errorf("secure/port = %v/%d, want %v/%d", opts.UseSecure, opts.Port, tt.secure, tt.port)
			}
			if opts.Host != "mqtt.flespi.io" || opts.Path != "/mqtt" {
				t.Errorf("host/path = %s/%s", opts.Host, opts.Path)
			}
			if opts.Username != "token-abc" || opts.Password != "" {
				t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
			}
			if !strings.HasPrefix(opts.ClientID, "client-id-") {
				t.Errorf("ClientID = %q", opts.ClientID)
			}
		})
	}
}

func TestConnectionManager_StartOrder(t *testing.T) {
	f := newConnFixture(t, "https://example.io")

	if err := f.mgr.Start(t.Context()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	events := f.session.Events()
	want := []string{"onConnectionLost", "onMessage", "connect", "subscribe"}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Errorf("session events = %v, want %v", events, want)
	}

	calls := f.display.Calls()
	if len(calls) == 0 || calls[0].Op != "toggle" || calls[0].Active {
		t.Errorf("first display call = %+v, want toggle disabled", calls)
	}

	if len(f.session.filters) != 1 || f.session.filters[0] != "node/#" {
		t.Errorf("filters = %v, want [node/#]", f.session.filters)
	}

	select {
	case err := <-f.mgr.Subscribed():
		if err != nil {
			t.Errorf("Subscribed() = %v", err)
		}
	default:
		t.Error("Subscribed() should have a result")
	}

	if n := f.sched.Pending(); n != 1 {
		t.Errorf("liveness timers = %d, want 1", n)
	}
}

func TestConnectionManager_EndToEndOnline(t *testing.T) {
	f := newConnFixture(t, "https://example.io")
	if err := f.mgr.Start(t.Context()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	f.session.Deliver("node/temperature", "21.5")
	f.sched.Advance(3 * time.Second)

	if f.monitor.State() != models.LivenessOnline {
		t.Fatalf("State = %s, want online", f.monitor.State())
	}
	toggles := f.display.Ops("toggle")
	if len(toggles) != 2 || !toggles[1].Active {
		t.Errorf("toggles = %+v, want disable then enable", toggles)
	}
}

func TestConnectionManager_EndToEndOffline(t *testing.T) {
	f := newConnFixture(t, "https://example.io")
	if err := f.mgr.Start(t.Context()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	f.sched.Advance(3 * time.Second)

	if f.monitor.State() != models.LivenessOffline {
		t.Fatalf("State = %s, want offline", f.monitor.State())
	}
	if n := len(f.notifier.Notices()); n != 1 {
		t.Errorf("notices = %d, want 1", n)
	}
}

func TestConnectionManager_ConnectFailure(t *testing.T) {
	f := newConnFixture(t, "https://example.io")
	f.session.connectErr = errors.New("dial failed")

	if err := f.mgr.Start(t.Context()); err == nil {
		t.Fatal("Start() should fail")
	}

	f.sched.Advance(10 * time.Second)
	if f.monitor.State() != models.LivenessPending {
		t.Errorf("State = %s, want pending without a session", f.monitor.State())
	}
	for _, c := range f.display.Ops("toggle") {
		if c.Active {
			t.Error("toggle must stay disabled")
		}
	}
	if n := len(f.notifier.Notices()); n != 0 {
		t.Errorf("notices = %d, want none", n)
	}
}

func TestConnectionManager_SubscribeFailureStillArmsMonitor(t *testing.T) {
	f := newConnFixture(t, "https://example.io")
	f.session.subErr = errors.New("not authorized")

	if err := f.mgr.Start(t.Context()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := <-f.mgr.Subscribed(); err == nil {
		t.Error("Subscribed() should report the failure")
	}

	f.sched.Advance(3 * time.Second)
	if f.monitor.State() != models.LivenessOffline {
		t.Errorf("State = %s, want offline", f.monitor.State())
	}
}

func TestConnectionManager_RepeatedSuccess(t *testing.T) {
	f := newConnFixture(t, "https://example.io")
	if err := f.mgr.Start(t.Context()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	// A reconnecting transport reports success again.
	f.session.opts.OnSuccess()

	if n := len(f.session.filters); n != 1 {
		t.Errorf("subscriptions = %d, want 1", n)
	}
	if n := f.sched.Pending(); n != 1 {
		t.Errorf("liveness timers = %d, want 1", n)
	}
}

func TestConnectionManager_ConnectionLostLogging(t *testing.T) {
	f := newConnFixture(t, "https://example.io")
	if err := f.mgr.Start(t.Context()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	f.session.Lose(models.ConnectionLost{Code: 0})
	if n := f.logs.FilterMessage("onConnectionLost").Len(); n != 0 {
		t.Errorf("code 0 produced %d warnings", n)
	}
	if n := f.logs.FilterMessage("Broker connection lost").Len(); n != 1 {
		t.Errorf("info entries = %d, want 1", n)
	}

	f.session.Lose(models.ConnectionLost{Code: 7, Message: "socket closed"})
	entries := f.logs.FilterMessage("onConnectionLost").All()
	if len(entries) != 1 {
		t.Fatalf("warnings = %d, want 1", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Errorf("level = %s, want warn", entries[0].Level)
	}
	if got := entries[0].ContextMap()["message"]; got != "socket closed" {
		t.Errorf("message field = %v", got)
	}

	// No recovery is attempted.
	events := f.session.Events()
	if n := strings.Count(strings.Join(events, ","), "connect"); n != 1 {
		t.Errorf("connect attempts = %d, want 1", n)
	}
}

func TestConnectionManager_PublishAndClose(t *testing.T) {
	f := newConnFixture(t, "https://example.io")

	if err := f.mgr.Publish(t.Context(), "node/led", []byte("on")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish before Start = %v, want ErrNotConnected", err)
	}

	if err := f.mgr.Start(t.Context()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := f.mgr.Publish(t.Context(), "node/led", []byte("on")); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if got := f.session.published["node/led"]; len(got) != 1 || got[0] != "on" {
		t.Errorf("published = %v", got)
	}

	if err := f.mgr.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !f.session.closed {
		t.Error("session should be closed")
	}
	f.sched.Advance(10 * time.Second)
	if f.monitor.State() != models.LivenessPending {
		t.Errorf("State = %s, want pending after Close", f.monitor.State())
	}
}

// stalledSession never completes a subscribe until its context ends.
type stalledSession struct {
	*fakeSession
	started chan struct{}
}

func (s *stalledSession) Subscribe(ctx context.Context, filter string) error {
	close(s.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestConnectionManager_StalledSubscribeDoesNotDelayMonitor(t *testing.T) {
	f := newConnFixture(t, "https://example.io")
	session := &stalledSession{fakeSession: f.session, started: make(chan struct{})}
	f.mgr.session = session
	f.mgr.subscribeTimeout = 10 * time.Millisecond

	errc := make(chan error, 1)
	go func() { errc <- f.mgr.Start(t.Context()) }()

	select {
	case <-session.started:
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe not attempted")
	}
	if n := f.sched.Pending(); n != 1 {
		t.Fatalf("liveness timers while subscribe is pending = %d, want 1", n)
	}

	if err := <-errc; err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := <-f.mgr.Subscribed(); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Subscribed() = %v, want deadline exceeded", err)
	}

	f.sched.Advance(3 * time.Second)
	if f.monitor.State() != models.LivenessOffline {
		t.Fatalf("State = %s, want offline", f.monitor.State())
	}
	if n := len(f.notifier.Notices()); n != 1 {
		t.Errorf("notices = %d, want 1", n)
	}
}

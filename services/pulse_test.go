package services

import (
	"testing"
	"time"
)

func pulseStates(d *recordingDisplay) []bool {
	var out []bool
	for _, c := range d.Ops("pulse") {
		out = append(out, c.Active)
	}
	return out
}

func equalBools(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPulseScheduler_IndependentReverts(t *testing.T) {
	display := &recordingDisplay{}
	sched := &manualScheduler{}
	p := NewPulseScheduler(display, sched, 500*time.Millisecond, false)

	p.Pulse("humidity")
	sched.Advance(300 * time.Millisecond)
	p.Pulse("humidity")

	if n := p.Pending("humidity"); n != 2 {
		t.Fatalf("Pending = %d, want 2", n)
	}

	// The first revert clears the highlight while the second pulse is still running.
	sched.Advance(200 * time.Millisecond)
	if got, want := pulseStates(display), []bool{true, true, false}; !equalBools(got, want) {
		t.Fatalf("pulse states = %v, want %v", got, want)
	}

	sched.Advance(300 * time.Millisecond)
	if got, want := pulseStates(display), []bool{true, true, false, false}; !equalBools(got, want) {
		t.Fatalf("pulse states = %v, want %v", got, want)
	}
	if n := p.Pending("humidity"); n != 0 {
		t.Errorf("Pending = %d, want 0", n)
	}
}

func TestPulseScheduler_CancelStale(t *testing.T) {
	display := &recordingDisplay{}
	sched := &manualScheduler{}
	p := NewPulseScheduler(display, sched, 500*time.Millisecond, true)

	p.Pulse("humidity")
	sched.Advance(300 * time.Millisecond)
	p.Pulse("humidity")

	if n := p.Pending("humidity"); n != 1 {
		t.Fatalf("Pending = %d, want 1", n)
	}

	sched.Advance(200 * time.Millisecond)
	if got, want := pulseStates(display), []bool{true, true}; !equalBools(got, want) {
		t.Fatalf("stale revert ran: states = %v, want %v", got, want)
	}

	sched.Advance(300 * time.Millisecond)
	if got, want := pulseStates(display), []bool{true, true, false}; !equalBools(got, want) {
		t.Fatalf("pulse states = %v, want %v", got, want)
	}
}

func TestPulseScheduler_ElementsIndependent(t *testing.T) {
	display := &recordingDisplay{}
	sched := &manualScheduler{}
	p := NewPulseScheduler(display, sched, 500*time.Millisecond, true)

	p.Pulse("temperature")
	p.Pulse("battery")

	if p.Pending("temperature") != 1 || p.Pending("battery") != 1 {
		t.Fatal("each element should keep its own revert")
	}

	sched.Advance(500 * time.Millisecond)
	var reverted []string
	for _, c := range display.Ops("pulse") {
		if !c.Active {
			reverted = append(reverted, c.Element)
		}
	}
	if len(reverted) != 2 {
		t.Errorf("reverted = %v, want both elements", reverted)
	}
}

func TestPulseScheduler_Cancel(t *testing.T) {
	display := &recordingDisplay{}
	sched := &manualScheduler{}
	p := NewPulseScheduler(display, sched, 500*time.Millisecond, false)

	p.Pulse("battery")
	p.Cancel("battery")
	sched.Advance(time.Second)

	if got, want := pulseStates(display), []bool{true}; !equalBools(got, want) {
		t.Errorf("pulse states = %v, want %v", got, want)
	}
}

func TestPulseScheduler_Stop(t *testing.T) {
	display := &recordingDisplay{}
	sched := &manualScheduler{}
	p := NewPulseScheduler(display, sched, 500*time.Millisecond, false)

	p.Pulse("temperature")
	p.Stop()
	p.Pulse("temperature")
	sched.Advance(time.Second)

	if got, want := pulseStates(display), []bool{true}; !equalBools(got, want) {
		t.Errorf("pulse states = %v, want %v", got, want)
	}
	if n := sched.Pending(); n != 0 {
		t.Errorf("scheduler pending = %d, want 0", n)
	}
}

package control

import "testing"

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"ready", "running", "stop", "sleeping", "exit"} {
		if _, err := ParseStatus(s); err != nil {
			t.Fatalf("ParseStatus(%q): %v", s, err)
		}
	}
	if _, err := ParseStatus("paused"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestOperatorTransitionTable(t *testing.T) {
	valid := []struct{ from, to Status }{
		{StatusReady, StatusRunning},
		{StatusSleeping, StatusRunning},
		{StatusRunning, StatusStop},
		{StatusSleeping, StatusStop},
		{StatusStop, StatusReady},
		{StatusReady, StatusExit},
		{StatusRunning, StatusExit},
		{StatusSleeping, StatusExit},
		{StatusStop, StatusExit},
		{StatusExit, StatusReady},
	}
	for _, e := range valid {
		if !CanTransition(e.from, e.to) {
			t.Errorf("expected %s -> %s to be permitted", e.from, e.to)
		}
	}
	invalid := []struct{ from, to Status }{
		{StatusReady, StatusStop},
		{StatusReady, StatusSleeping},
		{StatusRunning, StatusReady},
		{StatusRunning, StatusSleeping},
		{StatusStop, StatusRunning},
		{StatusStop, StatusSleeping},
		{StatusExit, StatusRunning},
		{StatusExit, StatusStop},
	}
	for _, e := range invalid {
		if CanTransition(e.from, e.to) {
			t.Errorf("expected %s -> %s to be rejected", e.from, e.to)
		}
	}
}

func TestTransitionNoOpAlwaysPermitted(t *testing.T) {
	for _, s := range []Status{StatusReady, StatusRunning, StatusStop, StatusSleeping, StatusExit} {
		if !CanTransition(s, s) {
			t.Errorf("no-op transition from %s should be permitted", s)
		}
	}
}

func TestHeartbeatTransitionTable(t *testing.T) {
	for _, s := range []Status{StatusReady, StatusRunning, StatusStop, StatusSleeping} {
		if !CanHeartbeatTransition(s, StatusExit) {
			t.Errorf("expected heartbeat %s -> exit to be permitted", s)
		}
		if CanHeartbeatTransition(s, StatusRunning) && s != StatusRunning {
			t.Errorf("heartbeat %s -> running must be rejected", s)
		}
	}
	// a faulted setup never recovers through the heartbeat path
	if CanHeartbeatTransition(StatusExit, StatusReady) {
		t.Fatalf("heartbeat exit -> ready must be rejected")
	}
}

package control

import (
	"testing"
	"time"
)

func TestHubSubscribeCancel(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(1)

	h.publish(Update{Kind: UpdateOperator, Record: SetupRecord{Setup: "rig01"}})
	select {
	case u := <-ch:
		if u.Record.Setup != "rig01" {
			t.Fatalf("unexpected update: %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed after cancel")
	}
	// cancel is safe to call twice
	cancel()
}

func TestHubDropsWhenSubscriberLags(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(1)
	defer cancel()

	h.publish(Update{Record: SetupRecord{Setup: "first"}})
	h.publish(Update{Record: SetupRecord{Setup: "second"}}) // dropped, buffer full

	u := <-ch
	if u.Record.Setup != "first" {
		t.Fatalf("got %q, want first", u.Record.Setup)
	}
	select {
	case u := <-ch:
		t.Fatalf("unexpected second update: %+v", u)
	default:
	}
}

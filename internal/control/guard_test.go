package control

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/labops/rigctl/internal/history"
)

// memStore is an in-memory Store for guard tests.
type memStore struct {
	mu   sync.Mutex
	recs map[string]SetupRecord

	saveErr error
}

func newMemStore(recs ...SetupRecord) *memStore {
	m := &memStore{recs: make(map[string]SetupRecord)}
	for _, r := range recs {
		m.recs[r.Setup] = r
	}
	return m
}

func (m *memStore) GetSetup(_ context.Context, setup string) (SetupRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[setup]
	if !ok {
		return SetupRecord{}, ErrNotFound
	}
	return r, nil
}

func (m *memStore) ListSetups(_ context.Context) ([]SetupRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SetupRecord, 0, len(m.recs))
	for _, r := range m.recs {
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) FilterSetups(_ context.Context, setups []string) ([]SetupRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SetupRecord
	for _, s := range setups {
		if r, ok := m.recs[s]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) SaveSetup(_ context.Context, rec SetupRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.recs[rec.Setup] = rec
	return nil
}

func strp(s string) *string { return &s }
func intp(i int) *int       { return &i }

func TestUpdateSetupTransition(t *testing.T) {
	st := newMemStore(SetupRecord{Setup: "rig01", Status: StatusReady})
	g := NewGuard(st)
	ctx := context.Background()

	// ready -> stop is not a legal edge
	if _, err := g.UpdateSetup(ctx, "rig01", FieldPatch{}, StatusStop); !IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	rec, _ := st.GetSetup(ctx, "rig01")
	if rec.Status != StatusReady {
		t.Fatalf("record mutated by rejected transition: %s", rec.Status)
	}

	if _, err := g.UpdateSetup(ctx, "rig01", FieldPatch{}, StatusRunning); err != nil {
		t.Fatalf("ready -> running: %v", err)
	}
	if _, err := g.UpdateSetup(ctx, "rig01", FieldPatch{}, StatusStop); err != nil {
		t.Fatalf("running -> stop: %v", err)
	}
	rec, _ = st.GetSetup(ctx, "rig01")
	if rec.Status != StatusStop {
		t.Fatalf("status = %s, want stop", rec.Status)
	}
}

func TestUpdateSetupAllOrNothing(t *testing.T) {
	st := newMemStore(SetupRecord{Setup: "rig01", Status: StatusReady, AnimalID: "m001"})
	g := NewGuard(st)
	ctx := context.Background()

	// invalid transition rejects the field patch in the same request
	_, err := g.UpdateSetup(ctx, "rig01", FieldPatch{AnimalID: strp("m999")}, StatusStop)
	if !IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	rec, _ := st.GetSetup(ctx, "rig01")
	if rec.AnimalID != "m001" {
		t.Fatalf("field applied despite rejected transition: %q", rec.AnimalID)
	}

	// invalid field rejects without touching the store
	_, err = g.UpdateSetup(ctx, "rig01", FieldPatch{StartTime: strp("25:99")}, "")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestUpdateSetupFieldsOnly(t *testing.T) {
	st := newMemStore(SetupRecord{Setup: "rig01", Status: StatusRunning})
	g := NewGuard(st)
	ctx := context.Background()

	rec, err := g.UpdateSetup(ctx, "rig01", FieldPatch{
		AnimalID:   strp("m042"),
		TaskIdx:    intp(3),
		StartTime:  strp("09:30"),
		Difficulty: intp(2),
	}, "")
	if err != nil {
		t.Fatalf("field update: %v", err)
	}
	if rec.AnimalID != "m042" || rec.TaskIdx != 3 || rec.StartTime != "09:30" || rec.Difficulty != 2 {
		t.Fatalf("patch not applied: %+v", rec)
	}
	if rec.Status != StatusRunning {
		t.Fatalf("status changed by field-only update: %s", rec.Status)
	}
}

func TestUpdateSetupNoOpStatus(t *testing.T) {
	st := newMemStore(SetupRecord{Setup: "rig01", Status: StatusRunning})
	g := NewGuard(st)
	if _, err := g.UpdateSetup(context.Background(), "rig01", FieldPatch{}, StatusRunning); err != nil {
		t.Fatalf("no-op status should succeed: %v", err)
	}
}

func TestUpdateSetupUnknown(t *testing.T) {
	g := NewGuard(newMemStore())
	if _, err := g.UpdateSetup(context.Background(), "ghost", FieldPatch{}, StatusRunning); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBulkUpdatePartialFailure(t *testing.T) {
	st := newMemStore(
		SetupRecord{Setup: "a", Status: StatusReady},
		SetupRecord{Setup: "b", Status: StatusExit},
		SetupRecord{Setup: "c", Status: StatusReady},
	)
	g := NewGuard(st)
	res := g.BulkUpdateSetups(context.Background(), []string{"a", "b", "c"}, FieldPatch{}, StatusRunning)
	if res.UpdatedCount != 2 {
		t.Fatalf("UpdatedCount = %d, want 2", res.UpdatedCount)
	}
	if len(res.Errors) != 1 || res.Errors[0].Setup != "b" {
		t.Fatalf("errors = %+v, want one for b", res.Errors)
	}
	if !IsInvalidTransition(res.Errors[0].Err) {
		t.Fatalf("b error = %v, want InvalidTransitionError", res.Errors[0].Err)
	}
	for _, s := range []string{"a", "c"} {
		rec, _ := st.GetSetup(context.Background(), s)
		if rec.Status != StatusRunning {
			t.Fatalf("%s status = %s, want running", s, rec.Status)
		}
	}
	rec, _ := st.GetSetup(context.Background(), "b")
	if rec.Status != StatusExit {
		t.Fatalf("b status = %s, want exit untouched", rec.Status)
	}
}

func TestBulkUpdateCanceled(t *testing.T) {
	st := newMemStore(
		SetupRecord{Setup: "a", Status: StatusReady},
		SetupRecord{Setup: "b", Status: StatusReady},
	)
	g := NewGuard(st)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := g.BulkUpdateSetups(ctx, []string{"a", "b"}, FieldPatch{}, StatusRunning)
	if res.UpdatedCount != 0 {
		t.Fatalf("UpdatedCount = %d, want 0", res.UpdatedCount)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("errors = %+v, want both setups reported", res.Errors)
	}
	for _, se := range res.Errors {
		if !errors.Is(se.Err, context.Canceled) {
			t.Fatalf("%s error = %v, want context.Canceled", se.Setup, se.Err)
		}
	}
}

func TestRecordHeartbeat(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := newMemStore(SetupRecord{Setup: "rig01", Status: StatusRunning, LastPing: base})
	g := NewGuard(st)
	ctx := context.Background()

	hb := Heartbeat{PingTime: base.Add(30 * time.Second), QueueSize: 4, Trials: 120, TotalLiquid: 1.5, State: "trial"}
	if err := g.RecordHeartbeat(ctx, "rig01", hb); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	rec, _ := st.GetSetup(ctx, "rig01")
	if !rec.LastPing.Equal(hb.PingTime) || rec.Trials != 120 || rec.QueueSize != 4 || rec.State != "trial" {
		t.Fatalf("heartbeat not applied: %+v", rec)
	}
	if rec.Status != StatusRunning {
		t.Fatalf("heartbeat changed status: %s", rec.Status)
	}

	// a stale ping is a silent no-op
	stale := Heartbeat{PingTime: base.Add(-time.Minute), Trials: 1}
	if err := g.RecordHeartbeat(ctx, "rig01", stale); err != nil {
		t.Fatalf("stale heartbeat should not error: %v", err)
	}
	rec, _ = st.GetSetup(ctx, "rig01")
	if rec.Trials != 120 || !rec.LastPing.Equal(hb.PingTime) {
		t.Fatalf("stale heartbeat overwrote record: %+v", rec)
	}
}

func TestRecordHeartbeatUnknown(t *testing.T) {
	g := NewGuard(newMemStore())
	err := g.RecordHeartbeat(context.Background(), "ghost", Heartbeat{PingTime: time.Now()})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReportFault(t *testing.T) {
	for _, from := range []Status{StatusReady, StatusRunning, StatusStop, StatusSleeping} {
		st := newMemStore(SetupRecord{Setup: "rig01", Status: from})
		g := NewGuard(st)
		rec, err := g.ReportFault(context.Background(), "rig01", "camera offline")
		if err != nil {
			t.Fatalf("fault from %s: %v", from, err)
		}
		if rec.Status != StatusExit || rec.State != "camera offline" {
			t.Fatalf("fault from %s: %+v", from, rec)
		}
	}

	// already faulted: idempotent
	st := newMemStore(SetupRecord{Setup: "rig01", Status: StatusExit})
	g := NewGuard(st)
	rec, err := g.ReportFault(context.Background(), "rig01", "")
	if err != nil {
		t.Fatalf("repeat fault: %v", err)
	}
	if rec.Status != StatusExit {
		t.Fatalf("status = %s, want exit", rec.Status)
	}
}

func TestExitRecovery(t *testing.T) {
	st := newMemStore(SetupRecord{Setup: "rig01", Status: StatusExit})
	g := NewGuard(st)
	ctx := context.Background()

	if _, err := g.UpdateSetup(ctx, "rig01", FieldPatch{}, StatusRunning); !IsInvalidTransition(err) {
		t.Fatalf("exit -> running must be rejected, got %v", err)
	}
	if _, err := g.UpdateSetup(ctx, "rig01", FieldPatch{}, StatusReady); err != nil {
		t.Fatalf("exit -> ready recovery: %v", err)
	}
}

func TestConcurrentUpdatesSerialized(t *testing.T) {
	st := newMemStore(SetupRecord{Setup: "rig01", Status: StatusRunning})
	g := NewGuard(st)
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, _ = g.UpdateSetup(ctx, "rig01", FieldPatch{TaskIdx: intp(i)}, "")
		}(i)
	}
	wg.Wait()
	rec, _ := st.GetSetup(ctx, "rig01")
	if rec.TaskIdx < 0 || rec.TaskIdx >= n {
		t.Fatalf("task idx out of range: %d", rec.TaskIdx)
	}
	if rec.Status != StatusRunning {
		t.Fatalf("status corrupted by concurrent updates: %s", rec.Status)
	}
}

func TestWatchReceivesCommittedUpdates(t *testing.T) {
	st := newMemStore(SetupRecord{Setup: "rig01", Status: StatusReady})
	g := NewGuard(st)
	ch, cancel := g.Watch(8)
	defer cancel()

	if _, err := g.UpdateSetup(context.Background(), "rig01", FieldPatch{}, StatusRunning); err != nil {
		t.Fatalf("update: %v", err)
	}
	select {
	case u := <-ch:
		if u.Kind != UpdateOperator || u.Record.Status != StatusRunning {
			t.Fatalf("unexpected update: %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}
}

type captureSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (c *captureSink) Send(_ context.Context, e history.Event) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	return nil
}

func TestHistorySinkReceivesTransitions(t *testing.T) {
	st := newMemStore(SetupRecord{Setup: "rig01", Status: StatusReady})
	g := NewGuard(st)
	sink := &captureSink{}
	g.SetHistorySinks(sink)
	ctx := context.Background()

	if _, err := g.UpdateSetup(ctx, "rig01", FieldPatch{}, StatusRunning); err != nil {
		t.Fatalf("update: %v", err)
	}
	// field-only edits emit no transition event
	if _, err := g.UpdateSetup(ctx, "rig01", FieldPatch{Notes: strp("x")}, ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := g.ReportFault(ctx, "rig01", "err"); err != nil {
		t.Fatalf("fault: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) != 2 {
		t.Fatalf("events = %d, want 2", len(sink.events))
	}
	if sink.events[0].Actor != history.ActorOperator || sink.events[0].To != "running" {
		t.Fatalf("first event: %+v", sink.events[0])
	}
	if sink.events[1].Actor != history.ActorHeartbeat || sink.events[1].To != "exit" {
		t.Fatalf("second event: %+v", sink.events[1])
	}
}

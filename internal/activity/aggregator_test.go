package activity

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/labops/rigctl/internal/control"
)

type fakeRecords map[string]control.SetupRecord

func (f fakeRecords) GetSetup(_ context.Context, setup string) (control.SetupRecord, error) {
	r, ok := f[setup]
	if !ok {
		return control.SetupRecord{}, control.ErrNotFound
	}
	return r, nil
}

type fakeTypes []string

func (f fakeTypes) ConfiguredTypes(context.Context, string) ([]string, error) {
	return []string(f), nil
}

type fakeSessions struct {
	start time.Time
	err   error
}

func (f fakeSessions) SessionStart(context.Context, string, int) (time.Time, error) {
	if f.err != nil {
		return time.Time{}, f.err
	}
	return f.start, nil
}

type fakeTrials []RawTrial

func (f fakeTrials) Trials(_ context.Context, _ string, _ int, since, until time.Time) ([]RawTrial, error) {
	var out []RawTrial
	for _, t := range f {
		if !t.Time.Before(since) && !t.Time.After(until) {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeSource struct {
	events []RawEvent
	err    error
}

func (f fakeSource) Events(_ context.Context, _ string, _ int, since, until time.Time) ([]RawEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []RawEvent
	for _, e := range f.events {
		if !e.Time.Before(since) && !e.Time.After(until) {
			out = append(out, e)
		}
	}
	return out, nil
}

func testAggregator(start time.Time, now time.Time, types fakeTypes, reg *Registry, trials fakeTrials) *Aggregator {
	records := fakeRecords{"rig01": {
		Setup:    "rig01",
		Status:   control.StatusRunning,
		AnimalID: "m042",
		Session:  5,
		Trials:   12,
		State:    "trial",
	}}
	a := NewAggregator(records, reg, types, fakeSessions{start: start}, trials)
	a.now = func() time.Time { return now }
	return a
}

func TestGetActivityAllWindow(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := start.Add(10 * time.Minute)

	reg := NewRegistry()
	reg.Register("lick", fakeSource{events: []RawEvent{
		{Port: 1, Time: start.Add(1 * time.Second)},
		{Port: 2, Time: start.Add(3 * time.Second)},
		{Port: 1, Time: start.Add(9 * time.Minute)},
	}})
	reg.Register("lever", fakeSource{events: []RawEvent{
		{Port: 1, Time: start.Add(2 * time.Second), Extra: map[string]any{"press_duration": 0.12}},
	}})
	trials := fakeTrials{
		{TrialIdx: 0, Time: start},
		{TrialIdx: 1, Time: start.Add(5 * time.Second)},
	}

	a := testAggregator(start, now, fakeTypes{"lever", "lick"}, reg, trials)
	snap, err := a.GetActivity(context.Background(), "rig01", Window{All: true})
	if err != nil {
		t.Fatalf("GetActivity: %v", err)
	}

	if snap.Summary.AnimalID != "m042" || snap.Summary.Session != 5 || snap.Summary.Status != "running" {
		t.Fatalf("summary = %+v", snap.Summary)
	}
	if len(snap.Events["lick"]) != 3 || len(snap.Events["lever"]) != 1 {
		t.Fatalf("events = lick:%d lever:%d", len(snap.Events["lick"]), len(snap.Events["lever"]))
	}
	if len(snap.TrialEvents) != 2 {
		t.Fatalf("trial events = %d", len(snap.TrialEvents))
	}
	for i := 1; i < len(snap.Events["lick"]); i++ {
		if snap.Events["lick"][i].OffsetMS <= snap.Events["lick"][i-1].OffsetMS {
			t.Fatalf("lick offsets not strictly increasing: %+v", snap.Events["lick"])
		}
	}
	if snap.Events["lick"][0].OffsetMS != 1000 {
		t.Fatalf("offset = %d, want 1000", snap.Events["lick"][0].OffsetMS)
	}
	if snap.Events["lever"][0].Extra["press_duration"] != 0.12 {
		t.Fatalf("extras dropped: %+v", snap.Events["lever"][0])
	}
	if snap.TrialEvents[0].OffsetMS != 0 || snap.TrialEvents[1].OffsetMS != 5000 {
		t.Fatalf("trial offsets = %+v", snap.TrialEvents)
	}
}

func TestGetActivitySlidingWindow(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := start.Add(10 * time.Minute)

	reg := NewRegistry()
	reg.Register("lick", fakeSource{events: []RawEvent{
		{Port: 1, Time: start.Add(1 * time.Second)},       // outside
		{Port: 2, Time: now.Add(-90 * time.Second)},       // outside
		{Port: 1, Time: now.Add(-30 * time.Second)},       // inside
		{Port: 2, Time: now.Add(-500 * time.Millisecond)}, // inside
	}})

	a := testAggregator(start, now, fakeTypes{"lick"}, reg, nil)
	snap, err := a.GetActivity(context.Background(), "rig01", Window{Duration: 60 * time.Second})
	if err != nil {
		t.Fatalf("GetActivity: %v", err)
	}
	if len(snap.Events["lick"]) != 2 {
		t.Fatalf("lick events = %d, want 2", len(snap.Events["lick"]))
	}
}

func TestGetActivityUnknownSetup(t *testing.T) {
	a := testAggregator(time.Now(), time.Now(), nil, NewRegistry(), nil)
	if _, err := a.GetActivity(context.Background(), "ghost", Window{All: true}); !errors.Is(err, control.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetActivityNoActiveSession(t *testing.T) {
	records := fakeRecords{"rig01": {Setup: "rig01", AnimalID: "m042", Session: 5}}
	a := NewAggregator(records, NewRegistry(), fakeTypes{}, fakeSessions{err: ErrNoActiveSession}, fakeTrials{})
	if _, err := a.GetActivity(context.Background(), "rig01", Window{All: true}); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
}

func TestGetActivityDegradedSource(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := start.Add(time.Minute)

	reg := NewRegistry()
	reg.Register("lick", fakeSource{events: []RawEvent{{Port: 1, Time: start.Add(time.Second)}}})
	reg.Register("lever", fakeSource{err: errors.New("connection refused")})

	a := testAggregator(start, now, fakeTypes{"lever", "lick"}, reg, nil)
	snap, err := a.GetActivity(context.Background(), "rig01", Window{All: true})
	if err != nil {
		t.Fatalf("degraded call must not fail: %v", err)
	}
	if len(snap.Events["lick"]) != 1 {
		t.Fatalf("lick missing: %+v", snap.Events)
	}
	if _, ok := snap.Events["lever"]; ok {
		t.Fatalf("failed type must not contribute events")
	}
	if len(snap.Unavailable) != 1 || snap.Unavailable[0] != "lever" {
		t.Fatalf("unavailable = %+v", snap.Unavailable)
	}
}

func TestGetActivityConfiguredButUnregistered(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := testAggregator(start, start.Add(time.Minute), fakeTypes{"wheel"}, NewRegistry(), nil)
	snap, err := a.GetActivity(context.Background(), "rig01", Window{All: true})
	if err != nil {
		t.Fatalf("GetActivity: %v", err)
	}
	if len(snap.Events) != 0 || len(snap.Unavailable) != 0 {
		t.Fatalf("unregistered type must be skipped silently: %+v", snap)
	}
}

func TestGetActivityIdempotent(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := start.Add(time.Minute)

	reg := NewRegistry()
	reg.Register("lick", fakeSource{events: []RawEvent{
		{Port: 1, Time: start.Add(2 * time.Second)},
		{Port: 2, Time: start.Add(4 * time.Second)},
	}})
	a := testAggregator(start, now, fakeTypes{"lick"}, reg, fakeTrials{{TrialIdx: 0, Time: start}})

	first, err := a.GetActivity(context.Background(), "rig01", Window{All: true})
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := a.GetActivity(context.Background(), "rig01", Window{All: true})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("snapshots differ:\n%+v\n%+v", first, second)
	}
}

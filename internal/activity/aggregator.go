package activity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/labops/rigctl/internal/control"
	"github.com/labops/rigctl/internal/metrics"
)

// RecordSource is the read-only view of the control store the
// aggregator needs. The aggregator never mutates records and takes no
// locks; monitoring reads are best-effort.
type RecordSource interface {
	GetSetup(ctx context.Context, setup string) (control.SetupRecord, error)
}

// Aggregator assembles time-windowed snapshots of a setup's current
// session out of the control record, the registered event sources,
// trial markers and session metadata.
type Aggregator struct {
	records  RecordSource
	registry *Registry
	types    TypeConfigSource
	sessions SessionSource
	trials   TrialSource
	logger   *slog.Logger

	// now is swappable for tests; the window boundary is evaluated
	// exactly once per request.
	now func() time.Time
}

func NewAggregator(records RecordSource, registry *Registry, types TypeConfigSource, sessions SessionSource, trials TrialSource) *Aggregator {
	return &Aggregator{
		records:  records,
		registry: registry,
		types:    types,
		sessions: sessions,
		trials:   trials,
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// SetLogger replaces the aggregator's logger.
func (a *Aggregator) SetLogger(l *slog.Logger) {
	if l != nil {
		a.logger = l
	}
}

// GetActivity returns one snapshot of a setup's current session scoped
// to the window. The call is a pure read: repeated calls against an
// unchanged data set return identical snapshots. One failing type's
// source degrades that type's contribution (it lands in Unavailable)
// without failing the request.
func (a *Aggregator) GetActivity(ctx context.Context, setup string, window Window) (Snapshot, error) {
	started := time.Now()
	defer func() { metrics.ObserveActivityQuery(window.Label(), time.Since(started).Seconds()) }()

	rec, err := a.records.GetSetup(ctx, setup)
	if err != nil {
		return Snapshot{}, err
	}
	start, err := a.sessions.SessionStart(ctx, rec.AnimalID, rec.Session)
	if err != nil {
		return Snapshot{}, fmt.Errorf("setup %s animal %s session %d: %w", setup, rec.AnimalID, rec.Session, err)
	}

	since, until := window.bounds(start, a.now())

	snap := Snapshot{
		Summary: Summary{
			Setup:       rec.Setup,
			Status:      string(rec.Status),
			AnimalID:    rec.AnimalID,
			Session:     rec.Session,
			Trials:      rec.Trials,
			TotalLiquid: rec.TotalLiquid,
			State:       rec.State,
			QueueSize:   rec.QueueSize,
			LastPing:    rec.LastPing,
		},
		Events: make(map[string][]Event),
	}

	types, err := a.types.ConfiguredTypes(ctx, setup)
	if err != nil {
		return Snapshot{}, fmt.Errorf("configured types for %s: %w", setup, err)
	}
	for _, typ := range types {
		src := a.registry.Source(typ)
		if src == nil {
			// configured but not registered; reduces the result
			continue
		}
		raws, err := src.Events(ctx, rec.AnimalID, rec.Session, since, until)
		if err != nil {
			if ctx.Err() != nil {
				return Snapshot{}, ctx.Err()
			}
			a.logger.Warn("event source unavailable", "setup", setup, "type", typ, "error", err)
			snap.Unavailable = append(snap.Unavailable, typ)
			continue
		}
		events := make([]Event, 0, len(raws))
		for _, r := range raws {
			events = append(events, Event{
				Type:     typ,
				Port:     r.Port,
				Time:     r.Time,
				OffsetMS: r.Time.Sub(start).Milliseconds(),
				Extra:    r.Extra,
			})
		}
		sort.Slice(events, func(i, j int) bool { return events[i].Time.Before(events[j].Time) })
		snap.Events[typ] = events
		metrics.AddActivityEvents(typ, len(events))
	}

	rawTrials, err := a.trials.Trials(ctx, rec.AnimalID, rec.Session, since, until)
	if err != nil {
		if ctx.Err() != nil {
			return Snapshot{}, ctx.Err()
		}
		a.logger.Warn("trial source unavailable", "setup", setup, "error", err)
	} else {
		snap.TrialEvents = make([]TrialMarker, 0, len(rawTrials))
		for _, r := range rawTrials {
			snap.TrialEvents = append(snap.TrialEvents, TrialMarker{
				TrialIdx: r.TrialIdx,
				Time:     r.Time,
				OffsetMS: r.Time.Sub(start).Milliseconds(),
			})
		}
		sort.Slice(snap.TrialEvents, func(i, j int) bool {
			return snap.TrialEvents[i].Time.Before(snap.TrialEvents[j].Time)
		})
	}
	return snap, nil
}

package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/labops/rigctl/internal/history"
	"github.com/labops/rigctl/internal/metrics"
)

// Store is the persistence collaborator for setup records. Single-record
// operations are atomic; the Guard layers per-setup serialization on
// top so read-modify-write cycles never observe stale status.
type Store interface {
	GetSetup(ctx context.Context, setup string) (SetupRecord, error)
	ListSetups(ctx context.Context) ([]SetupRecord, error)
	FilterSetups(ctx context.Context, setups []string) ([]SetupRecord, error)
	SaveSetup(ctx context.Context, rec SetupRecord) error
}

// Guard is the single authoritative mutation point for setup records.
// Every write path (operator edit, bulk edit, heartbeat, fault report)
// goes through it, and status transition legality is enforced here and
// nowhere else.
type Guard struct {
	store  Store
	hub    *Hub
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	sinkMu sync.Mutex
	sinks  []history.Sink
}

func NewGuard(store Store) *Guard {
	return &Guard{
		store:  store,
		hub:    NewHub(),
		logger: slog.Default(),
		locks:  make(map[string]*sync.Mutex),
	}
}

// SetLogger replaces the guard's logger. Intended for wiring at startup.
func (g *Guard) SetLogger(l *slog.Logger) {
	if l != nil {
		g.logger = l
	}
}

// SetHistorySinks configures external transition sinks (SQL, ClickHouse).
// Passing no sinks clears the list.
func (g *Guard) SetHistorySinks(sinks ...history.Sink) {
	g.sinkMu.Lock()
	g.sinks = append([]history.Sink(nil), sinks...)
	g.sinkMu.Unlock()
}

// Watch subscribes to committed updates. See Hub.Subscribe.
func (g *Guard) Watch(buffer int) (<-chan Update, func()) {
	return g.hub.Subscribe(buffer)
}

// lockFor returns the mutex serializing writers of one setup. Writes to
// different setups proceed fully in parallel.
func (g *Guard) lockFor(setup string) *sync.Mutex {
	g.mu.Lock()
	l, ok := g.locks[setup]
	if !ok {
		l = &sync.Mutex{}
		g.locks[setup] = l
	}
	g.mu.Unlock()
	return l
}

// GetSetup reads the current record. Read-only; takes no per-setup lock.
func (g *Guard) GetSetup(ctx context.Context, setup string) (SetupRecord, error) {
	return g.store.GetSetup(ctx, setup)
}

// ListSetups returns every provisioned record.
func (g *Guard) ListSetups(ctx context.Context) ([]SetupRecord, error) {
	return g.store.ListSetups(ctx)
}

// FilterSetups returns the records for the given identifiers, skipping
// unknown ones.
func (g *Guard) FilterSetups(ctx context.Context, setups []string) ([]SetupRecord, error) {
	return g.store.FilterSetups(ctx, setups)
}

// UpdateSetup applies a partial field update and an optional status
// transition to one setup. The call is all-or-nothing: an invalid
// transition rejects the field updates in the same request, and the
// record is returned exactly as committed.
func (g *Guard) UpdateSetup(ctx context.Context, setup string, patch FieldPatch, status Status) (SetupRecord, error) {
	return g.update(ctx, setup, patch, status, history.ActorOperator, UpdateOperator)
}

// ApplyScheduled is the scheduler's write path: same transition rules
// as an operator edit, attributed to the scheduler in history.
func (g *Guard) ApplyScheduled(ctx context.Context, setup string, status Status) (SetupRecord, error) {
	return g.update(ctx, setup, FieldPatch{}, status, history.ActorScheduler, UpdateScheduler)
}

func (g *Guard) update(ctx context.Context, setup string, patch FieldPatch, status Status, actor history.Actor, kind UpdateKind) (SetupRecord, error) {
	if err := patch.Validate(); err != nil {
		return SetupRecord{}, err
	}
	if status != "" {
		if _, err := ParseStatus(string(status)); err != nil {
			return SetupRecord{}, err
		}
	}

	l := g.lockFor(setup)
	l.Lock()
	defer l.Unlock()

	rec, err := g.store.GetSetup(ctx, setup)
	if err != nil {
		return SetupRecord{}, err
	}
	prev := rec.Status
	if status != "" && status != prev {
		if !CanTransition(prev, status) {
			metrics.IncInvalidTransition(setup)
			return SetupRecord{}, &InvalidTransitionError{Setup: setup, From: prev, To: status}
		}
		rec.Status = status
	}
	patch.apply(&rec)
	rec.UpdatedAt = time.Now().UTC()
	if err := g.store.SaveSetup(ctx, rec); err != nil {
		return SetupRecord{}, fmt.Errorf("save setup %s: %w", setup, err)
	}

	if rec.Status != prev {
		g.logger.Info("status transition", "setup", setup, "from", prev, "to", rec.Status, "actor", actor)
		metrics.RecordTransition(setup, string(prev), string(rec.Status))
		metrics.SetCurrentStatus(setup, string(prev), false)
		metrics.SetCurrentStatus(setup, string(rec.Status), true)
		g.emit(history.Event{
			Setup:      setup,
			From:       string(prev),
			To:         string(rec.Status),
			Actor:      actor,
			OccurredAt: rec.UpdatedAt,
		})
	}
	g.hub.publish(Update{Kind: kind, Record: rec, At: rec.UpdatedAt})
	return rec, nil
}

// BulkUpdateSetups applies UpdateSetup independently to each identifier.
// One setup's failure never blocks the rest; mixed outcomes are reported
// per setup. If ctx is canceled partway, committed updates stay in place
// and the unreached setups are reported with the context error.
func (g *Guard) BulkUpdateSetups(ctx context.Context, setups []string, patch FieldPatch, status Status) BulkResult {
	var res BulkResult
	for i, s := range setups {
		if err := ctx.Err(); err != nil {
			for _, rest := range setups[i:] {
				res.Errors = append(res.Errors, SetupError{Setup: rest, Err: err, Error: err.Error()})
			}
			break
		}
		if _, err := g.UpdateSetup(ctx, s, patch, status); err != nil {
			res.Errors = append(res.Errors, SetupError{Setup: s, Err: err, Error: err.Error()})
			continue
		}
		res.UpdatedCount++
	}
	return res
}

// RecordHeartbeat is the setup's own write path: it updates last_ping
// and the live metrics without any status validation. A ping older than
// the stored last_ping is dropped as out-of-order delivery, not an error.
func (g *Guard) RecordHeartbeat(ctx context.Context, setup string, hb Heartbeat) error {
	l := g.lockFor(setup)
	l.Lock()
	defer l.Unlock()

	rec, err := g.store.GetSetup(ctx, setup)
	if err != nil {
		return err
	}
	if hb.PingTime.Before(rec.LastPing) {
		metrics.IncStaleHeartbeat(setup)
		g.logger.Debug("stale heartbeat dropped", "setup", setup, "ping", hb.PingTime, "stored", rec.LastPing)
		return nil
	}
	rec.LastPing = hb.PingTime
	rec.QueueSize = hb.QueueSize
	rec.Trials = hb.Trials
	rec.TotalLiquid = hb.TotalLiquid
	rec.State = hb.State
	rec.UpdatedAt = time.Now().UTC()
	if err := g.store.SaveSetup(ctx, rec); err != nil {
		return fmt.Errorf("save heartbeat for %s: %w", setup, err)
	}
	metrics.IncHeartbeat(setup)
	g.hub.publish(Update{Kind: UpdateHeartbeat, Record: rec, At: rec.UpdatedAt})
	return nil
}

// ReportFault is the narrow heartbeat-driven transition: a setup raising
// an error lands in exit from any status. Recovery back to ready is an
// operator edge handled by UpdateSetup.
func (g *Guard) ReportFault(ctx context.Context, setup string, state string) (SetupRecord, error) {
	l := g.lockFor(setup)
	l.Lock()
	defer l.Unlock()

	rec, err := g.store.GetSetup(ctx, setup)
	if err != nil {
		return SetupRecord{}, err
	}
	prev := rec.Status
	if !CanHeartbeatTransition(prev, StatusExit) {
		metrics.IncInvalidTransition(setup)
		return SetupRecord{}, &InvalidTransitionError{Setup: setup, From: prev, To: StatusExit}
	}
	rec.Status = StatusExit
	if state != "" {
		rec.State = state
	}
	rec.UpdatedAt = time.Now().UTC()
	if err := g.store.SaveSetup(ctx, rec); err != nil {
		return SetupRecord{}, fmt.Errorf("save fault for %s: %w", setup, err)
	}
	if rec.Status != prev {
		g.logger.Warn("setup reported fault", "setup", setup, "from", prev)
		metrics.RecordTransition(setup, string(prev), string(StatusExit))
		metrics.SetCurrentStatus(setup, string(prev), false)
		metrics.SetCurrentStatus(setup, string(StatusExit), true)
		g.emit(history.Event{
			Setup:      setup,
			From:       string(prev),
			To:         string(StatusExit),
			Actor:      history.ActorHeartbeat,
			OccurredAt: rec.UpdatedAt,
		})
	}
	g.hub.publish(Update{Kind: UpdateFault, Record: rec, At: rec.UpdatedAt})
	return rec, nil
}

func (g *Guard) emit(e history.Event) {
	g.sinkMu.Lock()
	sinks := append([]history.Sink(nil), g.sinks...)
	g.sinkMu.Unlock()
	for _, s := range sinks {
		if err := s.Send(context.Background(), e); err != nil {
			g.logger.Warn("history sink send failed", "setup", e.Setup, "error", err)
		}
	}
}

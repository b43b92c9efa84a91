package rigctl

import (
	"context"
	"net/http"
	"time"

	"github.com/labops/rigctl/internal/activity"
	cfg "github.com/labops/rigctl/internal/config"
	"github.com/labops/rigctl/internal/control"
	"github.com/labops/rigctl/internal/history"
	"github.com/labops/rigctl/internal/metrics"
	iapi "github.com/labops/rigctl/internal/server"
	"github.com/labops/rigctl/internal/store"
	storefactory "github.com/labops/rigctl/internal/store/factory"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type SetupRecord = control.SetupRecord

type Status = control.Status

type FieldPatch = control.FieldPatch

type Heartbeat = control.Heartbeat

type BulkResult = control.BulkResult

type Update = control.Update

type Snapshot = activity.Snapshot

type Window = activity.Window

type HistorySink = history.Sink

type Store = store.Store

// Status values a setup can be in.
const (
	StatusReady    = control.StatusReady
	StatusRunning  = control.StatusRunning
	StatusStop     = control.StatusStop
	StatusSleeping = control.StatusSleeping
	StatusExit     = control.StatusExit
)

// Guard is a thin facade over internal/control.Guard.
// It provides a stable public API for embedding.

type Guard struct{ inner *control.Guard }

// NewGuard builds a transition guard on top of st.
func NewGuard(st Store) *Guard { return &Guard{inner: control.NewGuard(st)} }

// NewStore opens a control store from a DSN (postgres://..., sqlite://path
// or a bare sqlite path).
func NewStore(dsn string) (Store, error) { return storefactory.NewFromDSN(dsn) }

func (g *Guard) SetHistorySinks(sinks ...HistorySink) { g.inner.SetHistorySinks(sinks...) }

func (g *Guard) GetSetup(ctx context.Context, setup string) (SetupRecord, error) {
	return g.inner.GetSetup(ctx, setup)
}

func (g *Guard) ListSetups(ctx context.Context) ([]SetupRecord, error) {
	return g.inner.ListSetups(ctx)
}

func (g *Guard) UpdateSetup(ctx context.Context, setup string, patch FieldPatch, status Status) (SetupRecord, error) {
	return g.inner.UpdateSetup(ctx, setup, patch, status)
}

func (g *Guard) BulkUpdateSetups(ctx context.Context, setups []string, patch FieldPatch, status Status) BulkResult {
	return g.inner.BulkUpdateSetups(ctx, setups, patch, status)
}

func (g *Guard) RecordHeartbeat(ctx context.Context, setup string, hb Heartbeat) error {
	return g.inner.RecordHeartbeat(ctx, setup, hb)
}

func (g *Guard) ReportFault(ctx context.Context, setup, state string) (SetupRecord, error) {
	return g.inner.ReportFault(ctx, setup, state)
}

// Watch subscribes to committed record updates. The returned cancel
// function releases the subscription.
func (g *Guard) Watch(buffer int) (<-chan Update, func()) { return g.inner.Watch(buffer) }

// ParseWindow parses a trailing-window argument: a second count ("60")
// or "all".
func ParseWindow(s string) (Window, error) { return activity.ParseWindow(s) }

// LoadConfig reads a rigctl TOML config file.
func LoadConfig(path string) (cfg.FileConfig, error) { return cfg.Load(path) }

// NewHTTPServer starts an HTTP server exposing the control API for g
// under basePath. The activity, auth and reboot endpoints stay
// disabled in this minimal form; the rigctl binary wires the full
// surface.
func NewHTTPServer(addr, basePath string, g *Guard) *http.Server {
	r := iapi.NewRouter(g.inner, nil, iapi.Options{BasePath: basePath})
	return iapi.NewServer(addr, r)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/labops/rigctl/internal/control"
	"github.com/labops/rigctl/internal/store"
)

// startPostgresContainer starts a PostgreSQL container for tests
// and returns a DSN suitable for pgx stdlib. It skips the test if Docker is unavailable.
func startPostgresContainer(t *testing.T) (dsn string, terminate func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
	)
	if err != nil {
		cancel()
		t.Skipf("Failed to start PostgreSQL container: %v", err)
		return "", nil
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get host info: %v", err)
		return "", nil
	}

	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get mapped port: %v", err)
		return "", nil
	}

	dsn = fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	terminate = func() {
		_ = container.Terminate(ctx)
		cancel()
	}

	return dsn, terminate
}

func waitForPostgres(t *testing.T, dsn string) {
	deadline := time.Now().Add(45 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		db, err := sql.Open("pgx", dsn)
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				_ = db.Close()
				cancel()
				return
			}
			_ = db.Close()
		}
		cancel()
		if time.Now().After(deadline) {
			t.Fatalf("postgres not ready in time: %v", err)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn, terminate := startPostgresContainer(t)
	waitForPostgres(t, dsn)
	defer func() {
		if terminate != nil {
			terminate()
		}
	}()

	db, err := New(dsn)
	if err != nil {
		t.Fatalf("pg open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := db.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	rec := control.SetupRecord{
		Setup:     "rig01",
		Status:    control.StatusReady,
		LastPing:  now,
		AnimalID:  "m042",
		Session:   3,
		UpdatedAt: now,
	}
	if err := db.SaveSetup(ctx, rec); err != nil {
		t.Fatalf("save setup: %v", err)
	}
	got, err := db.GetSetup(ctx, "rig01")
	if err != nil {
		t.Fatalf("get setup: %v", err)
	}
	if got.Status != control.StatusReady || got.AnimalID != "m042" {
		t.Fatalf("unexpected record: %+v", got)
	}

	rec.Status = control.StatusRunning
	if err := db.SaveSetup(ctx, rec); err != nil {
		t.Fatalf("save setup 2: %v", err)
	}
	got, _ = db.GetSetup(ctx, "rig01")
	if got.Status != control.StatusRunning {
		t.Fatalf("upsert not applied: %+v", got)
	}

	if _, err := db.GetSetup(ctx, "ghost"); !errors.Is(err, control.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	task, err := db.SaveTask(ctx, store.Task{Name: "lick training"})
	if err != nil || task.ID == 0 {
		t.Fatalf("save task: id=%d err=%v", task.ID, err)
	}
	if err := db.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}

	if err := db.SaveUser(ctx, store.User{Username: "ines", PasswordHash: "h", Role: "admin"}); err != nil {
		t.Fatalf("save user: %v", err)
	}
	u, err := db.GetUser(ctx, "ines")
	if err != nil || u.Role != "admin" {
		t.Fatalf("get user: %+v %v", u, err)
	}
	if err := db.DeleteSetup(ctx, "rig01"); err != nil {
		t.Fatalf("delete setup: %v", err)
	}
}

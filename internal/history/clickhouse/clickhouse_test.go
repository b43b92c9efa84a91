package clickhouse

import (
	"context"
	"fmt"
	"testing"
	"time"

	tcclickhouse "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"github.com/labops/rigctl/internal/history"
)

// startClickHouseContainer starts a ClickHouse container for tests and
// returns its native-protocol address. It skips the test if Docker is
// unavailable.
func startClickHouseContainer(t *testing.T) (addr string, terminate func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	container, err := tcclickhouse.Run(ctx, "clickhouse/clickhouse-server:24-alpine",
		tcclickhouse.WithDatabase("testdb"),
		tcclickhouse.WithUsername("test"),
		tcclickhouse.WithPassword("test"),
	)
	if err != nil {
		cancel()
		t.Skipf("Failed to start ClickHouse container: %v", err)
		return "", nil
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get host info: %v", err)
		return "", nil
	}

	port, err := container.MappedPort(ctx, "9000/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		t.Skipf("Failed to get mapped port: %v", err)
		return "", nil
	}

	addr = fmt.Sprintf("%s:%s", host, port.Port())
	terminate = func() {
		_ = container.Terminate(ctx)
		cancel()
	}
	return addr, terminate
}

func TestClickHouseSink(t *testing.T) {
	addr, terminate := startClickHouseContainer(t)
	defer terminate()

	sink, err := New(Options{
		Addr:     addr,
		Database: "testdb",
		Username: "test",
		Password: "test",
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	if err := sink.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	// Schema creation is idempotent.
	if err := sink.EnsureSchema(ctx); err != nil {
		t.Fatalf("second schema: %v", err)
	}

	events := []history.Event{
		{Setup: "rig01", From: "ready", To: "running", Actor: history.ActorOperator, OccurredAt: time.Now().UTC()},
		{Setup: "rig01", From: "running", To: "stop", Actor: history.ActorScheduler, OccurredAt: time.Now().UTC()},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("send %+v: %v", e, err)
		}
	}

	var n uint64
	row := sink.conn.QueryRow(ctx, "SELECT count() FROM setup_transitions WHERE setup = 'rig01'")
	if err := row.Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("transitions = %d, want 2", n)
	}
}

package factory

import (
	"path/filepath"
	"testing"
)

func TestFactoryDSNSelection(t *testing.T) {
	// Empty DSN -> error
	if _, err := NewFromDSN(""); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
	// postgres scheme -> postgres driver object (Close immediately; no connect performed by sql.Open)
	pg, err := NewFromDSN("postgres://user@localhost/db")
	if err != nil || pg == nil {
		t.Fatalf("postgres dsn: err=%v obj=%T", err, pg)
	}
	_ = pg.Close()

	// sqlite scheme
	p := filepath.Join(t.TempDir(), "rigctl.db")
	sq, err := NewFromDSN("sqlite://" + p)
	if err != nil || sq == nil {
		t.Fatalf("sqlite dsn: err=%v obj=%T", err, sq)
	}
	_ = sq.Close()

	// bare path defaults to sqlite
	bare, err := NewFromDSN(filepath.Join(t.TempDir(), "bare.db"))
	if err != nil || bare == nil {
		t.Fatalf("bare path: err=%v obj=%T", err, bare)
	}
	_ = bare.Close()
}

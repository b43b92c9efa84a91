package activity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Dialect selects placeholder style for the SQL-backed sources.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// rebind rewrites "?" placeholders to "$n" for postgres.
func rebind(d Dialect, query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// SQLEventSource reads one behavior type's events from a SQL table.
// The table and extra columns are bound once from configuration;
// queries never construct identifiers at request time.
type SQLEventSource struct {
	db      *sql.DB
	dialect Dialect
	table   string
	extras  []string
}

func NewSQLEventSource(db *sql.DB, dialect Dialect, table string, extraColumns []string) *SQLEventSource {
	return &SQLEventSource{db: db, dialect: dialect, table: table, extras: extraColumns}
}

func (s *SQLEventSource) Events(ctx context.Context, animalID string, session int, since, until time.Time) ([]RawEvent, error) {
	cols := "port, time"
	if len(s.extras) > 0 {
		cols += ", " + strings.Join(s.extras, ", ")
	}
	q := rebind(s.dialect, `
		SELECT `+cols+`
		FROM `+s.table+`
		WHERE animal_id=? AND session=? AND time >= ? AND time <= ?
		ORDER BY time;`)
	rows, err := s.db.QueryContext(ctx, q, animalID, session, since.UTC(), until.UTC())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]RawEvent, 0)
	for rows.Next() {
		var ev RawEvent
		dest := make([]any, 2+len(s.extras))
		dest[0] = &ev.Port
		dest[1] = &ev.Time
		extraVals := make([]any, len(s.extras))
		for i := range s.extras {
			dest[2+i] = &extraVals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if len(s.extras) > 0 {
			ev.Extra = make(map[string]any, len(s.extras))
			for i, name := range s.extras {
				ev.Extra[name] = normalize(extraVals[i])
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// normalize converts driver-specific scan results into JSON-friendly values.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// SQLTypeConfigSource discovers configured behavior types from the
// port configuration table.
type SQLTypeConfigSource struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLTypeConfigSource(db *sql.DB, dialect Dialect) *SQLTypeConfigSource {
	return &SQLTypeConfigSource{db: db, dialect: dialect}
}

func (s *SQLTypeConfigSource) ConfiguredTypes(ctx context.Context, setup string) ([]string, error) {
	q := rebind(s.dialect, `
		SELECT DISTINCT type FROM port_config WHERE setup=? ORDER BY type;`)
	rows, err := s.db.QueryContext(ctx, q, setup)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]string, 0)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SQLSessionSource resolves session start timestamps.
type SQLSessionSource struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLSessionSource(db *sql.DB, dialect Dialect) *SQLSessionSource {
	return &SQLSessionSource{db: db, dialect: dialect}
}

func (s *SQLSessionSource) SessionStart(ctx context.Context, animalID string, session int) (time.Time, error) {
	q := rebind(s.dialect, `
		SELECT session_tmst FROM sessions WHERE animal_id=? AND session=?;`)
	var start time.Time
	err := s.db.QueryRowContext(ctx, q, animalID, session).Scan(&start)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNoActiveSession
	}
	return start, err
}

// SQLTrialSource reads trial-start markers.
type SQLTrialSource struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLTrialSource(db *sql.DB, dialect Dialect) *SQLTrialSource {
	return &SQLTrialSource{db: db, dialect: dialect}
}

func (s *SQLTrialSource) Trials(ctx context.Context, animalID string, session int, since, until time.Time) ([]RawTrial, error) {
	q := rebind(s.dialect, `
		SELECT trial_idx, time FROM trial_markers
		WHERE animal_id=? AND session=? AND time >= ? AND time <= ?
		ORDER BY time;`)
	rows, err := s.db.QueryContext(ctx, q, animalID, session, since.UTC(), until.UTC())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]RawTrial, 0)
	for rows.Next() {
		var t RawTrial
		if err := rows.Scan(&t.TrialIdx, &t.Time); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TypeConfig is one behavior type's binding as it appears in the
// configuration file: the type name, its event table and the extra
// columns to carry through.
type TypeConfig struct {
	Name         string   `mapstructure:"name" json:"name"`
	Table        string   `mapstructure:"table" json:"table"`
	ExtraColumns []string `mapstructure:"extra_columns" json:"extra_columns"`
}

// BuildRegistry populates a registry from configured type bindings.
// Called once at startup; adding a behavior type is a configuration
// change plus matching rows, never a code change.
func BuildRegistry(db *sql.DB, dialect Dialect, types []TypeConfig) *Registry {
	reg := NewRegistry()
	for _, tc := range types {
		table := tc.Table
		if table == "" {
			table = "activity_" + tc.Name
		}
		reg.Register(tc.Name, NewSQLEventSource(db, dialect, table, tc.ExtraColumns))
	}
	return reg
}

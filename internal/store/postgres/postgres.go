package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/labops/rigctl/internal/control"
	"github.com/labops/rigctl/internal/store"
)

type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS setups(
			setup TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			last_ping TIMESTAMPTZ NOT NULL,
			queue_size INTEGER NOT NULL DEFAULT 0,
			trials INTEGER NOT NULL DEFAULT 0,
			total_liquid DOUBLE PRECISION NOT NULL DEFAULT 0,
			state TEXT NOT NULL DEFAULT '',
			task_idx INTEGER NOT NULL DEFAULT 0,
			animal_id TEXT NOT NULL DEFAULT '',
			session INTEGER NOT NULL DEFAULT 0,
			difficulty INTEGER NOT NULL DEFAULT 0,
			ip_address TEXT NOT NULL DEFAULT '',
			start_time TEXT NOT NULL DEFAULT '',
			stop_time TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			user_name TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_setups_status ON setups(status);`,
		`CREATE TABLE IF NOT EXISTS tasks(
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			protocol TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS users(
			username TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

const setupCols = `setup, status, last_ping, queue_size, trials, total_liquid, state, task_idx,
	animal_id, session, difficulty, ip_address, start_time, stop_time, notes, user_name, updated_at`

func (p *DB) GetSetup(ctx context.Context, setup string) (control.SetupRecord, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+setupCols+`
		FROM setups WHERE setup=$1;`, setup)
	rec, err := scanSetup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return control.SetupRecord{}, control.ErrNotFound
	}
	return rec, err
}

func (p *DB) ListSetups(ctx context.Context) ([]control.SetupRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+setupCols+`
		FROM setups ORDER BY setup;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSetups(rows)
}

func (p *DB) FilterSetups(ctx context.Context, setups []string) ([]control.SetupRecord, error) {
	if len(setups) == 0 {
		return nil, nil
	}
	ph := make([]string, len(setups))
	args := make([]any, len(setups))
	for i, v := range setups {
		ph[i] = fmt.Sprintf("$%d", i+1)
		args[i] = v
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+setupCols+`
		FROM setups WHERE setup IN (`+strings.Join(ph, ",")+`) ORDER BY setup;`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSetups(rows)
}

func (p *DB) SaveSetup(ctx context.Context, rec control.SetupRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO setups(`+setupCols+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT(setup) DO UPDATE SET
			status=EXCLUDED.status,
			last_ping=EXCLUDED.last_ping,
			queue_size=EXCLUDED.queue_size,
			trials=EXCLUDED.trials,
			total_liquid=EXCLUDED.total_liquid,
			state=EXCLUDED.state,
			task_idx=EXCLUDED.task_idx,
			animal_id=EXCLUDED.animal_id,
			session=EXCLUDED.session,
			difficulty=EXCLUDED.difficulty,
			ip_address=EXCLUDED.ip_address,
			start_time=EXCLUDED.start_time,
			stop_time=EXCLUDED.stop_time,
			notes=EXCLUDED.notes,
			user_name=EXCLUDED.user_name,
			updated_at=EXCLUDED.updated_at;`,
		rec.Setup, string(rec.Status), rec.LastPing.UTC(), rec.QueueSize, rec.Trials,
		rec.TotalLiquid, rec.State, rec.TaskIdx, rec.AnimalID, rec.Session, rec.Difficulty,
		rec.IP, rec.StartTime, rec.StopTime, rec.Notes, rec.UserName, rec.UpdatedAt.UTC())
	return err
}

func (p *DB) DeleteSetup(ctx context.Context, setup string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM setups WHERE setup=$1;`, setup)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return control.ErrNotFound
	}
	return nil
}

func (p *DB) ListTasks(ctx context.Context) ([]store.Task, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, protocol, description, updated_at FROM tasks ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]store.Task, 0)
	for rows.Next() {
		var t store.Task
		if err := rows.Scan(&t.ID, &t.Name, &t.Protocol, &t.Description, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *DB) SaveTask(ctx context.Context, t store.Task) (store.Task, error) {
	t.UpdatedAt = time.Now().UTC()
	if t.ID == 0 {
		err := p.db.QueryRowContext(ctx, `
			INSERT INTO tasks(name, protocol, description, updated_at)
			VALUES($1,$2,$3,$4) RETURNING id;`,
			t.Name, t.Protocol, t.Description, t.UpdatedAt).Scan(&t.ID)
		if err != nil {
			return store.Task{}, err
		}
		return t, nil
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE tasks SET name=$1, protocol=$2, description=$3, updated_at=$4 WHERE id=$5;`,
		t.Name, t.Protocol, t.Description, t.UpdatedAt, t.ID)
	if err != nil {
		return store.Task{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.Task{}, control.ErrNotFound
	}
	return t, nil
}

func (p *DB) DeleteTask(ctx context.Context, id int) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return control.ErrNotFound
	}
	return nil
}

func (p *DB) GetUser(ctx context.Context, username string) (store.User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT username, password_hash, role, created_at, updated_at
		FROM users WHERE username=$1;`, username)
	var u store.User
	err := row.Scan(&u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, control.ErrNotFound
	}
	return u, err
}

func (p *DB) ListUsers(ctx context.Context) ([]store.User, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT username, password_hash, role, created_at, updated_at
		FROM users ORDER BY username;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]store.User, 0)
	for rows.Next() {
		var u store.User
		if err := rows.Scan(&u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (p *DB) SaveUser(ctx context.Context, u store.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users(username, password_hash, role, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5)
		ON CONFLICT(username) DO UPDATE SET
			password_hash=EXCLUDED.password_hash,
			role=EXCLUDED.role,
			updated_at=EXCLUDED.updated_at;`,
		u.Username, u.PasswordHash, u.Role, u.CreatedAt, u.UpdatedAt)
	return err
}

func (p *DB) DeleteUser(ctx context.Context, username string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM users WHERE username=$1;`, username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return control.ErrNotFound
	}
	return nil
}

func scanSetup(row *sql.Row) (control.SetupRecord, error) {
	var r control.SetupRecord
	var status string
	err := row.Scan(&r.Setup, &status, &r.LastPing, &r.QueueSize, &r.Trials, &r.TotalLiquid,
		&r.State, &r.TaskIdx, &r.AnimalID, &r.Session, &r.Difficulty, &r.IP,
		&r.StartTime, &r.StopTime, &r.Notes, &r.UserName, &r.UpdatedAt)
	r.Status = control.Status(status)
	return r, err
}

func scanSetups(rows *sql.Rows) ([]control.SetupRecord, error) {
	out := make([]control.SetupRecord, 0)
	for rows.Next() {
		var r control.SetupRecord
		var status string
		if err := rows.Scan(&r.Setup, &status, &r.LastPing, &r.QueueSize, &r.Trials, &r.TotalLiquid,
			&r.State, &r.TaskIdx, &r.AnimalID, &r.Session, &r.Difficulty, &r.IP,
			&r.StartTime, &r.StopTime, &r.Notes, &r.UserName, &r.UpdatedAt); err != nil {
			return nil, err
		}
		r.Status = control.Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

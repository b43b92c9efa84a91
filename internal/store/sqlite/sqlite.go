package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/labops/rigctl/internal/control"
	"github.com/labops/rigctl/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path to the SQLite database file. Use ":memory:" for in-memory.

type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS setups(
			setup TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			last_ping TIMESTAMP NOT NULL,
			queue_size INTEGER NOT NULL DEFAULT 0,
			trials INTEGER NOT NULL DEFAULT 0,
			total_liquid REAL NOT NULL DEFAULT 0,
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
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_setups_status ON setups(status);`,
		`CREATE TABLE IF NOT EXISTS tasks(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			protocol TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS users(
			username TEXT PRIMARY KEY,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

const setupCols = `setup, status, last_ping, queue_size, trials, total_liquid, state, task_idx,
	animal_id, session, difficulty, ip_address, start_time, stop_time, notes, user_name, updated_at`

func (s *DB) GetSetup(ctx context.Context, setup string) (control.SetupRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+setupCols+`
		FROM setups WHERE setup=?;`, setup)
	rec, err := scanSetup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return control.SetupRecord{}, control.ErrNotFound
	}
	return rec, err
}

func (s *DB) ListSetups(ctx context.Context) ([]control.SetupRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+setupCols+`
		FROM setups ORDER BY setup;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanSetups(rows)
}

func (s *DB) FilterSetups(ctx context.Context, setups []string) ([]control.SetupRecord, error) {
	if len(setups) == 0 {
		return nil, nil
	}
	ph := make([]string, len(setups))
	args := make([]any, len(setups))
	for i, v := range setups {
		ph[i] = "?"
		args[i] = v
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+setupCols+`
		FROM setups WHERE setup IN (`+strings.Join(ph, ",")+`) ORDER BY setup;`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanSetups(rows)
}

func (s *DB) SaveSetup(ctx context.Context, rec control.SetupRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO setups(`+setupCols+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(setup) DO UPDATE SET
			status=excluded.status,
			last_ping=excluded.last_ping,
			queue_size=excluded.queue_size,
			trials=excluded.trials,
			total_liquid=excluded.total_liquid,
			state=excluded.state,
			task_idx=excluded.task_idx,
			animal_id=excluded.animal_id,
			session=excluded.session,
			difficulty=excluded.difficulty,
			ip_address=excluded.ip_address,
			start_time=excluded.start_time,
			stop_time=excluded.stop_time,
			notes=excluded.notes,
			user_name=excluded.user_name,
			updated_at=excluded.updated_at;`,
		rec.Setup, string(rec.Status), rec.LastPing.UTC(), rec.QueueSize, rec.Trials,
		rec.TotalLiquid, rec.State, rec.TaskIdx, rec.AnimalID, rec.Session, rec.Difficulty,
		rec.IP, rec.StartTime, rec.StopTime, rec.Notes, rec.UserName, rec.UpdatedAt.UTC())
	return err
}

func (s *DB) DeleteSetup(ctx context.Context, setup string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM setups WHERE setup=?;`, setup)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return control.ErrNotFound
	}
	return nil
}

func (s *DB) ListTasks(ctx context.Context) ([]store.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, protocol, description, updated_at FROM tasks ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
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

func (s *DB) SaveTask(ctx context.Context, t store.Task) (store.Task, error) {
	t.UpdatedAt = time.Now().UTC()
	if t.ID == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO tasks(name, protocol, description, updated_at)
			VALUES(?, ?, ?, ?);`, t.Name, t.Protocol, t.Description, t.UpdatedAt)
		if err != nil {
			return store.Task{}, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return store.Task{}, err
		}
		t.ID = int(id)
		return t, nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET name=?, protocol=?, description=?, updated_at=? WHERE id=?;`,
		t.Name, t.Protocol, t.Description, t.UpdatedAt, t.ID)
	if err != nil {
		return store.Task{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.Task{}, control.ErrNotFound
	}
	return t, nil
}

func (s *DB) DeleteTask(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=?;`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return control.ErrNotFound
	}
	return nil
}

func (s *DB) GetUser(ctx context.Context, username string) (store.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash, role, created_at, updated_at
		FROM users WHERE username=?;`, username)
	var u store.User
	err := row.Scan(&u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, control.ErrNotFound
	}
	return u, err
}

func (s *DB) ListUsers(ctx context.Context) ([]store.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, created_at, updated_at
		FROM users ORDER BY username;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
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

func (s *DB) SaveUser(ctx context.Context, u store.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users(username, password_hash, role, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			password_hash=excluded.password_hash,
			role=excluded.role,
			updated_at=excluded.updated_at;`,
		u.Username, u.PasswordHash, u.Role, u.CreatedAt, u.UpdatedAt)
	return err
}

func (s *DB) DeleteUser(ctx context.Context, username string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE username=?;`, username)
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

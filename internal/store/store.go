package store

import (
	"context"
	"time"

	"github.com/labops/rigctl/internal/control"
)

// Task is a row of the experiment task catalog. TaskIdx on a setup
// record refers to a Task by ID.
type Task struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Protocol    string    `json:"protocol,omitempty"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// User is a stored operator credential. PasswordHash is a bcrypt hash;
// plaintext never reaches the store.
type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store is the full persistence surface: setup control records, the
// task catalog and operator credentials. Unknown setups and users
// report control.ErrNotFound.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Close() error

	GetSetup(ctx context.Context, setup string) (control.SetupRecord, error)
	ListSetups(ctx context.Context) ([]control.SetupRecord, error)
	FilterSetups(ctx context.Context, setups []string) ([]control.SetupRecord, error)
	SaveSetup(ctx context.Context, rec control.SetupRecord) error
	DeleteSetup(ctx context.Context, setup string) error

	ListTasks(ctx context.Context) ([]Task, error)
	SaveTask(ctx context.Context, t Task) (Task, error)
	DeleteTask(ctx context.Context, id int) error

	GetUser(ctx context.Context, username string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	SaveUser(ctx context.Context, u User) error
	DeleteUser(ctx context.Context, username string) error
}

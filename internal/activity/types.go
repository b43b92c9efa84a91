package activity

import (
	"context"
	"errors"
	"time"
)

// ErrNoActiveSession reports that a setup's record points at a session
// with no recorded start, so offsets cannot be computed.
var ErrNoActiveSession = errors.New("no active session")

// Event is one behavioral event produced for a snapshot. Extra carries
// type-specific columns (press_duration, in_position, ...) untouched.
type Event struct {
	Type     string         `json:"type"`
	Port     int            `json:"port"`
	Time     time.Time      `json:"time"`
	OffsetMS int64          `json:"offset_ms"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// TrialMarker is a trial-start boundary within a session.
type TrialMarker struct {
	TrialIdx int       `json:"trial_idx"`
	Time     time.Time `json:"time"`
	OffsetMS int64     `json:"offset_ms"`
}

// Summary is the scalar header of a snapshot, resolved from the setup's
// control record at query time.
type Summary struct {
	Setup       string    `json:"setup"`
	Status      string    `json:"status"`
	AnimalID    string    `json:"animal_id"`
	Session     int       `json:"session"`
	Trials      int       `json:"trials"`
	TotalLiquid float64   `json:"total_liquid"`
	State       string    `json:"state"`
	QueueSize   int       `json:"queue_size"`
	LastPing    time.Time `json:"last_ping"`
}

// Snapshot is one time-consistent view of a setup's current session.
// Events are partitioned by type and ordered by ascending time within
// each type; cross-type merging is left to the consumer. Unavailable
// lists types whose source failed this request.
type Snapshot struct {
	Summary     Summary            `json:"summary"`
	Events      map[string][]Event `json:"events"`
	TrialEvents []TrialMarker      `json:"trial_events"`
	Unavailable []string           `json:"unavailable,omitempty"`
}

// RawEvent is an event row as returned by a source, before the type
// name and session offset are attached.
type RawEvent struct {
	Port  int
	Time  time.Time
	Extra map[string]any
}

// RawTrial is a trial-start row as returned by a source.
type RawTrial struct {
	TrialIdx int
	Time     time.Time
}

// EventSource fetches one behavior type's events for (animalID,
// session) within [since, until]. Rows are returned in ascending time
// order.
type EventSource interface {
	Events(ctx context.Context, animalID string, session int, since, until time.Time) ([]RawEvent, error)
}

// TypeConfigSource lists the behavior types configured for a setup.
// A type configured here but missing from the registry is skipped.
type TypeConfigSource interface {
	ConfiguredTypes(ctx context.Context, setup string) ([]string, error)
}

// SessionSource resolves the start timestamp of (animalID, session).
// A missing session reports ErrNoActiveSession.
type SessionSource interface {
	SessionStart(ctx context.Context, animalID string, session int) (time.Time, error)
}

// TrialSource fetches trial-start markers for (animalID, session)
// within [since, until], ascending by time.
type TrialSource interface {
	Trials(ctx context.Context, animalID string, session int, since, until time.Time) ([]RawTrial, error)
}

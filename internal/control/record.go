package control

import (
	"fmt"
	"time"
)

// SetupRecord is the authoritative control record for one physical
// setup, keyed by the setup hostname. Records are provisioned out of
// band and never deleted here; heartbeats and operator edits mutate
// them through the Guard.
type SetupRecord struct {
	Setup       string    `json:"setup"`
	Status      Status    `json:"status"`
	LastPing    time.Time `json:"last_ping"`
	QueueSize   int       `json:"queue_size"`
	Trials      int       `json:"trials"`
	TotalLiquid float64   `json:"total_liquid"`
	State       string    `json:"state"`
	TaskIdx     int       `json:"task_idx"`
	AnimalID    string    `json:"animal_id"`
	Session     int       `json:"session"`
	Difficulty  int       `json:"difficulty"`
	IP          string    `json:"ip_address,omitempty"`
	StartTime   string    `json:"start_time,omitempty"` // "HH:MM" scheduling hint
	StopTime    string    `json:"stop_time,omitempty"`  // "HH:MM" scheduling hint
	Notes       string    `json:"notes,omitempty"`
	UserName    string    `json:"user_name,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FieldPatch is a partial update of the operator-editable attributes of
// a SetupRecord. Nil pointers leave the stored value untouched; status
// changes travel separately so the Guard can validate the edge before
// any field is applied.
type FieldPatch struct {
	TaskIdx    *int     `json:"task_idx,omitempty"`
	AnimalID   *string  `json:"animal_id,omitempty"`
	Session    *int     `json:"session,omitempty"`
	Difficulty *int     `json:"difficulty,omitempty"`
	IP         *string  `json:"ip_address,omitempty"`
	StartTime  *string  `json:"start_time,omitempty"`
	StopTime   *string  `json:"stop_time,omitempty"`
	Notes      *string  `json:"notes,omitempty"`
	UserName   *string  `json:"user_name,omitempty"`
}

// Validate checks field values that have a constrained shape. Time
// hints use the 24h "HH:MM" wall-clock form; an empty string clears a
// previously set hint.
func (p FieldPatch) Validate() error {
	if p.StartTime != nil && *p.StartTime != "" {
		if _, err := time.Parse("15:04", *p.StartTime); err != nil {
			return fmt.Errorf("%w: start_time %q is not HH:MM", ErrInvalidArgument, *p.StartTime)
		}
	}
	if p.StopTime != nil && *p.StopTime != "" {
		if _, err := time.Parse("15:04", *p.StopTime); err != nil {
			return fmt.Errorf("%w: stop_time %q is not HH:MM", ErrInvalidArgument, *p.StopTime)
		}
	}
	if p.Session != nil && *p.Session < 0 {
		return fmt.Errorf("%w: session must be >= 0", ErrInvalidArgument)
	}
	return nil
}

// apply copies the set fields of the patch onto rec.
func (p FieldPatch) apply(rec *SetupRecord) {
	if p.TaskIdx != nil {
		rec.TaskIdx = *p.TaskIdx
	}
	if p.AnimalID != nil {
		rec.AnimalID = *p.AnimalID
	}
	if p.Session != nil {
		rec.Session = *p.Session
	}
	if p.Difficulty != nil {
		rec.Difficulty = *p.Difficulty
	}
	if p.IP != nil {
		rec.IP = *p.IP
	}
	if p.StartTime != nil {
		rec.StartTime = *p.StartTime
	}
	if p.StopTime != nil {
		rec.StopTime = *p.StopTime
	}
	if p.Notes != nil {
		rec.Notes = *p.Notes
	}
	if p.UserName != nil {
		rec.UserName = *p.UserName
	}
}

// Heartbeat carries the live metrics a setup reports on each ping.
// Counters are owned by the experiment runtime; the Guard only stores
// the latest reported values.
type Heartbeat struct {
	PingTime    time.Time `json:"ping_time"`
	QueueSize   int       `json:"queue_size"`
	Trials      int       `json:"trials"`
	TotalLiquid float64   `json:"total_liquid"`
	State       string    `json:"state"`
}

package activity

import (
	"fmt"
	"strconv"
	"time"

	"github.com/labops/rigctl/internal/control"
)

// Window scopes an activity query in time. A sliding window covers the
// last Duration before the evaluation instant; the "all" window covers
// the whole session.
type Window struct {
	All      bool
	Duration time.Duration
}

// ParseWindow parses the wire form of a window: a positive duration in
// seconds ("30", "300") or the sentinel "all". Anything else fails with
// control.ErrInvalidArgument; there is no silent default.
func ParseWindow(s string) (Window, error) {
	if s == "all" {
		return Window{All: true}, nil
	}
	secs, err := strconv.Atoi(s)
	if err != nil {
		return Window{}, fmt.Errorf("%w: window %q is not a second count or \"all\"", control.ErrInvalidArgument, s)
	}
	if secs <= 0 {
		return Window{}, fmt.Errorf("%w: window must be positive, got %d", control.ErrInvalidArgument, secs)
	}
	return Window{Duration: time.Duration(secs) * time.Second}, nil
}

// Label returns the metrics/logging label of the window.
func (w Window) Label() string {
	if w.All {
		return "all"
	}
	return strconv.Itoa(int(w.Duration / time.Second))
}

// bounds resolves the window to a [since, until] interval. now is
// evaluated once per request so every type filters against the same
// boundary. The "all" window starts at the session start.
func (w Window) bounds(sessionStart, now time.Time) (since, until time.Time) {
	if w.All {
		return sessionStart, now
	}
	return now.Add(-w.Duration), now
}

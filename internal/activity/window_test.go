package activity

import (
	"errors"
	"testing"
	"time"

	"github.com/labops/rigctl/internal/control"
)

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("60")
	if err != nil {
		t.Fatalf("parse 60: %v", err)
	}
	if w.All || w.Duration != 60*time.Second {
		t.Fatalf("window = %+v", w)
	}

	w, err = ParseWindow("all")
	if err != nil {
		t.Fatalf("parse all: %v", err)
	}
	if !w.All {
		t.Fatalf("window = %+v", w)
	}

	for _, bad := range []string{"", "0", "-5", "60s", "ALL", "all ", "1.5"} {
		if _, err := ParseWindow(bad); !errors.Is(err, control.ErrInvalidArgument) {
			t.Errorf("ParseWindow(%q) = %v, want ErrInvalidArgument", bad, err)
		}
	}
}

func TestWindowBounds(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := start.Add(10 * time.Minute)

	since, until := Window{All: true}.bounds(start, now)
	if !since.Equal(start) || !until.Equal(now) {
		t.Fatalf("all bounds = %v .. %v", since, until)
	}

	since, until = Window{Duration: 30 * time.Second}.bounds(start, now)
	if !since.Equal(now.Add(-30*time.Second)) || !until.Equal(now) {
		t.Fatalf("sliding bounds = %v .. %v", since, until)
	}
}

func TestWindowLabel(t *testing.T) {
	if got := (Window{All: true}).Label(); got != "all" {
		t.Fatalf("label = %q", got)
	}
	if got := (Window{Duration: 300 * time.Second}).Label(); got != "300" {
		t.Fatalf("label = %q", got)
	}
}

func FuzzParseWindow(f *testing.F) {
	f.Add("60")
	f.Add("all")
	f.Add("-1")
	f.Add("1e9")
	f.Fuzz(func(t *testing.T, s string) {
		w, err := ParseWindow(s)
		if err != nil {
			if !errors.Is(err, control.ErrInvalidArgument) {
				t.Fatalf("ParseWindow(%q) error %v is not ErrInvalidArgument", s, err)
			}
			return
		}
		if !w.All && w.Duration <= 0 {
			t.Fatalf("ParseWindow(%q) accepted non-positive duration %v", s, w.Duration)
		}
	})
}

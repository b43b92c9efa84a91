package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"junk":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFilePath(t *testing.T) {
	if got := (Config{Path: "/tmp/x.log", Dir: "/var/log"}).filePath(); got != "/tmp/x.log" {
		t.Fatalf("explicit path ignored: %q", got)
	}
	if got := (Config{Dir: "/var/log"}).filePath(); got != filepath.Join("/var/log", "rigctl.log") {
		t.Fatalf("dir path = %q", got)
	}
	if got := (Config{}).filePath(); got != "" {
		t.Fatalf("empty config path = %q", got)
	}
}

func TestNewWritesToFile(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Dir: dir, Level: "debug", NoColor: true})
	l.Info("hello", "k", "v")

	data, err := os.ReadFile(filepath.Join(dir, "rigctl.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("log file empty")
	}
}

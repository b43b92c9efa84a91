package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildRootHasAllCommands(t *testing.T) {
	root := buildRoot()
	want := []string{
		"serve", "login", "status", "update", "bulk",
		"heartbeat", "fault", "activity", "reboot", "task", "user",
	}
	have := make(map[string]bool)
	for _, c := range root.Commands() {
		have[strings.Fields(c.Use)[0]] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Fatalf("missing subcommand %q", name)
		}
	}
}

func TestServeRequiresConfig(t *testing.T) {
	if err := runServeCommand(&ServeFlags{}, nil); err == nil {
		t.Fatal("expected error when config path is missing")
	}
}

func TestServeRejectsMissingConfigFile(t *testing.T) {
	err := runServeCommand(&ServeFlags{}, []string{filepath.Join(t.TempDir(), "nope.toml")})
	if err == nil {
		t.Fatal("expected error for nonexistent config file")
	}
}

func TestPidFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rigctl.pid")
	if err := writePidFile(path, 4242); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "4242" {
		t.Fatalf("pid file content = %q", b)
	}
	if err := removePidFile(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := removePidFile(""); err != nil {
		t.Fatalf("empty path should be a no-op, got %v", err)
	}
}

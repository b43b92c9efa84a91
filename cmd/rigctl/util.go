package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/labops/rigctl/pkg/client"
)

func newAPIClient(g *GlobalFlags) *client.Client {
	cfg := client.DefaultConfig()
	if g.APIUrl != "" {
		cfg.BaseURL = g.APIUrl
	}
	if g.APITimeout > 0 {
		cfg.Timeout = time.Duration(g.APITimeout) * time.Second
	}
	cfg.Token = g.Token
	return client.New(cfg)
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

// strFlag maps a cobra string flag to a patch pointer: unset flags stay
// nil so the server leaves the stored value untouched.
func strFlag(cmd interface{ Changed(string) bool }, name, value string) *string {
	if !cmd.Changed(name) {
		return nil
	}
	return &value
}

func intFlag(cmd interface{ Changed(string) bool }, name string, value int) *int {
	if !cmd.Changed(name) {
		return nil
	}
	return &value
}

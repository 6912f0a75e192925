// Copyright 2025 Joseph Cumines

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadConfig_Flags(t *testing.T) {
	t.Setenv("UIA_MCP_CONFIG", "")
	t.Setenv("UIA_PROVIDER_ADDR", "")

	cfg, err := loadConfig([]string{"--provider-addr", "automation:9000", "--find-timeout", "2s"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.ProviderAddr != "automation:9000" {
		t.Errorf("ProviderAddr = %s", cfg.ProviderAddr)
	}
	if cfg.FindTimeout != 2*time.Second {
		t.Errorf("FindTimeout = %v", cfg.FindTimeout)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Setenv("UIA_MCP_CONFIG", "")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown flag", []string{"--bogus"}, "unknown flag"},
		{"invalid level", []string{"--log-level", "loud"}, "invalid configuration"},
		{"poll slower than find", []string{"--poll-interval", "10s", "--find-timeout", "1s"}, "invalid configuration"},
		{"missing file", []string{"--config", "/nonexistent/uia.toml"}, "failed to load configuration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(tt.args, &bytes.Buffer{})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("loadConfig() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestRun_Help(t *testing.T) {
	var stderr bytes.Buffer
	err := run([]string{"--help"}, strings.NewReader(""), &bytes.Buffer{}, &stderr)
	if !errors.Is(err, pflag.ErrHelp) {
		t.Errorf("run(--help) = %v, want pflag.ErrHelp", err)
	}
	if !strings.Contains(stderr.String(), "--provider-addr") {
		t.Errorf("usage = %q", stderr.String())
	}
}

func TestRun_StdioSession(t *testing.T) {
	t.Setenv("UIA_MCP_CONFIG", "")

	input := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n\n"
	var stdout, stderr bytes.Buffer
	if err := run([]string{"--log-level", "error"}, strings.NewReader(input), &stdout, &stderr); err != nil {
		t.Fatalf("run() error = %v (stderr: %s)", err, stderr.String())
	}

	lines := strings.Split(strings.TrimSuffix(stdout.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("stdout has %d lines, want init + 1 response:\n%s", len(lines), stdout.String())
	}
	var resp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
		ID int `json:"id"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &resp); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if resp.ID != 1 || len(resp.Result.Tools) == 0 {
		t.Errorf("response = %s", lines[1])
	}
}

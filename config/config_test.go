package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GoCodeAlone/taskmaster/task"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taskmaster.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.TasksPath() != filepath.Join("tasks", "tasks.json") {
		t.Errorf("TasksPath = %q", cfg.TasksPath())
	}
	if cfg.Auth.Enabled() {
		t.Error("auth enabled without a password hash")
	}
	p, err := cfg.Policy()
	if err != nil || p != nil {
		t.Errorf("Policy = %v, %v; want nil, nil", p, err)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":8080"
store:
  dir: /srv/data
  agents_file: /etc/team.json
log:
  level: debug
transitions:
  pending: [in-progress]
  in-progress: [review, blocked]
  review: [done]
`)
	t.Setenv("TASKMASTER_SERVER_ADDR", ":7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("env override ignored: Addr = %q", cfg.Server.Addr)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q", cfg.Log.Level)
	}
	if cfg.TasksPath() != filepath.Join("/srv/data", "tasks.json") {
		t.Errorf("TasksPath = %q", cfg.TasksPath())
	}
	if cfg.AgentsPath() != "/etc/team.json" {
		t.Errorf("AgentsPath = %q", cfg.AgentsPath())
	}

	p, err := cfg.Policy()
	if err != nil {
		t.Fatalf("Policy: %v", err)
	}
	if !p.Allows(task.StatusPending, task.StatusInProgress) {
		t.Error("pending -> in-progress should be allowed")
	}
	if p.Allows(task.StatusPending, task.StatusDone) {
		t.Error("pending -> done should be refused")
	}
}

func TestLoad_InvalidTransitions(t *testing.T) {
	path := writeConfig(t, "transitions:\n  pending: [finished]\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown status in transitions")
	}
}

func TestLoad_AuthNeedsSecret(t *testing.T) {
	path := writeConfig(t, "auth:\n  admin_pass: \"$2a$10$abc\"\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for auth without jwt secret")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestYAML_MasksSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Auth.JWTSecret = "topsecret"
	cfg.Auth.AdminPass = "$2a$10$hash"

	out, err := cfg.YAML()
	if err != nil {
		t.Fatalf("YAML: %v", err)
	}
	s := string(out)
	if strings.Contains(s, "topsecret") || strings.Contains(s, "$2a$10$hash") {
		t.Errorf("secrets leaked:\n%s", s)
	}
	if !strings.Contains(s, "9090") || !strings.Contains(s, "tasks_file: tasks.json") {
		t.Errorf("output missing addr:\n%s", s)
	}
	if cfg.Auth.JWTSecret != "topsecret" {
		t.Error("YAML modified the receiver")
	}
}

package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/GoCodeAlone/taskmaster/comms"
	"github.com/GoCodeAlone/taskmaster/config"
	"github.com/GoCodeAlone/taskmaster/tracker"
)

// newTestTracker builds a tracker over a temp dir seeded with two tasks and
// one agent.
func newTestTracker(t *testing.T) *tracker.Service {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"tasks.json":  `{"tasks":[{"id":1,"title":"one"},{"id":2,"title":"two","status":"done"}]}`,
		"agents.json": `{"agents":[{"name":"Ada","status":"available"}]}`,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return tracker.New(tracker.Options{
		TasksPath:   filepath.Join(dir, "tasks.json"),
		AgentsPath:  filepath.Join(dir, "agents.json"),
		SprintsPath: filepath.Join(dir, "sprints.json"),
		Bus:         comms.NewInMemoryBus(),
	})
}

func testConfig(t *testing.T, withAuth bool) config.Config {
	t.Helper()
	cfg := *config.DefaultConfig()
	cfg.Server.Addr = ":0"
	if withAuth {
		hash, err := HashPassword("secret")
		if err != nil {
			t.Fatalf("HashPassword: %v", err)
		}
		cfg.Auth.AdminPass = hash
		cfg.Auth.JWTSecret = "test-secret-key-1234567890"
	}
	return cfg
}

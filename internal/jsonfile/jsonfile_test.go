package jsonfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type doc struct {
	Name  string `json:"name"`
	Items []int  `json:"items"`
}

func TestRead_ToleratesComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	src := `{
  // hand edited
  "name": "alpha",
  "items": [1, 2, 3,],
}`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var d doc
	if err := Read(path, &d); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if d.Name != "alpha" || len(d.Items) != 3 {
		t.Errorf("got %+v", d)
	}
}

func TestRead_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := os.WriteFile(path, []byte("  \n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var d doc
	if err := Read(path, &d); err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestWrite_PrettyAndAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "doc.json")
	if err := Write(path, doc{Name: "beta", Items: []int{4}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(data), "\n  \"name\": \"beta\"") {
		t.Errorf("expected two-space indentation, got:\n%s", data)
	}
	if !strings.HasSuffix(string(data), "\n") {
		t.Error("expected trailing newline")
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}

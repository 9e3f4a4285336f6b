package kernel

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadManifestMissingFileYieldsDefault(t *testing.T) {
	m, err := LoadManifest(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}

	want := DefaultManifest()
	if len(m.KernelThreads) != len(want.KernelThreads) {
		t.Fatalf("expected %d kernel threads, got %d", len(want.KernelThreads), len(m.KernelThreads))
	}
	if m.UserTask.Name != want.UserTask.Name {
		t.Fatalf("expected user task %q, got %q", want.UserTask.Name, m.UserTask.Name)
	}
}

func TestLoadManifestParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.yaml")

	const doc = `
kernel_threads:
  - name: idle
    entry: idle
  - name: worker
    entry: worker
user_task:
  name: shell
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writeFile: %v", err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}

	if len(m.KernelThreads) != 2 {
		t.Fatalf("expected 2 kernel threads, got %d", len(m.KernelThreads))
	}
	if m.KernelThreads[1].Name != "worker" || m.KernelThreads[1].Entry != "worker" {
		t.Fatalf("unexpected second thread: %+v", m.KernelThreads[1])
	}
	if m.UserTask.Name != "shell" {
		t.Fatalf("expected user task %q, got %q", "shell", m.UserTask.Name)
	}
}

func TestLoadManifestRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.yaml")
	if err := os.WriteFile(path, []byte("kernel_threads: [this is not: valid: yaml"), 0o644); err != nil {
		t.Fatalf("writeFile: %v", err)
	}

	if _, err := LoadManifest(path); err == nil {
		t.Fatalf("expected an error parsing malformed YAML")
	}
}

package kernel

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BootThread names one kernel thread to create at boot: a display name
// and a key into the EntryRegistry the boot orchestrator is given.
type BootThread struct {
	Name  string `yaml:"name"`
	Entry string `yaml:"entry"`
}

// BootUserTask names the single user task KernelMain launches.
type BootUserTask struct {
	Name string `yaml:"name"`
}

// BootManifest is a supplement to spec.md: the original's task::init()
// hard-codes the kernel-thread list and the one user task it creates.
// This turns that into declarative data, read the way
// cmd/ccapp/site_config.go reads SiteConfig, while keeping the
// hard-coded set as DefaultManifest's content so spec.md §8's S1/S2
// scenarios keep holding with no manifest file present.
type BootManifest struct {
	KernelThreads []BootThread `yaml:"kernel_threads"`
	UserTask      BootUserTask `yaml:"user_task"`
}

// DefaultManifest reproduces task::init()'s hard-coded set: idle,
// kthread1, kthread2, then a single user task named "init".
func DefaultManifest() *BootManifest {
	return &BootManifest{
		KernelThreads: []BootThread{
			{Name: "idle", Entry: "idle"},
			{Name: "kthread1", Entry: "kthread1"},
			{Name: "kthread2", Entry: "kthread2"},
		},
		UserTask: BootUserTask{Name: "init"},
	}
}

// LoadManifest reads a YAML boot manifest from path. A missing file is
// not an error: it yields DefaultManifest, so a from-scratch boot
// behaves exactly like the original's hard-coded task list.
func LoadManifest(path string) (*BootManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultManifest(), nil
		}
		return nil, fmt.Errorf("kernel: read boot manifest: %w", err)
	}

	var m BootManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("kernel: parse boot manifest: %w", err)
	}
	if len(m.KernelThreads) == 0 {
		m.KernelThreads = DefaultManifest().KernelThreads
	}
	if m.UserTask.Name == "" {
		m.UserTask.Name = DefaultManifest().UserTask.Name
	}
	return &m, nil
}

// Command kernel drives internal/kernel's boot path end to end: it
// builds the host stand-ins for the out-of-scope collaborators
// (memory manager, address spaces, console), loads a boot manifest,
// and calls KernelMain the way a real bootloader would call it once,
// with IF=0, at a multiboot2 header address.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tinyrange/nanokernel/internal/kernel"
)

var (
	manifestPath = flag.String("manifest", "", "path to a YAML boot manifest (defaults to the built-in idle/kthread1/kthread2/init set)")
	ticks        = flag.Int("ticks", 40, "number of timer ticks to drive after boot")
	verbose      = flag.Bool("v", false, "enable debug-level logging")
)

// demoMapping is a plausible, entirely synthetic address-space layout:
// there is no real paging collaborator behind this module (spec.md
// §1), so these ranges exist only to exercise VMA creation and the
// bootstrap-frame math.
var demoMapping = kernel.KernelMapping{
	UserStack: kernel.MemoryRange{Start: 0x0000_7000_0000_0000, End: 0x0000_7000_0000_0000 + 0x4000},
	UserCode:  kernel.MemoryRange{Start: 0x0000_7000_0010_0000, End: 0x0000_7000_0010_0000 + 0x1000},
	KernelMap: kernel.MemoryRange{Start: 0xffff_ffff_8000_0000, End: 0xffff_ffff_c000_0000},
}

func main() {
	if err := run(); err != nil {
		slog.Error("kernel exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	manifest := kernel.DefaultManifest()
	if *manifestPath != "" {
		m, err := kernel.LoadManifest(*manifestPath)
		if err != nil {
			return fmt.Errorf("load boot manifest: %w", err)
		}
		manifest = m
	}

	mm := kernel.NewHostMemoryManager()
	console := kernel.NewHostConsole(slog.Default())

	entries := kernel.EntryRegistry{
		"idle":     idleEntry,
		"kthread1": counterEntry("kthread1", 20),
		"kthread2": counterEntry("kthread2", 21),
	}

	userCode := make([]byte, 0x1000)
	for i := range userCode {
		userCode[i] = byte(i)
	}

	k, frame, err := kernel.KernelMain(0xdead_beef, mm, console, demoMapping, manifest, entries, userCode, slog.Default())
	if err != nil {
		return fmt.Errorf("kernel_main: %w", err)
	}

	slog.Info("start_tasking", "rip", fmt.Sprintf("0x%x", frame.RIP), "current", k.Tasks.CurrentID())

	for i := 0; i < *ticks; i++ {
		k.CPU.DisableInterrupts()
		k.Timer.HandleIRQ0(nil, nil)
		k.CPU.EnableInterrupts()
		time.Sleep(time.Millisecond)
	}

	return nil
}

func idleEntry(t *kernel.Task) {
	// The original idle thread is an infinite hlt loop; one scheduling
	// slice here is the residue of one hlt.
}

// counterEntry returns a TaskEntry that logs its invocation count to a
// fixed tty line, the Go residue of the original's test_thread/
// test_thread2 kernel threads (spec.md §9's "Console::with(&tty1,
// line, ...)").
func counterEntry(name string, line int) kernel.TaskEntry {
	count := 0
	return func(t *kernel.Task) {
		slog.Debug(fmt.Sprintf("%s: %d", name, count), "tty", line, "pid", t.PID)
		count++
	}
}

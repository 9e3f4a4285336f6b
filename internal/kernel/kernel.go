package kernel

import (
	"fmt"
	"log/slog"
)

// EntryRegistry maps a BootThread's Entry key to the TaskEntry
// function it names, so the boot manifest can reference kernel-thread
// bodies by name instead of the caller hard-coding pid order.
type EntryRegistry map[string]TaskEntry

// Kernel holds every singleton spec.md §9 calls out as "process-wide
// with strict init ordering": the descriptor tables, the PIC/PIT, the
// shared register bank, the task table, and the scheduler/timer that
// tie them together.
type Kernel struct {
	GDT   *GDT
	IDT   *IDT
	PIC   *PIC
	PIT   *PIT
	CPU   *CPU
	Tasks *TaskList
	Timer *Timer
	Sched *Scheduler

	Console Console
	MM      MemoryManager
	Mapping KernelMapping

	log *slog.Logger
}

// halted reports whether an exception handler drove the kernel into
// its hlt loop (spec.md §7: "Fatal CPU exception... halt via hlt
// loop"). KernelMain hands its halt method to the IDT as the halt
// callback; the flag is local to KernelMain and is not exposed on
// Kernel, so callers of KernelMain cannot read it.
type halted struct {
	is bool
}

func (h *halted) halt() { h.is = true }

// KernelMain is the entry point spec.md §6 names: "Called once by the
// bootloader-provided multiboot2-compliant loader with IF=0". mb2Addr
// is accepted to match that contract; multiboot2 parsing itself is an
// out-of-scope collaborator (spec.md §1), so it is otherwise unused
// here.
//
// Initialization ordering (spec.md §4.A): load GDT -> set CS, load TSS
// selector -> load IDT -> initialize PIT and keyboard -> initialize
// PIC chain and mask-enable IRQ2, TIMER, KBD -> sti -> spawn kernel
// threads -> create the user task -> first user entry.
func KernelMain(mb2Addr uint64, mm MemoryManager, console Console, mapping KernelMapping, manifest *BootManifest, entries EntryRegistry, userCodeTemplate []byte, log *slog.Logger) (*Kernel, ExceptionStackFrame, error) {
	if log == nil {
		log = slog.Default()
	}
	log.Debug("kernel_main", "mb2", fmt.Sprintf("0x%x", mb2Addr))

	gdt, err := NewGDT(mm)
	if err != nil {
		return nil, ExceptionStackFrame{}, err
	}

	h := &halted{}
	idt := NewIDT(console, h.halt, log)

	pic := NewPIC()
	pit := NewPIT()
	cpu := NewCPU()
	tasks := NewTaskList()

	sched := NewScheduler(tasks, cpu, gdt.TSS, console)
	timer := NewTimer(pic, cpu, sched)
	idt.SetIRQHandler(VectorTimer, timer.HandleIRQ0)
	idt.SetIRQHandler(VectorKeyboard, func(*ExceptionStackFrame, *uint32) {
		pic.EOI(IRQKeyboard)
	})

	pic.Unmask(IRQCascade)
	pic.Unmask(IRQTimer)
	pic.Unmask(IRQKeyboard)

	cpu.EnableInterrupts() // sti

	k := &Kernel{
		GDT: gdt, IDT: idt, PIC: pic, PIT: pit, CPU: cpu,
		Tasks: tasks, Timer: timer, Sched: sched,
		Console: console, MM: mm, Mapping: mapping, log: log,
	}

	console.Printk(LevelInfo, -1, "tasks init")

	// spec.md §4.D's init() wraps kernel-thread creation in a
	// push_flags/pop_flags pair even though interrupts are already on
	// at this point, matching the original's defensive discipline.
	wasEnabled := cpu.PushFlags()
	for _, th := range manifest.KernelThreads {
		entry, ok := entries[th.Entry]
		if !ok {
			return nil, ExceptionStackFrame{}, fmt.Errorf("kernel: boot manifest: no entry registered for %q (thread %q)", th.Entry, th.Name)
		}
		if _, err := tasks.AllocKernelTask(mm, th.Name, entry); err != nil {
			return nil, ExceptionStackFrame{}, err
		}
	}
	cpu.PopFlags(wasEnabled)

	cpu.DisableInterrupts()

	userTask, err := tasks.AllocTask(mm, mapping, manifest.UserTask.Name, 1, userCodeTemplate)
	if err != nil {
		return nil, ExceptionStackFrame{}, err
	}

	tasks.SetCurrentID(userTask.PID)

	console.Printk(LevelInfo, -1, "start_tasking")

	frame, err := RetToUserspace(gdt.TSS, cpu, userTask)
	if err != nil {
		return nil, ExceptionStackFrame{}, err
	}

	return k, frame, nil
}

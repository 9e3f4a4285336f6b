package kernel

import (
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(t *testing.T) (*Scheduler, *TaskList, *CPU, *TSS) {
	t.Helper()
	tasks := NewTaskList()
	cpu := NewCPU()
	tss := &TSS{}
	console := NewHostConsole(discardLogger())
	return NewScheduler(tasks, cpu, tss, console), tasks, cpu, tss
}

func TestSchedulerTickNoopWithoutCurrentTask(t *testing.T) {
	sched, tasks, _, _ := newTestScheduler(t)

	mm := NewHostMemoryManager()
	if _, err := tasks.AllocKernelTask(mm, "idle", nil); err != nil {
		t.Fatalf("AllocKernelTask: %v", err)
	}

	// CURRENT_ID is still 0: Tick must be a no-op (pre-multitasking boot).
	sched.Tick()
	if tasks.CurrentID() != 0 {
		t.Fatalf("Tick must not touch CURRENT_ID while it is 0, got %d", tasks.CurrentID())
	}
}

func TestSchedulerTickClearsInterruptsRegardlessOfCallerDiscipline(t *testing.T) {
	sched, tasks, cpu, _ := newTestScheduler(t)
	mm := NewHostMemoryManager()

	a, err := tasks.AllocKernelTask(mm, "a", nil)
	if err != nil {
		t.Fatalf("AllocKernelTask: %v", err)
	}
	if _, err := tasks.AllocKernelTask(mm, "b", nil); err != nil {
		t.Fatalf("AllocKernelTask: %v", err)
	}
	tasks.SetCurrentID(a.PID)
	cpu.load(a.Ctx)

	// Tick models the interrupt gate clearing IF on entry, the same way
	// real hardware would before a single instruction of IRQ0's handler
	// runs. A caller that forgot to cli first must not make Tick panic.
	cpu.EnableInterrupts()

	sched.Tick()
}

func TestSchedulerRoundRobinsOverThreeTasks(t *testing.T) {
	sched, tasks, cpu, tss := newTestScheduler(t)
	mm := NewHostMemoryManager()

	var order []TaskId
	recordEntry := func(tk *Task) { order = append(order, tk.PID) }

	a, err := tasks.AllocKernelTask(mm, "idle", recordEntry)
	if err != nil {
		t.Fatalf("AllocKernelTask: %v", err)
	}
	b, err := tasks.AllocKernelTask(mm, "kthread1", recordEntry)
	if err != nil {
		t.Fatalf("AllocKernelTask: %v", err)
	}
	c, err := tasks.AllocKernelTask(mm, "kthread2", recordEntry)
	if err != nil {
		t.Fatalf("AllocKernelTask: %v", err)
	}

	tasks.SetCurrentID(a.PID)
	// In the real boot path CURRENT_ID always names the task whose
	// context is already the live register file; a first Tick() with
	// nothing loaded would spuriously clobber a's primed context.
	cpu.load(a.Ctx)

	for i := 0; i < 6; i++ {
		sched.Tick()
	}

	want := []TaskId{b.PID, c.PID, a.PID, b.PID, c.PID, a.PID}
	if len(order) != len(want) {
		t.Fatalf("expected %d dispatches, got %d: %v", len(want), len(order), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("dispatch %d: got pid %d, want %d (full order %v)", i, order[i], want[i], order)
		}
	}

	// spec.md §3 invariant: the TSS landing stack always mirrors CURRENT_ID.
	current, _ := tasks.Current()
	if tss.PrivilegeStackTable[0] != current.Ctx.RSP {
		t.Fatalf("TSS privilege stack 0x%x does not match current task's kernel rsp 0x%x", tss.PrivilegeStackTable[0], current.Ctx.RSP)
	}
	_ = cpu
}

func TestSwitchToSavesAndLoadsCalleeSavedRegisters(t *testing.T) {
	tasks := NewTaskList()
	mm := NewHostMemoryManager()
	cpu := NewCPU()

	a, err := tasks.AllocKernelTask(mm, "a", nil)
	if err != nil {
		t.Fatalf("AllocKernelTask: %v", err)
	}
	b, err := tasks.AllocKernelTask(mm, "b", nil)
	if err != nil {
		t.Fatalf("AllocKernelTask: %v", err)
	}

	cpu.load(SavedContext{RBX: 0x11, R12: 0x12, RSP: 0x1000, RBP: 0x2000, RFLAGS: defaultRFLAGS})

	SwitchTo(cpu, a, b)

	if a.Ctx.RBX != 0x11 || a.Ctx.R12 != 0x12 || a.Ctx.RSP != 0x1000 || a.Ctx.RBP != 0x2000 {
		t.Fatalf("SwitchTo did not save the outgoing task's live register state: %+v", a.Ctx)
	}
	if cpu.RSP != b.Ctx.RSP || cpu.RBP != b.Ctx.RBP {
		t.Fatalf("SwitchTo did not load the incoming task's saved context onto the cpu")
	}
}

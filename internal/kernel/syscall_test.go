package kernel

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSyscallEntryWritesSysCtxAndDispatches(t *testing.T) {
	tasks := NewTaskList()
	mm := NewHostMemoryManager()
	cpu := NewCPU()
	console := NewHostConsole(discardLogger())

	task, err := tasks.AllocKernelTask(mm, "init", nil)
	if err != nil {
		t.Fatalf("AllocKernelTask: %v", err)
	}
	tasks.SetCurrentID(task.PID)

	call := SyscallContext{RAX: uint64(SyscallWrite), RDI: 1, RSI: 42}

	cpu.DisableInterrupts()
	ret, err := SyscallEntry(tasks, cpu, console, call)
	if err != nil {
		t.Fatalf("SyscallEntry: %v", err)
	}

	if ret.RAX != call.RAX {
		t.Fatalf("expected sysctx round-trip, got rax=%d want %d", ret.RAX, call.RAX)
	}
	if cpu.InterruptsEnabled() {
		t.Fatalf("SyscallEntry must leave interrupts disabled on return (step 5: cli before returning)")
	}
	if cpu.RSP != task.KernStackTop() {
		t.Fatalf("SyscallEntry must switch RSP to kern_rsp, got 0x%x want 0x%x", cpu.RSP, task.KernStackTop())
	}
}

// TestSyscallEntryLogsSysWrite covers spec.md §8 scenario S3: a
// write(RAX=16) syscall must produce a "sys_write: thread N: rax M"
// log line, not just round-trip SysCtx.
func TestSyscallEntryLogsSysWrite(t *testing.T) {
	tasks := NewTaskList()
	mm := NewHostMemoryManager()
	cpu := NewCPU()

	var buf bytes.Buffer
	console := NewHostConsole(slog.New(slog.NewTextHandler(&buf, nil)))

	task, err := tasks.AllocKernelTask(mm, "init", nil)
	if err != nil {
		t.Fatalf("AllocKernelTask: %v", err)
	}
	tasks.SetCurrentID(task.PID)

	call := SyscallContext{RAX: uint64(SyscallWrite), RDI: 1}

	cpu.DisableInterrupts()
	if _, err := SyscallEntry(tasks, cpu, console, call); err != nil {
		t.Fatalf("SyscallEntry: %v", err)
	}

	want := "sys_write: thread 1: rax 16"
	if !strings.Contains(buf.String(), want) {
		t.Fatalf("expected log output to contain %q, got %q", want, buf.String())
	}
}

func TestSyscallEntryRequiresCurrentTask(t *testing.T) {
	tasks := NewTaskList()
	cpu := NewCPU()
	console := NewHostConsole(discardLogger())

	_, err := SyscallEntry(tasks, cpu, console, SyscallContext{})
	if err != ErrNoCurrentTask {
		t.Fatalf("expected ErrNoCurrentTask, got %v", err)
	}
}

func TestDispatchUnknownSyscallIsNoop(t *testing.T) {
	tasks := NewTaskList()
	mm := NewHostMemoryManager()
	console := NewHostConsole(discardLogger())

	task, err := tasks.AllocKernelTask(mm, "init", nil)
	if err != nil {
		t.Fatalf("AllocKernelTask: %v", err)
	}
	task.SysCtx.RAX = 0xdead

	dispatch(SyscallNumber(9999), task, console)

	if task.SysCtx.RAX != 0xdead {
		t.Fatalf("an undefined syscall must leave RAX untouched, got 0x%x", task.SysCtx.RAX)
	}
}

func TestRetToUserspaceBuildsFrameAndSyncsTSS(t *testing.T) {
	tasks := NewTaskList()
	mm := NewHostMemoryManager()
	cpu := NewCPU()
	tss := &TSS{}

	mapping := KernelMapping{
		UserStack: MemoryRange{Start: 0x7000_0000, End: 0x7000_4000},
		UserCode:  MemoryRange{Start: 0x7010_0000, End: 0x7010_1000},
	}
	code := make([]byte, 16)

	task, err := tasks.AllocTask(mm, mapping, "init", 0, code)
	if err != nil {
		t.Fatalf("AllocTask: %v", err)
	}

	frame, err := RetToUserspace(tss, cpu, task)
	if err != nil {
		t.Fatalf("RetToUserspace: %v", err)
	}

	if frame.RIP != task.Code.Start {
		t.Fatalf("frame.RIP = 0x%x, want 0x%x", frame.RIP, task.Code.Start)
	}
	if frame.CS != UserCSSel || frame.OldSS != UserDSSel {
		t.Fatalf("frame selectors are not ring-3: cs=0x%x ss=0x%x", frame.CS, frame.OldSS)
	}
	if frame.OldRSP != mapping.UserStack.End {
		t.Fatalf("frame.OldRSP = 0x%x, want top of user stack 0x%x", frame.OldRSP, mapping.UserStack.End)
	}
	if tss.PrivilegeStackTable[0] != task.Ctx.RSP {
		t.Fatalf("TSS landing stack not synced to the task's kernel rsp")
	}
	if cpu.RSP != frame.OldRSP || cpu.RBP != frame.OldRSP {
		t.Fatalf("cpu rsp/rbp must both become the user rsp after the synthetic sysretq")
	}
}

func TestRetToUserspaceRejectsKernelTask(t *testing.T) {
	tasks := NewTaskList()
	mm := NewHostMemoryManager()
	cpu := NewCPU()
	tss := &TSS{}

	task, err := tasks.AllocKernelTask(mm, "idle", nil)
	if err != nil {
		t.Fatalf("AllocKernelTask: %v", err)
	}

	if _, err := RetToUserspace(tss, cpu, task); err == nil {
		t.Fatalf("expected RetToUserspace to reject a kernel thread")
	}
}

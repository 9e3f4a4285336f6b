package kernel

// SyscallNumber identifies a syscall by its RAX value (spec.md §6).
type SyscallNumber uint64

// SyscallWrite is the only syscall this core defines (spec.md §6:
// "Currently defined: 16 = write").
const SyscallWrite SyscallNumber = 16

// SyscallHandler runs with interrupts re-enabled, on the calling
// task's kernel stack, and reads/writes through task.SysCtx (spec.md
// §4.G step 5).
type SyscallHandler func(task *Task, console Console)

// syscallHandlers is the dispatch table keyed by syscall number
// (spec.md §4.G step 5, §6).
var syscallHandlers = map[SyscallNumber]SyscallHandler{
	SyscallWrite: sysWrite,
}

// SyscallEntry is the syscall entry contract (spec.md §4.G). On real
// hardware the CPU has already loaded CS/SS from STAR, RCX/R11 hold
// the user RIP/RFLAGS, and GS points at the current task's TLS record;
// call carries the marshalled snapshot of that state (the residue of
// "the entry stub captures the caller's registers").
//
// Sequence:
//  1. Take the per-task write lock, copy call into task.sysctx, read
//     kern_rsp.
//  2. "Switch RSP to kern_rsp" — recorded on the shared register bank.
//  3. Enable interrupts.
//  4. Dispatch by syscall number.
//  5. Disable interrupts.
//  6. Return the marshalled sysctx for the caller to hand to the
//     return stub (syscallReturn below).
func SyscallEntry(tasks *TaskList, cpu *CPU, console Console, call SyscallContext) (SyscallContext, error) {
	task, err := tasks.Current()
	if err != nil {
		return SyscallContext{}, err
	}

	task.Lock()
	task.SysCtx = call
	kernRSP := task.KernStackTop()
	task.Unlock()

	cpu.SetRSP(kernRSP)
	cpu.EnableInterrupts()

	dispatch(SyscallNumber(call.RAX), task, console)

	cpu.DisableInterrupts()

	return syscallReturn(task), nil
}

// dispatch looks up and calls the handler for num. An undefined
// syscall number is a no-op: spec.md §6/§7 define no error-reporting
// channel for syscalls yet, so RAX simply passes through unchanged.
func dispatch(num SyscallNumber, task *Task, console Console) {
	if h, ok := syscallHandlers[num]; ok {
		h(task, console)
	}
}

// syscallReturn reads sysctx back out (spec.md §4.G's "Return stub"):
// on real hardware this marshals R11/RCX/RBX/RAX/RDI/RSI/RDX/R8/R9/R10
// from the saved context and executes sysretq; here the caller
// (RetToUserspace's steady-state counterpart, or a test) receives the
// plain struct instead of raw registers.
func syscallReturn(task *Task) SyscallContext {
	task.RLock()
	defer task.RUnlock()
	return task.SysCtx
}

// sysWrite is the only implemented syscall: it logs rax the way the
// original logs to tty line 19 (spec.md §6, §8 scenario S3).
func sysWrite(task *Task, console Console) {
	task.RLock()
	rax := task.SysCtx.RAX
	pid := task.PID
	task.RUnlock()

	console.Printk(LevelInfo, 19, "sys_write: thread %d: rax %d", pid, rax)
}

// RetToUserspace performs the first-ever transition into a user task
// (spec.md §4.G): build a synthetic ExceptionStackFrame pointing at the
// user entry, point TSS.privilege_stack_table[0] at the task's kernel
// rsp, publish the task's kern_rsp via the GS-base stand-in, load the
// task's CR3, and (since sysretq is "divergent" on real hardware but
// this module runs hosted) return the frame that would have been
// consumed by swapgs+sysretq so a caller can observe the outcome
// instead of the process actually jumping to ring 3.
func RetToUserspace(tss *TSS, cpu *CPU, task *Task) (ExceptionStackFrame, error) {
	if task.KernStack == nil || task.Code == nil || task.UserStack == nil {
		return ExceptionStackFrame{}, panicf("ret_to_userspace: task %d is not a user task", task.PID)
	}

	frame := ExceptionStackFrame{
		RIP:    task.Code.Start,
		CS:     UserCSSel,
		RFLAGS: task.Ctx.RFLAGS,
		OldRSP: task.UserStack.Start + task.UserStack.Size,
		OldSS:  UserDSSel,
	}

	tss.SetCurrentKernelStack(task.Ctx.RSP)

	tlsBase := task.KernStack.Top() - tlsSegmentSize
	kernRSP := task.KernStack.ReadWord(tlsBase + 8)
	if kernRSP != 0 {
		cpu.SetGSBase(kernRSP)
	}

	cpu.SetCR3(task.Ctx.CR3)

	// swapgs + sysretq's register marshalling, expressed as the
	// residue that matters to this module: the CPU's stack pointer and
	// rbp both become the user rsp (spec.md §4.G's "mov rbp, rbx; mov
	// rsp, rbx"), and flags come from the frame.
	cpu.SetRBP(frame.OldRSP)
	cpu.SetRSP(frame.OldRSP)
	cpu.SetRFLAGS(frame.RFLAGS)

	return frame, nil
}

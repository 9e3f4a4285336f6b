package kernel

// SwitchTo is the callee-saved-only context switch (spec.md §4.E):
// save rflags and the callee-saved register set plus rsp from cpu into
// current.ctx (leaving current.ctx.cr3 untouched — cr3 belongs to the
// address space, not the register file), then load next.ctx into cpu.
//
// The caller is responsible for writing any new CR3 into cpu *before*
// calling SwitchTo if current.ctx.cr3 != next.ctx.cr3 (spec.md §4.E:
// "because the kernel stack being switched to must be addressable in
// the new space"); SwitchTo itself never touches cr3.
func SwitchTo(cpu *CPU, current, next *Task) {
	saved := cpu.snapshot()
	saved.CR3 = current.Ctx.CR3
	current.Ctx = saved

	cpu.load(next.Ctx)
}

// Scheduler is the timer-driven round-robin scheduler (spec.md §4.F).
type Scheduler struct {
	tasks   *TaskList
	cpu     *CPU
	tss     *TSS
	console Console
}

// NewScheduler wires the scheduler to the task table, the shared
// register bank, the TSS (so privilege_stack_table[0] tracks the
// current task per spec.md §3's invariant), and the console used for
// the "lock contention on next task" critical log (spec.md §7).
func NewScheduler(tasks *TaskList, cpu *CPU, tss *TSS, console Console) *Scheduler {
	return &Scheduler{tasks: tasks, cpu: cpu, tss: tss, console: console}
}

// Tick runs one scheduler invocation (spec.md §4.F contract):
//
//  1. Pre: IF=0. On real hardware IRQ0 is delivered through an
//     interrupt gate, which clears IF as part of the transition into
//     the handler before a single instruction of it runs — the
//     precondition holds by construction, not by the caller's
//     discipline. Tick models that gate by clearing IF itself as its
//     first act, so this precondition is self-enforcing rather than
//     pushed onto every caller (HandleIRQ0, tests, ...).
//  2. If CURRENT_ID == 0, return (pre-multitasking bootstrap).
//  3. next_id = CURRENT_ID + 1, wrapping to 1 at the allocation
//     counter. Round-robin over allocated tasks in id order.
//  4. Store next_id into CURRENT_ID.
//  5. Acquire a read guard on current (tryread; assertion on failure)
//     and a write guard on next (trywrite; abort + log on failure).
//     Both guards are held across the actual switch — the original
//     Rust source drops the current-task guard before calling
//     switch_to, a use-after-unlock spec.md §9 calls out as a bug to
//     fix rather than copy.
//  6. If the two tasks have different cr3, write the new CR3.
//  7. Call SwitchTo.
func (s *Scheduler) Tick() {
	s.cpu.DisableInterrupts()

	id := s.tasks.CurrentID()
	if id == 0 {
		return
	}

	s.tasks.mu.RLock()
	nid := id + 1
	if nid >= s.tasks.nextID {
		nid = 1
	}
	current, currentOK := s.tasks.tasks[id]
	next, nextOK := s.tasks.tasks[nid]
	s.tasks.mu.RUnlock()

	if !currentOK {
		panic("kernel: sched: get current task error")
	}
	if id == nid {
		panic("kernel: sched: id should not be equal to nid")
	}

	s.tasks.SetCurrentID(nid)

	if !current.TryRLock() {
		panic("kernel: sched: current lock failed")
	}
	defer current.RUnlock()

	if !nextOK {
		s.console.Printk(LevelCritical, -1, "sched: get next task error")
		return
	}
	if !next.TryLock() {
		s.console.Printk(LevelCritical, -1, "sched: next(%d) lock failed", nid)
		return
	}
	defer next.Unlock()

	if s.cpu.CurrentCR3() != next.Ctx.CR3 {
		s.cpu.SetCR3(next.Ctx.CR3)
	}

	SwitchTo(s.cpu, current, next)

	// Keep the ring-3-to-ring-0 landing stack in sync with whichever
	// task is now current (spec.md §3 invariant, §8 property 8): a
	// timer IRQ arriving while next is running in user mode must land
	// on next's kernel stack.
	s.tss.SetCurrentKernelStack(next.Ctx.RSP)

	if next.Entry != nil {
		next.Entry(next)
	}
}

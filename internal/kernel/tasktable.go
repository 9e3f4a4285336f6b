package kernel

import (
	"reflect"
	"sync"

	"gvisor.dev/gvisor/pkg/atomicbitops"
)

// wordSize is the machine word size the bootstrap frame layout in
// spec.md §4.D is expressed in.
const wordSize = 8

// tlsSegmentSize is sizeof(TLSSegment): two machine words.
const tlsSegmentSize = 2 * wordSize

// bootstrapFrameWords is the six-word frame spec.md §4.D primes below
// a kernel thread's TLSSegment: SS, RSP, RFLAGS, CS, RIP, return
// address.
const bootstrapFrameWords = 6

// startTaskToken is the synthetic "address" recorded in bootstrap-frame
// slot -6, standing in for &start_task (spec.md §4.D). There is no real
// start_task trampoline to take the address of in hosted Go; the token
// only needs to be a recognizable, non-zero sentinel so tests can
// confirm the six-word layout was actually written.
const startTaskToken uint64 = 0xffff_ffff_5441_534b // "TASK" in the low bytes

// primeKernelThreadFrame writes spec.md §4.D's kernel-thread bootstrap
// layout into stack and returns ctx.rsp: the address of slot -6, where
// switch_to's restored RSP will land on the first dispatch into this
// task.
//
//	top-0     : TLSSegment{user_rsp: 0, kern_rsp: tlsbase}
//	slot -1   : kernel data selector      (SS for iretq)
//	slot -2   : tlsbase                   (RSP for iretq)
//	slot -3   : rflags                    (RFLAGS for iretq)
//	slot -4   : kernel code selector      (CS for iretq)
//	slot -5   : entry token               (RIP for iretq)
//	slot -6   : start_task token          (return address)
func primeKernelThreadFrame(stack *KernelStack, entry TaskEntry, rflags uint64) uint64 {
	top := stack.Top()
	tlsbase := top - tlsSegmentSize

	stack.WriteWord(tlsbase, 0)          // TLSSegment.UserRSP
	stack.WriteWord(tlsbase+8, tlsbase)  // TLSSegment.KernRSP

	slot := func(n uint64) uint64 { return tlsbase - wordSize*n }

	stack.WriteWord(slot(1), uint64(KernDSSel))
	stack.WriteWord(slot(2), tlsbase)
	stack.WriteWord(slot(3), rflags)
	stack.WriteWord(slot(4), uint64(KernCSSel))
	stack.WriteWord(slot(5), entryToken(entry))
	stack.WriteWord(slot(6), startTaskToken)

	return slot(bootstrapFrameWords)
}

// entryToken gives a TaskEntry a stable numeric identity for the
// bootstrap frame's RIP slot, the logical residue of "the address of
// the function to synthetically return into".
func entryToken(entry TaskEntry) uint64 {
	if entry == nil {
		return 0
	}
	return uint64(reflect.ValueOf(entry).Pointer())
}

// primeUserTaskFrame writes spec.md §4.D's user-task bootstrap layout:
// only the TLSSegment, with kern_rsp = tlsbase and user_rsp = the top
// of the user stack. ctx.rsp is tlsbase; the first transition into this
// task goes through RetToUserspace, not the iretq trampoline.
func primeUserTaskFrame(stack *KernelStack, userStackTop uint64) uint64 {
	top := stack.Top()
	tlsbase := top - tlsSegmentSize

	stack.WriteWord(tlsbase, userStackTop)
	stack.WriteWord(tlsbase+8, tlsbase)

	return tlsbase
}

// TaskList is the ordered TaskId -> Task mapping (spec.md §3/§4.C),
// guarded by an RW lock, plus the monotonic id counter and the
// process-wide CURRENT_ID. CURRENT_ID lives here rather than as a bare
// package-level global because every reader of it (the scheduler, the
// syscall pathway) already needs to reach through TaskList to resolve
// the id into a *Task.
type TaskList struct {
	mu     sync.RWMutex
	tasks  map[TaskId]*Task
	nextID TaskId

	currentID atomicbitops.Uint32
}

// NewTaskList returns an empty task table with the first allocatable
// id set to 1 (spec.md §3: "0 is reserved for 'no current task'").
func NewTaskList() *TaskList {
	return &TaskList{
		tasks:  make(map[TaskId]*Task),
		nextID: 1,
	}
}

// CurrentID returns CURRENT_ID. Go's sync/atomic (which
// gvisor.dev/gvisor/pkg/atomicbitops wraps) only offers sequentially
// consistent loads/stores; spec.md §5's distinction between a SeqCst
// read and a release-ordered store collapses to the same operation
// here, which is documented in DESIGN.md rather than worked around.
func (tl *TaskList) CurrentID() TaskId {
	return TaskId(tl.currentID.Load())
}

// SetCurrentID stores CURRENT_ID. Used by the scheduler (spec.md §4.F)
// and by initial task creation (spec.md §4.D's first entry).
func (tl *TaskList) SetCurrentID(id TaskId) {
	tl.currentID.Store(uint32(id))
}

// GetTask looks up a task by id.
func (tl *TaskList) GetTask(id TaskId) (*Task, bool) {
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	t, ok := tl.tasks[id]
	return t, ok
}

// Current looks up the task named by CURRENT_ID.
func (tl *TaskList) Current() (*Task, error) {
	id := tl.CurrentID()
	if id == 0 {
		return nil, ErrNoCurrentTask
	}
	t, ok := tl.GetTask(id)
	if !ok {
		return nil, ErrNoCurrentTask
	}
	return t, nil
}

// allocateID reserves the next task id under the table's write lock,
// enforcing spec.md §3's "fixed compile-time bound" (MaxTasks).
func (tl *TaskList) allocateID() (TaskId, error) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.nextID >= MaxTasks {
		return 0, ErrTaskTableFull
	}
	id := tl.nextID
	tl.nextID++
	return id, nil
}

func (tl *TaskList) insert(t *Task) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.tasks[t.PID] = t
}

// AllocKernelTask allocates the next pid and builds a kernel thread:
// a shared (kernel) address space, an 8 KiB kernel stack primed per
// spec.md §4.D so the first switch_to "returns" into entry (component
// C/D).
func (tl *TaskList) AllocKernelTask(mm MemoryManager, name string, entry TaskEntry) (*Task, error) {
	pid, err := tl.allocateID()
	if err != nil {
		return nil, err
	}

	stack, err := mm.AllocateStack(KernelStackSize)
	if err != nil {
		return nil, panicf("alloc_kernel_task: allocate kernel stack: %v", err)
	}

	addressSpace := mm.KernelAddressSpace()

	task := &Task{
		PID:          pid,
		PPID:         0,
		Name:         name,
		AddressSpace: addressSpace,
		KernStack:    stack,
		State:        StateCreated,
		Entry:        entry,
	}
	task.Ctx.RFLAGS = defaultRFLAGS
	task.Ctx.RSP = primeKernelThreadFrame(stack, entry, defaultRFLAGS)
	task.Ctx.CR3 = addressSpace.Root()

	tl.insert(task)
	return task, nil
}

// AllocTask allocates the next pid and builds a user task: a fresh
// address space, user stack and code VMAs mapped and seeded, and an 8
// KiB kernel stack primed with only a TLSSegment (spec.md §4.D,
// component D). codeTemplate is copied into the code VMA — the
// hosted-Go stand-in for "byte-copy 4 KiB from entry_rip", since there
// is no raw pointer to take the address of here.
func (tl *TaskList) AllocTask(mm MemoryManager, mapping KernelMapping, name string, parent TaskId, codeTemplate []byte) (*Task, error) {
	pid, err := tl.allocateID()
	if err != nil {
		return nil, err
	}

	addressSpace, err := mm.NewUserAddressSpace()
	if err != nil {
		return nil, panicf("alloc_task: create address space: %v", err)
	}

	userStack, err := NewVirtualMemoryArea(mapping.UserStack.Start, mapping.UserStack.Size(), FlagUser|FlagWritable|FlagNoExecute)
	if err != nil {
		return nil, err
	}
	if err := addressSpace.Map(userStack); err != nil {
		return nil, panicf("alloc_task: map user stack: %v", err)
	}
	userStack.Mapped = true

	code, err := NewVirtualMemoryArea(mapping.UserCode.Start, 4*1024, FlagUser|FlagWritable)
	if err != nil {
		return nil, err
	}
	if err := addressSpace.Map(code); err != nil {
		return nil, panicf("alloc_task: map user code: %v", err)
	}
	code.Mapped = true

	// "temporarily switch into the new address space, byte-copy...,
	// switch back" (spec.md §4.D): WriteAt's contract already lets the
	// caller seed a VMA without installing the address space in CR3.
	if err := addressSpace.WriteAt(code.Start, codeTemplate); err != nil {
		return nil, panicf("alloc_task: seed user code: %v", err)
	}

	stack, err := mm.AllocateStack(KernelStackSize)
	if err != nil {
		return nil, panicf("alloc_task: allocate kernel stack: %v", err)
	}

	task := &Task{
		PID:          pid,
		PPID:         parent,
		Name:         name,
		AddressSpace: addressSpace,
		KernStack:    stack,
		UserStack:    userStack,
		Code:         code,
		State:        StateCreated,
	}
	task.Ctx.RFLAGS = defaultRFLAGS
	task.Ctx.RSP = primeUserTaskFrame(stack, mapping.UserStack.End)
	task.Ctx.CR3 = addressSpace.Root()

	tl.insert(task)
	return task, nil
}

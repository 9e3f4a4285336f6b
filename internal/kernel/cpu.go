package kernel

import "sync"

// Register enumerates the machine registers this core cares about,
// mirroring the shape of spec.md's SavedContext/SyscallContext fields
// and the teacher's own hv.Register enumeration.
type Register int

const (
	RegisterInvalid Register = iota
	RegisterRAX
	RegisterRBX
	RegisterRCX
	RegisterRDX
	RegisterRSI
	RegisterRDI
	RegisterRSP
	RegisterRBP
	RegisterR8
	RegisterR9
	RegisterR10
	RegisterR11
	RegisterR12
	RegisterR13
	RegisterR14
	RegisterR15
	RegisterRIP
	RegisterRFLAGS
	RegisterCR3
)

// CPU models the single hardware CPU's live register file. There is
// exactly one in this core (spec.md §5: "single hardware CPU"); it is
// the value context switch and syscall entry/exit save into and
// restore from.
//
// On real hardware this state lives in physical registers and is
// implicitly "whatever the currently running task last left it as".
// Since this module runs as hosted Go rather than on bare metal, CPU
// is the explicit stand-in for that implicit state: the orchestrator
// and the syscall path read and write it instead of touching real
// registers.
type CPU struct {
	mu sync.Mutex

	RFLAGS uint64
	RBP    uint64
	RBX    uint64
	R12    uint64
	R13    uint64
	R14    uint64
	R15    uint64
	RSP    uint64

	// cr3 is the physical root of the address space currently loaded,
	// tracked here because there is no real MMU to ask (spec.md §4.E:
	// "The caller... is responsible for updating CR3... before calling
	// switch_to").
	cr3 Root

	// gsBase stands in for the IA32_GS_BASE MSR written on first user
	// entry (spec.md §4.G/§6), through which the syscall stub reaches a
	// task's TLSSegment.
	gsBase uint64
}

// NewCPU returns a CPU with interrupts disabled, matching the state
// the bootloader hands the kernel at entry (spec.md §6: "Called once
// by the bootloader... with IF=0").
func NewCPU() *CPU {
	return &CPU{RFLAGS: 0}
}

// InterruptsEnabled reports IF.
func (c *CPU) InterruptsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.RFLAGS&rflagsIF != 0
}

// PushFlags disables interrupts and returns the previous IF state, for
// the cli/sti-pair idiom spec.md §4.B and §5 require around any
// critical section a handler might also take (the original's
// cpu::push_flags/pop_flags pair).
func (c *CPU) PushFlags() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.RFLAGS&rflagsIF != 0
	c.RFLAGS &^= rflagsIF
	return prev
}

// PopFlags restores IF to the state PushFlags observed.
func (c *CPU) PopFlags(wasEnabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if wasEnabled {
		c.RFLAGS |= rflagsIF
	} else {
		c.RFLAGS &^= rflagsIF
	}
}

// EnableInterrupts is sti.
func (c *CPU) EnableInterrupts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RFLAGS |= rflagsIF
}

// DisableInterrupts is cli.
func (c *CPU) DisableInterrupts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RFLAGS &^= rflagsIF
}

// snapshot returns the register bank's current value as a
// SavedContext (CR3 is left zero; callers that care about CR3 track
// it on the Task, since the CPU struct itself has no notion of "whose"
// address space is loaded).
func (c *CPU) snapshot() SavedContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SavedContext{
		RFLAGS: c.RFLAGS,
		RBP:    c.RBP,
		RBX:    c.RBX,
		R12:    c.R12,
		R13:    c.R13,
		R14:    c.R14,
		R15:    c.R15,
		RSP:    c.RSP,
	}
}

// SetCR3 loads a new address-space root and returns the previous one,
// matching the paging::switch collaborator's contract in spec.md §6.
func (c *CPU) SetCR3(r Root) Root {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.cr3
	c.cr3 = r
	return prev
}

// CurrentCR3 reports the address-space root currently loaded.
func (c *CPU) CurrentCR3() Root {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cr3
}

// SetGSBase writes the IA32_GS_BASE stand-in (spec.md §4.G: "write the
// user kern_rsp to IA32_GS_BASE so the first syscall finds it via GS").
func (c *CPU) SetGSBase(v uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gsBase = v
}

// GSBase reports the current IA32_GS_BASE stand-in.
func (c *CPU) GSBase() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gsBase
}

// SetRSP overwrites only the stack pointer, for paths that relocate
// the live stack without performing a full context switch (spec.md
// §4.G step 3: "Switch RSP to kern_rsp").
func (c *CPU) SetRSP(v uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RSP = v
}

// SetRBP overwrites only the frame pointer.
func (c *CPU) SetRBP(v uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RBP = v
}

// SetRFLAGS overwrites the flags register wholesale, used only by
// RetToUserspace's synthetic frame restore (spec.md §4.G); everywhere
// else flips IF through EnableInterrupts/DisableInterrupts/PushFlags/
// PopFlags instead.
func (c *CPU) SetRFLAGS(v uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RFLAGS = v
}

// load installs ctx's general-purpose registers and stack pointer,
// then — last, in that order — RBP and RFLAGS, matching spec.md
// §4.E step 3 ("Restore flags and rbp as the last two operations...
// because restoring flags re-enables interrupts").
func (c *CPU) load(ctx SavedContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RBX = ctx.RBX
	c.R12 = ctx.R12
	c.R13 = ctx.R13
	c.R14 = ctx.R14
	c.R15 = ctx.R15
	c.RSP = ctx.RSP

	c.RBP = ctx.RBP
	c.RFLAGS = ctx.RFLAGS
}

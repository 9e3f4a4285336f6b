package kernel

// Segment selectors, fixed at boot (spec.md §4.A). Real selector
// values encode an index and a ring/table bit; the exact encoding is
// platform bring-up glue out of scope for this module (spec.md §1), so
// these are opaque process-wide constants the rest of the core treats
// as handles, exactly the role they play in spec.md.
type SegmentSelector uint16

const (
	KernCSSel SegmentSelector = 0x08
	KernDSSel SegmentSelector = 0x10
	UserCSSel SegmentSelector = 0x1B // RPL 3
	UserDSSel SegmentSelector = 0x23 // RPL 3
	TSSSel    SegmentSelector = 0x28
)

// ISTDoubleFaultStackSize is the size of the IST0 stack the TSS points
// double faults at (spec.md §4.A: "IST slot 0 points at a dedicated
// double-fault stack allocated from the kernel stack allocator").
const ISTDoubleFaultStackSize = 4 * 1024

// TSS is the Task State Segment (spec.md §3/§4.A). Only
// PrivilegeStackTable[0] and IST[0] are used by this core.
type TSS struct {
	// PrivilegeStackTable[0] is the ring-0 stack the CPU loads on a
	// ring-3-to-ring-0 transition. The scheduler keeps this equal to
	// the current task's kernel rsp on every switch (spec.md §3
	// invariant, §8 property 8).
	PrivilegeStackTable [1]uint64

	// IST[0] is the double-fault stack (spec.md §4.A).
	IST [1]uint64
}

// SetCurrentKernelStack updates TSS.privilege_stack_table[0]. Called
// by the scheduler on every switch and by RetToUserspace on first
// entry (spec.md §3 invariant).
func (t *TSS) SetCurrentKernelStack(rsp uint64) {
	t.PrivilegeStackTable[0] = rsp
}

// GDT is the Global Descriptor Table (spec.md §4.A): a kernel code
// segment, a user code segment, a user data segment, and a TSS
// descriptor. The actual descriptor encoding is platform bring-up glue
// (spec.md §1, explicitly out of scope); what this core owns is the
// selector constants above and the TSS they point at.
type GDT struct {
	TSS *TSS
}

// NewGDT builds the GDT and its TSS, wiring IST0 to a fresh
// double-fault stack allocated through the memory collaborator
// (spec.md §4.A init ordering step 1: "load GDT").
func NewGDT(mm MemoryManager) (*GDT, error) {
	ist0, err := mm.AllocateStack(ISTDoubleFaultStackSize)
	if err != nil {
		return nil, panicf("allocate IST0 stack: %v", err)
	}
	return &GDT{
		TSS: &TSS{IST: [1]uint64{ist0.Top()}},
	}, nil
}

package kernel

import "log/slog"

// Interrupt vector numbers installed by this core (spec.md §4.A).
const (
	VectorDivideByZero Vector = 0
	VectorBreakpoint   Vector = 3
	VectorDoubleFault  Vector = 8
	VectorPageFault    Vector = 14
	VectorTimer        Vector = 32
	VectorKeyboard     Vector = 33
)

// Vector is an IDT vector index (0-255).
type Vector uint8

// ExceptionStackFrame is what the CPU (or, for the first dispatch into
// a kernel thread, the synthesized bootstrap frame of spec.md §4.D)
// pushes before an exception/IRQ trampoline runs.
type ExceptionStackFrame struct {
	RIP    uint64
	CS     SegmentSelector
	RFLAGS uint64
	OldRSP uint64
	OldSS  SegmentSelector
}

// PageFaultErrorCode decodes the #PF error code into the flag set
// spec.md §4.A names.
type PageFaultErrorCode uint32

const (
	PFProtectionViolation PageFaultErrorCode = 1 << 0
	PFCausedByWrite       PageFaultErrorCode = 1 << 1
	PFUserMode            PageFaultErrorCode = 1 << 2
	PFMalformedTable      PageFaultErrorCode = 1 << 3
	PFInstructionFetch    PageFaultErrorCode = 1 << 4
)

func (f PageFaultErrorCode) String() string {
	names := []struct {
		bit  PageFaultErrorCode
		name string
	}{
		{PFProtectionViolation, "PROTECTION_VIOLATION"},
		{PFCausedByWrite, "CAUSED_BY_WRITE"},
		{PFUserMode, "USER_MODE"},
		{PFMalformedTable, "MALFORMED_TABLE"},
		{PFInstructionFetch, "INSTRUCTION_FETCH"},
	}
	out := ""
	for _, n := range names {
		if f&n.bit != 0 {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	if out == "" {
		return "NONE"
	}
	return out
}

// ExceptionHandler is the conventional signature a trampoline
// tail-calls into (spec.md §4.A: "saves an ExceptionStackFrame pointer
// ... then tail-calls a handler with the conventional signature
// (frame, err?)"). errCode is nil for vectors that don't push one.
type ExceptionHandler func(frame *ExceptionStackFrame, errCode *uint32)

// IDT is the 256-entry Interrupt Descriptor Table (spec.md §4.A).
// Handlers run with IF=0 unless they explicitly re-enable interrupts.
type IDT struct {
	handlers [256]ExceptionHandler
	console  Console
	halt     func()
	log      *slog.Logger

	// lastCR2 stands in for CR2, the faulting address register; real
	// CR2 access is platform bring-up glue out of scope for this
	// module (spec.md §1). Hung off the IDT rather than a package
	// global so SimulatePageFault is reentrant across IDT instances.
	lastCR2 uint64
}

// NewIDT installs the four exception vectors spec.md §4.A names: #DE,
// #BP, #DF and #PF. The two IRQ vectors (timer/keyboard) are wired
// separately by the caller via SetIRQHandler, since their handlers
// depend on the scheduler and PIC which aren't constructed yet at IDT
// build time.
// log traces every dispatched vector at debug level; nil defaults to
// slog.Default(), matching the rest of the package's ambient-logging
// convention.
func NewIDT(console Console, halt func(), log *slog.Logger) *IDT {
	if log == nil {
		log = slog.Default()
	}
	idt := &IDT{console: console, halt: halt, log: log}
	idt.handlers[VectorDivideByZero] = idt.divideByZero
	idt.handlers[VectorBreakpoint] = idt.breakpoint
	idt.handlers[VectorDoubleFault] = idt.doubleFault
	idt.handlers[VectorPageFault] = idt.pageFault
	return idt
}

// SetIRQHandler installs (or replaces) the handler for an IRQ vector.
func (idt *IDT) SetIRQHandler(v Vector, h ExceptionHandler) {
	idt.handlers[v] = h
}

// Dispatch is the trampoline's tail-call target: it looks up the
// handler for vector and invokes it. A nil handler for an unmapped
// vector is a construction bug, not a recoverable condition.
func (idt *IDT) Dispatch(v Vector, frame *ExceptionStackFrame, errCode *uint32) error {
	h := idt.handlers[v]
	if h == nil {
		return panicf("idt: no handler installed for vector %d", v)
	}
	idt.log.Debug("dispatch", "vector", v, "rip", frame.RIP, "cs", frame.CS)
	h(frame, errCode)
	return nil
}

func (idt *IDT) divideByZero(frame *ExceptionStackFrame, _ *uint32) {
	idt.console.Printk(LevelCritical, -1, "divide_by_zero! %+v", *frame)
	idt.halt()
}

func (idt *IDT) breakpoint(frame *ExceptionStackFrame, _ *uint32) {
	idt.console.Printk(LevelDebug, -1, "int3! %+v", *frame)
}

func (idt *IDT) doubleFault(frame *ExceptionStackFrame, _ *uint32) {
	idt.console.Printk(LevelCritical, -1, "double fault! %+v", *frame)
	idt.halt()
}

func (idt *IDT) pageFault(frame *ExceptionStackFrame, errCode *uint32) {
	var code PageFaultErrorCode
	if errCode != nil {
		code = PageFaultErrorCode(*errCode)
	}
	idt.console.Printk(LevelCritical, -1, "page fault! %+v err=%s cr2=0x%x", *frame, code, idt.lastCR2)
	idt.halt()
}

// SimulatePageFault lets a caller (a test, or a higher-level MMU
// collaborator) report a page fault the way the CPU would deliver one,
// setting CR2 and invoking the #PF handler.
func (idt *IDT) SimulatePageFault(frame *ExceptionStackFrame, cr2 uint64, code PageFaultErrorCode) error {
	idt.lastCR2 = cr2
	errCode := uint32(code)
	return idt.Dispatch(VectorPageFault, frame, &errCode)
}

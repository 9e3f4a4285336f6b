package kernel

import (
	"gvisor.dev/gvisor/pkg/atomicbitops"
)

// PIT programming constants (spec.md §4.B).
const (
	pitFreqHz  = 1193180
	pitHz      = 100
	pitCommand = 0x36 // mode 0x36 (mode 3, binary, both bytes)

	// PIT I/O ports. Real port I/O is platform bring-up glue out of
	// scope for this module (spec.md §1); PITPortData/PITPortCommand
	// exist so a real port-I/O collaborator knows which addresses to
	// wire this device's programmed values to.
	PITPortData    = 0x40
	PITPortCommand = 0x43
)

// PIT models the 8254 Programmable Interval Timer (spec.md §4.B,
// §6). Divisor records the last programmed divisor so tests can
// confirm the mode-0x36/FREQ-HZ math without needing real port I/O.
type PIT struct {
	Divisor uint16
}

// NewPIT programs the timer for ~100Hz (spec.md §4.B: "mode 0x36 and
// divisor FREQ/HZ where FREQ=1193180, HZ=100").
func NewPIT() *PIT {
	return &PIT{Divisor: uint16(pitFreqHz / pitHz)}
}

// Bytes returns the (low, high) byte pair that would be written to
// PITPortData after PITPortCommand receives pitCommand — the PIT
// divisor must be sent byte-wise.
func (p *PIT) Bytes() (lo, hi uint8) {
	return uint8(p.Divisor & 0xff), uint8((p.Divisor >> 8) & 0xff)
}

// TimerTicks is the process-wide timer tick counter (spec.md §3/§5:
// "TIMER_TICKS... uses SeqCst"). atomicbitops.Uint64 is the same
// wrapper the teacher's gVisor dependency already provides for
// SeqCst-ordered counters (see IreliaTable-gvisor's subprocess.go
// numContexts field), reused here rather than reaching for bare
// sync/atomic.
type TimerTicks struct {
	ticks atomicbitops.Uint64
}

func (t *TimerTicks) Load() uint64 { return t.ticks.Load() }

// tick increments the counter and returns the new value.
func (t *TimerTicks) tick() uint64 {
	return t.ticks.Add(1)
}

// Timer wires the PIT, the PIC, the tick counter, and the scheduler
// together into the IRQ0 handler (spec.md §4.B).
type Timer struct {
	PIC   *PIC
	Ticks *TimerTicks
	cpu   *CPU
	sched *Scheduler
}

// NewTimer constructs the timer IRQ handler. sched may be nil during
// early boot (spec.md §4.F: "If CURRENT_ID == 0, return
// (pre-multitasking bootstrap)" — here modeled as "no scheduler wired
// yet" rather than a zero CURRENT_ID check, since the scheduler itself
// enforces that check once it exists).
func NewTimer(pic *PIC, cpu *CPU, sched *Scheduler) *Timer {
	return &Timer{PIC: pic, Ticks: &TimerTicks{}, cpu: cpu, sched: sched}
}

// HandleIRQ0 is the timer interrupt handler (spec.md §4.B):
//  1. Acknowledge the PIC for IRQ0.
//  2. Atomically increment TIMER_TICKS.
//  3. Invoke the scheduler.
//
// It never takes the console lock directly — any logging a caller
// wants from inside this path must wrap itself in PushFlags/PopFlags,
// per spec.md §4.B and §5.
func (t *Timer) HandleIRQ0(frame *ExceptionStackFrame, _ *uint32) {
	t.PIC.EOI(IRQTimer)
	t.Ticks.tick()
	if t.sched != nil {
		t.sched.Tick()
	}
}

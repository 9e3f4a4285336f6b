package kernel

import "testing"

func TestPushPopFlagsRoundTrips(t *testing.T) {
	cpu := NewCPU()
	cpu.EnableInterrupts()

	wasEnabled := cpu.PushFlags()
	if !wasEnabled {
		t.Fatalf("expected PushFlags to report interrupts were enabled")
	}
	if cpu.InterruptsEnabled() {
		t.Fatalf("PushFlags must disable interrupts")
	}

	cpu.PopFlags(wasEnabled)
	if !cpu.InterruptsEnabled() {
		t.Fatalf("PopFlags must restore the previous IF state")
	}
}

func TestSetCR3ReturnsPrevious(t *testing.T) {
	cpu := NewCPU()
	prev := cpu.SetCR3(Root(1))
	if prev != Root(0) {
		t.Fatalf("expected a fresh CPU's previous cr3 to be 0, got %d", prev)
	}
	prev = cpu.SetCR3(Root(2))
	if prev != Root(1) {
		t.Fatalf("expected previous cr3 to be 1, got %d", prev)
	}
	if cpu.CurrentCR3() != Root(2) {
		t.Fatalf("expected CurrentCR3 to report the most recently loaded root")
	}
}

func TestLoadRestoresFlagsAndRBPLast(t *testing.T) {
	cpu := NewCPU()
	ctx := SavedContext{
		RBX: 1, R12: 2, R13: 3, R14: 4, R15: 5,
		RSP: 0x1000, RBP: 0x2000, RFLAGS: defaultRFLAGS,
	}
	cpu.load(ctx)

	if cpu.RBX != 1 || cpu.R12 != 2 || cpu.R13 != 3 || cpu.R14 != 4 || cpu.R15 != 5 {
		t.Fatalf("load did not restore all callee-saved registers: %+v", cpu)
	}
	if cpu.RSP != 0x1000 || cpu.RBP != 0x2000 {
		t.Fatalf("load did not restore rsp/rbp")
	}
	if !cpu.InterruptsEnabled() {
		t.Fatalf("load must restore rflags, enabling interrupts per defaultRFLAGS")
	}
}

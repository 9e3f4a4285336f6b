package kernel

import "fmt"

// PanicError models a fatal condition that, on real hardware, would be
// handled by logging the fault and dropping into a hlt loop. Tests and
// the demo orchestrator observe it as a normal error instead of calling
// Go's panic, so the halt behavior is exercisable without crashing the
// process.
type PanicError struct {
	Reason string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("kernel panic: %s", e.Reason)
}

func panicf(format string, args ...any) error {
	return &PanicError{Reason: fmt.Sprintf(format, args...)}
}

var (
	// ErrNoCurrentTask is returned when an operation requires a current
	// task (TaskList.Current, syscall entry) but CURRENT_ID is unset or
	// names no allocated task. Scheduler.Tick does not return it: with
	// CURRENT_ID unset it simply does nothing.
	ErrNoCurrentTask = panicf("no current task")

	// ErrTaskTableFull is returned when allocating a task would exceed
	// MaxTasks.
	ErrTaskTableFull = panicf("task id exceeds maximum boundary")
)

// Package kernel implements the control plane of a small x86_64-style
// preemptively scheduled multitasking kernel: descriptor table setup,
// the timer-driven scheduler, the task table and task creation, the
// callee-saved context switch, and the fast syscall entry/exit path.
//
// The package runs as hosted Go rather than ring-0 machine code, so
// the pieces that would be inline assembly on real hardware (saving
// and restoring CPU registers, the iretq/sysret trampolines) are
// reduced to their architecture-independent residue: explicit struct
// field transfer between a Task's SavedContext and the single shared
// CPU register bank. Everything else — the task table, the scheduler,
// the syscall marshalling discipline — is implemented exactly as
// specified.
package kernel

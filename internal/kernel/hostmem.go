package kernel

import (
	"fmt"
	"log/slog"
	"sync"
)

// pageSize is the page granularity Map rounds mappings to.
const pageSize = 4096

// hostAddressSpace is a flat, sparse stand-in for a real page-table
// hierarchy (spec.md §1 explicitly puts paging out of scope; this
// exists only so the rest of the module has a working collaborator to
// run against, the same role consoleTestVM plays for
// internal/devices/virtio/console_test.go in the teacher repo).
type hostAddressSpace struct {
	mu    sync.Mutex
	root  Root
	pages map[uint64]bool
	mem   map[uint64]byte
}

func newHostAddressSpace(root Root) *hostAddressSpace {
	return &hostAddressSpace{
		root:  root,
		pages: make(map[uint64]bool),
		mem:   make(map[uint64]byte),
	}
}

func (a *hostAddressSpace) Root() Root { return a.root }

func (a *hostAddressSpace) Map(vma *VirtualMemoryArea) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for p := vma.Start - (vma.Start % pageSize); p < vma.Start+vma.Size; p += pageSize {
		a.pages[p] = true
	}
	vma.Mapped = true
	vma.Flags |= FlagPresent
	return nil
}

func (a *hostAddressSpace) WriteAt(vaddr uint64, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, b := range data {
		a.mem[vaddr+uint64(i)] = b
	}
	return nil
}

// ReadAt is a test-facing extension beyond spec.md's minimal
// AddressSpace contract (spec.md §8 S6: "a read of B's code VMA yields
// the bytes copied at creation time").
func (a *hostAddressSpace) ReadAt(vaddr uint64, n int) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]byte, n)
	for i := range out {
		out[i] = a.mem[vaddr+uint64(i)]
	}
	return out
}

// HostMemoryManager is the minimal MemoryManager stand-in: it
// allocates real Go byte slices for kernel stacks and hands out
// hostAddressSpace instances with distinct, monotonically increasing
// roots so CR3-equality comparisons in the scheduler behave the way
// they would against real physical frame numbers.
type HostMemoryManager struct {
	mu       sync.Mutex
	nextRoot Root
	kernel   *hostAddressSpace
}

// NewHostMemoryManager constructs the stand-in, pre-creating the
// shared kernel address space kernel threads run against (spec.md
// §4.D: "Kernel tasks share the kernel page tables").
func NewHostMemoryManager() *HostMemoryManager {
	return &HostMemoryManager{
		nextRoot: 2, // root 1 is reserved for the kernel address space
		kernel:   newHostAddressSpace(1),
	}
}

func (m *HostMemoryManager) AllocateStack(size int) (*KernelStack, error) {
	if size <= 0 {
		return nil, fmt.Errorf("kernel: allocate stack: invalid size %d", size)
	}
	return &KernelStack{Mem: make([]byte, size)}, nil
}

func (m *HostMemoryManager) KernelAddressSpace() AddressSpace {
	return m.kernel
}

func (m *HostMemoryManager) NewUserAddressSpace() (AddressSpace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	root := m.nextRoot
	m.nextRoot++
	return newHostAddressSpace(root), nil
}

// HostConsole is the printk!/serial stand-in, routing through
// log/slog the way cmd/cc/main.go configures logging for the rest of
// the teacher's stack (spec.md §1: console/serial are out-of-scope
// collaborators; this is the minimal thing behind the interface).
type HostConsole struct {
	mu  sync.Mutex
	log *slog.Logger
}

// NewHostConsole wraps log for use as a Console. Every call takes the
// console lock, matching spec.md §5's "console lock" the rest of this
// module must never contend from inside an IRQ handler without first
// disabling interrupts.
func NewHostConsole(log *slog.Logger) *HostConsole {
	return &HostConsole{log: log}
}

func (c *HostConsole) Printk(level LogLevel, line int, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	switch level {
	case LevelCritical:
		c.log.Error(msg, "line", line)
	case LevelInfo:
		c.log.Info(msg, "line", line)
	default:
		c.log.Debug(msg, "line", line)
	}
}

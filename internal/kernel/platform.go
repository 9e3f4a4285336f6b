package kernel

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// PageFlags describes the page-table entry flags requested for a
// VirtualMemoryArea. The low bits mirror the protection bits a real
// MMU collaborator would also need (golang.org/x/sys/unix.PROT_*);
// the high bits are kernel-private flags with no POSIX analogue.
type PageFlags uint32

const (
	FlagReadable   PageFlags = PageFlags(unix.PROT_READ)
	FlagWritable   PageFlags = PageFlags(unix.PROT_WRITE)
	FlagExecutable PageFlags = PageFlags(unix.PROT_EXEC)

	// FlagUser marks a page accessible from ring 3.
	FlagUser PageFlags = 1 << 8
	// FlagNoExecute marks a page as non-executable regardless of
	// FlagExecutable (the NX bit); present so callers can express
	// "USER|WRITABLE|NX" the way spec.md's user stack VMA does.
	FlagNoExecute PageFlags = 1 << 9
	// FlagPresent marks a page as actually mapped. VirtualMemoryArea's
	// constructor rejects callers that pass it in directly — see the
	// doc comment on NewVirtualMemoryArea for why.
	FlagPresent PageFlags = 1 << 10
)

// Root identifies the physical address of a task's top-level page
// table — the value that would be loaded into CR3.
type Root uint64

// KernelStack is a heap-owned kernel stack (spec.md §4.D: "Allocate an
// 8 KiB kernel stack (heap-owned byte slice)"). Mem backs the stack
// storage directly so task creation can prime the bootstrap frame by
// indexing into it instead of writing through a raw pointer, which is
// the idiomatic-Go residue of the original's `mem.as_ptr() as usize`.
type KernelStack struct {
	Mem []byte
}

// Top returns the address one past the last usable byte — the initial
// RSP for a task whose kernel stack grows down from here. Addresses
// into a KernelStack are local offsets from the start of Mem (there is
// no physical memory in this hosted reimplementation), so Top always
// equals len(Mem); two different tasks' stacks legitimately share the
// same numeric Top, exactly as two different physical allocations
// could share a virtual address in different address spaces.
func (s *KernelStack) Top() uint64 {
	return uint64(len(s.Mem))
}

// wordAt interprets addr as a local stack offset and returns a slice of
// the 8 bytes starting there, little-endian, matching the x86_64 word
// size the bootstrap frame layout in spec.md §4.D is expressed in.
func (s *KernelStack) wordAt(addr uint64) []byte {
	return s.Mem[addr : addr+8]
}

// WriteWord stores v as a little-endian machine word at addr.
func (s *KernelStack) WriteWord(addr uint64, v uint64) {
	binary.LittleEndian.PutUint64(s.wordAt(addr), v)
}

// ReadWord loads the little-endian machine word at addr.
func (s *KernelStack) ReadWord(addr uint64) uint64 {
	return binary.LittleEndian.Uint64(s.wordAt(addr))
}

// AddressSpace is the paging collaborator spec.md §6 calls
// paging::create_address_space/paging::switch. It is out of scope for
// this module (spec.md §1): physical frame allocation and page-table
// manipulation live entirely behind this interface.
type AddressSpace interface {
	// Root returns the physical address to load into CR3 for this
	// address space.
	Root() Root

	// Map establishes the mapping for a VMA with the given flags. It
	// must be idempotent: mapping an already-mapped range is a no-op.
	Map(vma *VirtualMemoryArea) error

	// WriteAt copies into this address space at a virtual address
	// without requiring it to be the currently active space (used by
	// user task creation to seed the code VMA before the task ever
	// runs).
	WriteAt(vaddr uint64, data []byte) error
}

// MemoryManager is the frame-allocator/heap collaborator spec.md §6
// calls memory::init. It is out of scope for this module beyond this
// interface: the real frame allocator and kernel heap live elsewhere.
type MemoryManager interface {
	// AllocateStack returns a freshly allocated, zeroed kernel stack of
	// the given size in bytes (spec.md §4.D: "a heap-owned byte
	// slice").
	AllocateStack(size int) (*KernelStack, error)

	// KernelAddressSpace returns the address space kernel threads
	// share (spec.md §4.D: "Kernel tasks share the kernel page
	// tables").
	KernelAddressSpace() AddressSpace

	// NewUserAddressSpace constructs a fresh address space for a user
	// task (spec.md §4.D: "Create a fresh address space").
	NewUserAddressSpace() (AddressSpace, error)
}

// LogLevel mirrors the original kernel's printk! severities.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelCritical
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Console is the printk!/serial collaborator. Out of scope for this
// module beyond this interface (spec.md §1: "Text console, serial
// driver... " are external collaborators).
type Console interface {
	Printk(level LogLevel, line int, format string, args ...any)
}

// MemoryRange is a half-open virtual address range, matching the
// original KERNEL_MAPPING entries (inclusive "end" field reinterpreted
// as exclusive here, which is the more idiomatic Go convention).
type MemoryRange struct {
	Start uint64
	End   uint64 // exclusive
}

func (r MemoryRange) Size() uint64 { return r.End - r.Start }

// KernelMapping is the named address-space layout spec.md §6 expects
// task creation to consume.
type KernelMapping struct {
	UserStack MemoryRange
	UserCode  MemoryRange
	KernelMap MemoryRange
}

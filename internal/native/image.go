package native

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/kt-fork/vvm/engine"
)

// Image is a compiled, runnable native function: an executable page holding
// machine code plus the working int64 stack it operates on.
type Image struct {
	code []byte

	// stack backs the (BX)(R8*8)-addressed working set call_amd64.s and the
	// compiled body share; sized generously since the native path only ever
	// compiles short straight-line runs.
	stack []int64
}

const defaultNativeStackDepth = 256

// newImage mmaps an rwx page, copies code into it, and returns an Image
// ready for Run. PROT and MAP_ flags are passed straight through to the
// syscall via golang.org/x/sys/unix.
func newImage(code []byte) (*Image, error) {
	if len(code) == 0 {
		return nil, ErrUnsupported
	}
	pageSize := unix.Getpagesize()
	size := ((len(code) + pageSize - 1) / pageSize) * pageSize

	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}
	copy(mem, code)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		return nil, err
	}

	return &Image{code: mem, stack: make([]int64, defaultNativeStackDepth)}, nil
}

// Release unmaps the executable page. Callers must not call Run after
// Release.
func (img *Image) Release() error {
	if img.code == nil {
		return nil
	}
	err := unix.Munmap(img.code)
	img.code = nil
	return err
}

// Run executes the compiled body against the calling contract described in
// SPEC_FULL.md's native-image section: the compiled function writes the
// materialized top-of-stack value's type tag through out_tag and returns
// its bits in AX (wired through nativeCall's first return), with any
// remaining int64 values still sitting on the working stack reported via
// under (low index = bottom of stack). tag is Uninitialised and under is
// empty when the compiled body ran with nothing left to report.
func (img *Image) Run() (tag engine.ValueType, bits uint64, under []int64) {
	var outTag uint8
	rawBits, depth := nativeCall(codeAddr(img.code), stackAddr(img.stack), uintptr(unsafe.Pointer(&outTag)))
	tag = engine.ValueType(outTag)
	if depth > 0 {
		under = append([]int64(nil), img.stack[:depth]...)
	}
	return tag, rawBits, under
}

// Code exposes the raw machine code bytes, used by Disassemble.
func (img *Image) Code() []byte { return img.code }

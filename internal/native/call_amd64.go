//go:build amd64

package native

import "unsafe"

// nativeCall jumps into a compiled Image's code (see call_amd64.s), handing
// it the working stack's base address in BX and the out_tag pointer in R11
// per the convention documented in backend.go/image.go. It returns the
// materialized top-of-stack value's bits (AX at return) and the remaining
// stack depth (R8 at return).
func nativeCall(code, stackPtr, outTagPtr uintptr) (bits uint64, depth uint64)

func codeAddr(code []byte) uintptr {
	return uintptr(unsafe.Pointer(&code[0]))
}

func stackAddr(stack []int64) uintptr {
	return uintptr(unsafe.Pointer(&stack[0]))
}

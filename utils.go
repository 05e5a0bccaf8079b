package karakuri

import "unsafe"

// extendSlice extends a slice by n elements, reallocating if necessary.
func extendSlice[T any](s []T, n int) []T {
	newLen := len(s) + n
	if cap(s) >= newLen {
		return s[:newLen]
	}
	newCap := max(2*cap(s), newLen)
	ns := make([]T, newLen, newCap)
	copy(ns, s)
	return ns
}

// extendByteSlice extends a byte slice by n bytes, reallocating if
// necessary. The new region is zeroed even when the backing array is
// reused.
func extendByteSlice(s []byte, n int) []byte {
	newLen := len(s) + n
	if cap(s) >= newLen {
		ns := s[:newLen]
		clear(ns[len(s):])
		return ns
	}
	newCap := max(2*cap(s), newLen)
	ns := make([]byte, newLen, newCap)
	copy(ns, s)
	return ns
}

// zeroSizedBase backs the pointers handed out for zero-size component
// values, which own no storage of their own.
var zeroSizedBase byte

// memCopy copies size bytes from src to dst using built-in copy.
func memCopy(dst, src unsafe.Pointer, size uintptr) {
	if size == 0 {
		return
	}
	dstBytes := unsafe.Slice((*byte)(dst), size)
	srcBytes := unsafe.Slice((*byte)(src), size)
	copy(dstBytes, srcBytes)
}

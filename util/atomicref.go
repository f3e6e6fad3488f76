package util

import (
	"sync/atomic"
)

// AtomicRef holds an immutable snapshot to be replaced as a whole
//
// Readers never observe a partially built value as long as the snapshot isn't modified after Set
type AtomicRef[T any] struct {
	pointer atomic.Pointer[T]
}

// NewAtomicRef creates an AtomicRef with the initial reference, which may be nil
func NewAtomicRef[T any](initial *T) *AtomicRef[T] {
	ref := &AtomicRef[T]{}
	ref.pointer.Store(initial)
	return ref
}

// Get retrieves the reference atomically. It may return nil.
func (ref *AtomicRef[T]) Get() *T {
	return ref.pointer.Load()
}

// Set stores the given reference atomically. The reference may be nil.
func (ref *AtomicRef[T]) Set(reference *T) {
	ref.pointer.Store(reference)
}

// Swap stores the given reference and returns the previous one
func (ref *AtomicRef[T]) Swap(reference *T) *T {
	return ref.pointer.Swap(reference)
}

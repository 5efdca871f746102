package entity

import "sync/atomic"

// Allocator hands out monotonically increasing ids. One Allocator is owned
// by each World and passed explicitly to constructors.
//
// Invariant: Next never returns None and never returns the same id twice.
type Allocator struct {
	last atomic.Uint64
}

// NewAllocator returns an Allocator whose first id is 1.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// Next returns the next unused id.
func (a *Allocator) Next() ID {
	return ID(a.last.Add(1))
}

// Last returns the most recently allocated id, or None.
func (a *Allocator) Last() ID {
	return ID(a.last.Load())
}

package repository

import (
	"context"
	"slices"
	"sync"
)

// MemorySlot keeps the slot value in process memory.
type MemorySlot struct {
	mu    sync.RWMutex
	value []byte
	set   bool
}

func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

func (s *MemorySlot) Get(_ context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return nil, ErrSlotNotFound
	}
	return slices.Clone(s.value), nil
}

func (s *MemorySlot) Put(_ context.Context, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = slices.Clone(value)
	s.set = true
	return nil
}

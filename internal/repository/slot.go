package repository

import (
	"context"
	"errors"
)

// ErrSlotNotFound is returned by Slot.Get when nothing has been stored yet.
var ErrSlotNotFound = errors.New("repository: slot not found")

// Slot is a single named durable key-value cell. Put replaces the whole value
// atomically; readers never observe a partial write.
type Slot interface {
	Get(ctx context.Context) ([]byte, error)
	Put(ctx context.Context, value []byte) error
}

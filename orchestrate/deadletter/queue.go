package deadletter

import (
	"context"
	"sync"
)

// Queue is an append-only store of records. Implementations must be safe for
// concurrent use.
type Queue interface {
	Add(ctx context.Context, record Record) error

	// All returns every record, oldest first. The slice is the caller's to modify.
	All(ctx context.Context) ([]Record, error)

	Clear(ctx context.Context) error

	// Drain removes and returns every record in one atomic step. Stored entries that
	// no longer decode are logged and left in place.
	Drain(ctx context.Context) ([]Record, error)

	Close() error
}

// MemoryQueue keeps records in process memory. It has no size bound.
type MemoryQueue struct {
	records []Record
	mu      sync.RWMutex
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Add(ctx context.Context, record Record) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = append(q.records, record)
	return nil
}

func (q *MemoryQueue) All(ctx context.Context) ([]Record, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	records := make([]Record, len(q.records))
	copy(records, q.records)
	return records, nil
}

func (q *MemoryQueue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = nil
	return nil
}

func (q *MemoryQueue) Drain(ctx context.Context) ([]Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	records := q.records
	q.records = nil
	return records, nil
}

func (q *MemoryQueue) Close() error {
	return nil
}

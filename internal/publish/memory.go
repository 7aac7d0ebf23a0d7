package publish

import (
	"context"
	"sync"
)

// MemoryBus keeps published entries in memory. It backs dry runs and local
// development. Reject, when set, marks individual entries as failed.
type MemoryBus struct {
	Reject func(Entry) bool

	mu      sync.Mutex
	entries []Entry
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) Publish(ctx context.Context, entries []Entry) (BusResult, error) {
	if err := ctx.Err(); err != nil {
		return BusResult{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var res BusResult
	for _, e := range entries {
		if b.Reject != nil && b.Reject(e) {
			res.FailedCount++
			res.FailedEntries = append(res.FailedEntries, FailedEntry{EntryID: e.ID, ErrorCode: "Rejected"})
			continue
		}
		b.entries = append(b.entries, e)
	}
	return res, nil
}

// Entries returns a copy of the accepted entries in publish order.
func (b *MemoryBus) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

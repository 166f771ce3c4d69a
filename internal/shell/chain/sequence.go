package chain

import (
	"context"
	"sync"

	"github.com/sota-zk-labs/jayce/internal/core/domain"
)

// =============================================================================
// Sequence Tracker
// =============================================================================

// accountReader is the slice of the node API the tracker needs.
type accountReader interface {
	Account(ctx context.Context, addr domain.Address) (*AccountInfo, error)
}

// SequenceTracker owns the signer's account sequence counter for a run. It
// is the single serialization point for concurrent submitters: every number
// is handed out under the lock exactly once, and the counter only re-reads
// the network after a sequence mismatch.
type SequenceTracker struct {
	mu     sync.Mutex
	client accountReader
	addr   domain.Address
	next   uint64
	primed bool
}

// NewSequenceTracker creates a tracker for the given account.
func NewSequenceTracker(client accountReader, addr domain.Address) *SequenceTracker {
	return &SequenceTracker{client: client, addr: addr}
}

// Next hands out the next sequence number and advances the local counter.
// The first call fetches the on-chain value; every later call is local.
func (t *SequenceTracker) Next(ctx context.Context) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.primed {
		if err := t.fetchLocked(ctx); err != nil {
			return 0, err
		}
	}

	seq := t.next
	t.next++
	return seq, nil
}

// Resync discards the local counter and re-reads it from the network. Called
// after a sequence-mismatch rejection.
func (t *SequenceTracker) Resync(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fetchLocked(ctx)
}

// Current returns the next number that would be handed out, without
// advancing. Zero before the tracker is primed.
func (t *SequenceTracker) Current() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.next
}

func (t *SequenceTracker) fetchLocked(ctx context.Context) error {
	info, err := t.client.Account(ctx, t.addr)
	if err != nil {
		return err
	}
	t.next = uint64(info.SequenceNumber)
	t.primed = true
	return nil
}

// Package queue is the durable log of not-yet-confirmed mutations. It is
// deliberately separate from the optimistic store: the queue must retain
// entries for entities already folded out of the optimistic view, and the
// optimistic view must survive entries being drained.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"kiospos/kiosk/internal/domain"
	"kiospos/kiosk/internal/storage"
)

var ErrNotFound = errors.New("pending operation not found")

type Queue struct {
	mu      sync.Mutex
	name    string
	kv      storage.KV
	ops     []domain.PendingOperation
	nextSeq uint64
}

func New(name string, kv storage.KV) *Queue {
	if name == "" {
		name = "kiosk"
	}
	return &Queue{name: name, kv: kv}
}

func (q *Queue) logKey() string {
	return "pending_ops_" + q.name
}

// Hydrate restores the log from durable storage and advances the sequence
// counter past the highest persisted entry.
func (q *Queue) Hydrate(ctx context.Context) error {
	data, err := q.kv.Get(ctx, q.logKey())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}

	var ops []domain.PendingOperation
	if err := json.Unmarshal(data, &ops); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = ops
	for _, op := range ops {
		if op.Seq >= q.nextSeq {
			q.nextSeq = op.Seq + 1
		}
	}
	return nil
}

// persist writes the whole log. Failures are logged and swallowed, same as
// the optimistic store snapshot. Callers must hold q.mu.
func (q *Queue) persist(ctx context.Context) {
	data, err := json.Marshal(q.ops)
	if err != nil {
		log.Printf("[queue] WARN: failed to marshal pending log: %v", err)
		return
	}
	if err := q.kv.Set(ctx, q.logKey(), data); err != nil {
		log.Printf("[queue] WARN: failed to persist pending log: %v", err)
	}
}

// Enqueue appends an operation and returns its generated identifier. The
// sequence number makes the log a stable monotonic queue: two entries with
// the same timestamp keep their insertion order.
func (q *Queue) Enqueue(ctx context.Context, op domain.PendingOperation) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	op.ID = uuid.NewString()
	op.Seq = q.nextSeq
	q.nextSeq++
	if op.Timestamp.IsZero() {
		op.Timestamp = time.Now().UTC()
	}
	op.Synced = false
	op.SyncedAt = nil

	q.ops = append(q.ops, op)
	q.persist(ctx)
	return op.ID
}

// ListUnsynced returns the unconfirmed operations in ascending
// (timestamp, sequence) order. The replayer depends on this ordering for
// causal correctness.
func (q *Queue) ListUnsynced(_ context.Context) []domain.PendingOperation {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]domain.PendingOperation, 0, len(q.ops))
	for _, op := range q.ops {
		if !op.Synced {
			out = append(out, op)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.PendingOperation) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		default:
			return 0
		}
	})
	return out
}

func (q *Queue) UnsyncedCount(_ context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	for _, op := range q.ops {
		if !op.Synced {
			count++
		}
	}
	return count
}

// Get returns a copy of one operation by its identifier.
func (q *Queue) Get(_ context.Context, opID string) (*domain.PendingOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, op := range q.ops {
		if op.ID == opID {
			out := op
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// Remove drops an operation outright, used when a queued mutation turns
// out to need no network call at all.
func (q *Queue) Remove(ctx context.Context, opID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, op := range q.ops {
		if op.ID == opID {
			q.ops = append(q.ops[:i], q.ops[i+1:]...)
			q.persist(ctx)
			return nil
		}
	}
	return ErrNotFound
}

// MarkSynced flags a confirmed operation. The entry stays in the log for
// inspection until Purge collects it.
func (q *Queue) MarkSynced(ctx context.Context, opID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	for i := range q.ops {
		if q.ops[i].ID == opID {
			q.ops[i].Synced = true
			q.ops[i].SyncedAt = &now
			q.persist(ctx)
			return nil
		}
	}
	return ErrNotFound
}

// Purge removes synced entries confirmed before the cutoff and returns how
// many were collected. Garbage collection only, never correctness.
func (q *Queue) Purge(ctx context.Context, cutoff time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.ops[:0]
	purged := 0
	for _, op := range q.ops {
		if op.Synced && op.SyncedAt != nil && op.SyncedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, op)
	}
	if purged > 0 {
		q.ops = kept
		q.persist(ctx)
	}
	return purged
}

// RewriteEntityID updates every queued-but-unconfirmed operation that
// references a freshly remapped entity, both the target identifier and the
// identifiers embedded in payloads.
func (q *Queue) RewriteEntityID(ctx context.Context, entityType domain.EntityType, oldID, newID string) {
	if oldID == newID {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	changed := false
	for i := range q.ops {
		op := &q.ops[i]
		if op.Synced {
			continue
		}
		if op.EntityType == entityType && op.EntityID == oldID {
			op.EntityID = newID
			changed = true
		}
		switch entityType {
		case domain.EntityProduct:
			if op.Product != nil && op.Product.ID == oldID {
				op.Product.ID = newID
				changed = true
			}
			if op.Invoice != nil {
				for j := range op.Invoice.Items {
					if op.Invoice.Items[j].ProductID == oldID {
						op.Invoice.Items[j].ProductID = newID
						changed = true
					}
				}
			}
		case domain.EntityInvoice:
			if op.Invoice != nil && op.Invoice.ID == oldID {
				op.Invoice.ID = newID
				changed = true
			}
		}
	}
	if changed {
		q.persist(ctx)
	}
}

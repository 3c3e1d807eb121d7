// Package syncer drains the pending operation queue against the remote
// gateway in FIFO order, remapping local identifiers and halting on the
// first failure to preserve causal order.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"kiospos/kiosk/internal/connectivity"
	"kiospos/kiosk/internal/domain"
	"kiospos/kiosk/internal/gateway"
	"kiospos/kiosk/internal/queue"
	"kiospos/kiosk/internal/store"
	"kiospos/kiosk/internal/xid"
)

var (
	// ErrOffline is returned when a sync trigger fires with no connectivity.
	ErrOffline = errors.New("offline")
	// ErrSyncInProgress is returned when a trigger arrives while a pass is
	// already draining; the second trigger is a no-op.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// Result summarizes one draining pass.
type Result struct {
	Synced    int  // operations confirmed by the gateway
	Skipped   int  // vacuous operations dropped without a network call
	Remaining int  // operations still queued after the pass
	Halted    bool // the pass stopped early on a gateway failure
}

type Engine struct {
	store     *store.Store
	queue     *queue.Queue
	gw        gateway.Gateway
	conn      *connectivity.Monitor
	interval  time.Duration
	retention time.Duration

	syncing atomic.Bool

	mu         sync.Mutex
	lastSynced *time.Time
}

func New(st *store.Store, q *queue.Queue, gw gateway.Gateway, conn *connectivity.Monitor, interval, retention time.Duration) *Engine {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if retention <= 0 {
		retention = 72 * time.Hour
	}
	return &Engine{
		store:     st,
		queue:     q,
		gw:        gw,
		conn:      conn,
		interval:  interval,
		retention: retention,
	}
}

func (e *Engine) Syncing() bool {
	return e.syncing.Load()
}

func (e *Engine) LastSyncedAt() *time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSynced
}

// Run owns the retry cadence: the fixed-interval timer plus the
// connectivity-restore event both funnel into SyncNow. It returns when the
// context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.conn.Subscribe(func(online bool) {
		if !online {
			return
		}
		if _, err := e.SyncNow(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
			log.Printf("[syncer] WARN: sync on reconnect failed: %v", err)
		}
	})

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := e.SyncNow(ctx)
			if err != nil && !errors.Is(err, ErrOffline) && !errors.Is(err, ErrSyncInProgress) {
				log.Printf("[syncer] WARN: periodic sync failed: %v", err)
			}
		}
	}
}

// SyncNow runs one draining pass. All triggers (timer tick, reconnect,
// manual request) enter here. The queue is snapshotted once: operations
// enqueued mid-pass wait for the next trigger.
func (e *Engine) SyncNow(ctx context.Context) (Result, error) {
	if !e.conn.Online() {
		return Result{}, ErrOffline
	}
	if !e.syncing.CompareAndSwap(false, true) {
		return Result{}, ErrSyncInProgress
	}
	defer e.syncing.Store(false)

	var res Result
	ops := e.queue.ListUnsynced(ctx)
	for _, op := range ops {
		// Earlier operations in this pass may have remapped identifiers in
		// the stored log; the snapshot copy is stale, so re-read the entry.
		fresh, err := e.queue.Get(ctx, op.ID)
		if err != nil {
			continue
		}
		op = *fresh

		// A local-only identifier on an update or delete means the entity
		// never reached the server: the operation is vacuous. Drop it with
		// no network call. (Creates still replay; this short-circuit is
		// what keeps orphaned references from ever going over the wire.)
		if xid.IsLocal(op.EntityID) && op.Action != domain.ActionCreate {
			if err := e.queue.Remove(ctx, op.ID); err != nil {
				log.Printf("[syncer] WARN: drop vacuous op %s: %v", op.ID, err)
			}
			res.Skipped++
			continue
		}

		if err := e.replay(ctx, op); err != nil {
			// Halt the pass: a later operation may depend on an identifier
			// this one would have resolved. Everything still unsynced stays
			// queued for the next trigger.
			log.Printf("[syncer] WARN: replay %s %s %s halted pass: %v", op.Action, op.EntityType, op.EntityID, err)
			res.Halted = true
			break
		}
		res.Synced++
	}
	res.Remaining = e.queue.UnsyncedCount(ctx)

	if res.Synced > 0 {
		now := time.Now().UTC()
		e.mu.Lock()
		e.lastSynced = &now
		e.mu.Unlock()

		// Best-effort reload of server truth; its failure does not roll
		// back the operations already confirmed.
		if err := e.reload(ctx); err != nil {
			log.Printf("[syncer] WARN: post-sync reload failed: %v", err)
		}
	}

	if purged := e.queue.Purge(ctx, time.Now().UTC().Add(-e.retention)); purged > 0 {
		log.Printf("[syncer] purged %d acknowledged operations", purged)
	}

	return res, nil
}

// replay dispatches one operation to the gateway. The switch is exhaustive
// over the {entity type, action} pairs the queue can carry; anything else
// is a programming error and halts the pass.
func (e *Engine) replay(ctx context.Context, op domain.PendingOperation) error {
	switch {
	case op.EntityType == domain.EntityProduct && op.Action == domain.ActionCreate:
		if op.Product == nil {
			return fmt.Errorf("product create op %s has no payload", op.ID)
		}
		created, err := e.gw.CreateProduct(ctx, *op.Product)
		if err != nil {
			return err
		}
		e.remapProduct(ctx, op.EntityID, created.ID)

	case op.EntityType == domain.EntityProduct && op.Action == domain.ActionUpdate:
		if op.Product == nil {
			return fmt.Errorf("product update op %s has no payload", op.ID)
		}
		if err := e.gw.UpdateProduct(ctx, op.EntityID, *op.Product); err != nil {
			return err
		}

	case op.EntityType == domain.EntityProduct && op.Action == domain.ActionDelete:
		if err := e.gw.DeleteProduct(ctx, op.EntityID); err != nil {
			return err
		}

	case op.EntityType == domain.EntityInvoice && op.Action == domain.ActionCreate:
		if op.Invoice == nil {
			return fmt.Errorf("invoice create op %s has no payload", op.ID)
		}
		created, err := e.gw.CreateInvoice(ctx, *op.Invoice)
		if err != nil {
			return err
		}
		e.remapInvoice(ctx, op.EntityID, created.ID)

	case op.EntityType == domain.EntityInvoice && op.Action == domain.ActionUpdate:
		if op.Invoice == nil {
			return fmt.Errorf("invoice update op %s has no payload", op.ID)
		}
		if err := e.gw.UpdateInvoice(ctx, op.EntityID, *op.Invoice); err != nil {
			return err
		}

	case op.EntityType == domain.EntityInvoice && op.Action == domain.ActionDelete && op.IsReturn:
		if err := e.gw.ReturnInvoice(ctx, op.EntityID); err != nil {
			return err
		}

	case op.EntityType == domain.EntityInvoice && op.Action == domain.ActionDelete:
		if err := e.gw.DeleteInvoice(ctx, op.EntityID); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown operation %s/%s", op.EntityType, op.Action)
	}

	if err := e.queue.MarkSynced(ctx, op.ID); err != nil {
		log.Printf("[syncer] WARN: mark op %s synced: %v", op.ID, err)
	}
	return nil
}

// remapProduct rewrites a confirmed create's local identifier everywhere
// it can occur: the optimistic store and every queued-but-unprocessed
// operation. This must happen before the next operation replays.
func (e *Engine) remapProduct(ctx context.Context, localID, serverID string) {
	if localID == serverID {
		return
	}
	e.store.RewriteProductID(ctx, localID, serverID)
	e.queue.RewriteEntityID(ctx, domain.EntityProduct, localID, serverID)
}

func (e *Engine) remapInvoice(ctx context.Context, localID, serverID string) {
	if localID == serverID {
		e.store.MarkInvoiceSynced(ctx, localID)
		return
	}
	e.store.RewriteInvoiceID(ctx, localID, serverID)
	e.queue.RewriteEntityID(ctx, domain.EntityInvoice, localID, serverID)
}

// reload pulls the authoritative view and swaps it in, preserving entities
// that still only exist locally.
func (e *Engine) reload(ctx context.Context) error {
	products, err := e.gw.FetchProducts(ctx)
	if err != nil {
		return err
	}
	invoices, err := e.gw.FetchInvoices(ctx)
	if err != nil {
		return err
	}
	e.store.ReplaceSynced(ctx, products, invoices)
	return nil
}

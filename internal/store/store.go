// Package store is the local optimistic store: the single source of truth
// the kiosk UI reads. Every mutation lands here synchronously before any
// network attempt, and a read immediately after a write reflects that
// write even with zero connectivity.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"slices"
	"strings"
	"sync"

	"kiospos/kiosk/internal/domain"
	"kiospos/kiosk/internal/reconcile"
	"kiospos/kiosk/internal/storage"
	"kiospos/kiosk/internal/xid"
)

var ErrNotFound = errors.New("not found")

// snapshot is the serialized form persisted after every mutation. On
// restart the kiosk rehydrates the last optimistic state, not the
// confirmed server state: availability over synchronized freshness.
type snapshot struct {
	Products []domain.Product `json:"products"`
	Invoices []domain.Invoice `json:"invoices"`
	Expenses []domain.Expense `json:"expenses"`
}

type Store struct {
	mu       sync.RWMutex
	name     string
	kv       storage.KV
	products map[string]domain.Product
	invoices map[string]domain.Invoice
	expenses map[string]domain.Expense
}

func New(name string, kv storage.KV) *Store {
	if name == "" {
		name = "kiosk"
	}
	return &Store{
		name:     name,
		kv:       kv,
		products: make(map[string]domain.Product),
		invoices: make(map[string]domain.Invoice),
		expenses: make(map[string]domain.Expense),
	}
}

func (s *Store) snapshotKey() string {
	return "store_" + s.name
}

// Hydrate loads the last persisted snapshot. A missing snapshot is a
// fresh install, not an error.
func (s *Store) Hydrate(ctx context.Context) error {
	data, err := s.kv.Get(ctx, s.snapshotKey())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = make(map[string]domain.Product, len(snap.Products))
	for _, p := range snap.Products {
		s.products[p.ID] = p
	}
	s.invoices = make(map[string]domain.Invoice, len(snap.Invoices))
	for _, inv := range snap.Invoices {
		s.invoices[inv.ID] = inv
	}
	s.expenses = make(map[string]domain.Expense, len(snap.Expenses))
	for _, e := range snap.Expenses {
		s.expenses[e.ID] = e
	}
	return nil
}

// persist writes the snapshot. Failures are logged and swallowed: losing
// durability for one write is accepted rather than failing the UI action.
// Callers must hold s.mu.
func (s *Store) persist(ctx context.Context) {
	snap := snapshot{
		Products: make([]domain.Product, 0, len(s.products)),
		Invoices: make([]domain.Invoice, 0, len(s.invoices)),
		Expenses: make([]domain.Expense, 0, len(s.expenses)),
	}
	for _, p := range s.products {
		snap.Products = append(snap.Products, p)
	}
	for _, inv := range s.invoices {
		snap.Invoices = append(snap.Invoices, inv)
	}
	for _, e := range s.expenses {
		snap.Expenses = append(snap.Expenses, e)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("[store] WARN: failed to marshal snapshot: %v", err)
		return
	}
	if err := s.kv.Set(ctx, s.snapshotKey(), data); err != nil {
		log.Printf("[store] WARN: failed to persist snapshot: %v", err)
	}
}

func (s *Store) ListProducts(_ context.Context) []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := p
	return &copied, nil
}

func (s *Store) ApplyProductCreate(ctx context.Context, product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.products[product.ID] = product
	s.persist(ctx)
}

func (s *Store) ApplyProductUpdate(ctx context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[product.ID]; !ok {
		return ErrNotFound
	}
	s.products[product.ID] = product
	s.persist(ctx)
	return nil
}

func (s *Store) ApplyProductDelete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return ErrNotFound
	}
	delete(s.products, id)
	s.persist(ctx)
	return nil
}

// AdjustStock applies per-product stock deltas, clamping the visible count
// at zero. Unknown product IDs are skipped: an invoice may reference a
// product deleted after the sale.
func (s *Store) AdjustStock(ctx context.Context, deltas map[string]int) {
	if len(deltas) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, delta := range deltas {
		p, ok := s.products[id]
		if !ok {
			continue
		}
		p.Stock = reconcile.ClampStock(p.Stock + delta)
		s.products[id] = p
	}
	s.persist(ctx)
}

func (s *Store) ListInvoices(_ context.Context) []domain.Invoice {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoices := make([]domain.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		invoices = append(invoices, inv)
	}
	slices.SortFunc(invoices, func(a, b domain.Invoice) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return invoices
}

func (s *Store) GetInvoice(_ context.Context, id string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := inv
	copied.Items = slices.Clone(inv.Items)
	return &copied, nil
}

func (s *Store) ApplyInvoiceCreate(ctx context.Context, invoice domain.Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invoices[invoice.ID] = invoice
	s.persist(ctx)
}

func (s *Store) ApplyInvoiceUpdate(ctx context.Context, invoice domain.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invoices[invoice.ID]; !ok {
		return ErrNotFound
	}
	s.invoices[invoice.ID] = invoice
	s.persist(ctx)
	return nil
}

func (s *Store) ApplyInvoiceDelete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invoices[id]; !ok {
		return ErrNotFound
	}
	delete(s.invoices, id)
	s.persist(ctx)
	return nil
}

func (s *Store) ListExpenses(_ context.Context) []domain.Expense {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expenses := make([]domain.Expense, 0, len(s.expenses))
	for _, e := range s.expenses {
		expenses = append(expenses, e)
	}
	slices.SortFunc(expenses, func(a, b domain.Expense) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return expenses
}

func (s *Store) ApplyExpenseCreate(ctx context.Context, expense domain.Expense) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expenses[expense.ID] = expense
	s.persist(ctx)
}

func (s *Store) ApplyExpenseDelete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.expenses[id]; !ok {
		return ErrNotFound
	}
	delete(s.expenses, id)
	s.persist(ctx)
	return nil
}

// RewriteProductID replaces a local product identifier with the
// server-issued one, in place: the product record itself and every
// denormalized item reference inside invoices. The entity is never
// duplicated under both identifiers.
func (s *Store) RewriteProductID(ctx context.Context, oldID, newID string) {
	if oldID == newID {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.products[oldID]; ok {
		delete(s.products, oldID)
		p.ID = newID
		s.products[newID] = p
	}
	for id, inv := range s.invoices {
		changed := false
		for i := range inv.Items {
			if inv.Items[i].ProductID == oldID {
				inv.Items[i].ProductID = newID
				changed = true
			}
		}
		if changed {
			s.invoices[id] = inv
		}
	}
	s.persist(ctx)
}

// RewriteInvoiceID replaces a local invoice identifier with the
// server-issued one and marks the invoice synced.
func (s *Store) RewriteInvoiceID(ctx context.Context, oldID, newID string) {
	if oldID == newID {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if inv, ok := s.invoices[oldID]; ok {
		delete(s.invoices, oldID)
		inv.ID = newID
		inv.Synced = true
		s.invoices[newID] = inv
	}
	s.persist(ctx)
}

func (s *Store) MarkInvoiceSynced(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inv, ok := s.invoices[id]; ok {
		inv.Synced = true
		s.invoices[id] = inv
		s.persist(ctx)
	}
}

// ReplaceSynced swaps in the authoritative server view after a sync pass.
// Entities still carrying the local-only prefix are preserved: they have
// not reached the server yet and would otherwise be lost.
func (s *Store) ReplaceSynced(ctx context.Context, products []domain.Product, invoices []domain.Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nextProducts := make(map[string]domain.Product, len(products))
	for id, p := range s.products {
		if xid.IsLocal(id) {
			nextProducts[id] = p
		}
	}
	for _, p := range products {
		nextProducts[p.ID] = p
	}
	s.products = nextProducts

	nextInvoices := make(map[string]domain.Invoice, len(invoices))
	for id, inv := range s.invoices {
		if xid.IsLocal(id) {
			nextInvoices[id] = inv
		}
	}
	for _, inv := range invoices {
		inv.Synced = true
		nextInvoices[inv.ID] = inv
	}
	s.invoices = nextInvoices

	s.persist(ctx)
}

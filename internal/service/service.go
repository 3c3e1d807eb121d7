// Package service exposes the kiosk-facing API: synchronous optimistic
// reads and mutations that always succeed locally, with network
// confirmation handled behind the scenes. Network failures never surface
// here as errors; the only user-visible signal is the pending count.
package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kiospos/kiosk/internal/connectivity"
	"kiospos/kiosk/internal/domain"
	"kiospos/kiosk/internal/gateway"
	"kiospos/kiosk/internal/queue"
	"kiospos/kiosk/internal/reconcile"
	"kiospos/kiosk/internal/store"
	"kiospos/kiosk/internal/syncer"
	"kiospos/kiosk/internal/xid"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = store.ErrNotFound
)

type Service struct {
	store  *store.Store
	queue  *queue.Queue
	gw     gateway.Gateway
	conn   *connectivity.Monitor
	engine *syncer.Engine
}

func New(st *store.Store, q *queue.Queue, gw gateway.Gateway, conn *connectivity.Monitor, engine *syncer.Engine) *Service {
	return &Service{
		store:  st,
		queue:  q,
		gw:     gw,
		conn:   conn,
		engine: engine,
	}
}

func (s *Service) ListProducts(ctx context.Context) []domain.Product {
	return s.store.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.store.GetProduct(ctx, id)
}

func (s *Service) ListInvoices(ctx context.Context) []domain.Invoice {
	return s.store.ListInvoices(ctx)
}

func (s *Service) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	return s.store.GetInvoice(ctx, id)
}

func (s *Service) ListExpenses(ctx context.Context) []domain.Expense {
	return s.store.ListExpenses(ctx)
}

func (s *Service) PendingCount(ctx context.Context) int {
	return s.queue.UnsyncedCount(ctx)
}

func (s *Service) SyncNow(ctx context.Context) (syncer.Result, error) {
	return s.engine.SyncNow(ctx)
}

func (s *Service) Status(ctx context.Context) domain.SyncStatus {
	return domain.SyncStatus{
		Online:       s.conn.Online(),
		PendingCount: s.queue.UnsyncedCount(ctx),
		Syncing:      s.engine.Syncing(),
		LastSyncedAt: s.engine.LastSyncedAt(),
	}
}

// canConfirmDirectly reports whether a mutation may skip the queue and hit
// the gateway synchronously: only when online and nothing is already
// backlogged, so a direct call can never overtake an older queued one.
func (s *Service) canConfirmDirectly(ctx context.Context) bool {
	return s.conn.Online() && s.queue.UnsyncedCount(ctx) == 0
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Product{}, ErrInvalidInput
	}
	if req.CostPrice.IsNegative() || req.SellingPrice.IsNegative() || req.Stock < 0 || req.MinStock < 0 {
		return domain.Product{}, ErrInvalidInput
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:           xid.NewLocal("product"),
		Barcode:      strings.TrimSpace(req.Barcode),
		Name:         req.Name,
		CostPrice:    req.CostPrice,
		SellingPrice: req.SellingPrice,
		Stock:        req.Stock,
		MinStock:     req.MinStock,
		Unit:         strings.TrimSpace(req.Unit),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.store.ApplyProductCreate(ctx, product)

	if s.canConfirmDirectly(ctx) {
		created, err := s.gw.CreateProduct(ctx, product)
		if err == nil {
			s.store.RewriteProductID(ctx, product.ID, created.ID)
			product.ID = created.ID
			return product, nil
		}
		log.Printf("[service] product create not confirmed, queueing: %v", err)
	}

	payload := product
	s.queue.Enqueue(ctx, domain.PendingOperation{
		EntityType: domain.EntityProduct,
		Action:     domain.ActionCreate,
		EntityID:   product.ID,
		Product:    &payload,
	})
	return product, nil
}

func (s *Service) EditProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.CostPrice != nil {
		if req.CostPrice.IsNegative() {
			return domain.Product{}, ErrInvalidInput
		}
		updated.CostPrice = *req.CostPrice
	}
	if req.SellingPrice != nil {
		if req.SellingPrice.IsNegative() {
			return domain.Product{}, ErrInvalidInput
		}
		updated.SellingPrice = *req.SellingPrice
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return domain.Product{}, ErrInvalidInput
		}
		updated.Stock = *req.Stock
	}
	if req.MinStock != nil {
		if *req.MinStock < 0 {
			return domain.Product{}, ErrInvalidInput
		}
		updated.MinStock = *req.MinStock
	}
	if req.Unit != nil {
		updated.Unit = strings.TrimSpace(*req.Unit)
	}
	updated.UpdatedAt = time.Now().UTC()

	if err := s.store.ApplyProductUpdate(ctx, updated); err != nil {
		return domain.Product{}, err
	}

	s.confirmProductChange(ctx, domain.ActionUpdate, updated)
	return updated, nil
}

func (s *Service) RemoveProduct(ctx context.Context, id string) error {
	existing, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.ApplyProductDelete(ctx, id); err != nil {
		return err
	}

	s.confirmProductChange(ctx, domain.ActionDelete, *existing)
	return nil
}

// confirmProductChange settles an update or delete with the backend: a
// local-only identifier never goes over the wire directly (the queued
// create has to resolve it first), otherwise a synchronous confirm is
// attempted and failure falls back to the queue.
func (s *Service) confirmProductChange(ctx context.Context, action domain.Action, product domain.Product) {
	if !xid.IsLocal(product.ID) && s.canConfirmDirectly(ctx) {
		var err error
		switch action {
		case domain.ActionUpdate:
			err = s.gw.UpdateProduct(ctx, product.ID, product)
		case domain.ActionDelete:
			err = s.gw.DeleteProduct(ctx, product.ID)
		}
		if err == nil {
			return
		}
		log.Printf("[service] product %s not confirmed, queueing: %v", action, err)
	}

	op := domain.PendingOperation{
		EntityType: domain.EntityProduct,
		Action:     action,
		EntityID:   product.ID,
	}
	if action == domain.ActionUpdate {
		payload := product
		op.Product = &payload
	}
	s.queue.Enqueue(ctx, op)
}

func (s *Service) CreateInvoice(ctx context.Context, req domain.InvoiceCreateRequest) (domain.Invoice, error) {
	if len(req.Items) == 0 {
		return domain.Invoice{}, ErrInvalidInput
	}
	if req.Discount.IsNegative() || req.PaidAmount.IsNegative() {
		return domain.Invoice{}, ErrInvalidInput
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentMethodCash
	}

	items, err := s.buildItems(ctx, req.Items, nil)
	if err != nil {
		return domain.Invoice{}, err
	}

	now := time.Now().UTC()
	invoice := domain.Invoice{
		ID:            xid.NewLocal("invoice"),
		Items:         items,
		Discount:      req.Discount,
		PaidAmount:    req.PaidAmount,
		PaymentMethod: req.PaymentMethod,
		Notes:         strings.TrimSpace(req.Notes),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	reconcile.Finalize(&invoice)

	s.store.ApplyInvoiceCreate(ctx, invoice)
	// The stock effect is purely local; the backend applies its own
	// deduction when the invoice lands there. No product op is queued.
	s.store.AdjustStock(ctx, reconcile.StockDeltas(nil, &invoice))

	if s.canConfirmDirectly(ctx) {
		created, err := s.gw.CreateInvoice(ctx, invoice)
		if err == nil {
			s.store.RewriteInvoiceID(ctx, invoice.ID, created.ID)
			invoice.ID = created.ID
			invoice.Synced = true
			return invoice, nil
		}
		log.Printf("[service] invoice create not confirmed, queueing: %v", err)
	}

	payload := invoice
	s.queue.Enqueue(ctx, domain.PendingOperation{
		EntityType: domain.EntityInvoice,
		Action:     domain.ActionCreate,
		EntityID:   invoice.ID,
		Invoice:    &payload,
	})
	return invoice, nil
}

func (s *Service) EditInvoice(ctx context.Context, id string, req domain.InvoiceUpdateRequest) (domain.Invoice, error) {
	old, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}

	updated := *old
	if req.Items != nil {
		if len(req.Items) == 0 {
			return domain.Invoice{}, ErrInvalidInput
		}
		items, err := s.buildItems(ctx, req.Items, old.Items)
		if err != nil {
			return domain.Invoice{}, err
		}
		updated.Items = items
	}
	if req.Discount != nil {
		if req.Discount.IsNegative() {
			return domain.Invoice{}, ErrInvalidInput
		}
		updated.Discount = *req.Discount
	}
	if req.PaidAmount != nil {
		if req.PaidAmount.IsNegative() {
			return domain.Invoice{}, ErrInvalidInput
		}
		updated.PaidAmount = *req.PaidAmount
	}
	if req.PaymentMethod != nil {
		updated.PaymentMethod = *req.PaymentMethod
	}
	if req.Notes != nil {
		updated.Notes = strings.TrimSpace(*req.Notes)
	}
	updated.UpdatedAt = time.Now().UTC()
	updated.Synced = false
	reconcile.Finalize(&updated)

	if err := s.store.ApplyInvoiceUpdate(ctx, updated); err != nil {
		return domain.Invoice{}, err
	}
	// Edit = rollback(old) + apply(new), never a direct quantity delta.
	s.store.AdjustStock(ctx, reconcile.StockDeltas(old, &updated))

	s.confirmInvoiceChange(ctx, domain.ActionUpdate, updated, false)
	return updated, nil
}

// AddPayment records a payment against an invoice; balance and status are
// rederived and the change syncs as a plain invoice update.
func (s *Service) AddPayment(ctx context.Context, id string, amount decimal.Decimal) (domain.Invoice, error) {
	if !amount.IsPositive() {
		return domain.Invoice{}, ErrInvalidInput
	}
	old, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	paid := old.PaidAmount.Add(amount)
	return s.EditInvoice(ctx, id, domain.InvoiceUpdateRequest{PaidAmount: &paid})
}

func (s *Service) RemoveInvoice(ctx context.Context, id string) error {
	return s.deleteInvoice(ctx, id, false)
}

// ReturnInvoice is the customer-return variant of delete: locally both
// restore stock in full, but the backend is told to run its
// stock-restoring transaction instead of a plain delete.
func (s *Service) ReturnInvoice(ctx context.Context, id string) error {
	return s.deleteInvoice(ctx, id, true)
}

func (s *Service) deleteInvoice(ctx context.Context, id string, isReturn bool) error {
	old, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.ApplyInvoiceDelete(ctx, id); err != nil {
		return err
	}
	// Full restoration regardless of how much was paid.
	s.store.AdjustStock(ctx, reconcile.StockDeltas(old, nil))

	s.confirmInvoiceChange(ctx, domain.ActionDelete, *old, isReturn)
	return nil
}

func (s *Service) confirmInvoiceChange(ctx context.Context, action domain.Action, invoice domain.Invoice, isReturn bool) {
	if !xid.IsLocal(invoice.ID) && s.canConfirmDirectly(ctx) {
		var err error
		switch {
		case action == domain.ActionUpdate:
			err = s.gw.UpdateInvoice(ctx, invoice.ID, invoice)
		case action == domain.ActionDelete && isReturn:
			err = s.gw.ReturnInvoice(ctx, invoice.ID)
		case action == domain.ActionDelete:
			err = s.gw.DeleteInvoice(ctx, invoice.ID)
		}
		if err == nil {
			if action == domain.ActionUpdate {
				s.store.MarkInvoiceSynced(ctx, invoice.ID)
			}
			return
		}
		log.Printf("[service] invoice %s not confirmed, queueing: %v", action, err)
	}

	op := domain.PendingOperation{
		EntityType: domain.EntityInvoice,
		Action:     action,
		EntityID:   invoice.ID,
		IsReturn:   isReturn,
	}
	if action == domain.ActionUpdate {
		payload := invoice
		op.Invoice = &payload
	}
	s.queue.Enqueue(ctx, op)
}

// buildItems resolves requested lines against the optimistic product view.
// Lines whose product is already on the old invoice keep their original
// sale-time snapshot (name, barcode, prices); only genuinely new lines
// take a fresh snapshot. Historical invoices never track product edits.
func (s *Service) buildItems(ctx context.Context, reqs []domain.InvoiceItemRequest, oldItems []domain.InvoiceItem) ([]domain.InvoiceItem, error) {
	oldByProduct := make(map[string]domain.InvoiceItem, len(oldItems))
	for _, item := range oldItems {
		oldByProduct[item.ProductID] = item
	}

	items := make([]domain.InvoiceItem, 0, len(reqs))
	for _, req := range reqs {
		if req.Quantity <= 0 {
			return nil, ErrInvalidInput
		}
		if prior, ok := oldByProduct[req.ProductID]; ok {
			prior.Quantity = req.Quantity
			items = append(items, prior)
			continue
		}
		product, err := s.store.GetProduct(ctx, req.ProductID)
		if err != nil {
			return nil, err
		}
		items = append(items, domain.InvoiceItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Barcode:     product.Barcode,
			Quantity:    req.Quantity,
			UnitPrice:   product.SellingPrice,
			CostPrice:   product.CostPrice,
		})
	}
	return items, nil
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" || req.Amount.IsNegative() {
		return domain.Expense{}, ErrInvalidInput
	}

	expense := domain.Expense{
		ID:          xid.New("expense"),
		Description: req.Description,
		Amount:      req.Amount,
		CreatedAt:   time.Now().UTC(),
	}
	// Expenses are informational and local-only; the backend contract has
	// no expense endpoints.
	s.store.ApplyExpenseCreate(ctx, expense)
	return expense, nil
}

func (s *Service) RemoveExpense(ctx context.Context, id string) error {
	return s.store.ApplyExpenseDelete(ctx, id)
}

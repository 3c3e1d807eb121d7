package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"kiospos/kiosk/internal/connectivity"
	"kiospos/kiosk/internal/domain"
	"kiospos/kiosk/internal/queue"
	"kiospos/kiosk/internal/storage/memory"
	"kiospos/kiosk/internal/store"
	"kiospos/kiosk/internal/syncer"
	"kiospos/kiosk/internal/xid"
)

func d(v string) decimal.Decimal {
	out, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return out
}

// fakeBackend behaves like the real server: created entities get server
// identifiers and invoice creation runs the server-side stock deduction,
// so post-sync reloads return a consistent view.
type fakeBackend struct {
	mu       sync.Mutex
	seq      int
	products map[string]domain.Product
	invoices map[string]domain.Invoice
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		products: make(map[string]domain.Product),
		invoices: make(map[string]domain.Invoice),
	}
}

func (b *fakeBackend) Ping(context.Context) error { return nil }

func (b *fakeBackend) CreateProduct(_ context.Context, p domain.Product) (*domain.Product, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	p.ID = fmt.Sprintf("srv_p_%d", b.seq)
	b.products[p.ID] = p
	return &p, nil
}

func (b *fakeBackend) UpdateProduct(_ context.Context, id string, p domain.Product) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p.ID = id
	b.products[id] = p
	return nil
}

func (b *fakeBackend) DeleteProduct(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.products, id)
	return nil
}

func (b *fakeBackend) CreateInvoice(_ context.Context, inv domain.Invoice) (*domain.Invoice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	inv.ID = fmt.Sprintf("srv_i_%d", b.seq)
	inv.Synced = true
	b.invoices[inv.ID] = inv
	for _, item := range inv.Items {
		if p, ok := b.products[item.ProductID]; ok {
			p.Stock -= item.Quantity
			b.products[item.ProductID] = p
		}
	}
	return &inv, nil
}

func (b *fakeBackend) UpdateInvoice(_ context.Context, id string, inv domain.Invoice) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	old, ok := b.invoices[id]
	if ok {
		for _, item := range old.Items {
			if p, found := b.products[item.ProductID]; found {
				p.Stock += item.Quantity
				b.products[item.ProductID] = p
			}
		}
	}
	inv.ID = id
	b.invoices[id] = inv
	for _, item := range inv.Items {
		if p, found := b.products[item.ProductID]; found {
			p.Stock -= item.Quantity
			b.products[item.ProductID] = p
		}
	}
	return nil
}

func (b *fakeBackend) DeleteInvoice(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.invoices, id)
	return nil
}

func (b *fakeBackend) ReturnInvoice(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if inv, ok := b.invoices[id]; ok {
		for _, item := range inv.Items {
			if p, found := b.products[item.ProductID]; found {
				p.Stock += item.Quantity
				b.products[item.ProductID] = p
			}
		}
		delete(b.invoices, id)
	}
	return nil
}

func (b *fakeBackend) FetchProducts(context.Context) ([]domain.Product, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Product, 0, len(b.products))
	for _, p := range b.products {
		out = append(out, p)
	}
	return out, nil
}

func (b *fakeBackend) FetchInvoices(context.Context) ([]domain.Invoice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Invoice, 0, len(b.invoices))
	for _, inv := range b.invoices {
		out = append(out, inv)
	}
	return out, nil
}

type env struct {
	svc  *Service
	conn *connectivity.Monitor
	q    *queue.Queue
	gw   *fakeBackend
}

func newEnv(online bool) *env {
	kv := memory.New()
	st := store.New("test", kv)
	q := queue.New("test", kv)
	gw := newFakeBackend()
	conn := connectivity.New(nil, time.Minute, 0)
	conn.SetOnline(online)
	engine := syncer.New(st, q, gw, conn, time.Minute, time.Hour)
	return &env{
		svc:  New(st, q, gw, conn, engine),
		conn: conn,
		q:    q,
		gw:   gw,
	}
}

func (e *env) mustCreateProduct(t *testing.T, name string, price string, stock int) domain.Product {
	t.Helper()
	p, err := e.svc.CreateProduct(context.Background(), domain.ProductCreateRequest{
		Name:         name,
		CostPrice:    d("500"),
		SellingPrice: d(price),
		Stock:        stock,
		Unit:         "pcs",
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}

func TestOfflineSaleSyncsAfterReconnect(t *testing.T) {
	e := newEnv(true)
	ctx := context.Background()

	product := e.mustCreateProduct(t, "Indomie Goreng", "3500", 10)
	if xid.IsLocal(product.ID) {
		t.Fatalf("online create should confirm directly, got %s", product.ID)
	}

	e.conn.SetOnline(false)
	invoice, err := e.svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		Items:      []domain.InvoiceItemRequest{{ProductID: product.ID, Quantity: 3}},
		PaidAmount: d("10500"),
	})
	if err != nil {
		t.Fatalf("offline sale: %v", err)
	}
	if !xid.IsLocal(invoice.ID) {
		t.Fatalf("offline invoice should carry a local identifier, got %s", invoice.ID)
	}
	if got, _ := e.svc.GetProduct(ctx, product.ID); got.Stock != 7 {
		t.Fatalf("stock not deducted optimistically: %d", got.Stock)
	}
	if e.svc.PendingCount(ctx) != 1 {
		t.Fatalf("expected one pending operation")
	}

	e.conn.SetOnline(true)
	res, err := e.svc.SyncNow(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.Synced != 1 || res.Halted {
		t.Fatalf("unexpected sync result %+v", res)
	}

	if e.svc.PendingCount(ctx) != 0 {
		t.Fatalf("queue not drained")
	}
	invoices := e.svc.ListInvoices(ctx)
	if len(invoices) != 1 {
		t.Fatalf("expected one invoice, got %d", len(invoices))
	}
	if xid.IsLocal(invoices[0].ID) || !invoices[0].Synced {
		t.Fatalf("invoice not remapped to server identity: %+v", invoices[0])
	}
	// The reload must agree with the local deduction, not resurrect 10.
	if got, _ := e.svc.GetProduct(ctx, product.ID); got.Stock != 7 {
		t.Fatalf("stock after sync+reload = %d, want 7", got.Stock)
	}
}

func TestSaleThenDeleteRestoresStock(t *testing.T) {
	e := newEnv(false)
	ctx := context.Background()

	product := e.mustCreateProduct(t, "Teh Botol", "4000", 8)
	invoice, err := e.svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		Items:      []domain.InvoiceItemRequest{{ProductID: product.ID, Quantity: 5}},
		PaidAmount: d("20000"),
	})
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	if got, _ := e.svc.GetProduct(ctx, product.ID); got.Stock != 3 {
		t.Fatalf("stock after sale = %d, want 3", got.Stock)
	}

	if err := e.svc.RemoveInvoice(ctx, invoice.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := e.svc.GetProduct(ctx, product.ID); got.Stock != 8 {
		t.Fatalf("stock after delete = %d, want the original 8", got.Stock)
	}
}

func TestEditAdjustsStockByRollbackThenApply(t *testing.T) {
	e := newEnv(false)
	ctx := context.Background()

	product := e.mustCreateProduct(t, "Sabun Cuci", "7000", 20)
	invoice, err := e.svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		Items:      []domain.InvoiceItemRequest{{ProductID: product.ID, Quantity: 3}},
		PaidAmount: d("21000"),
	})
	if err != nil {
		t.Fatalf("sale: %v", err)
	}

	_, err = e.svc.EditInvoice(ctx, invoice.ID, domain.InvoiceUpdateRequest{
		Items: []domain.InvoiceItemRequest{{ProductID: product.ID, Quantity: 5}},
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got, _ := e.svc.GetProduct(ctx, product.ID); got.Stock != 15 {
		t.Fatalf("stock after edit = %d, want 20-5=15", got.Stock)
	}
}

func TestBalanceAndStatusDerivation(t *testing.T) {
	e := newEnv(false)
	ctx := context.Background()

	product := e.mustCreateProduct(t, "Beras 5kg", "70000", 10)
	invoice, err := e.svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		Items:      []domain.InvoiceItemRequest{{ProductID: product.ID, Quantity: 1}},
		Discount:   d("5000"),
		PaidAmount: d("40000"),
	})
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	if invoice.Status != domain.InvoiceStatusPartial {
		t.Fatalf("status = %s, want partial", invoice.Status)
	}
	if !invoice.Total.Equal(d("65000")) || !invoice.RemainingBalance.Equal(d("25000")) {
		t.Fatalf("total=%s remaining=%s", invoice.Total, invoice.RemainingBalance)
	}

	paid, err := e.svc.AddPayment(ctx, invoice.ID, d("25000"))
	if err != nil {
		t.Fatalf("payment: %v", err)
	}
	if paid.Status != domain.InvoiceStatusPaid || !paid.RemainingBalance.IsZero() {
		t.Fatalf("after payment status=%s remaining=%s", paid.Status, paid.RemainingBalance)
	}
}

func TestOfflineProductCreateIsQueued(t *testing.T) {
	e := newEnv(false)
	ctx := context.Background()

	product := e.mustCreateProduct(t, "Minyak Goreng", "18000", 6)
	if !xid.IsLocal(product.ID) {
		t.Fatalf("offline create must stay local, got %s", product.ID)
	}
	ops := e.q.ListUnsynced(ctx)
	if len(ops) != 1 || ops[0].Action != domain.ActionCreate || ops[0].Product == nil {
		t.Fatalf("expected a queued create with payload, got %+v", ops)
	}
}

func TestDirectConfirmRefusedWhileQueueNonEmpty(t *testing.T) {
	e := newEnv(false)
	ctx := context.Background()

	// An older mutation is still queued when connectivity returns. New
	// mutations must join the queue behind it, not jump over the wire.
	local := e.mustCreateProduct(t, "Gula Pasir", "15000", 4)
	e.conn.SetOnline(true)

	other := e.mustCreateProduct(t, "Garam", "3000", 9)
	if !xid.IsLocal(other.ID) {
		t.Fatalf("create overtook the queue: %s", other.ID)
	}
	_ = local
	if e.svc.PendingCount(ctx) != 2 {
		t.Fatalf("expected both creates queued, got %d", e.svc.PendingCount(ctx))
	}
}

func TestReturnQueuesReturnFlaggedDelete(t *testing.T) {
	e := newEnv(false)
	ctx := context.Background()

	product := e.mustCreateProduct(t, "Kecap Manis", "12000", 10)
	invoice, err := e.svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{
		Items:      []domain.InvoiceItemRequest{{ProductID: product.ID, Quantity: 2}},
		PaidAmount: d("24000"),
	})
	if err != nil {
		t.Fatalf("sale: %v", err)
	}

	if err := e.svc.ReturnInvoice(ctx, invoice.ID); err != nil {
		t.Fatalf("return: %v", err)
	}
	if got, _ := e.svc.GetProduct(ctx, product.ID); got.Stock != 10 {
		t.Fatalf("return must restore stock in full, got %d", got.Stock)
	}

	// Both ops reference the local invoice, so a later sync pass drops
	// them without network calls. Here we only check the flag landed.
	ops := e.q.ListUnsynced(ctx)
	last := ops[len(ops)-1]
	if last.Action != domain.ActionDelete || !last.IsReturn {
		t.Fatalf("expected a return-flagged delete, got %+v", last)
	}
}

func TestExpensesNeverTouchQueueOrBackend(t *testing.T) {
	e := newEnv(true)
	ctx := context.Background()

	exp, err := e.svc.CreateExpense(ctx, domain.ExpenseCreateRequest{
		Description: "listrik warung",
		Amount:      d("150000"),
	})
	if err != nil {
		t.Fatalf("expense: %v", err)
	}
	if strings.HasPrefix(exp.ID, xid.LocalPrefix) {
		t.Fatalf("expenses are permanently local and need no offline marker")
	}
	if e.svc.PendingCount(ctx) != 0 {
		t.Fatalf("expense must not queue an operation")
	}

	if err := e.svc.RemoveExpense(ctx, exp.ID); err != nil {
		t.Fatalf("remove expense: %v", err)
	}
	if len(e.svc.ListExpenses(ctx)) != 0 {
		t.Fatalf("expense not removed")
	}
}

func TestValidationErrors(t *testing.T) {
	e := newEnv(true)
	ctx := context.Background()

	if _, err := e.svc.CreateProduct(ctx, domain.ProductCreateRequest{Name: "  "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank name: %v", err)
	}
	if _, err := e.svc.CreateInvoice(ctx, domain.InvoiceCreateRequest{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty invoice: %v", err)
	}
	if _, err := e.svc.AddPayment(ctx, "whatever", d("0")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero payment: %v", err)
	}
	if _, err := e.svc.GetInvoice(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing invoice: %v", err)
	}
}

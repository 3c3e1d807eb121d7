// Package reconcile holds the pure stock and balance rules applied on
// every invoice lifecycle event. The same functions run for local
// mutations and for replayed ones, so stock is never adjusted twice for
// the same event.
package reconcile

import (
	"github.com/shopspring/decimal"

	"kiospos/kiosk/internal/domain"
)

// DeriveBalance computes the remaining balance and payment status from an
// invoice total and the amount paid so far.
//
//	remaining = max(0, total - paid)
//	status    = paid    if remaining <= 0
//	            partial if paid > 0
//	            unpaid  otherwise
func DeriveBalance(total, paid decimal.Decimal) (decimal.Decimal, string) {
	remaining := total.Sub(paid)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	switch {
	case remaining.IsZero():
		return remaining, domain.InvoiceStatusPaid
	case paid.IsPositive():
		return remaining, domain.InvoiceStatusPartial
	default:
		return remaining, domain.InvoiceStatusUnpaid
	}
}

// Finalize recomputes every derived invoice field from its items, discount
// and paid amount: item totals, subtotal, total = max(0, subtotal-discount),
// remaining balance and status.
func Finalize(inv *domain.Invoice) {
	subtotal := decimal.Zero
	for i := range inv.Items {
		item := &inv.Items[i]
		item.TotalPrice = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(item.TotalPrice)
	}
	inv.Subtotal = subtotal

	total := subtotal.Sub(inv.Discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	inv.Total = total

	inv.RemainingBalance, inv.Status = DeriveBalance(inv.Total, inv.PaidAmount)
}

// StockDeltas returns the net per-product stock change for an invoice
// lifecycle event. old=nil is a create (deduct), new=nil is a delete or
// return (full restoration regardless of payment), and both non-nil is an
// edit: the old quantities are fully rolled back before the new ones are
// applied, so membership changes are handled, never a direct quantity
// delta.
func StockDeltas(oldInv, newInv *domain.Invoice) map[string]int {
	deltas := make(map[string]int)
	if oldInv != nil {
		for _, item := range oldInv.Items {
			deltas[item.ProductID] += item.Quantity
		}
	}
	if newInv != nil {
		for _, item := range newInv.Items {
			deltas[item.ProductID] -= item.Quantity
		}
	}
	for id, d := range deltas {
		if d == 0 {
			delete(deltas, id)
		}
	}
	return deltas
}

// ClampStock floors stock at zero. Oversell is allowed by policy (the sale
// is recorded even if the count disagrees with the shelf), so the clamp is
// display-level only and never blocks a mutation.
func ClampStock(stock int) int {
	if stock < 0 {
		return 0
	}
	return stock
}

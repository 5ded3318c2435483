package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/receiptsplit/internal/models"
)

// Balance classifies how the assigned amounts compare to the receipt total.
type Balance string

const (
	BalanceBalanced       Balance = "balanced"
	BalanceUnderAllocated Balance = "under_allocated"
	BalanceOverAllocated  Balance = "over_allocated"
)

// Totals are the read-only aggregates shown next to an allocation.
// A mismatch between Assigned and Total is advisory; nothing is blocked by it.
type Totals struct {
	Total    decimal.Decimal
	Assigned decimal.Decimal
	Paid     decimal.Decimal

	// Remaining is what is still to be paid, never below zero.
	Remaining decimal.Decimal

	// Difference is Total - Assigned: positive when under-allocated,
	// negative when over-allocated (e.g. items claimed twice).
	Difference decimal.Decimal

	PendingCount int
	PaidCount    int
	Balance      Balance
}

// Totals computes the aggregates for the current allocation.
func (e *Engine) Totals() Totals {
	return ComputeTotals(e.receipt.Total, e.alloc.Participants)
}

// ComputeTotals computes the aggregates for participants of a receipt with the given total.
func ComputeTotals(total decimal.Decimal, participants []models.Participant) Totals {
	t := Totals{
		Total:    total,
		Assigned: decimal.Zero,
		Paid:     decimal.Zero,
	}
	for _, p := range participants {
		t.Assigned = t.Assigned.Add(p.Amount)
		if p.Status == models.PaymentPaid {
			t.Paid = t.Paid.Add(p.Amount)
			t.PaidCount++
		} else {
			t.PendingCount++
		}
	}

	t.Difference = total.Sub(t.Assigned)
	t.Remaining = decimal.Max(total.Sub(t.Paid), decimal.Zero)

	switch t.Difference.Sign() {
	case 0:
		t.Balance = BalanceBalanced
	case 1:
		t.Balance = BalanceUnderAllocated
	default:
		t.Balance = BalanceOverAllocated
	}
	return t
}

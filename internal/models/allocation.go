package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SplitMode selects how the receipt total is divided.
type SplitMode string

const (
	// SplitModeEqual assigns every participant a cent-exact equal share.
	SplitModeEqual SplitMode = "equal"
	// SplitModeItemized derives each share from the line items a participant selected.
	SplitModeItemized SplitMode = "itemized"
)

// Valid reports whether m is a known split mode.
func (m SplitMode) Valid() bool {
	return m == SplitModeEqual || m == SplitModeItemized
}

// ParseSplitMode accepts "equal", "itemized" and the legacy "manual" alias.
func ParseSplitMode(s string) (SplitMode, bool) {
	switch s {
	case "equal":
		return SplitModeEqual, true
	case "itemized", "manual":
		return SplitModeItemized, true
	}
	return "", false
}

// PaymentStatus is toggled by the user and independent of the amount.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Participant represents one person's part of an allocation.
type Participant struct {
	// ID is generated when the allocation is created (UUID format).
	ID string

	// Name defaults to "Participant N" (1-based).
	Name string

	// Amount is what this participant owes. In itemized mode it is always
	// the sum of the selected items' line totals.
	Amount decimal.Decimal

	// SelectedItemIDs are the receipt items claimed by this participant,
	// in selection order. Only meaningful in itemized mode.
	SelectedItemIDs []string

	// Reference is the payment link derived from receipt id, participant id and amount.
	Reference string

	Status PaymentStatus
}

// HasItem reports whether the participant selected the item.
func (p *Participant) HasItem(itemID string) bool {
	for _, id := range p.SelectedItemIDs {
		if id == itemID {
			return true
		}
	}
	return false
}

// Allocation is the mapping of a receipt total onto its participants.
type Allocation struct {
	Mode         SplitMode
	Participants []Participant
	CreatedAt    time.Time
}

// Clone returns a deep copy of the allocation.
func (a Allocation) Clone() Allocation {
	out := a
	out.Participants = make([]Participant, len(a.Participants))
	for i, p := range a.Participants {
		p.SelectedItemIDs = append([]string(nil), p.SelectedItemIDs...)
		out.Participants[i] = p
	}
	return out
}

// Session ties a receipt to the allocation the user is working on.
// It lives until the user discards it or starts a new scan.
type Session struct {
	// ID is the unique identifier for the session (UUID format).
	ID string

	// Link is the raw decoded scan payload the receipt was resolved from.
	// Empty for sessions started from a typed total.
	Link string

	Receipt    Receipt
	Allocation Allocation

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Package allocation owns the split of a receipt among participants.
//
// An Engine is a plain state machine: every operation either applies fully
// or returns an error and leaves the state untouched. It does no locking;
// callers serialise access per session.
package allocation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/money"
	"github.com/mmynk/receiptsplit/internal/payref"
)

const (
	MinParticipants = 1
	MaxParticipants = 20

	// UnnamedParticipant replaces blank names.
	UnnamedParticipant = "Unnamed"
)

// Engine holds a receipt and the allocation built on top of it.
type Engine struct {
	receipt models.Receipt
	alloc   models.Allocation
	refs    payref.Builder
	newID   func() string
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator overrides how participant ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) { e.now = fn }
}

// New creates an engine for receipt with no participants, in equal mode.
func New(receipt models.Receipt, refs payref.Builder, opts ...Option) *Engine {
	return Restore(receipt, models.Allocation{Mode: models.SplitModeEqual}, refs, opts...)
}

// Restore creates an engine around an existing allocation.
func Restore(receipt models.Receipt, alloc models.Allocation, refs payref.Builder, opts ...Option) *Engine {
	if !alloc.Mode.Valid() {
		alloc.Mode = models.SplitModeEqual
	}
	e := &Engine{
		receipt: receipt,
		alloc:   alloc.Clone(),
		refs:    refs,
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Receipt returns the receipt being split.
func (e *Engine) Receipt() models.Receipt { return e.receipt }

// Mode returns the current split mode.
func (e *Engine) Mode() models.SplitMode { return e.alloc.Mode }

// Snapshot returns a deep copy of the allocation.
func (e *Engine) Snapshot() models.Allocation { return e.alloc.Clone() }

// Participants returns a copy of the participants in generation order.
func (e *Engine) Participants() []models.Participant { return e.alloc.Clone().Participants }

// Participant returns a copy of the participant with the given id.
func (e *Engine) Participant(id string) (models.Participant, bool) {
	p := e.find(id)
	if p == nil {
		return models.Participant{}, false
	}
	out := *p
	out.SelectedItemIDs = append([]string(nil), p.SelectedItemIDs...)
	return out, true
}

// Generate replaces all participants with count fresh ones. Any previous
// edits are discarded. In equal mode the receipt total is split with
// money.SplitEqually; in itemized mode everyone starts at zero with no items.
func (e *Engine) Generate(count int, mode models.SplitMode) error {
	if count < MinParticipants || count > MaxParticipants {
		return &ValidationError{Field: "count", Err: fmt.Errorf("%w: %d not in [%d, %d]", ErrParticipantCount, count, MinParticipants, MaxParticipants)}
	}
	if !mode.Valid() {
		return &ValidationError{Field: "mode", Err: fmt.Errorf("%w: %q", ErrUnknownMode, mode)}
	}

	var shares []decimal.Decimal
	if mode == models.SplitModeEqual {
		shares = money.SplitEqually(e.receipt.Total, count)
	}

	participants := make([]models.Participant, count)
	for i := range participants {
		amount := decimal.Zero
		if shares != nil {
			amount = shares[i]
		}
		p := models.Participant{
			ID:     e.newID(),
			Name:   fmt.Sprintf("Participant %d", i+1),
			Amount: amount,
			Status: models.PaymentPending,
		}
		p.Reference = e.refs.Build(e.receipt.ID, p.ID, p.Amount)
		participants[i] = p
	}

	e.alloc = models.Allocation{
		Mode:         mode,
		Participants: participants,
		CreatedAt:    e.now(),
	}
	return nil
}

// Reset removes every participant, keeping the mode.
func (e *Engine) Reset() {
	e.alloc.Participants = nil
	e.alloc.CreatedAt = time.Time{}
}

// RenameParticipant sets a display name. Blank names become UnnamedParticipant.
// Unknown ids are ignored.
func (e *Engine) RenameParticipant(id, name string) error {
	p := e.find(id)
	if p == nil {
		return nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = UnnamedParticipant
	}
	p.Name = name
	return nil
}

// SetAmount overrides a participant's share. Only valid in equal mode; in
// itemized mode amounts are always derived from the selected items.
func (e *Engine) SetAmount(id string, amount decimal.Decimal) error {
	if e.alloc.Mode != models.SplitModeEqual {
		return &InvalidOperationError{Op: "set amount", Mode: e.alloc.Mode}
	}
	if amount.IsNegative() {
		return &ValidationError{Field: "amount", Err: ErrNegativeAmount}
	}
	p := e.find(id)
	if p == nil {
		return nil
	}
	e.setAmount(p, amount)
	return nil
}

// SetAmountText parses free-form amount text (see money.ParseAmount) and
// applies it with SetAmount.
func (e *Engine) SetAmountText(id, text string) error {
	return e.SetAmount(id, money.ParseAmount(text))
}

// ToggleItem adds the item to the participant's selection, or removes it if
// already selected, then recomputes the participant's amount. Only valid in
// itemized mode. The same item may be selected by several participants.
func (e *Engine) ToggleItem(participantID, itemID string) error {
	if e.alloc.Mode != models.SplitModeItemized {
		return &InvalidOperationError{Op: "toggle item", Mode: e.alloc.Mode}
	}
	p := e.find(participantID)
	if p == nil {
		return nil
	}
	if _, ok := e.receipt.Item(itemID); !ok {
		return nil
	}

	selected := make([]string, 0, len(p.SelectedItemIDs)+1)
	removed := false
	for _, id := range p.SelectedItemIDs {
		if id == itemID {
			removed = true
			continue
		}
		selected = append(selected, id)
	}
	if !removed {
		selected = append(selected, itemID)
	}
	p.SelectedItemIDs = selected
	e.setAmount(p, e.itemsTotal(p))
	return nil
}

// ToggleStatus flips a participant between pending and paid.
func (e *Engine) ToggleStatus(id string) error {
	p := e.find(id)
	if p == nil {
		return nil
	}
	if p.Status == models.PaymentPaid {
		p.Status = models.PaymentPending
	} else {
		p.Status = models.PaymentPaid
	}
	return nil
}

// SwitchMode changes the split mode while keeping participant identities,
// names and statuses. Switching to equal re-splits the total and clears all
// item selections; switching to itemized recomputes amounts from selections.
// Switching to the current mode does nothing.
func (e *Engine) SwitchMode(mode models.SplitMode) error {
	if !mode.Valid() {
		return &ValidationError{Field: "mode", Err: fmt.Errorf("%w: %q", ErrUnknownMode, mode)}
	}
	if mode == e.alloc.Mode {
		return nil
	}

	e.alloc.Mode = mode
	switch mode {
	case models.SplitModeEqual:
		shares := money.SplitEqually(e.receipt.Total, len(e.alloc.Participants))
		for i := range e.alloc.Participants {
			p := &e.alloc.Participants[i]
			p.SelectedItemIDs = nil
			e.setAmount(p, shares[i])
		}
	case models.SplitModeItemized:
		for i := range e.alloc.Participants {
			p := &e.alloc.Participants[i]
			e.setAmount(p, e.itemsTotal(p))
		}
	}
	return nil
}

// SelectedItems returns the participant's items in receipt order.
func (e *Engine) SelectedItems(participantID string) []models.LineItem {
	p := e.find(participantID)
	if p == nil {
		return nil
	}
	return SelectedItems(e.receipt, *p)
}

// SelectedItems returns the receipt items selected by p, in receipt order.
func SelectedItems(receipt models.Receipt, p models.Participant) []models.LineItem {
	var items []models.LineItem
	for _, item := range receipt.Items {
		if p.HasItem(item.ID) {
			items = append(items, item)
		}
	}
	return items
}

func (e *Engine) find(id string) *models.Participant {
	for i := range e.alloc.Participants {
		if e.alloc.Participants[i].ID == id {
			return &e.alloc.Participants[i]
		}
	}
	return nil
}

func (e *Engine) itemsTotal(p *models.Participant) decimal.Decimal {
	total := decimal.Zero
	for _, item := range SelectedItems(e.receipt, *p) {
		total = total.Add(item.LineTotal)
	}
	return total
}

// setAmount keeps the reference in sync with the amount.
func (e *Engine) setAmount(p *models.Participant, amount decimal.Decimal) {
	p.Amount = amount
	p.Reference = e.refs.Build(e.receipt.ID, p.ID, amount)
}

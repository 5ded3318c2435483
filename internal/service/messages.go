package service

import (
	"time"

	"github.com/mmynk/receiptsplit/internal/allocation"
	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/money"
)

// Amounts travel as decimal strings with two fraction digits.

type LineItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unitPrice"`
	Quantity  string `json:"quantity"`
	LineTotal string `json:"lineTotal"`
}

type Receipt struct {
	ID        string     `json:"id"`
	Total     string     `json:"total"`
	Items     []LineItem `json:"items"`
	StoreName string     `json:"storeName,omitempty"`
	Address   string     `json:"address,omitempty"`
	Cashier   string     `json:"cashier,omitempty"`
	Date      string     `json:"date,omitempty"`
	Time      string     `json:"time,omitempty"`
}

type Participant struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Amount          string   `json:"amount"`
	FormattedAmount string   `json:"formattedAmount"`
	SelectedItemIDs []string `json:"selectedItemIds"`
	Reference       string   `json:"reference"`
	Status          string   `json:"status"`
}

type Totals struct {
	Total        string `json:"total"`
	Assigned     string `json:"assigned"`
	Paid         string `json:"paid"`
	Remaining    string `json:"remaining"`
	Difference   string `json:"difference"`
	PendingCount int    `json:"pendingCount"`
	PaidCount    int    `json:"paidCount"`
	Balance      string `json:"balance"`
}

type Session struct {
	ID           string        `json:"id"`
	Link         string        `json:"link,omitempty"`
	Receipt      Receipt       `json:"receipt"`
	Mode         string        `json:"mode"`
	Participants []Participant `json:"participants"`
	Totals       Totals        `json:"totals"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

type ResolveReceiptRequest struct {
	Link string `json:"link"`
	// ReplaceSessionID is discarded once the new receipt resolves.
	ReplaceSessionID string `json:"replaceSessionId,omitempty"`
}

type ResolveReceiptResponse struct {
	Session *Session `json:"session,omitempty"`
	// Acknowledged is set when the endpoint accepted the link without
	// returning a receipt; no session is created.
	Acknowledged bool   `json:"acknowledged"`
	Message      string `json:"message,omitempty"`
	Raw          string `json:"raw,omitempty"`
}

type StartManualSessionRequest struct {
	Total string `json:"total"`
}

type GetSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type GenerateRequest struct {
	SessionID string `json:"sessionId"`
	Count     int    `json:"count"`
	Mode      string `json:"mode"`
}

type RenameParticipantRequest struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
}

// SetAmountRequest carries the amount as typed; "12,5" and "12.5" are equal.
type SetAmountRequest struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
	Amount        string `json:"amount"`
}

type ToggleItemRequest struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
	ItemID        string `json:"itemId"`
}

type ToggleStatusRequest struct {
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
}

type SwitchModeRequest struct {
	SessionID string `json:"sessionId"`
	Mode      string `json:"mode"`
}

type ResetSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type DiscardSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type DiscardSessionResponse struct{}

type SessionResponse struct {
	Session *Session `json:"session"`
}

type RenderCodeRequest struct {
	Value string `json:"value"`
}

type RenderCodeResponse struct {
	Size int      `json:"size"`
	Rows []string `json:"rows"`
}

func toSessionMessage(s *models.Session) *Session {
	r := s.Receipt
	items := make([]LineItem, len(r.Items))
	for i, item := range r.Items {
		items[i] = LineItem{
			ID:        item.ID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice.StringFixed(2),
			Quantity:  item.Quantity.String(),
			LineTotal: item.LineTotal.StringFixed(2),
		}
	}

	participants := make([]Participant, len(s.Allocation.Participants))
	for i, p := range s.Allocation.Participants {
		selected := p.SelectedItemIDs
		if selected == nil {
			selected = []string{}
		}
		participants[i] = Participant{
			ID:              p.ID,
			Name:            p.Name,
			Amount:          p.Amount.StringFixed(2),
			FormattedAmount: money.FormatAmount(p.Amount),
			SelectedItemIDs: selected,
			Reference:       p.Reference,
			Status:          string(p.Status),
		}
	}

	t := allocation.ComputeTotals(r.Total, s.Allocation.Participants)
	mode := s.Allocation.Mode
	if !mode.Valid() {
		mode = models.SplitModeEqual
	}

	return &Session{
		ID:   s.ID,
		Link: s.Link,
		Receipt: Receipt{
			ID:        r.ID,
			Total:     r.Total.StringFixed(2),
			Items:     items,
			StoreName: r.Metadata.StoreName,
			Address:   r.Metadata.Address,
			Cashier:   r.Metadata.Cashier,
			Date:      r.Metadata.Date,
			Time:      r.Metadata.Time,
		},
		Mode:         string(mode),
		Participants: participants,
		Totals: Totals{
			Total:        t.Total.StringFixed(2),
			Assigned:     t.Assigned.StringFixed(2),
			Paid:         t.Paid.StringFixed(2),
			Remaining:    t.Remaining.StringFixed(2),
			Difference:   t.Difference.StringFixed(2),
			PendingCount: t.PendingCount,
			PaidCount:    t.PaidCount,
			Balance:      string(t.Balance),
		},
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// GetSessionID lets interceptors tag logs with the session a request targets.
func (r *GetSessionRequest) GetSessionID() string        { return r.SessionID }
func (r *GenerateRequest) GetSessionID() string          { return r.SessionID }
func (r *RenameParticipantRequest) GetSessionID() string { return r.SessionID }
func (r *SetAmountRequest) GetSessionID() string         { return r.SessionID }
func (r *ToggleItemRequest) GetSessionID() string        { return r.SessionID }
func (r *ToggleStatusRequest) GetSessionID() string      { return r.SessionID }
func (r *SwitchModeRequest) GetSessionID() string        { return r.SessionID }
func (r *ResetSessionRequest) GetSessionID() string      { return r.SessionID }
func (r *DiscardSessionRequest) GetSessionID() string    { return r.SessionID }

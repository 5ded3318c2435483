// Package ingest validates receipt-resolution responses and turns them into
// models.Receipt values the allocation engine can work with.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/money"
)

var ErrMalformedReceipt = errors.New("malformed receipt")

// MalformedReceiptError means the response did not describe a receipt.
// The scanned link should then be treated as a plain acknowledgement.
type MalformedReceiptError struct {
	Field string
	Err   error
}

func (e *MalformedReceiptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed receipt: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("malformed receipt: missing %s", e.Field)
}

func (e *MalformedReceiptError) Unwrap() error { return ErrMalformedReceipt }

// Text is a numeric-as-string field. Bare JSON numbers are accepted too.
type Text string

func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*t = Text(n.String())
	return nil
}

// Response is the receipt-resolution payload.
type Response struct {
	ID           Text       `json:"id"`
	Date         string     `json:"date"`
	Time         string     `json:"time"`
	CashierName  string     `json:"cashierName"`
	LocationName string     `json:"locationName"`
	Address      string     `json:"address"`
	Sum          Text       `json:"sum"`
	Products     []*Product `json:"products"`
}

// Product is one line of the payload.
type Product struct {
	ProductID    Text   `json:"productId"`
	ProductName  string `json:"productName"`
	ProductPrice Text   `json:"productPrice"`
	ProductCount Text   `json:"productCount"`
	ProductCost  Text   `json:"productCost"`
}

// Ingest decodes raw JSON and converts it with FromResponse.
func Ingest(raw []byte) (*models.Receipt, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &MalformedReceiptError{Field: "body", Err: err}
	}
	return FromResponse(resp)
}

// FromResponse validates that id, sum and products are present and
// normalises every numeric text field through money.ParseAmount.
func FromResponse(resp Response) (*models.Receipt, error) {
	if strings.TrimSpace(string(resp.ID)) == "" {
		return nil, &MalformedReceiptError{Field: "id"}
	}
	if strings.TrimSpace(string(resp.Sum)) == "" {
		return nil, &MalformedReceiptError{Field: "sum"}
	}
	if resp.Products == nil {
		return nil, &MalformedReceiptError{Field: "products"}
	}

	receipt := &models.Receipt{
		ID:    strings.TrimSpace(string(resp.ID)),
		Total: money.ParseAmount(string(resp.Sum)),
		Items: make([]models.LineItem, 0, len(resp.Products)),
		Metadata: models.ReceiptMetadata{
			StoreName: strings.TrimSpace(resp.LocationName),
			Address:   strings.TrimSpace(resp.Address),
			Cashier:   strings.TrimSpace(resp.CashierName),
			Date:      resp.Date,
			Time:      resp.Time,
		},
	}

	seen := make(map[string]bool, len(resp.Products))
	for i, p := range resp.Products {
		if p == nil {
			continue
		}
		id := strings.TrimSpace(string(p.ProductID))
		if id == "" || seen[id] {
			id = fallbackID(seen, i+1)
		}
		seen[id] = true

		receipt.Items = append(receipt.Items, models.LineItem{
			ID:        id,
			Name:      strings.TrimSpace(p.ProductName),
			UnitPrice: money.ParseAmount(string(p.ProductPrice)),
			Quantity:  money.ParseAmount(string(p.ProductCount)),
			LineTotal: money.ParseAmount(string(p.ProductCost)),
		})
	}

	return receipt, nil
}

// fallbackID returns item-{n}, suffixed until it collides with no id seen so far.
func fallbackID(seen map[string]bool, n int) string {
	id := fmt.Sprintf("item-%d", n)
	for k := 2; seen[id]; k++ {
		id = fmt.Sprintf("item-%d-%d", n, k)
	}
	return id
}

// Manual builds an item-less receipt from a typed total, for splitting a
// bill that was not scanned.
func Manual(total string) *models.Receipt {
	return &models.Receipt{
		ID:    uuid.NewString(),
		Total: money.ParseAmount(total),
		Items: []models.LineItem{},
	}
}

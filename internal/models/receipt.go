package models

import "github.com/shopspring/decimal"

// Receipt represents a receipt resolved from a scanned link.
type Receipt struct {
	// ID is the identifier assigned by the resolution endpoint.
	ID string

	// Total is the authoritative amount owed.
	Total decimal.Decimal

	// Items are the line entries in display order.
	Items []LineItem

	// Metadata is display-only information printed on the receipt.
	Metadata ReceiptMetadata
}

// LineItem represents a single position on a receipt.
type LineItem struct {
	// ID is stable for the lifetime of the receipt.
	ID string

	// Name is the product name as printed.
	Name string

	UnitPrice decimal.Decimal
	Quantity  decimal.Decimal

	// LineTotal is authoritative. It is not required to equal
	// UnitPrice × Quantity since source values arrive pre-rounded.
	LineTotal decimal.Decimal
}

// ReceiptMetadata holds the store and cashier details of a receipt.
type ReceiptMetadata struct {
	StoreName string
	Address   string
	Cashier   string
	Date      string
	Time      string
}

// Item returns the line item with the given id.
func (r *Receipt) Item(id string) (LineItem, bool) {
	for _, item := range r.Items {
		if item.ID == id {
			return item, true
		}
	}
	return LineItem{}, false
}

// Package models defines the core domain models for receiptsplit.
//
// # Models
//
//   - Receipt: a resolved receipt (total, line items, display metadata)
//   - LineItem: one position on the receipt
//   - Participant: one person paying part of the receipt
//   - Allocation: the participants and split mode applied to a receipt
//   - Session: a receipt plus its allocation while the user works on it
//
// Receipts are read-only once ingested. Allocations are mutated only through
// the allocation engine; everything here is plain data.
//
// Amounts are decimal.Decimal values. They are persisted and transported as
// decimal text so no floating point drift is ever introduced.
package models

// Package storagetest holds behaviour tests shared by storage.Store implementations.
package storagetest

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/storage"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Session returns an itemized session with two participants.
func Session() *models.Session {
	return &models.Session{
		Link: "https://check.example/q?x=1",
		Receipt: models.Receipt{
			ID:    "r-1",
			Total: d("1200.50"),
			Items: []models.LineItem{
				{ID: "101", Name: "Latte", UnitPrice: d("250.25"), Quantity: d("2"), LineTotal: d("500.50")},
				{ID: "102", Name: "Cake", UnitPrice: d("700"), Quantity: d("1"), LineTotal: d("700")},
			},
			Metadata: models.ReceiptMetadata{StoreName: "Coffee House", Date: "2024-03-01", Time: "12:30"},
		},
		Allocation: models.Allocation{
			Mode:      models.SplitModeItemized,
			CreatedAt: time.Date(2024, 3, 1, 12, 31, 0, 0, time.UTC),
			Participants: []models.Participant{
				{ID: "p1", Name: "Ann", Amount: d("1200.50"), SelectedItemIDs: []string{"102", "101"}, Reference: "ref-1", Status: models.PaymentPaid},
				{ID: "p2", Name: "Bob", Amount: d("0"), Reference: "ref-2", Status: models.PaymentPending},
			},
		},
	}
}

// Run exercises store against the storage.Store contract.
func Run(t *testing.T, store storage.Store) {
	ctx := context.Background()

	t.Run("CreateSession assigns id and timestamps", func(t *testing.T) {
		session := Session()
		if err := store.CreateSession(ctx, session); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		if session.ID == "" {
			t.Error("Expected session ID to be generated")
		}
		if session.CreatedAt.IsZero() || session.UpdatedAt.IsZero() {
			t.Error("Expected timestamps to be set")
		}
	})

	t.Run("GetSession round trips receipt and allocation", func(t *testing.T) {
		original := Session()
		if err := store.CreateSession(ctx, original); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}

		got, err := store.GetSession(ctx, original.ID)
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}

		if got.Link != original.Link || got.Receipt.ID != "r-1" || got.Receipt.Metadata != original.Receipt.Metadata {
			t.Errorf("session mismatch: got %+v", got)
		}
		if !got.Receipt.Total.Equal(original.Receipt.Total) {
			t.Errorf("Total = %s, want %s", got.Receipt.Total, original.Receipt.Total)
		}
		if len(got.Receipt.Items) != 2 || got.Receipt.Items[0].ID != "101" || !got.Receipt.Items[0].LineTotal.Equal(d("500.5")) {
			t.Errorf("items mismatch: %+v", got.Receipt.Items)
		}
		if got.Allocation.Mode != models.SplitModeItemized {
			t.Errorf("Mode = %s", got.Allocation.Mode)
		}
		if !got.Allocation.CreatedAt.Equal(original.Allocation.CreatedAt) {
			t.Errorf("allocation CreatedAt = %v, want %v", got.Allocation.CreatedAt, original.Allocation.CreatedAt)
		}

		ps := got.Allocation.Participants
		if len(ps) != 2 || ps[0].Name != "Ann" || ps[1].Name != "Bob" {
			t.Fatalf("participants mismatch: %+v", ps)
		}
		if !reflect.DeepEqual(ps[0].SelectedItemIDs, []string{"102", "101"}) {
			t.Errorf("selection order lost: %v", ps[0].SelectedItemIDs)
		}
		if len(ps[1].SelectedItemIDs) != 0 {
			t.Errorf("unexpected selection: %v", ps[1].SelectedItemIDs)
		}
		if ps[0].Status != models.PaymentPaid || ps[0].Reference != "ref-1" || !ps[0].Amount.Equal(d("1200.5")) {
			t.Errorf("participant fields mismatch: %+v", ps[0])
		}
	})

	t.Run("UpdateSession replaces allocation", func(t *testing.T) {
		session := Session()
		if err := store.CreateSession(ctx, session); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}

		session.Allocation = models.Allocation{
			Mode: models.SplitModeEqual,
			Participants: []models.Participant{
				{ID: "p9", Name: "Cid", Amount: d("1200.50"), Reference: "ref-9", Status: models.PaymentPending},
			},
		}
		if err := store.UpdateSession(ctx, session); err != nil {
			t.Fatalf("UpdateSession failed: %v", err)
		}

		got, err := store.GetSession(ctx, session.ID)
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if got.Allocation.Mode != models.SplitModeEqual || len(got.Allocation.Participants) != 1 {
			t.Fatalf("allocation not replaced: %+v", got.Allocation)
		}
		if got.Allocation.Participants[0].ID != "p9" || len(got.Receipt.Items) != 2 {
			t.Errorf("unexpected session: %+v", got)
		}
	})

	t.Run("Empty allocation", func(t *testing.T) {
		session := Session()
		session.Allocation = models.Allocation{}
		if err := store.CreateSession(ctx, session); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		got, err := store.GetSession(ctx, session.ID)
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if len(got.Allocation.Participants) != 0 || !got.Allocation.CreatedAt.IsZero() {
			t.Errorf("expected empty allocation, got %+v", got.Allocation)
		}
	})

	t.Run("DeleteSession", func(t *testing.T) {
		session := Session()
		if err := store.CreateSession(ctx, session); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		if err := store.DeleteSession(ctx, session.ID); err != nil {
			t.Fatalf("DeleteSession failed: %v", err)
		}
		if _, err := store.GetSession(ctx, session.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetSession after delete: %v, want ErrNotFound", err)
		}
	})

	t.Run("missing session", func(t *testing.T) {
		if _, err := store.GetSession(ctx, "nonexistent-id"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetSession: %v, want ErrNotFound", err)
		}
		if err := store.DeleteSession(ctx, "nonexistent-id"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("DeleteSession: %v, want ErrNotFound", err)
		}
		missing := Session()
		missing.ID = "nonexistent-id"
		if err := store.UpdateSession(ctx, missing); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("UpdateSession: %v, want ErrNotFound", err)
		}
	})
}

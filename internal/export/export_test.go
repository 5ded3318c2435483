package export

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/mmynk/receiptsplit/internal/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testReceipt() models.Receipt {
	return models.Receipt{
		ID:    "receipt-0123456789",
		Total: d("300"),
		Items: []models.LineItem{
			{ID: "1", Name: "Soup", UnitPrice: d("100"), Quantity: d("1"), LineTotal: d("100")},
			{ID: "2", Name: "Tea", UnitPrice: d("100"), Quantity: d("2"), LineTotal: d("200")},
		},
		Metadata: models.ReceiptMetadata{StoreName: "Cafe", Address: "Main St 1", Date: "2024-03-01", Time: "12:30"},
	}
}

func readBack(t *testing.T, receipt models.Receipt, alloc models.Allocation) *excelize.File {
	t.Helper()
	var buf bytes.Buffer
	if err := Write(&buf, receipt, alloc); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func rows(t *testing.T, f *excelize.File, sheet string) [][]string {
	t.Helper()
	out, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		t.Fatalf("GetRows(%s): %v", sheet, err)
	}
	return out
}

func TestWorkbook(t *testing.T) {
	tests := []struct {
		name         string
		alloc        models.Allocation
		validateFunc func(t *testing.T, f *excelize.File)
	}{
		{
			name: "equal split",
			alloc: models.Allocation{
				Mode: models.SplitModeEqual,
				Participants: []models.Participant{
					{ID: "a", Name: "Ann", Amount: d("150"), Reference: "ref-a", Status: models.PaymentPaid},
					{ID: "b", Name: "Bob", Amount: d("150"), Reference: "ref-b", Status: models.PaymentPending},
				},
			},
			validateFunc: func(t *testing.T, f *excelize.File) {
				want := []string{SheetReceipt, SheetItems, SheetParticipants}
				if got := f.GetSheetList(); !reflect.DeepEqual(got, want) {
					t.Errorf("sheets = %v, want %v", got, want)
				}

				summary := rows(t, f, SheetReceipt)
				if summary[1][1] != "Cafe" || summary[4][1] != "2024-03-01 12:30" {
					t.Errorf("unexpected receipt info: %v", summary)
				}
				if summary[6][1] != "Equal shares" {
					t.Errorf("mode = %q", summary[6][1])
				}
				if summary[9][1] != "150" || summary[10][1] != "150" {
					t.Errorf("paid/remaining = %v/%v, want 150/150", summary[9], summary[10])
				}

				people := rows(t, f, SheetParticipants)
				if len(people[0]) != 5 {
					t.Errorf("header = %v, want 5 columns", people[0])
				}
				if !reflect.DeepEqual(people[1], []string{"1", "Ann", "150", "Paid", "ref-a"}) {
					t.Errorf("row 1 = %v", people[1])
				}
				if people[2][3] != "Not paid" {
					t.Errorf("status = %q", people[2][3])
				}
			},
		},
		{
			name: "itemized split",
			alloc: models.Allocation{
				Mode: models.SplitModeItemized,
				Participants: []models.Participant{
					{ID: "a", Name: "Ann", Amount: d("300"), SelectedItemIDs: []string{"2", "1"}},
					{ID: "b", Name: "Bob", Amount: d("0")},
					{ID: "c", Name: "Cid", Amount: d("200"), SelectedItemIDs: []string{"2"}},
				},
			},
			validateFunc: func(t *testing.T, f *excelize.File) {
				want := []string{SheetReceipt, SheetItems, SheetParticipants, "Participant 1", "Participant 3"}
				if got := f.GetSheetList(); !reflect.DeepEqual(got, want) {
					t.Errorf("sheets = %v, want %v", got, want)
				}

				people := rows(t, f, SheetParticipants)
				if people[0][5] != "Selected items" {
					t.Errorf("header = %v", people[0])
				}
				if people[1][5] != "Soup, Tea" {
					t.Errorf("selected = %q, want receipt order", people[1][5])
				}
				if people[2][5] != noItems {
					t.Errorf("selected = %q, want %q", people[2][5], noItems)
				}

				detail := rows(t, f, "Participant 1")
				if detail[0][0] != "Participant: Ann" {
					t.Errorf("title = %q", detail[0][0])
				}
				last := detail[len(detail)-1]
				if last[0] != "Total" || last[3] != "300" {
					t.Errorf("subtotal row = %v", last)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validateFunc(t, readBack(t, testReceipt(), tt.alloc))
		})
	}
}

func TestItemsSheet(t *testing.T) {
	f := readBack(t, testReceipt(), models.Allocation{
		Mode:         models.SplitModeEqual,
		Participants: []models.Participant{{ID: "a", Name: "Ann", Amount: d("300")}},
	})

	items := rows(t, f, SheetItems)
	if !reflect.DeepEqual(items[2], []string{"2", "Tea", "2", "100", "200"}) {
		t.Errorf("item row = %v", items[2])
	}
	last := items[len(items)-1]
	if last[0] != "Total" || last[4] != "300" {
		t.Errorf("total row = %v", last)
	}
}

func TestWorkbookNothingToExport(t *testing.T) {
	_, err := Workbook(testReceipt(), models.Allocation{Mode: models.SplitModeEqual})
	if !errors.Is(err, ErrNothingToExport) {
		t.Fatalf("expected ErrNothingToExport, got %v", err)
	}
}

func TestFileName(t *testing.T) {
	now := time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC)
	tests := []struct {
		id   string
		want string
	}{
		{"receipt-0123456789", "Receipt_23456789_20240301.xlsx"},
		{"short", "Receipt_short_20240301.xlsx"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := FileName(tt.id, now); got != tt.want {
				t.Errorf("FileName(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

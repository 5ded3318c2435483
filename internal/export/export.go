// Package export writes a split as an .xlsx workbook.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/mmynk/receiptsplit/internal/allocation"
	"github.com/mmynk/receiptsplit/internal/models"
)

const (
	SheetReceipt      = "Receipt"
	SheetItems        = "Items"
	SheetParticipants = "Participants"

	amountFormat = "#,##0.00"
	noItems      = "No items selected"
)

var ErrNothingToExport = errors.New("no participants to export")

// FileName returns Receipt_{last 8 chars of id}_{YYYYMMDD}.xlsx.
func FileName(receiptID string, now time.Time) string {
	suffix := receiptID
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	return fmt.Sprintf("Receipt_%s_%s.xlsx", suffix, now.UTC().Format("20060102"))
}

// Workbook builds the workbook for an allocation. The caller closes the file.
func Workbook(receipt models.Receipt, alloc models.Allocation) (*excelize.File, error) {
	if len(alloc.Participants) == 0 {
		return nil, ErrNothingToExport
	}

	f := excelize.NewFile()
	amountStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: stringPtr(amountFormat)})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create amount style: %w", err)
	}
	b := &builder{f: f, amountStyle: amountStyle}

	if err := f.SetSheetName("Sheet1", SheetReceipt); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rename default sheet: %w", err)
	}

	steps := []func() error{
		func() error { return b.receiptSheet(receipt, alloc) },
		func() error { return b.itemsSheet(receipt) },
		func() error { return b.participantsSheet(receipt, alloc) },
	}
	if alloc.Mode == models.SplitModeItemized {
		for i, p := range alloc.Participants {
			steps = append(steps, func() error { return b.participantSheet(i+1, receipt, p) })
		}
	}

	for _, step := range steps {
		if err := step(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// Write builds the workbook and writes it to w.
func Write(w io.Writer, receipt models.Receipt, alloc models.Allocation) error {
	f, err := Workbook(receipt, alloc)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

type builder struct {
	f           *excelize.File
	amountStyle int
}

func (b *builder) receiptSheet(receipt models.Receipt, alloc models.Allocation) error {
	totals := allocation.ComputeTotals(receipt.Total, alloc.Participants)
	meta := receipt.Metadata

	rows := [][]interface{}{
		{"Receipt"},
		{"Store", meta.StoreName},
		{"Address", meta.Address},
		{"Cashier", meta.Cashier},
		{"Date", strings.TrimSpace(meta.Date + " " + meta.Time)},
		{"Total", receipt.Total},
		{"Split mode", modeLabel(alloc.Mode)},
		{},
		{"Assigned", totals.Assigned},
		{"Paid", totals.Paid},
		{"Remaining", totals.Remaining},
	}
	return b.writeRows(SheetReceipt, rows)
}

func (b *builder) itemsSheet(receipt models.Receipt) error {
	if _, err := b.f.NewSheet(SheetItems); err != nil {
		return fmt.Errorf("failed to create items sheet: %w", err)
	}

	rows := [][]interface{}{{"#", "Item", "Quantity", "Unit price", "Total"}}
	for i, item := range receipt.Items {
		rows = append(rows, []interface{}{i + 1, item.Name, item.Quantity, item.UnitPrice, item.LineTotal})
	}
	rows = append(rows, []interface{}{}, []interface{}{"Total", "", "", "", receipt.Total})
	return b.writeRows(SheetItems, rows)
}

func (b *builder) participantsSheet(receipt models.Receipt, alloc models.Allocation) error {
	if _, err := b.f.NewSheet(SheetParticipants); err != nil {
		return fmt.Errorf("failed to create participants sheet: %w", err)
	}

	itemized := alloc.Mode == models.SplitModeItemized
	header := []interface{}{"#", "Participant", "Amount", "Status", "Payment link"}
	if itemized {
		header = append(header, "Selected items")
	}

	rows := [][]interface{}{header}
	for i, p := range alloc.Participants {
		row := []interface{}{i + 1, p.Name, p.Amount, statusLabel(p.Status), p.Reference}
		if itemized {
			row = append(row, selectedNames(receipt, p))
		}
		rows = append(rows, row)
	}
	return b.writeRows(SheetParticipants, rows)
}

// participantSheet writes "Participant N"; participants without items get no sheet.
func (b *builder) participantSheet(n int, receipt models.Receipt, p models.Participant) error {
	items := allocation.SelectedItems(receipt, p)
	if len(items) == 0 {
		return nil
	}

	name := fmt.Sprintf("Participant %d", n)
	if _, err := b.f.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet %q: %w", name, err)
	}

	rows := [][]interface{}{
		{"Participant: " + p.Name},
		{"Item", "Quantity", "Unit price", "Total"},
	}
	for _, item := range items {
		rows = append(rows, []interface{}{item.Name, item.Quantity, item.UnitPrice, item.LineTotal})
	}
	rows = append(rows, []interface{}{}, []interface{}{"Total", "", "", p.Amount})
	return b.writeRows(name, rows)
}

// writeRows writes rows starting at A1. Decimal values become numeric cells
// with the amount format.
func (b *builder) writeRows(sheet string, rows [][]interface{}) error {
	for r, row := range rows {
		if len(row) == 0 {
			continue
		}
		values := make([]interface{}, len(row))
		for c, v := range row {
			d, ok := v.(decimal.Decimal)
			if !ok {
				values[c] = v
				continue
			}
			values[c] = d.InexactFloat64()

			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := b.f.SetCellStyle(sheet, cell, cell, b.amountStyle); err != nil {
				return fmt.Errorf("failed to style %s!%s: %w", sheet, cell, err)
			}
		}

		start, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return err
		}
		if err := b.f.SetSheetRow(sheet, start, &values); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, r+1, err)
		}
	}
	return nil
}

func selectedNames(receipt models.Receipt, p models.Participant) string {
	items := allocation.SelectedItems(receipt, p)
	if len(items) == 0 {
		return noItems
	}
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name
	}
	return strings.Join(names, ", ")
}

func modeLabel(mode models.SplitMode) string {
	if mode == models.SplitModeItemized {
		return "By items"
	}
	return "Equal shares"
}

func statusLabel(status models.PaymentStatus) string {
	if status == models.PaymentPaid {
		return "Paid"
	}
	return "Not paid"
}

func stringPtr(s string) *string { return &s }

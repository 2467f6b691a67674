// Package report renders portfolio exports. The only format today is XLSX,
// which is what accountants actually open.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"cobrapyme/morosidad/internal/aging"
	"cobrapyme/morosidad/internal/currency"
	"cobrapyme/morosidad/internal/models"
	"cobrapyme/morosidad/internal/utils"
)

const sheetName = "Cartera"

var headers = []string{
	"Factura", "Cliente", "RUT", "Email", "Moneda", "Monto",
	"Emisión", "Vencimiento", "Estado", "Días Vencidos",
}

// WritePortfolioXLSX writes one row per invoice, resolving customer names
// through the given lookup. Buckets are recomputed against today so the
// export matches what the dashboard shows.
func WritePortfolioXLSX(w io.Writer, invoices []models.Invoice, customers map[utils.SixID]models.Customer, today time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	for col, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("failed to write header %s: %w", header, err)
		}
	}

	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		endCell, _ := excelize.CoordinatesToCellName(len(headers), 1)
		_ = f.SetCellStyle(sheetName, "A1", endCell, boldStyle)
	}

	for i, invoice := range invoices {
		rowNum := i + 2
		customer := customers[invoice.CustomerID]

		status := statusLabel(&invoice, today)
		values := []interface{}{
			invoice.Number,
			customer.Name,
			customer.RUT,
			customer.Email,
			invoice.Currency,
			currency.Format(invoice.Outstanding(), invoice.Currency, false),
			invoice.IssueDate.Format("02-01-2006"),
			invoice.DueDate.Format("02-01-2006"),
			status,
			invoice.DaysOverdue(today),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, rowNum)
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("failed to write row %d: %w", rowNum, err)
			}
		}
	}

	if err := f.SetColWidth(sheetName, "A", "J", 16); err != nil {
		return fmt.Errorf("failed to set column widths: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func statusLabel(invoice *models.Invoice, today time.Time) string {
	switch invoice.Status {
	case models.InvoiceStatusPaid:
		return "Pagada"
	case models.InvoiceStatusVoid:
		return "Anulada"
	}
	bucket := aging.Classify(today, invoice.DueDate, invoice.Status)
	if bucket == nil {
		return "Pendiente"
	}
	switch *bucket {
	case models.BucketCurrent:
		return "Vigente"
	case models.BucketDueSoon:
		return "Por vencer"
	case models.BucketOverdue:
		return "Vencida"
	case models.BucketDelinquent:
		return "Morosa"
	case models.BucketUncollectible:
		return "Incobrable"
	}
	return "Pendiente"
}

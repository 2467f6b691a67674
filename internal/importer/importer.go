// Package importer parses third-party accounting export files (SII CSV
// registries and DTE XML envelopes) into reconciliation candidates. It is
// the pure half of the two-phase import: everything here works on in-memory
// data and never touches the store. Duplicate flagging and the commit are
// the importing service's job.
package importer

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"cobrapyme/morosidad/internal/models"
)

// Row is one reconciliation candidate produced by parsing an import file.
// After netting, a row is either still pending or fully paid; it is matched
// against existing invoices by (Number, owner).
type Row struct {
	Number          string               `json:"number"`
	RUT             string               `json:"rut"`
	CustomerName    string               `json:"customer_name"`
	IssueDate       time.Time            `json:"issue_date"`
	DueDate         time.Time            `json:"due_date"`
	PaymentDate     *time.Time           `json:"payment_date,omitempty"`
	Net             float64              `json:"net"`
	Tax             float64              `json:"tax"`
	Exempt          float64              `json:"exempt"`
	Total           float64              `json:"total"`
	AmountPaid      float64              `json:"amount_paid"`
	AmountRemaining float64              `json:"amount_remaining"`
	Status          models.InvoiceStatus `json:"status"`
	DTEType         int                  `json:"dte_type"`
	SourceRow       int                  `json:"source_row"`
	// Exists reports whether an invoice with this number already exists for
	// the importing owner. Informational in the preview; decides
	// create-vs-update on commit.
	Exists bool `json:"exists"`
}

// RowError is a validation failure scoped to a single row. Row errors never
// abort the batch; the row is excluded and parsing continues.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("fila %d, campo %s: %s", e.Row, e.Field, e.Message)
	}
	return fmt.Sprintf("fila %d: %s", e.Row, e.Message)
}

// Totals summarizes a preview for display before commit.
type Totals struct {
	Rows     int     `json:"rows"`
	Amount   float64 `json:"amount"`
	New      int     `json:"new"`
	Existing int     `json:"existing"`
}

// Preview is the parsed-and-netted candidate list handed back to the caller
// between the preview and commit phases.
type Preview struct {
	Rows   []Row      `json:"rows"`
	Errors []RowError `json:"errors"`
	Totals Totals     `json:"totals"`
}

// FormatError means the file as a whole is unusable (unknown extension,
// malformed XML). Unlike row errors it aborts the import immediately.
type FormatError struct {
	msg string
}

func (e *FormatError) Error() string { return e.msg }

func formatErrorf(format string, args ...interface{}) error {
	return &FormatError{msg: fmt.Sprintf(format, args...)}
}

// Parse reads an uploaded file into a preview. The filename extension
// selects the parser; defaultDueDays supplies the due date fallback
// (issue date + N days) for rows that carry none.
func Parse(filename string, r io.Reader, defaultDueDays int) (*Preview, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return parseCSV(data, defaultDueDays)
	case ".xml":
		return parseXML(data, defaultDueDays)
	default:
		return nil, formatErrorf("formato de archivo no soportado: %s (se acepta .csv o .xml)", filepath.Ext(filename))
	}
}

// recalcTotals refreshes the preview totals from its rows.
func (p *Preview) recalcTotals() {
	p.Totals = Totals{}
	for _, row := range p.Rows {
		p.Totals.Rows++
		p.Totals.Amount += row.Total
		if row.Exists {
			p.Totals.Existing++
		} else {
			p.Totals.New++
		}
	}
}

// MarkExisting sets the exists flag on every row whose number appears in the
// given set and recomputes the totals.
func (p *Preview) MarkExisting(existing map[string]bool) {
	for i := range p.Rows {
		p.Rows[i].Exists = existing[p.Rows[i].Number]
	}
	p.recalcTotals()
}

package importer

import (
	"strconv"
	"strings"
	"time"

	"cobrapyme/morosidad/internal/models"
)

// Chilean exports write dates day-first; ERP exports tend to be ISO. The
// day-first layouts go first so "03-04-2026" reads as 3 April.
var dateLayouts = []string{
	"2-1-2006",
	"2/1/2006",
	"2006-1-2",
	"2006/1/2",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseAmount handles the separator soup found in real exports: "1.234.567",
// "1.234,50", "1,234.50", "840.336", "1234.5" and plain integers. When both
// separators appear, whichever occurs last is the decimal mark. A repeated
// separator always groups thousands, and so does a lone separator followed by
// exactly three digits, since Chilean amounts carry no decimals.
func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "$ ")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 || isThousandsTail(s, lastComma) {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 || isThousandsTail(s, lastDot) {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isThousandsTail(s string, sep int) bool {
	return len(s)-sep-1 == 3
}

// netCreditNotes applies credit notes to their referenced invoices in place.
// A credit note that drives the remaining amount to zero or below marks the
// invoice paid; one that references an unknown number becomes a row error.
func netCreditNotes(rows []Row, credits []creditNote, errors []RowError) ([]Row, []RowError) {
	byNumber := make(map[string]int, len(rows))
	for i, row := range rows {
		byNumber[row.Number] = i
	}

	for _, cn := range credits {
		idx, ok := byNumber[cn.Ref]
		if !ok {
			errors = append(errors, RowError{
				Row:     cn.SourceRow,
				Field:   "referencia",
				Message: "nota de crédito referencia un folio desconocido: " + cn.Ref,
			})
			continue
		}
		row := &rows[idx]
		row.AmountRemaining -= cn.Amount
		if row.AmountRemaining <= 0 {
			row.AmountRemaining = 0
			row.AmountPaid = row.Total
			row.Status = models.InvoiceStatusPaid
		} else {
			row.AmountPaid = row.Total - row.AmountRemaining
		}
	}
	return rows, errors
}

// creditNote is a parsed credit note held aside for the netting pass.
type creditNote struct {
	Ref       string
	Amount    float64
	SourceRow int
}

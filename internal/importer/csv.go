package importer

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"cobrapyme/morosidad/internal/models"
	"cobrapyme/morosidad/internal/rut"
)

// Header aliases per logical column, normalized (lowercase, accents
// stripped). Registro de Ventas downloads, contabilidad exports and
// hand-maintained spreadsheets all name their columns differently; the first
// alias present in the header wins, and per row the first matched column
// with a non-empty value wins.
var csvAliases = map[string][]string{
	"number":  {"folio", "numero documento", "numero factura", "nro documento", "nro", "numero"},
	"rut":     {"rut cliente", "rut receptor", "rut deudor", "rut"},
	"name":    {"razon social", "razon social receptor", "nombre cliente", "cliente", "nombre"},
	"dtetype": {"tipo doc", "tipo dte", "tipo documento"},
	"issue":   {"fecha docto", "fecha emision", "fecha documento", "emision"},
	"due":     {"fecha vencimiento", "fecha venc", "vencimiento"},
	"net":     {"monto neto", "neto"},
	"tax":     {"monto iva", "iva", "iva recuperable"},
	"exempt":  {"monto exento", "exento"},
	"total":   {"monto total", "total"},
}

func parseCSV(data []byte, defaultDueDays int) (*Preview, error) {
	text, err := decodeCSVBytes(data)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = detectDelimiter(text)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, formatErrorf("no se pudo leer el CSV: %v", err)
	}
	if len(records) < 2 {
		return nil, formatErrorf("el archivo no contiene filas de datos")
	}

	columns := resolveColumns(records[0])
	if len(columns["number"]) == 0 || len(columns["rut"]) == 0 {
		return nil, formatErrorf("no se reconocieron las columnas del archivo (se requiere al menos folio y RUT)")
	}

	preview := &Preview{Rows: []Row{}, Errors: []RowError{}}
	for i, record := range records[1:] {
		rowNum := i + 2 // 1-based, counting the header
		if isBlankRecord(record) {
			continue
		}
		row, errs := parseCSVRecord(record, rowNum, columns, defaultDueDays)
		if len(errs) > 0 {
			preview.Errors = append(preview.Errors, errs...)
			continue
		}
		// Debit and credit notes in sales registries carry no reference
		// column, so there is nothing to net them against. Only invoices
		// become candidates.
		if row.DTEType == models.DTETypeDebitNote || row.DTEType == models.DTETypeCreditNote {
			continue
		}
		preview.Rows = append(preview.Rows, row)
	}

	preview.recalcTotals()
	return preview, nil
}

func parseCSVRecord(record []string, rowNum int, columns map[string][]int, defaultDueDays int) (Row, []RowError) {
	pick := func(field string) string {
		for _, idx := range columns[field] {
			if idx < len(record) {
				if v := strings.TrimSpace(record[idx]); v != "" {
					return v
				}
			}
		}
		return ""
	}

	var errs []RowError
	fail := func(field, msg string) {
		errs = append(errs, RowError{Row: rowNum, Field: field, Message: msg})
	}

	row := Row{SourceRow: rowNum, Status: models.InvoiceStatusPending}

	row.Number = strings.TrimSpace(pick("number"))
	if row.Number == "" {
		fail("folio", "folio vacío")
	}

	rawRUT := pick("rut")
	if rawRUT == "" {
		fail("rut", "RUT vacío")
	} else {
		normalized, err := rut.Normalize(rawRUT)
		if err != nil {
			fail("rut", err.Error())
		} else {
			row.RUT = normalized
		}
	}

	row.CustomerName = pick("name")
	if row.CustomerName == "" {
		fail("razon social", "razón social vacía")
	}

	if v := pick("dtetype"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			row.DTEType = n
		}
	}
	if row.DTEType == 0 {
		row.DTEType = models.DTETypeInvoice
	}

	if v := pick("issue"); v == "" {
		fail("fecha emision", "fecha de emisión vacía")
	} else if t, ok := parseDate(v); !ok {
		fail("fecha emision", "fecha de emisión inválida: "+v)
	} else {
		row.IssueDate = t
	}

	if v := pick("due"); v != "" {
		if t, ok := parseDate(v); ok {
			row.DueDate = t
		} else {
			fail("fecha vencimiento", "fecha de vencimiento inválida: "+v)
		}
	} else if !row.IssueDate.IsZero() {
		row.DueDate = row.IssueDate.AddDate(0, 0, defaultDueDays)
	}

	amount := func(field string) float64 {
		v := pick(field)
		if v == "" {
			return 0
		}
		n, ok := parseAmount(v)
		if !ok {
			fail(field, "monto inválido: "+v)
		}
		return n
	}
	row.Net = amount("net")
	row.Tax = amount("tax")
	row.Exempt = amount("exempt")
	row.Total = amount("total")
	if row.Total == 0 {
		row.Total = row.Net + row.Tax + row.Exempt
	}
	if row.Total == 0 {
		fail("monto total", "monto total vacío")
	}

	row.AmountRemaining = row.Total

	if len(errs) > 0 {
		return Row{}, errs
	}
	return row, nil
}

// resolveColumns maps each logical field to the header indexes that can
// supply it, in alias priority order.
func resolveColumns(header []string) map[string][]int {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = normalizeHeader(h)
	}
	columns := make(map[string][]int, len(csvAliases))
	for field, aliases := range csvAliases {
		for _, alias := range aliases {
			for i, h := range normalized {
				if h == alias {
					columns[field] = append(columns[field], i)
				}
			}
		}
	}
	return columns
}

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\uFEFF")
	if folded, _, err := transform.String(stripAccents, h); err == nil {
		h = folded
	}
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Join(strings.Fields(h), " ")
}

// decodeCSVBytes strips a UTF-8 BOM and falls back to Latin-1 when the bytes
// are not valid UTF-8, which is what SII downloads produced on Windows look
// like.
func decodeCSVBytes(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(data) {
		return string(data), nil
	}
	decoded, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), data)
	if err != nil {
		return "", formatErrorf("no se pudo decodificar el archivo: %v", err)
	}
	return string(decoded), nil
}

// detectDelimiter picks semicolon over comma only when the first line uses it
// strictly more often. Chilean spreadsheets export with ';' because ',' is
// the decimal mark.
func detectDelimiter(text string) rune {
	line := text
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		line = text[:idx]
	}
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';'
	}
	return ','
}

func isBlankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

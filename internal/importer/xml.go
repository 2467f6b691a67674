package importer

import (
	"encoding/xml"
	"strconv"
	"strings"

	"cobrapyme/morosidad/internal/models"
	"cobrapyme/morosidad/internal/rut"
)

// The subset of the SII EnvioDTE schema the import cares about. Field names
// follow the schema, not Go convention, so they map directly onto the XML.
type envioDTE struct {
	XMLName xml.Name `xml:"EnvioDTE"`
	SetDTE  struct {
		DTE []dteDocument `xml:"DTE"`
	} `xml:"SetDTE"`
}

type dteDocument struct {
	Documento dteDocumento `xml:"Documento"`
}

type dteDocumento struct {
	Encabezado struct {
		IdDoc struct {
			TipoDTE string `xml:"TipoDTE"`
			Folio   string `xml:"Folio"`
			FchEmis string `xml:"FchEmis"`
			FchVenc string `xml:"FchVenc"`
		} `xml:"IdDoc"`
		Receptor struct {
			RUTRecep    string `xml:"RUTRecep"`
			RznSocRecep string `xml:"RznSocRecep"`
		} `xml:"Receptor"`
		Totales struct {
			MntNeto  string `xml:"MntNeto"`
			IVA      string `xml:"IVA"`
			MntExe   string `xml:"MntExe"`
			MntTotal string `xml:"MntTotal"`
		} `xml:"Totales"`
	} `xml:"Encabezado"`
	Referencia []struct {
		TpoDocRef string `xml:"TpoDocRef"`
		FolioRef  string `xml:"FolioRef"`
	} `xml:"Referencia"`
}

func parseXML(data []byte, defaultDueDays int) (*Preview, error) {
	var envelope envioDTE
	if err := xml.Unmarshal(data, &envelope); err != nil {
		return nil, formatErrorf("XML inválido: %v", err)
	}
	if len(envelope.SetDTE.DTE) == 0 {
		return nil, formatErrorf("el sobre no contiene documentos DTE")
	}

	preview := &Preview{Rows: []Row{}, Errors: []RowError{}}
	var credits []creditNote

	for i, dte := range envelope.SetDTE.DTE {
		rowNum := i + 1
		doc := dte.Documento

		dteType, _ := strconv.Atoi(strings.TrimSpace(doc.Encabezado.IdDoc.TipoDTE))
		switch dteType {
		case models.DTETypeDebitNote:
			continue
		case models.DTETypeCreditNote:
			cn, errs := parseCreditNote(doc, rowNum)
			if len(errs) > 0 {
				preview.Errors = append(preview.Errors, errs...)
				continue
			}
			credits = append(credits, cn)
			continue
		}

		row, errs := parseDTERow(doc, rowNum, dteType, defaultDueDays)
		if len(errs) > 0 {
			preview.Errors = append(preview.Errors, errs...)
			continue
		}
		preview.Rows = append(preview.Rows, row)
	}

	preview.Rows, preview.Errors = netCreditNotes(preview.Rows, credits, preview.Errors)
	preview.recalcTotals()
	return preview, nil
}

func parseDTERow(doc dteDocumento, rowNum, dteType, defaultDueDays int) (Row, []RowError) {
	var errs []RowError
	fail := func(field, msg string) {
		errs = append(errs, RowError{Row: rowNum, Field: field, Message: msg})
	}

	row := Row{
		SourceRow: rowNum,
		Status:    models.InvoiceStatusPending,
		DTEType:   dteType,
	}
	if row.DTEType == 0 {
		row.DTEType = models.DTETypeInvoice
	}

	head := doc.Encabezado
	row.Number = strings.TrimSpace(head.IdDoc.Folio)
	if row.Number == "" {
		fail("Folio", "folio vacío")
	}

	if raw := strings.TrimSpace(head.Receptor.RUTRecep); raw == "" {
		fail("RUTRecep", "RUT del receptor vacío")
	} else if normalized, err := rut.Normalize(raw); err != nil {
		fail("RUTRecep", err.Error())
	} else {
		row.RUT = normalized
	}

	row.CustomerName = strings.TrimSpace(head.Receptor.RznSocRecep)
	if row.CustomerName == "" {
		fail("RznSocRecep", "razón social del receptor vacía")
	}

	if v := strings.TrimSpace(head.IdDoc.FchEmis); v == "" {
		fail("FchEmis", "fecha de emisión vacía")
	} else if t, ok := parseDate(v); !ok {
		fail("FchEmis", "fecha de emisión inválida: "+v)
	} else {
		row.IssueDate = t
	}

	if v := strings.TrimSpace(head.IdDoc.FchVenc); v != "" {
		if t, ok := parseDate(v); ok {
			row.DueDate = t
		} else {
			fail("FchVenc", "fecha de vencimiento inválida: "+v)
		}
	} else if !row.IssueDate.IsZero() {
		row.DueDate = row.IssueDate.AddDate(0, 0, defaultDueDays)
	}

	amount := func(field, raw string) float64 {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return 0
		}
		n, ok := parseAmount(raw)
		if !ok {
			fail(field, "monto inválido: "+raw)
		}
		return n
	}
	row.Net = amount("MntNeto", head.Totales.MntNeto)
	row.Tax = amount("IVA", head.Totales.IVA)
	row.Exempt = amount("MntExe", head.Totales.MntExe)
	row.Total = amount("MntTotal", head.Totales.MntTotal)
	if row.Total == 0 {
		row.Total = row.Net + row.Tax + row.Exempt
	}
	if row.Total == 0 {
		fail("MntTotal", "monto total vacío")
	}

	row.AmountRemaining = row.Total

	if len(errs) > 0 {
		return Row{}, errs
	}
	return row, nil
}

func parseCreditNote(doc dteDocumento, rowNum int) (creditNote, []RowError) {
	cn := creditNote{SourceRow: rowNum}

	amount := strings.TrimSpace(doc.Encabezado.Totales.MntTotal)
	n, ok := parseAmount(amount)
	if !ok || n == 0 {
		return cn, []RowError{{Row: rowNum, Field: "MntTotal", Message: "nota de crédito sin monto"}}
	}
	cn.Amount = n

	for _, ref := range doc.Referencia {
		if folio := strings.TrimSpace(ref.FolioRef); folio != "" {
			cn.Ref = folio
			break
		}
	}
	if cn.Ref == "" {
		return cn, []RowError{{Row: rowNum, Field: "Referencia", Message: "nota de crédito sin folio de referencia"}}
	}
	return cn, nil
}

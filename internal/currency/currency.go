// Package currency formats and parses monetary amounts according to a fixed
// table of supported currencies. Both directions are total: formatting bad
// input yields the "N/A" sentinel and parsing bad input yields zero, because
// user-facing display must never hard-fail on a single malformed amount.
package currency

import (
	"sort"
	"strconv"
	"strings"
)

// Info describes the formatting conventions of one supported currency.
type Info struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	ThousandsSep string `json:"thousands_sep"`
	DecimalSep   string `json:"decimal_sep"`
	Decimals     int    `json:"decimals"`
	SymbolBefore bool   `json:"symbol_before"`
}

// NotAvailable is returned when an amount cannot be formatted.
const NotAvailable = "N/A"

// DefaultCode is the domestic currency, used when an unknown code is given.
const DefaultCode = "CLP"

var table = map[string]Info{
	"CLP": {Code: "CLP", Name: "Peso Chileno", Symbol: "$", ThousandsSep: ".", DecimalSep: ",", Decimals: 0, SymbolBefore: true},
	"USD": {Code: "USD", Name: "Dólar Estadounidense", Symbol: "$", ThousandsSep: ",", DecimalSep: ".", Decimals: 2, SymbolBefore: true},
	"EUR": {Code: "EUR", Name: "Euro", Symbol: "€", ThousandsSep: ".", DecimalSep: ",", Decimals: 2, SymbolBefore: true},
	"GBP": {Code: "GBP", Name: "Libra Esterlina", Symbol: "£", ThousandsSep: ",", DecimalSep: ".", Decimals: 2, SymbolBefore: true},
	"ARS": {Code: "ARS", Name: "Peso Argentino", Symbol: "$", ThousandsSep: ".", DecimalSep: ",", Decimals: 2, SymbolBefore: true},
	"MXN": {Code: "MXN", Name: "Peso Mexicano", Symbol: "$", ThousandsSep: ",", DecimalSep: ".", Decimals: 2, SymbolBefore: true},
	"COP": {Code: "COP", Name: "Peso Colombiano", Symbol: "$", ThousandsSep: ".", DecimalSep: ",", Decimals: 0, SymbolBefore: true},
	"PEN": {Code: "PEN", Name: "Sol Peruano", Symbol: "S/", ThousandsSep: ",", DecimalSep: ".", Decimals: 2, SymbolBefore: true},
	"BRL": {Code: "BRL", Name: "Real Brasileño", Symbol: "R$", ThousandsSep: ".", DecimalSep: ",", Decimals: 2, SymbolBefore: true},
}

// symbolsByLength holds all known symbols, longest first, so that stripping
// "R$" never leaves a stray "R" behind by matching "$" first.
var symbolsByLength []string

func init() {
	seen := map[string]bool{}
	for _, info := range table {
		if !seen[info.Symbol] {
			seen[info.Symbol] = true
			symbolsByLength = append(symbolsByLength, info.Symbol)
		}
	}
	sort.Slice(symbolsByLength, func(i, j int) bool {
		return len(symbolsByLength[i]) > len(symbolsByLength[j])
	})
}

// Get returns the configuration for a currency code, falling back to the
// domestic currency for unknown codes.
func Get(code string) Info {
	if info, ok := table[strings.ToUpper(code)]; ok {
		return info
	}
	return table[DefaultCode]
}

// Codes returns the supported currencies sorted by code, for populating
// selection UIs. The table is static; callers may not modify it at runtime.
func Codes() []Info {
	infos := make([]Info, 0, len(table))
	for _, info := range table {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Code < infos[j].Code })
	return infos
}

// Format renders an amount according to the currency's conventions:
//
//	Format(1500000, "CLP", false) == "$1.500.000"
//	Format(1500.50, "USD", false) == "$1,500.50"
//	Format(1500, "EUR", true)     == "EUR €1.500,00"
func Format(amount float64, code string, includeCode bool) string {
	info := Get(code)

	s := strconv.FormatFloat(amount, 'f', info.Decimals, 64)
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart := s
	decPart := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart = s[:idx]
		decPart = s[idx+1:]
	}

	// Group the integer part into 3-digit chunks from the right.
	var groups []string
	for len(intPart) > 3 {
		groups = append([]string{intPart[len(intPart)-3:]}, groups...)
		intPart = intPart[:len(intPart)-3]
	}
	if intPart != "" {
		groups = append([]string{intPart}, groups...)
	}
	formatted := strings.Join(groups, info.ThousandsSep)

	if info.Decimals > 0 {
		if len(decPart) < info.Decimals {
			decPart = decPart + strings.Repeat("0", info.Decimals-len(decPart))
		}
		formatted = formatted + info.DecimalSep + decPart
	}

	if info.SymbolBefore {
		formatted = info.Symbol + formatted
	} else {
		formatted = formatted + info.Symbol
	}
	if negative {
		formatted = "-" + formatted
	}
	if includeCode {
		formatted = strings.ToUpper(code) + " " + formatted
	}
	return formatted
}

// FormatText is Format for amounts that arrive as text (import previews,
// spreadsheet cells). Non-numeric input yields the "N/A" sentinel.
func FormatText(amount string, code string, includeCode bool) string {
	cleaned := strings.TrimSpace(amount)
	if cleaned == "" {
		return NotAvailable
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return NotAvailable
	}
	return Format(value, code, includeCode)
}

// Parse is the left inverse of Format: it strips all known symbols and codes,
// removes the currency's thousands separator, normalizes its decimal
// separator and parses the rest. Unparseable input yields zero, not an
// error; callers that need failure signaling must pre-validate.
//
// Round-trip law: for any amount representable at the currency's decimal
// precision, Parse(Format(x, code, anyFlag), code) == x.
func Parse(s string, code string) float64 {
	if s == "" {
		return 0
	}
	info := Get(code)

	cleaned := s
	for _, symbol := range symbolsByLength {
		cleaned = strings.ReplaceAll(cleaned, symbol, "")
	}
	for c := range table {
		cleaned = strings.ReplaceAll(cleaned, c, "")
	}
	cleaned = strings.TrimSpace(cleaned)

	cleaned = strings.ReplaceAll(cleaned, info.ThousandsSep, "")
	cleaned = strings.ReplaceAll(cleaned, info.DecimalSep, ".")

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return value
}

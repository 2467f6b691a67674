package currency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	cases := []struct {
		amount      float64
		code        string
		includeCode bool
		want        string
	}{
		{1500000, "CLP", false, "$1.500.000"},
		{1500.50, "USD", false, "$1,500.50"},
		{1500, "EUR", true, "EUR €1.500,00"},
		{0, "CLP", false, "$0"},
		{-84500, "CLP", false, "-$84.500"},
		{999, "CLP", false, "$999"},
		{1000, "CLP", false, "$1.000"},
		{2500.5, "BRL", false, "R$2.500,50"},
		{1234.56, "PEN", false, "S/1,234.56"},
		{750000, "COP", true, "COP $750.000"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Format(tc.amount, tc.code, tc.includeCode), "%v %s", tc.amount, tc.code)
	}
}

func TestFormatUnknownCodeFallsBackToCLP(t *testing.T) {
	assert.Equal(t, "$1.000", Format(1000, "XXX", false))
}

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		code string
		want float64
	}{
		{"$1.500.000", "CLP", 1500000},
		{"$1,500.50", "USD", 1500.5},
		{"EUR €1.500,00", "EUR", 1500},
		{"R$2.500,50", "BRL", 2500.5},
		{"-$84.500", "CLP", -84500},
		{"1234", "CLP", 1234},
		{"", "CLP", 0},
		{"garbage", "CLP", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Parse(tc.in, tc.code), "%q %s", tc.in, tc.code)
	}
}

func TestRoundTrip(t *testing.T) {
	amounts := []float64{0, 1, 999, 1000, 84500, 1500000, 123456789, -45000, 1234.5, 0.25}
	for _, info := range Codes() {
		for _, amount := range amounts {
			// Snap to the currency's precision first; CLP has no cents.
			snapped := Parse(Format(amount, info.Code, false), info.Code)
			for _, includeCode := range []bool{false, true} {
				formatted := Format(snapped, info.Code, includeCode)
				assert.Equal(t, snapped, Parse(formatted, info.Code), "%s %v", info.Code, formatted)
			}
		}
	}
}

func TestFormatText(t *testing.T) {
	assert.Equal(t, "$1.500", FormatText("1500", "CLP", false))
	assert.Equal(t, NotAvailable, FormatText("", "CLP", false))
	assert.Equal(t, NotAvailable, FormatText("12,5", "CLP", false))
	assert.Equal(t, NotAvailable, FormatText("abc", "CLP", false))
}

func TestCodesSortedAndComplete(t *testing.T) {
	infos := Codes()
	assert.Len(t, infos, 9)
	for i := 1; i < len(infos); i++ {
		assert.Less(t, infos[i-1].Code, infos[i].Code)
	}
	assert.Equal(t, "ARS", infos[0].Code)
}

// Package rut validates and canonicalizes Chilean RUT identifiers using the
// standard modulo-11 check digit.
package rut

import (
	"fmt"
	"regexp"
	"strings"
)

var cleanedPattern = regexp.MustCompile(`^\d+[\dK]$`)

// CheckDigitError reports a RUT whose supplied check digit does not match the
// one computed from its body.
type CheckDigitError struct {
	Expected string
	Got      string
}

func (e *CheckDigitError) Error() string {
	return fmt.Sprintf("invalid RUT check digit: got %s, expected %s", e.Got, e.Expected)
}

// Clean strips punctuation and whitespace and uppercases the check character.
func Clean(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// CheckDigit computes the check character for a RUT body (digits only):
// digits are weighted 2,3,4,5,6,7,2,3,... from the least significant one,
// summed and reduced modulo 11. 11 maps to "0" and 10 maps to "K".
func CheckDigit(body string) string {
	sum := 0
	weight := 2
	for i := len(body) - 1; i >= 0; i-- {
		sum += int(body[i]-'0') * weight
		weight++
		if weight > 7 {
			weight = 2
		}
	}
	calculated := 11 - (sum % 11)
	switch calculated {
	case 11:
		return "0"
	case 10:
		return "K"
	default:
		return fmt.Sprintf("%d", calculated)
	}
}

// Validate checks a RUT's structure and check digit. A blank RUT is valid:
// the field is optional on customer records.
func Validate(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	cleaned := Clean(raw)
	if len(cleaned) < 2 || !cleanedPattern.MatchString(cleaned) {
		return fmt.Errorf("invalid RUT format: %q", raw)
	}

	body := cleaned[:len(cleaned)-1]
	got := cleaned[len(cleaned)-1:]
	expected := CheckDigit(body)
	if got != expected {
		return &CheckDigitError{Expected: expected, Got: got}
	}
	return nil
}

// Normalize validates a RUT and returns it in canonical punctuated form,
// e.g. "12345678-5" -> "12.345.678-5". A blank RUT normalizes to "".
func Normalize(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	if err := Validate(raw); err != nil {
		return "", err
	}

	cleaned := Clean(raw)
	body := cleaned[:len(cleaned)-1]
	check := cleaned[len(cleaned)-1:]

	var groups []string
	for len(body) > 3 {
		groups = append([]string{body[len(body)-3:]}, groups...)
		body = body[:len(body)-3]
	}
	if body != "" {
		groups = append([]string{body}, groups...)
	}
	return strings.Join(groups, ".") + "-" + check, nil
}

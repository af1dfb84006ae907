package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/currency"
)

// DefaultFXRates are static conversion rates expressed in USD per unit.
var DefaultFXRates = map[string]float64{
	"USD": 1.0,
	"EUR": 1.08,
	"GBP": 1.27,
	"CAD": 0.74,
	"AUD": 0.66,
	"JPY": 0.0067,
	"CNY": 0.14,
	"INR": 0.012,
	"MXN": 0.058,
}

var (
	errNoPrice  = eris.New("no price")
	errBadPrice = eris.New("unparseable price")

	priceToken = regexp.MustCompile(`-?\d[\d.,]*`)

	currencySymbols = []struct {
		symbol string
		code   string
	}{
		{"US$", "USD"},
		{"C$", "CAD"},
		{"A$", "AUD"},
		{"€", "EUR"},
		{"£", "GBP"},
		{"¥", "JPY"},
		{"₹", "INR"},
		{"$", "USD"},
	}
)

// Scale returns the number of minor-unit digits for an ISO currency code.
func Scale(code string) (int, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 0, eris.Wrapf(err, "normalize: currency %q", code)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return scale, nil
}

// ParseMinor converts a provider price into integer minor units of the
// currency with the given scale. A numeric amount takes precedence over text.
func ParseMinor(amount *float64, text string, scale int) (int64, error) {
	if amount != nil {
		a := *amount
		if math.IsNaN(a) || math.IsInf(a, 0) || a < 0 {
			return 0, errBadPrice
		}
		v := math.Round(a * math.Pow10(scale))
		if v > math.MaxInt64/2 {
			return 0, errBadPrice
		}
		return int64(v), nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return 0, errNoPrice
	}
	tok := priceToken.FindString(text)
	if tok == "" || strings.HasPrefix(tok, "-") {
		return 0, errBadPrice
	}
	intPart, fracPart := splitDecimal(strings.TrimRight(tok, ".,"))
	return toMinor(intPart, fracPart, scale)
}

// splitDecimal decides which separator, if any, is the decimal point. When
// both appear the last one wins; a lone comma followed by exactly two digits
// is a decimal comma; anything else is a thousands separator.
func splitDecimal(tok string) (string, string) {
	lastDot := strings.LastIndexByte(tok, '.')
	lastComma := strings.LastIndexByte(tok, ',')

	decimal := -1
	switch {
	case lastDot >= 0 && lastComma >= 0:
		decimal = max(lastDot, lastComma)
	case lastComma >= 0:
		if strings.Count(tok, ",") == 1 && len(tok)-lastComma-1 == 2 {
			decimal = lastComma
		}
	case lastDot >= 0:
		if strings.Count(tok, ".") == 1 {
			decimal = lastDot
		}
	}

	strip := func(s string) string {
		return strings.NewReplacer(",", "", ".", "").Replace(s)
	}
	if decimal < 0 {
		return strip(tok), ""
	}
	return strip(tok[:decimal]), strip(tok[decimal+1:])
}

func toMinor(intPart, fracPart string, scale int) (int64, error) {
	if intPart == "" {
		intPart = "0"
	}
	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, errBadPrice
	}
	pow := int64(math.Pow10(scale))
	if whole > math.MaxInt64/pow-1 {
		return 0, errBadPrice
	}

	var frac int64
	roundUp := false
	for i := 0; i < len(fracPart); i++ {
		d := int64(fracPart[i] - '0')
		if i < scale {
			frac = frac*10 + d
		} else if i == scale {
			roundUp = d >= 5
			break
		}
	}
	for i := len(fracPart); i < scale; i++ {
		frac *= 10
	}
	v := whole*pow + frac
	if roundUp {
		v++
	}
	return v, nil
}

// DetectCurrency guesses an ISO code from a price string such as "£12.00"
// or "12.00 EUR". A code only counts when it is written in capitals right
// next to the amount, so words like "CUP" or "TOP" elsewhere in the text do
// not win over a currency symbol. It returns "" when nothing is recognized.
func DetectCurrency(text string) string {
	fields := strings.Fields(text)
	for i, f := range fields {
		code, fused := codeToken(strings.Trim(f, "()[],;:"))
		if code == "" {
			continue
		}
		if !fused && !isAmount(fieldAt(fields, i-1)) && !isAmount(fieldAt(fields, i+1)) {
			continue
		}
		if _, err := currency.ParseISO(code); err == nil {
			return code
		}
	}
	for _, s := range currencySymbols {
		if strings.Contains(text, s.symbol) {
			return s.code
		}
	}
	return ""
}

// codeToken extracts a three-capital code from tok, either alone ("EUR") or
// fused to an amount ("EUR12", "12EUR").
func codeToken(tok string) (code string, fused bool) {
	switch {
	case len(tok) == 3 && isUpperCode(tok):
		return tok, false
	case len(tok) > 3 && isUpperCode(tok[:3]) && isAmount(tok[3:]):
		return tok[:3], true
	case len(tok) > 3 && isUpperCode(tok[len(tok)-3:]) && isAmount(tok[:len(tok)-3]):
		return tok[len(tok)-3:], true
	}
	return "", false
}

func isUpperCode(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

// isAmount reports whether s is a bare number such as "12", "1,299.00" or "-5".
func isAmount(s string) bool {
	digits := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits = true
		case c == '.' || c == ',' || c == '-' || c == '+':
		default:
			return false
		}
	}
	return digits
}

func fieldAt(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return fields[i]
}

// Convert re-expresses minor units of one currency in another using rates
// quoted against a common reference. ok is false when either rate is missing.
func Convert(minor int64, from, to string, rates map[string]float64) (int64, bool) {
	if from == to {
		return minor, true
	}
	rf, okF := rates[from]
	rt, okT := rates[to]
	if !okF || !okT || rt <= 0 {
		return 0, false
	}
	sf, err := Scale(from)
	if err != nil {
		return 0, false
	}
	st, err := Scale(to)
	if err != nil {
		return 0, false
	}
	major := float64(minor) / math.Pow10(sf)
	return int64(math.Round(major * rf / rt * math.Pow10(st))), true
}

// FormatMinor renders minor units as a decimal string, e.g. 1999 USD as "19.99".
func FormatMinor(minor int64, code string) string {
	scale, err := Scale(code)
	if err != nil || scale == 0 {
		return strconv.FormatInt(minor, 10)
	}
	return strconv.FormatFloat(float64(minor)/math.Pow10(scale), 'f', scale, 64)
}

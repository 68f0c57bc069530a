package domain

import (
	"math"
	"regexp"
	"strings"
)

// DefaultCurrency applies when a payment arrives without a currency.
const DefaultCurrency = "USD"

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// supportedCurrencies is the ISO 4217 allow-list accepted by the ledger.
var supportedCurrencies = map[string]struct{}{
	"AED": {}, "ARS": {}, "AUD": {}, "BGN": {}, "BHD": {}, "BRL": {}, "CAD": {},
	"CHF": {}, "CLP": {}, "CNY": {}, "COP": {}, "CZK": {}, "DKK": {}, "EGP": {},
	"EUR": {}, "GBP": {}, "GHS": {}, "HKD": {}, "HUF": {}, "IDR": {}, "ILS": {},
	"INR": {}, "ISK": {}, "JPY": {}, "KES": {}, "KRW": {}, "KWD": {}, "MAD": {},
	"MXN": {}, "MYR": {}, "NGN": {}, "NOK": {}, "NZD": {}, "PEN": {}, "PHP": {},
	"PKR": {}, "PLN": {}, "QAR": {}, "RON": {}, "SAR": {}, "SEK": {}, "SGD": {},
	"THB": {}, "TRY": {}, "TWD": {}, "UAH": {}, "USD": {}, "VND": {}, "ZAR": {},
}

// NormalizeCurrency upper-cases code and falls back to DefaultCurrency when empty.
func NormalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency
	}
	return code
}

// ValidCurrency reports whether code is a well-formed, supported ISO code.
func ValidCurrency(code string) bool {
	if !currencyPattern.MatchString(code) {
		return false
	}
	_, ok := supportedCurrencies[code]
	return ok
}

// MaxAmountCents bounds every stored amount so that fee arithmetic on it
// cannot overflow int64.
const MaxAmountCents int64 = 1e13

// ToCents rounds a decimal currency value to 2 places and returns it in minor
// units. Values beyond MaxAmountCents in magnitude, including infinities and
// NaN, return ErrAmountTooLarge.
func ToCents(amount float64) (int64, error) {
	cents := math.Round(amount * 100)
	if math.IsNaN(cents) || math.Abs(cents) > float64(MaxAmountCents) {
		return 0, ErrAmountTooLarge
	}
	return int64(cents), nil
}

// FromCents converts minor units back to a decimal value for display.
func FromCents(cents int64) float64 {
	return float64(cents) / 100
}

// PercentOf returns pct percent of a non-negative cents value, rounded half
// up. The whole hundreds are scaled separately so the product stays in range
// for any cents value when pct is at most 100.
func PercentOf(cents int64, pct int64) int64 {
	whole, rest := cents/100, cents%100
	return whole*pct + (rest*pct+50)/100
}

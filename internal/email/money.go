package email

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var printer = message.NewPrinter(language.AmericanEnglish)

// FormatMoney renders amount in en-US style for the ISO 4217 code, e.g. "$1,234.50".
// Non-finite amounts render as "". An unknown currency code falls back to the raw number.
func FormatMoney(amount float64, code string) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return ""
	}
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil || unit == (currency.Unit{}) {
		return strconv.FormatFloat(amount, 'f', -1, 64)
	}

	scale, _ := currency.Standard.Rounding(unit)
	symbol := printer.Sprint(currency.Symbol(unit))
	digits := printer.Sprint(number.Decimal(math.Abs(amount), number.Scale(scale)))
	if amount < 0 {
		return "-" + symbol + digits
	}
	return symbol + digits
}

package reports

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// AmountFormatter renders money with two decimals and locale grouping.
type AmountFormatter struct {
	printer   *message.Printer
	separator string
}

// NewAmountFormatter builds a formatter for a BCP 47 locale such as "en-IN".
// Unknown locales fall back to English.
func NewAmountFormatter(locale string) *AmountFormatter {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.English
	}
	printer := message.NewPrinter(tag)
	return &AmountFormatter{printer: printer, separator: decimalSeparator(printer)}
}

// Format returns the display value and whether an amount was present. Only
// the integer part goes through the locale printer; the decimals come from
// the amount itself so no digit is lost to float conversion.
func (f *AmountFormatter) Format(amount decimal.NullDecimal) (string, bool) {
	if !amount.Valid {
		return "", false
	}
	value := amount.Decimal.Round(2)
	if f == nil || f.printer == nil {
		return value.StringFixed(2), true
	}
	whole, frac, _ := strings.Cut(value.Abs().StringFixed(2), ".")
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		// beyond int64: keep it exact, ungrouped
		return value.StringFixed(2), true
	}
	var b strings.Builder
	if value.Sign() < 0 {
		b.WriteByte('-')
	}
	b.WriteString(f.printer.Sprint(number.Decimal(n)))
	b.WriteString(f.separator)
	b.WriteString(frac)
	return b.String(), true
}

// decimalSeparator extracts the locale's decimal mark from a sample number.
func decimalSeparator(p *message.Printer) string {
	sample := p.Sprint(number.Decimal(1.5, number.Scale(1)))
	sep := strings.TrimFunc(sample, unicode.IsDigit)
	if sep == "" {
		return "."
	}
	return sep
}

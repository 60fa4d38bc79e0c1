// Package invoice renders sale receipts as an HTML email body and a PDF.
package invoice

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/mesapos/api/internal/enum"
)

// Business is the issuer block printed at the top of every invoice.
type Business struct {
	Name    string
	TaxID   string
	Address string
	Email   string
	Phone   string
}

// Renderer renders invoices for one business. Dates are shown in loc.
type Renderer struct {
	business Business
	loc      *time.Location
}

// NewRenderer returns a Renderer. A nil loc means UTC.
func NewRenderer(b Business, loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{business: b, loc: loc}
}

// Number is the printed invoice number: the digits of the sale id,
// left-padded with zeros to four characters.
func Number(saleID string) string {
	var b strings.Builder
	for _, r := range saleID {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	n := b.String()
	if len(n) < 4 {
		n = strings.Repeat("0", 4-len(n)) + n
	}
	return n
}

// Money formats an amount the way receipts print it in Colombia:
// "." groups thousands and "," separates cents, which are shown only when
// non-zero.
func Money(d decimal.Decimal) string {
	neg := d.IsNegative()
	d = d.Abs().Round(2)

	whole := d.Truncate(0)
	frac := d.Sub(whole)

	digits := whole.String()
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := b.String()
	if !frac.IsZero() {
		cents := frac.Shift(2).IntPart()
		out += "," + leftPad(cents)
	}
	if neg {
		out = "-" + out
	}
	return "$" + out
}

func leftPad(cents int64) string {
	if cents < 10 {
		return "0" + decimal.NewFromInt(cents).String()
	}
	return decimal.NewFromInt(cents).String()
}

var methodLabels = map[string]string{
	enum.PaymentMethodCash:      "Efectivo",
	enum.PaymentMethodCard:      "Tarjeta",
	enum.PaymentMethodTransfer:  "Transferencia",
	enum.PaymentMethodNequi:     "Nequi",
	enum.PaymentMethodDaviplata: "Daviplata",
	enum.PaymentMethodOther:     "Otro",
}

// MethodLabel is the printed name of a payment method.
func MethodLabel(method string) string {
	if l, ok := methodLabels[method]; ok {
		return l
	}
	return method
}

func (r *Renderer) date(t time.Time) string {
	return t.In(r.loc).Format("02/01/2006 15:04")
}

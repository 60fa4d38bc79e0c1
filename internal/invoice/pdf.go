package invoice

// Receipt-style PDF on 80 mm thermal paper. The page height grows with the
// number of lines so the receipt prints on a single page.

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"

	"github.com/mesapos/api/internal/enum"
	"github.com/mesapos/api/internal/model"
)

const (
	pageWidth  = 80.0
	pageMargin = 4.0
	maxNameLen = 26
)

// RenderPDF renders the printable receipt. customer may be nil.
func (r *Renderer) RenderPDF(sale model.Sale, customer *model.Customer) ([]byte, error) {
	height := 110.0 + 9*float64(len(sale.LineItems))
	if customer != nil {
		height += 25
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: pageWidth, Ht: height},
	})
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	// Core fonts are cp1252; accented names need translating.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	contentW := pageWidth - 2*pageMargin

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(contentW, 7, tr(r.business.Name), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	for _, l := range []string{r.business.TaxID, r.business.Address, r.business.Phone} {
		if l != "" {
			pdf.CellFormat(contentW, 4, tr(l), "", 1, "C", false, 0, "")
		}
	}
	pdf.Ln(2)
	separator(pdf)

	// ── Invoice info ─────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 8)
	pdf.CellFormat(contentW, 5, tr("Factura N° "+Number(sale.ID)), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 7)
	pdf.CellFormat(contentW, 4, "Fecha: "+r.date(sale.Timestamp), "", 1, "L", false, 0, "")
	pdf.CellFormat(contentW, 4, tr("Vendedor: "+sale.SellerName), "", 1, "L", false, 0, "")
	if sale.TableNumber != nil {
		pdf.CellFormat(contentW, 4, fmt.Sprintf("Mesa: %d", *sale.TableNumber), "", 1, "L", false, 0, "")
	}

	if customer != nil {
		pdf.Ln(1)
		separator(pdf)
		pdf.SetFont("Helvetica", "B", 7)
		pdf.CellFormat(contentW, 4, "DATOS DEL CLIENTE", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 7)
		pdf.CellFormat(contentW, 4, tr("Nombre: "+customer.Name), "", 1, "L", false, 0, "")
		if customer.TaxID != "" {
			pdf.CellFormat(contentW, 4, tr("ID: "+customer.TaxID), "", 1, "L", false, 0, "")
		}
		if customer.Address != "" {
			pdf.CellFormat(contentW, 4, tr("Dir: "+customer.Address), "", 1, "L", false, 0, "")
		}
		if customer.Email != "" {
			pdf.CellFormat(contentW, 4, tr("Email: "+customer.Email), "", 1, "L", false, 0, "")
		}
	}
	pdf.Ln(2)
	separator(pdf)

	// ── Items ────────────────────────────────────────────────────────────────
	col1 := contentW * 0.50
	col2 := contentW * 0.16
	col3 := contentW * 0.34

	pdf.SetFont("Helvetica", "B", 7)
	pdf.CellFormat(col1, 5, "Producto", "B", 0, "L", false, 0, "")
	pdf.CellFormat(col2, 5, "Cant", "B", 0, "C", false, 0, "")
	pdf.CellFormat(col3, 5, "Subtotal", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	for _, item := range sale.LineItems {
		name := []rune(item.Name)
		if len(name) > maxNameLen {
			name = append(name[:maxNameLen-1], '.')
		}
		pdf.CellFormat(col1, 4, tr(string(name)), "", 0, "L", false, 0, "")
		pdf.CellFormat(col2, 4, fmt.Sprintf("x%d", item.QuantitySold), "", 0, "C", false, 0, "")
		pdf.CellFormat(col3, 4, Money(item.Subtotal()), "", 1, "R", false, 0, "")
		pdf.SetFont("Helvetica", "I", 6)
		pdf.CellFormat(contentW, 4, fmt.Sprintf("%d x %s", item.QuantitySold, Money(item.Price)), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 7)
	}
	pdf.Ln(1)
	separator(pdf)

	// ── Totals ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(col1+col2, 6, "TOTAL:", "", 0, "L", false, 0, "")
	pdf.CellFormat(col3, 6, Money(sale.Total), "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	pdf.CellFormat(col1+col2, 4, tr("Método de pago:"), "", 0, "L", false, 0, "")
	pdf.CellFormat(col3, 4, MethodLabel(sale.PaymentMethod), "", 1, "R", false, 0, "")
	if sale.PaymentMethod == enum.PaymentMethodCash && sale.CashTendered != nil && sale.ChangeGiven != nil {
		pdf.CellFormat(col1+col2, 4, "Efectivo:", "", 0, "L", false, 0, "")
		pdf.CellFormat(col3, 4, Money(*sale.CashTendered), "", 1, "R", false, 0, "")
		pdf.CellFormat(col1+col2, 4, "Cambio:", "", 0, "L", false, 0, "")
		pdf.CellFormat(col3, 4, Money(*sale.ChangeGiven), "", 1, "R", false, 0, "")
	}

	// ── Footer ───────────────────────────────────────────────────────────────
	pdf.Ln(3)
	pdf.SetFont("Helvetica", "I", 7)
	pdf.CellFormat(contentW, 4, tr("¡Gracias por su compra!"), "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("invoice: render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func separator(pdf *fpdf.Fpdf) {
	y := pdf.GetY()
	pdf.Line(pageMargin, y, pageWidth-pageMargin, y)
	pdf.Ln(2)
}

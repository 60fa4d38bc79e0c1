package invoice

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/shopspring/decimal"

	"github.com/mesapos/api/internal/enum"
	"github.com/mesapos/api/internal/model"
)

var htmlTemplate = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"money":  Money,
	"method": MethodLabel,
}).Parse(`<div style="font-family: Arial, sans-serif; max-width: 800px; margin: 0 auto; padding: 20px;">
  <div style="text-align: center; margin-bottom: 20px;">
    <h1 style="color: #333;">FACTURA DE VENTA</h1>
    <p style="font-size: 18px;">{{.Business.Name}}</p>
    {{- with .Business.TaxID}}<p>NIT: {{.}}</p>{{end}}
    {{- with .Business.Address}}<p>Dirección: {{.}}</p>{{end}}
    {{- with .Business.Email}}<p>Email: {{.}}</p>{{end}}
  </div>
  <div style="margin-bottom: 20px;">
    <h3>Información de la factura</h3>
    <p><strong>Factura #:</strong> {{.Number}}</p>
    <p><strong>Fecha:</strong> {{.Date}}</p>
    <p><strong>Vendedor:</strong> {{.Sale.SellerName}}</p>
    {{- with .Table}}<p><strong>Mesa:</strong> {{.}}</p>{{end}}
    <p><strong>Método de pago:</strong> {{method .Sale.PaymentMethod}}</p>
    {{- if .Cash}}
    <p><strong>Efectivo:</strong> {{money .Tendered}}</p>
    <p><strong>Cambio:</strong> {{money .Change}}</p>
    {{- end}}
  </div>
  {{- with .Customer}}
  <div style="margin-bottom: 20px;">
    <h3>Datos del cliente</h3>
    <p><strong>Nombre:</strong> {{.Name}}</p>
    {{- with .TaxID}}<p><strong>Identificación:</strong> {{.}}</p>{{end}}
    {{- with .Address}}<p><strong>Dirección:</strong> {{.}}</p>{{end}}
    {{- with .Email}}<p><strong>Email:</strong> {{.}}</p>{{end}}
  </div>
  {{- end}}
  <table style="width: 100%; border-collapse: collapse;">
    <thead>
      <tr style="background-color: #f8f9fa;">
        <th style="padding: 8px; text-align: left;">Producto</th>
        <th style="padding: 8px; text-align: center;">Cantidad</th>
        <th style="padding: 8px; text-align: right;">Precio unit.</th>
        <th style="padding: 8px; text-align: right;">Total</th>
      </tr>
    </thead>
    <tbody>
      {{- range .Sale.LineItems}}
      <tr>
        <td style="padding: 8px; border-bottom: 1px solid #ddd;">{{.Name}}</td>
        <td style="padding: 8px; border-bottom: 1px solid #ddd; text-align: center;">{{.QuantitySold}}</td>
        <td style="padding: 8px; border-bottom: 1px solid #ddd; text-align: right;">{{money .Price}}</td>
        <td style="padding: 8px; border-bottom: 1px solid #ddd; text-align: right;">{{money .Subtotal}}</td>
      </tr>
      {{- end}}
    </tbody>
    <tfoot>
      <tr>
        <td colspan="3" style="padding: 8px; text-align: right;"><strong>Total:</strong></td>
        <td style="padding: 8px; text-align: right;"><strong>{{money .Sale.Total}}</strong></td>
      </tr>
    </tfoot>
  </table>
  <div style="text-align: center; margin-top: 20px; color: #666;">
    <p>¡Gracias por su compra!</p>
  </div>
</div>
`))

type htmlData struct {
	Business Business
	Sale     model.Sale
	Customer *model.Customer
	Number   string
	Date     string
	Table    int
	Cash     bool
	Tendered decimal.Decimal
	Change   decimal.Decimal
}

// RenderHTML renders the invoice email body. customer may be nil.
func (r *Renderer) RenderHTML(sale model.Sale, customer *model.Customer) (string, error) {
	data := htmlData{
		Business: r.business,
		Sale:     sale,
		Customer: customer,
		Number:   Number(sale.ID),
		Date:     r.date(sale.Timestamp),
	}
	if sale.TableNumber != nil {
		data.Table = *sale.TableNumber
	}
	if sale.PaymentMethod == enum.PaymentMethodCash && sale.CashTendered != nil && sale.ChangeGiven != nil {
		data.Cash = true
		data.Tendered = *sale.CashTendered
		data.Change = *sale.ChangeGiven
	}

	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("invoice: render html: %w", err)
	}
	return buf.String(), nil
}

// Subject is the email subject line for a sale's invoice.
func (r *Renderer) Subject(sale model.Sale) string {
	return fmt.Sprintf("Factura #%s - %s", Number(sale.ID), r.business.Name)
}

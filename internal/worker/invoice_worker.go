package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mesapos/api/internal/invoice"
	"github.com/mesapos/api/internal/mail"
	"github.com/mesapos/api/internal/model"
)

// SaleReader loads a recorded sale.
// Satisfied by *service.SaleService.
type SaleReader interface {
	GetSale(ctx context.Context, id string) (model.Sale, error)
}

// Sender delivers an email.
// Satisfied by *mail.Mailer.
type Sender interface {
	Send(ctx context.Context, to, subject, html string, attachments ...mail.Attachment) (mail.Receipt, error)
}

// InvoiceWorker renders a sale's invoice and emails it with the PDF
// attached.
type InvoiceWorker struct {
	sales    SaleReader
	renderer *invoice.Renderer
	mailer   Sender
}

func NewInvoiceWorker(sales SaleReader, renderer *invoice.Renderer, mailer Sender) *InvoiceWorker {
	return &InvoiceWorker{sales: sales, renderer: renderer, mailer: mailer}
}

// Process handles a single invoice job:
//  1. Fetch the sale
//  2. Render the HTML body and the PDF receipt
//  3. Send both to the customer email
func (w *InvoiceWorker) Process(ctx context.Context, job InvoiceJob) error {
	to := strings.TrimSpace(job.Customer.Email)
	if to == "" {
		return fmt.Errorf("sale %s: no recipient", job.SaleID)
	}

	sale, err := w.sales.GetSale(ctx, job.SaleID)
	if err != nil {
		return fmt.Errorf("load sale %s: %w", job.SaleID, err)
	}

	customer := job.Customer
	html, err := w.renderer.RenderHTML(sale, &customer)
	if err != nil {
		return err
	}
	pdf, err := w.renderer.RenderPDF(sale, &customer)
	if err != nil {
		return err
	}

	receipt, err := w.mailer.Send(ctx, to, w.renderer.Subject(sale), html, mail.Attachment{
		Filename:    "factura-" + invoice.Number(sale.ID) + ".pdf",
		ContentType: "application/pdf",
		Data:        pdf,
	})
	if err != nil {
		return err
	}
	log.Info().Str("sale_id", sale.ID).Str("to", receipt.To).Str("message_id", receipt.MessageID).Msg("invoice sent")
	return nil
}

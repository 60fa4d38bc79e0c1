package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mesapos/api/internal/model"
)

// Inline runs invoice jobs in a goroutine of the current process. It is
// used when no Redis is configured; failed jobs are only logged.
type Inline struct {
	ctx  context.Context
	proc Processor
	wg   sync.WaitGroup
}

// NewInline returns an Inline queue. Jobs run under ctx.
func NewInline(ctx context.Context, proc Processor) *Inline {
	return &Inline{ctx: ctx, proc: proc}
}

// EnqueueInvoice starts the job and returns immediately.
func (i *Inline) EnqueueInvoice(_ context.Context, saleID string, customer model.Customer) error {
	if err := i.ctx.Err(); err != nil {
		return err
	}
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		if err := i.proc.Process(i.ctx, InvoiceJob{SaleID: saleID, Customer: customer}); err != nil {
			log.Error().Err(err).Str("sale_id", saleID).Msg("inline invoice job failed")
		}
	}()
	return nil
}

// Wait blocks until every started job has finished.
func (i *Inline) Wait() {
	i.wg.Wait()
}

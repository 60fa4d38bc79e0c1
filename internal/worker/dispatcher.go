// Package worker delivers invoice emails in the background. Jobs travel
// through Redis lists: producers LPUSH, a pool of consumers BRPOP.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mesapos/api/internal/model"
)

const (
	QueueInvoices = "jobs:invoices"
	// QueueDead holds jobs that failed, wrapped with the failure reason.
	QueueDead = "jobs:dead"

	JobInvoiceEmail = "invoice_email"
)

// Queue is the subset of Redis commands the dispatcher and pool use.
// Satisfied by *redis.Client.
type Queue interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Job is the generic envelope for all async tasks.
type Job struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// InvoiceJob asks for a sale's invoice to be emailed to Customer.Email.
type InvoiceJob struct {
	SaleID   string         `json:"sale_id"`
	Customer model.Customer `json:"customer"`
}

// DeadJob is a failed job as stored on QueueDead.
type DeadJob struct {
	Job      Job       `json:"job"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// Dispatcher enqueues async jobs into Redis lists.
type Dispatcher struct {
	q Queue
}

func NewDispatcher(q Queue) *Dispatcher {
	return &Dispatcher{q: q}
}

// EnqueueInvoice pushes an invoice email job.
func (d *Dispatcher) EnqueueInvoice(ctx context.Context, saleID string, customer model.Customer) error {
	return d.enqueue(ctx, QueueInvoices, JobInvoiceEmail, InvoiceJob{SaleID: saleID, Customer: customer})
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload any) error {
	encoded, err := encodeJob(jobType, payload)
	if err != nil {
		return err
	}
	if err := d.q.LPush(ctx, queue, encoded).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	return nil
}

func encodeJob(jobType string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Job{Type: jobType, Payload: data})
}

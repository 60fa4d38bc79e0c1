package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesapos/api/internal/invoice"
	"github.com/mesapos/api/internal/mail"
	"github.com/mesapos/api/internal/model"
)

// memQueue is an in-process stand-in for the Redis lists.
type memQueue struct {
	mu    sync.Mutex
	lists map[string][]string
}

func newMemQueue() *memQueue {
	return &memQueue{lists: map[string][]string{}}
}

func (q *memQueue) LPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, v := range values {
		var s string
		switch v := v.(type) {
		case []byte:
			s = string(v)
		case string:
			s = v
		default:
			s = fmt.Sprint(v)
		}
		q.lists[key] = append([]string{s}, q.lists[key]...)
	}
	return redis.NewIntResult(int64(len(q.lists[key])), nil)
}

func (q *memQueue) BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	deadline := time.Now().Add(timeout)
	for {
		q.mu.Lock()
		for _, k := range keys {
			if l := q.lists[k]; len(l) > 0 {
				v := l[len(l)-1]
				q.lists[k] = l[:len(l)-1]
				q.mu.Unlock()
				return redis.NewStringSliceResult([]string{k, v}, nil)
			}
		}
		q.mu.Unlock()
		if ctx.Err() != nil {
			return redis.NewStringSliceResult(nil, ctx.Err())
		}
		if time.Now().After(deadline) {
			return redis.NewStringSliceResult(nil, redis.Nil)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (q *memQueue) items(key string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.lists[key]...)
}

type recordingProcessor struct {
	mu   sync.Mutex
	jobs []InvoiceJob
	err  error
}

func (p *recordingProcessor) Process(_ context.Context, job InvoiceJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	return p.err
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}

func TestDispatcher_EnqueueInvoice(t *testing.T) {
	q := newMemQueue()
	d := NewDispatcher(q)

	require.NoError(t, d.EnqueueInvoice(context.Background(), "sale-1", model.Customer{Name: "Luisa", Email: "l@example.com"}))

	items := q.items(QueueInvoices)
	require.Len(t, items, 1)
	var job Job
	require.NoError(t, json.Unmarshal([]byte(items[0]), &job))
	assert.Equal(t, JobInvoiceEmail, job.Type)

	var payload InvoiceJob
	require.NoError(t, json.Unmarshal(job.Payload, &payload))
	assert.Equal(t, "sale-1", payload.SaleID)
	assert.Equal(t, "l@example.com", payload.Customer.Email)
}

func TestPool_ProcessesJobsAndStops(t *testing.T) {
	q := newMemQueue()
	d := NewDispatcher(q)
	proc := &recordingProcessor{}

	ctx, cancel := context.WithCancel(context.Background())
	pool := StartPool(ctx, q, 2, proc)

	for i := 0; i < 5; i++ {
		require.NoError(t, d.EnqueueInvoice(ctx, fmt.Sprintf("sale-%d", i), model.Customer{Email: "a@example.com"}))
	}
	require.Eventually(t, func() bool { return proc.count() == 5 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after cancel")
	}
	assert.Empty(t, q.items(QueueDead))
}

func TestProcessJob_DeadLetters(t *testing.T) {
	q := newMemQueue()
	proc := &recordingProcessor{err: errors.New("smtp down")}

	good, err := encodeJob(JobInvoiceEmail, InvoiceJob{SaleID: "sale-1"})
	require.NoError(t, err)
	unknown, err := encodeJob("reindex", map[string]string{})
	require.NoError(t, err)

	processJob(context.Background(), q, proc, string(good))
	processJob(context.Background(), q, proc, string(unknown))
	processJob(context.Background(), q, proc, "{not json")

	dead := q.items(QueueDead)
	require.Len(t, dead, 3)
	assert.Equal(t, 1, proc.count(), "only the invoice job reaches the processor")

	// LPUSH: newest first.
	var first DeadJob
	require.NoError(t, json.Unmarshal([]byte(dead[2]), &first))
	assert.Equal(t, JobInvoiceEmail, first.Job.Type)
	assert.Equal(t, "smtp down", first.Error)
	assert.False(t, first.FailedAt.IsZero())

	var second DeadJob
	require.NoError(t, json.Unmarshal([]byte(dead[1]), &second))
	assert.Contains(t, second.Error, "unknown job type")

	var third DeadJob
	require.NoError(t, json.Unmarshal([]byte(dead[0]), &third))
	assert.Equal(t, "unknown", third.Job.Type)
}

func TestInline(t *testing.T) {
	proc := &recordingProcessor{}
	in := NewInline(context.Background(), proc)

	require.NoError(t, in.EnqueueInvoice(context.Background(), "sale-9", model.Customer{Email: "a@example.com"}))
	in.Wait()
	assert.Equal(t, 1, proc.count())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewInline(ctx, proc).EnqueueInvoice(context.Background(), "x", model.Customer{}), context.Canceled)
}

// --- InvoiceWorker ---

type fakeSales map[string]model.Sale

func (f fakeSales) GetSale(_ context.Context, id string) (model.Sale, error) {
	s, ok := f[id]
	if !ok {
		return model.Sale{}, errors.New("not found")
	}
	return s, nil
}

type fakeSender struct {
	to          string
	subject     string
	html        string
	attachments []mail.Attachment
	err         error
}

func (f *fakeSender) Send(_ context.Context, to, subject, html string, attachments ...mail.Attachment) (mail.Receipt, error) {
	if f.err != nil {
		return mail.Receipt{}, f.err
	}
	f.to, f.subject, f.html, f.attachments = to, subject, html, attachments
	return mail.Receipt{MessageID: "<m@x>", To: to}, nil
}

func TestInvoiceWorker_Process(t *testing.T) {
	sales := fakeSales{"sale-0042": {
		ID:            "sale-0042",
		LineItems:     []model.SaleLine{{ProductID: "p", Name: "Tinto", Price: decimal.NewFromInt(1000), QuantitySold: 2}},
		Total:         decimal.NewFromInt(2000),
		PaymentMethod: "card",
	}}
	sender := &fakeSender{}
	w := NewInvoiceWorker(sales, invoice.NewRenderer(invoice.Business{Name: "Mesa POS"}, nil), sender)

	err := w.Process(context.Background(), InvoiceJob{SaleID: "sale-0042", Customer: model.Customer{Name: "Luisa", Email: "luisa@example.com"}})
	require.NoError(t, err)

	assert.Equal(t, "luisa@example.com", sender.to)
	assert.Equal(t, "Factura #0042 - Mesa POS", sender.subject)
	assert.Contains(t, sender.html, "Tinto")
	require.Len(t, sender.attachments, 1)
	assert.Equal(t, "factura-0042.pdf", sender.attachments[0].Filename)
	assert.Equal(t, "application/pdf", sender.attachments[0].ContentType)
	assert.NotEmpty(t, sender.attachments[0].Data)
}

func TestInvoiceWorker_Errors(t *testing.T) {
	renderer := invoice.NewRenderer(invoice.Business{Name: "Mesa POS"}, nil)
	sales := fakeSales{"s": {ID: "s", PaymentMethod: "cash"}}

	w := NewInvoiceWorker(sales, renderer, &fakeSender{})
	assert.Error(t, w.Process(context.Background(), InvoiceJob{SaleID: "s"}), "no recipient")
	assert.Error(t, w.Process(context.Background(), InvoiceJob{SaleID: "missing", Customer: model.Customer{Email: "a@b.co"}}))

	boom := errors.New("relay denied")
	w = NewInvoiceWorker(sales, renderer, &fakeSender{err: boom})
	assert.ErrorIs(t, w.Process(context.Background(), InvoiceJob{SaleID: "s", Customer: model.Customer{Email: "a@b.co"}}), boom)
}

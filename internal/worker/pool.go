package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Processor handles one decoded invoice job.
// Satisfied by *InvoiceWorker.
type Processor interface {
	Process(ctx context.Context, job InvoiceJob) error
}

const (
	popTimeout   = 5 * time.Second
	errorBackoff = time.Second
)

// Pool is a set of running consumers.
type Pool struct {
	wg sync.WaitGroup
}

// Wait blocks until every consumer has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// StartPool launches n goroutines consuming QueueInvoices. They stop when
// ctx is cancelled.
func StartPool(ctx context.Context, q Queue, n int, proc Processor) *Pool {
	p := &Pool{}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			runWorker(ctx, q, proc, id)
		}(i)
	}
	log.Info().Int("workers", n).Msg("worker pool started")
	return p
}

func runWorker(ctx context.Context, q Queue, proc Processor, id int) {
	for {
		if ctx.Err() != nil {
			log.Info().Int("worker", id).Msg("worker shutting down")
			return
		}

		// Blocking pop; wakes up every popTimeout to check ctx.
		result, err := q.BRPop(ctx, popTimeout, QueueInvoices).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			log.Error().Err(err).Int("worker", id).Msg("worker: pop failed")
			select {
			case <-ctx.Done():
			case <-time.After(errorBackoff):
			}
			continue
		}
		if len(result) < 2 {
			continue
		}
		processJob(ctx, q, proc, result[1])
	}
}

// processJob runs one raw job. Failures are parked on QueueDead.
func processJob(ctx context.Context, q Queue, proc Processor, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Err(err).Msg("worker: undecodable job")
		deadLetter(ctx, q, Job{Type: "unknown", Payload: json.RawMessage(quote(raw))}, err)
		return
	}

	err := dispatch(ctx, proc, job)
	if err == nil {
		return
	}
	log.Error().Err(err).Str("type", job.Type).Msg("worker: job failed")
	deadLetter(ctx, q, job, err)
}

func dispatch(ctx context.Context, proc Processor, job Job) error {
	switch job.Type {
	case JobInvoiceEmail:
		var payload InvoiceJob
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
		return proc.Process(ctx, payload)
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

func deadLetter(ctx context.Context, q Queue, job Job, cause error) {
	data, err := json.Marshal(DeadJob{Job: job, Error: cause.Error(), FailedAt: time.Now().UTC()})
	if err != nil {
		log.Error().Err(err).Msg("worker: encode dead job")
		return
	}
	// Use a fresh context so shutdown does not drop the record.
	if err := q.LPush(context.WithoutCancel(ctx), QueueDead, data).Err(); err != nil {
		log.Error().Err(err).Str("type", job.Type).Msg("worker: dead-letter push failed")
	}
}

func quote(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}

//go:build integration

package worker

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mesapos/api/internal/model"
)

func TestPoolAgainstRedis(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("container endpoint: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { rdb.Close() })

	proc := &recordingProcessor{}
	runCtx, cancel := context.WithCancel(ctx)
	pool := StartPool(runCtx, rdb, 2, proc)

	d := NewDispatcher(rdb)
	for _, id := range []string{"a", "b", "c"} {
		if err := d.EnqueueInvoice(ctx, id, model.Customer{Email: "x@example.com"}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	deadline := time.Now().Add(10 * time.Second)
	for proc.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("processed %d of 3 jobs", proc.count())
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	pool.Wait()

	n, err := rdb.LLen(ctx, QueueDead).Result()
	if err != nil {
		t.Fatalf("llen: %v", err)
	}
	if n != 0 {
		t.Errorf("dead letters = %d, want 0", n)
	}
}

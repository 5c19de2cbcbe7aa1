//go:build integration

package attempt_test

import (
	"context"
	"testing"
	"time"

	"github.com/eriker75/onenglish-sub004/internal/attempt"
	"github.com/eriker75/onenglish-sub004/internal/attempt/attempttest"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	opts, err := redis.ParseURL(uri)
	if err != nil {
		t.Fatalf("failed to parse redis url: %v", err)
	}

	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisTracker_Integration(t *testing.T) {
	client := setupRedis(t)
	attempttest.Run(t, attempt.NewRedisTrackerWithClient(client, "test", 0))
}

func TestRedisTracker_Concurrent_Integration(t *testing.T) {
	client := setupRedis(t)
	attempttest.RunConcurrent(t, attempt.NewRedisTrackerWithClient(client, "race", 0))
}

func TestRedisTracker_TTL_Integration(t *testing.T) {
	client := setupRedis(t)
	tr := attempt.NewRedisTrackerWithClient(client, "ttl", time.Minute)

	if _, err := tr.Reserve(context.Background(), "s", "q", 2); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	ttl, err := client.PTTL(context.Background(), "ttl:s:q").Result()
	if err != nil {
		t.Fatalf("PTTL() error = %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("PTTL = %v; want (0, 1m]", ttl)
	}
}

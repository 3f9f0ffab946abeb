package notify

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu    sync.Mutex
	users []uint64
}

func (r *recorder) Publish(userID uint64) {
	r.mu.Lock()
	r.users = append(r.users, userID)
	r.mu.Unlock()
}

func (r *recorder) got() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.users...)
}

func TestLocal(t *testing.T) {
	rec := &recorder{}
	n := NewLocal(rec)

	require.NoError(t, n.Notify(context.Background(), 7))
	require.NoError(t, n.Notify(context.Background(), 9))

	assert.Equal(t, []uint64{7, 9}, rec.got())
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR is not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	r := NewRedis(client, zap.NewNop().Sugar())
	rec := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, r.Listen(ctx, rec))
	}()

	// Listen subscribes asynchronously, keep notifying until it is seen
	require.Eventually(t, func() bool {
		assert.NoError(t, r.Notify(context.Background(), 42))
		return len(rec.got()) > 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	<-done

	assert.Equal(t, uint64(42), rec.got()[0])
}

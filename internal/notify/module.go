package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/config"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/hub"
)

var (
	Module = fx.Provide(
		NewNotifier,
	)
)

// NewNotifier picks redis when REDIS_ADDR is set and falls back to the
// in-process hub otherwise.
func NewNotifier(lc fx.Lifecycle, cfg *config.Config, h *hub.Hub, logger *zap.SugaredLogger) Notifier {
	if cfg.RedisAddr == "" {
		return NewLocal(h)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	r := NewRedis(client, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			if err := client.Ping(startCtx).Err(); err != nil {
				return err
			}
			go func() {
				defer close(done)
				if err := r.Listen(ctx, h); err != nil {
					logger.Errorw("redis listener stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			logger.Info("Stopping redis notifier.")
			cancel()
			<-done
			return client.Close()
		},
	})

	return r
}

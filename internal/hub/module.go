package hub

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/metrics"
)

var (
	Module = fx.Provide(
		NewRunningHub,
	)
)

func NewRunningHub(lc fx.Lifecycle, loader Loader, logger *zap.SugaredLogger, rec metrics.Recorder) *Hub {
	h := New(loader, logger, rec)
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go h.Run(ctx)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			logger.Info("Stopping snapshot hub.")
			defer cancel()
			return h.Shutdown(stopCtx)
		},
	})

	return h
}

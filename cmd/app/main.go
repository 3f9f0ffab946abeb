package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/config"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/db"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/hub"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/logger"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/metrics"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/notify"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/rpc"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/service"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/transport"
)

func main() {
	fx.New(
		config.Module,
		logger.Module,
		db.Module,
		metrics.Module,
		hub.Module,
		notify.Module,
		service.Module,
		transport.Module,
		rpc.Module,
		fx.WithLogger(func(l *zap.SugaredLogger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Desugar()}
		}),
		fx.Invoke(
			func(*transport.HTTPServer) {},
			func(*rpc.WatcherServer) {},
		),
	).Run()
}

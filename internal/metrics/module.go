package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

var (
	Module = fx.Options(
		fx.Provide(
			prometheus.NewRegistry,
			NewCollector,
			func(c *Collector) Recorder { return c },
		),
	)
)

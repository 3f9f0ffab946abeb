package db

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/config"
)

var (
	Module = fx.Provide(
		NewManagedGormClient,
	)
)

func NewManagedGormClient(lc fx.Lifecycle, cfg *config.Config, logger *zap.SugaredLogger) (*gorm.DB, error) {
	db, err := NewGormClient(cfg)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			logger.Info("Closing database.")
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

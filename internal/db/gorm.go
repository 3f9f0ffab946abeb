package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/config"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/models"
)

type (
	GormForkedModel struct {
		ID        uint64 `gorm:"primarykey"`
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// User is the identity record. Password is empty for users that only
	// ever signed in through an OAuth provider.
	User struct {
		GormForkedModel
		Email           string  `gorm:"unique;not null"`
		Password        string  `gorm:"not null;default:''"`
		Token           string  `gorm:"not null;index"`
		DisplayName     *string
		PhotoURL        *string
		Provider        *string `gorm:"size:32;uniqueIndex:uidx_provider_subject"`
		ProviderSubject *string `gorm:"size:128;uniqueIndex:uidx_provider_subject"`
	}
)

// Session is the request identity derived from the user record.
func (u *User) Session() *models.Session {
	return &models.Session{
		UserID:      u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
	}
}

func NewGormClient(cfg *config.Config) (*gorm.DB, error) {
	level := logger.Info
	if cfg.Env == config.EnvProduction {
		level = logger.Warn
	}
	newLogger := logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		Colorful:                  cfg.Env != config.EnvProduction,
		IgnoreRecordNotFoundError: true,
	})

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.DBPath)
	default:
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
		dialector = postgres.Open(dsn)
	}

	return Open(dialector, newLogger)
}

// Open connects through dialector and migrates every table.
func Open(dialector gorm.Dialector, l logger.Interface) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         l,
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect database")
	}

	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, errors.Wrap(err, "migrate user")
	}
	if err := db.AutoMigrate(&models.UserProfile{}); err != nil {
		return nil, errors.Wrap(err, "migrate profile")
	}
	if err := db.AutoMigrate(&models.Resource{}); err != nil {
		return nil, errors.Wrap(err, "migrate resource")
	}

	return db, nil
}

package service

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/models"
)

// Snapshots reads a user's complete collection. It backs both the hub and
// the one-shot list endpoints.
type Snapshots struct {
	db *gorm.DB
}

func NewSnapshots(db *gorm.DB) *Snapshots {
	return &Snapshots{
		db: db,
	}
}

func (s *Snapshots) Load(ctx context.Context, userID uint64) ([]models.Resource, error) {
	sql, args, err := squirrel.
		Select("r.id", "r.user_id", "r.name", "r.url", "r.description", "r.category", "r.tags", "r.created_at", "r.updated_at").
		From("resources r").
		Where(squirrel.Eq{"r.user_id": userID}).
		OrderBy("r.created_at", "r.id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build sql")
	}

	resources := make([]models.Resource, 0)
	res := s.db.WithContext(ctx).Raw(sql, args...).Scan(&resources)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "scan")
	}

	return resources, nil
}

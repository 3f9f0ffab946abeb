package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/hub"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/metrics"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/models"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/notify"
)

const (
	opCreate = "create"
	opUpdate = "update"
	opDelete = "delete"
)

// Resources is the live resource store. Mutations never hand state back to
// subscribers directly: every change goes through the notifier and the hub
// reloads the full collection.
type Resources struct {
	db        *gorm.DB
	snapshots *Snapshots
	hub       *hub.Hub
	notifier  notify.Notifier
	validate  *validator.Validate
	metrics   metrics.Recorder
	logger    *zap.SugaredLogger
	now       func() time.Time
}

func NewResources(
	db *gorm.DB,
	snapshots *Snapshots,
	h *hub.Hub,
	notifier notify.Notifier,
	rec metrics.Recorder,
	l *zap.SugaredLogger,
) *Resources {
	return &Resources{
		db:        db,
		snapshots: snapshots,
		hub:       h,
		notifier:  notifier,
		validate:  NewValidator(),
		metrics:   rec,
		logger:    l,
		now:       time.Now,
	}
}

// NewValidator returns a validator that knows the "category" rule.
func NewValidator() *validator.Validate {
	v := validator.New()
	// only fails for a non-string field, which never happens here
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return models.Category(fl.Field().String()).Valid()
	})
	return v
}

// Subscribe streams full snapshots of userID's collection, starting with the
// current one.
func (r *Resources) Subscribe(ctx context.Context, userID uint64) (*hub.Subscription, error) {
	return r.hub.Subscribe(ctx, userID)
}

// Snapshot reads the current collection once.
func (r *Resources) Snapshot(ctx context.Context, userID uint64) ([]models.Resource, error) {
	return r.snapshots.Load(ctx, userID)
}

func (r *Resources) Create(ctx context.Context, userID uint64, fields models.ResourceFields) (string, error) {
	id, err := r.create(ctx, userID, fields)
	if err != nil {
		return "", err
	}
	r.changed(ctx, userID)
	return id, nil
}

// CreateMany creates every element independently and notifies once. It
// reports how many succeeded together with the first failure.
func (r *Resources) CreateMany(ctx context.Context, userID uint64, list []models.ResourceFields) (int, error) {
	var (
		succeeded int
		firstErr  error
	)
	for i, fields := range list {
		if ctx.Err() != nil {
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			break
		}
		if _, err := r.create(ctx, userID, fields); err != nil {
			r.logger.Warnw("create resource in batch", "user_id", userID, "position", i+1, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		succeeded++
	}

	if succeeded != 0 {
		r.changed(ctx, userID)
	}
	return succeeded, firstErr
}

func (r *Resources) Update(ctx context.Context, userID uint64, id string, patch models.ResourcePatch) error {
	err := r.update(ctx, userID, id, patch)
	r.record(opUpdate, err)
	if err != nil {
		return err
	}
	r.changed(ctx, userID)
	return nil
}

// Delete removes the resource. Deleting an unknown id succeeds.
func (r *Resources) Delete(ctx context.Context, userID uint64, id string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Resource{})
	if res.Error != nil {
		err := errors.Wrap(res.Error, "delete resource")
		r.record(opDelete, err)
		return err
	}
	r.record(opDelete, nil)

	if res.RowsAffected != 0 {
		r.changed(ctx, userID)
	}
	return nil
}

func (r *Resources) create(ctx context.Context, userID uint64, fields models.ResourceFields) (string, error) {
	id, err := r.insert(ctx, userID, fields)
	r.record(opCreate, err)
	return id, err
}

func (r *Resources) insert(ctx context.Context, userID uint64, fields models.ResourceFields) (string, error) {
	if err := r.checkFields(fields); err != nil {
		return "", err
	}

	tags := fields.Tags
	if tags == nil {
		tags = models.Tags{}
	}

	model := models.Resource{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        fields.Name,
		URL:         fields.URL,
		Description: fields.Description,
		Category:    fields.Category,
		Tags:        tags,
		CreatedAt:   r.now().UTC(),
	}

	if res := r.db.WithContext(ctx).Create(&model); res.Error != nil {
		return "", errors.Wrap(res.Error, "insert resource")
	}
	return model.ID, nil
}

func (r *Resources) update(ctx context.Context, userID uint64, id string, patch models.ResourcePatch) error {
	if err := r.checkPatch(patch); err != nil {
		return err
	}

	updates := map[string]interface{}{
		"updated_at": r.now().UTC(),
	}
	if patch.Name != nil {
		updates["name"] = *patch.Name
	}
	if patch.URL != nil {
		updates["url"] = *patch.URL
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Category != nil {
		updates["category"] = string(*patch.Category)
	}
	if patch.Tags != nil {
		tags := *patch.Tags
		if tags == nil {
			tags = models.Tags{}
		}
		updates["tags"] = tags
	}

	res := r.db.WithContext(ctx).
		Model(&models.Resource{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(updates)
	if res.Error != nil {
		return errors.Wrap(res.Error, "update resource")
	}
	if res.RowsAffected == 0 {
		return ErrResourceNotFound
	}
	return nil
}

func (r *Resources) checkFields(f models.ResourceFields) error {
	c := fieldCheck{validate: r.validate}
	c.check("name", f.Name, "required")
	c.check("url", f.URL, "required")
	c.check("description", f.Description, "required")
	c.check("category", string(f.Category), "required,category")
	return c.err()
}

func (r *Resources) checkPatch(p models.ResourcePatch) error {
	c := fieldCheck{validate: r.validate}
	if p.Name != nil {
		c.check("name", *p.Name, "required")
	}
	if p.URL != nil {
		c.check("url", *p.URL, "required")
	}
	if p.Description != nil {
		c.check("description", *p.Description, "required")
	}
	if p.Category != nil {
		c.check("category", string(*p.Category), "required,category")
	}
	return c.err()
}

// changed publishes a change for userID. The mutation already happened, so
// a failed notification is only logged.
func (r *Resources) changed(ctx context.Context, userID uint64) {
	if err := r.notifier.Notify(ctx, userID); err != nil {
		r.logger.Errorw("notify change", "user_id", userID, "error", err)
	}
}

func (r *Resources) record(op string, err error) {
	result := metrics.ResultOK
	if err != nil {
		result = metrics.ResultError
	}
	r.metrics.MutationRecorded(op, result)
}

type fieldCheck struct {
	validate *validator.Validate
	invalid  []string
}

func (c *fieldCheck) check(name string, value interface{}, tag string) {
	if err := c.validate.Var(value, tag); err != nil {
		c.invalid = append(c.invalid, name)
	}
}

func (c *fieldCheck) err() error {
	if len(c.invalid) == 0 {
		return nil
	}
	return &InvalidResourceError{Fields: c.invalid}
}

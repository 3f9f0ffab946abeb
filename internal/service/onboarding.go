package service

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/models"
)

type BootstrapState string

const (
	StateNoSession  BootstrapState = "no-session"
	StateNewProfile BootstrapState = "new-session-no-profile"
	StateReturning  BootstrapState = "returning-no-onboarding"
	StateOnboarded  BootstrapState = "onboarded"
)

// NeedsWelcome reports whether the welcome flow should be shown.
func (s BootstrapState) NeedsWelcome() bool {
	switch s {
	case StateNewProfile, StateReturning:
		return true
	}
	return false
}

type Onboarding struct {
	db        *gorm.DB
	resources *Resources
	logger    *zap.SugaredLogger
}

func NewOnboarding(db *gorm.DB, resources *Resources, l *zap.SugaredLogger) *Onboarding {
	return &Onboarding{
		db:        db,
		resources: resources,
		logger:    l,
	}
}

// Bootstrap resolves the onboarding state for a session, creating the
// profile on first sight. Profile errors are logged and the user is
// treated as not onboarded yet.
func (o *Onboarding) Bootstrap(ctx context.Context, sess *models.Session) BootstrapState {
	if sess == nil {
		return StateNoSession
	}

	profile, err := o.Profile(ctx, sess.UserID)
	switch {
	case errors.Is(err, ErrProfileNotFound):
	case err != nil:
		o.logger.Errorw("read profile", "user_id", sess.UserID, "error", err)
		return StateReturning
	case profile.HasCompletedOnboarding:
		return StateOnboarded
	default:
		return StateReturning
	}

	o.logger.Infow("new user detected, creating profile", "user_id", sess.UserID)
	profile = &models.UserProfile{
		UserID:      sess.UserID,
		Email:       sess.Email,
		DisplayName: sess.DisplayName,
		PhotoURL:    sess.PhotoURL,
	}
	// a concurrent first session may have won the insert, keep its row
	res := o.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(profile)
	if res.Error != nil {
		o.logger.Errorw("create profile", "user_id", sess.UserID, "error", res.Error)
	}
	return StateNewProfile
}

func (o *Onboarding) Profile(ctx context.Context, userID uint64) (*models.UserProfile, error) {
	profile := models.UserProfile{}
	res := o.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, errors.Wrap(res.Error, "get profile")
	}
	return &profile, nil
}

// TakeTour seeds the sample resources and completes onboarding. When any
// sample fails the flag stays unset so the tour can be retried.
func (o *Onboarding) TakeTour(ctx context.Context, userID uint64) error {
	if err := o.ensurePending(ctx, userID); err != nil {
		return err
	}

	samples := SampleResources()
	if _, err := o.resources.CreateMany(ctx, userID, samples); err != nil {
		return errors.Wrap(err, "add sample resources")
	}

	return o.complete(ctx, userID)
}

// Skip completes onboarding without adding anything.
func (o *Onboarding) Skip(ctx context.Context, userID uint64) error {
	if err := o.ensurePending(ctx, userID); err != nil {
		return err
	}
	return o.complete(ctx, userID)
}

func (o *Onboarding) ensurePending(ctx context.Context, userID uint64) error {
	profile, err := o.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if profile.HasCompletedOnboarding {
		return ErrAlreadyOnboarded
	}
	return nil
}

func (o *Onboarding) complete(ctx context.Context, userID uint64) error {
	res := o.db.WithContext(ctx).
		Model(&models.UserProfile{}).
		Where("user_id = ? AND has_completed_onboarding = ?", userID, false).
		Update("has_completed_onboarding", true)
	if res.Error != nil {
		return errors.Wrap(res.Error, "update profile")
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyOnboarded
	}
	return nil
}

// SampleResources is the tour collection, one per category.
func SampleResources() []models.ResourceFields {
	return []models.ResourceFields{
		{
			Name:        "MDN Web Docs",
			URL:         "https://developer.mozilla.org",
			Description: "Comprehensive web development documentation",
			Category:    models.CategoryDocumentation,
			Tags:        models.Tags{"html", "css", "javascript"},
		},
		{
			Name:        "Stack Overflow",
			URL:         "https://stackoverflow.com",
			Description: "Q&A community for developers",
			Category:    models.CategoryCommunity,
			Tags:        models.Tags{"help", "community", "qa"},
		},
		{
			Name:        "GitHub",
			URL:         "https://github.com",
			Description: "Code hosting and version control",
			Category:    models.CategoryTools,
			Tags:        models.Tags{"git", "version-control", "collaboration"},
		},
		{
			Name:        "Tailwind CSS",
			URL:         "https://tailwindcss.com",
			Description: "Utility-first CSS framework",
			Category:    models.CategoryUIUX,
			Tags:        models.Tags{"css", "design", "framework"},
		},
		{
			Name:        "Firebase Docs",
			URL:         "https://firebase.google.com/docs",
			Description: "Backend-as-a-Service documentation",
			Category:    models.CategoryBackend,
			Tags:        models.Tags{"database", "auth", "hosting"},
		},
		{
			Name:        "React Documentation",
			URL:         "https://react.dev",
			Description: "Official React documentation",
			Category:    models.CategoryFrontend,
			Tags:        models.Tags{"react", "javascript", "ui"},
		},
		{
			Name:        "freeCodeCamp",
			URL:         "https://www.freecodecamp.org",
			Description: "Learn to code for free",
			Category:    models.CategoryLearning,
			Tags:        models.Tags{"tutorial", "courses", "free"},
		},
		{
			Name:        "JSONPlaceholder",
			URL:         "https://jsonplaceholder.typicode.com",
			Description: "Free fake API for testing",
			Category:    models.CategoryAPIs,
			Tags:        models.Tags{"api", "testing", "json"},
		},
	}
}

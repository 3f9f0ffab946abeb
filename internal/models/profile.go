package models

import (
	"time"
)

type (
	// UserProfile is created on a user's first session and only ever has its
	// onboarding flag flipped afterwards.
	UserProfile struct {
		UserID                 uint64    `gorm:"primarykey;autoIncrement:false" json:"-"`
		Email                  string    `gorm:"not null" json:"email"`
		DisplayName            *string   `json:"displayName"`
		PhotoURL               *string   `json:"photoURL"`
		HasCompletedOnboarding bool      `gorm:"not null;default:false" json:"hasCompletedOnboarding"`
		CreatedAt              time.Time `json:"createdAt"`
	}

	// Session is the authenticated identity behind a request.
	Session struct {
		UserID      uint64  `json:"uid"`
		Email       string  `json:"email"`
		DisplayName *string `json:"displayName,omitempty"`
		PhotoURL    *string `json:"photoURL,omitempty"`
	}
)

func (UserProfile) TableName() string {
	return "profiles"
}

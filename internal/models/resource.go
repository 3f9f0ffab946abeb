package models

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type (
	// Resource is a saved link. ID and CreatedAt are assigned by the store,
	// UpdatedAt only on edit.
	Resource struct {
		ID          string     `gorm:"primarykey;size:36" json:"id"`
		UserID      uint64     `gorm:"not null;index" json:"-"`
		Name        string     `gorm:"not null" json:"name"`
		URL         string     `gorm:"not null" json:"url"`
		Description string     `gorm:"not null" json:"description"`
		Category    Category   `gorm:"not null;size:32" json:"category"`
		Tags        Tags       `gorm:"not null" json:"tags"`
		CreatedAt   time.Time  `gorm:"autoCreateTime:false" json:"createdAt"`
		UpdatedAt   *time.Time `gorm:"autoUpdateTime:false" json:"updatedAt,omitempty"`
	}

	// ResourceFields is everything a caller may supply on create.
	ResourceFields struct {
		Name        string
		URL         string
		Description string
		Category    Category
		Tags        Tags
	}

	// ResourcePatch carries the fields to change on update; nil means untouched.
	ResourcePatch struct {
		Name        *string
		URL         *string
		Description *string
		Category    *Category
		Tags        *Tags
	}

	// Snapshot is one push emission: the complete current list, or a terminal error.
	Snapshot struct {
		Resources []Resource
		Err       error
	}

	Tags []string
)

func (p ResourcePatch) Empty() bool {
	return p.Name == nil && p.URL == nil && p.Description == nil && p.Category == nil && p.Tags == nil
}

// ParseTags splits comma separated input, trims every entry and drops the
// empty ones. Order and duplicates are kept.
func ParseTags(input string) Tags {
	tags := Tags{}
	for _, part := range strings.Split(input, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		t = Tags{}
	}
	b, err := json.Marshal([]string(t))
	if err != nil {
		return nil, errors.Wrap(err, "marshal tags")
	}
	return string(b), nil
}

func (t *Tags) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = Tags{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.Errorf("unsupported tags column type %T", src)
	}

	tags := Tags{}
	if len(raw) != 0 {
		if err := json.Unmarshal(raw, (*[]string)(&tags)); err != nil {
			return errors.Wrap(err, "unmarshal tags")
		}
	}
	*t = tags
	return nil
}

// GormDataType keeps tags in a plain text column on every dialect.
func (Tags) GormDataType() string {
	return "text"
}

func (t Tags) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(t))
}

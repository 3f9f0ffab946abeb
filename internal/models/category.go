package models

import (
	"fmt"
)

// Category is the closed set of classification labels a resource can carry.
type Category string

const (
	CategoryDocumentation Category = "Documentation"
	CategoryTools         Category = "Tools"
	CategoryUIUX          Category = "UI/UX"
	CategoryBackend       Category = "Backend"
	CategoryFrontend      Category = "Frontend"
	CategoryCommunity     Category = "Community"
	CategoryLearning      Category = "Learning"
	CategoryAPIs          Category = "APIs"
)

// AllCategories is the category filter value that matches every resource.
const AllCategories = "All"

// Categories lists every category in display order.
var Categories = []Category{
	CategoryDocumentation,
	CategoryTools,
	CategoryUIUX,
	CategoryBackend,
	CategoryFrontend,
	CategoryCommunity,
	CategoryLearning,
	CategoryAPIs,
}

func (c Category) Valid() bool {
	switch c {
	case CategoryDocumentation,
		CategoryTools,
		CategoryUIUX,
		CategoryBackend,
		CategoryFrontend,
		CategoryCommunity,
		CategoryLearning,
		CategoryAPIs:
		return true
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

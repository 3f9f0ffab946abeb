// Package view derives the render-ready resource list from a raw snapshot.
package view

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/models"
)

type SortKey string

const (
	SortNameAsc  SortKey = "nameAsc"
	SortNameDesc SortKey = "nameDesc"
	SortDateAsc  SortKey = "dateAsc"
	SortDateDesc SortKey = "dateDesc"
	SortCategory SortKey = "category"

	DefaultSort = SortDateDesc
)

// Query is the user-controlled part of the pipeline.
type Query struct {
	Search   string
	Category string
	Sort     SortKey
}

// ParseSortKey returns DefaultSort for an empty value and false for an
// unknown one.
func ParseSortKey(s string) (SortKey, bool) {
	switch k := SortKey(s); k {
	case "":
		return DefaultSort, true
	case SortNameAsc, SortNameDesc, SortDateAsc, SortDateDesc, SortCategory:
		return k, true
	}
	return "", false
}

// NewQuery fills in the "All" category and the default sort.
func NewQuery(search, category string, sortKey SortKey) Query {
	if category == "" {
		category = models.AllCategories
	}
	if sortKey == "" {
		sortKey = DefaultSort
	}
	return Query{Search: search, Category: category, Sort: sortKey}
}

// ParseQuery builds a Query from raw request values. An unknown sort key is
// kept as is, which leaves the snapshot order untouched.
func ParseQuery(search, category, sort string) Query {
	key, ok := ParseSortKey(sort)
	if !ok {
		key = SortKey(sort)
	}
	return NewQuery(search, category, key)
}

func (q Query) Apply(list []models.Resource) []models.Resource {
	return View(list, q.Search, q.Category, q.Sort)
}

// View filters list by search term and category, then stable-sorts it by
// sortKey. The input is never modified.
func View(list []models.Resource, search, category string, sortKey SortKey) []models.Resource {
	term := strings.ToLower(search)

	out := make([]models.Resource, 0, len(list))
	for _, r := range list {
		if matchesSearch(r, term) && matchesCategory(r, category) {
			out = append(out, r)
		}
	}

	sortResources(out, sortKey)
	return out
}

func matchesSearch(r models.Resource, term string) bool {
	if strings.Contains(strings.ToLower(r.Name), term) ||
		strings.Contains(strings.ToLower(r.Description), term) {
		return true
	}
	for _, tag := range r.Tags {
		if strings.Contains(strings.ToLower(tag), term) {
			return true
		}
	}
	return false
}

func matchesCategory(r models.Resource, category string) bool {
	return category == models.AllCategories || string(r.Category) == category
}

func sortResources(list []models.Resource, key SortKey) {
	// collators keep internal buffers and are not safe to share
	coll := collate.New(language.English)

	var less func(a, b models.Resource) bool
	switch key {
	case SortNameAsc:
		less = func(a, b models.Resource) bool { return coll.CompareString(a.Name, b.Name) < 0 }
	case SortNameDesc:
		less = func(a, b models.Resource) bool { return coll.CompareString(b.Name, a.Name) < 0 }
	case SortDateAsc:
		less = func(a, b models.Resource) bool { return createdAt(a).Before(createdAt(b)) }
	case SortDateDesc:
		less = func(a, b models.Resource) bool { return createdAt(b).Before(createdAt(a)) }
	case SortCategory:
		less = func(a, b models.Resource) bool {
			return coll.CompareString(string(a.Category), string(b.Category)) < 0
		}
	default:
		return
	}

	sort.SliceStable(list, func(i, j int) bool { return less(list[i], list[j]) })
}

var epoch = time.Unix(0, 0).UTC()

// createdAt treats a missing timestamp as the oldest possible value.
func createdAt(r models.Resource) time.Time {
	if r.CreatedAt.IsZero() {
		return epoch
	}
	return r.CreatedAt
}

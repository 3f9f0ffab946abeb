package view

import (
	"sort"
	"time"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/models"
)

const (
	recentWindow  = 7 * 24 * time.Hour
	topCategories = 3
)

type (
	CategoryCount struct {
		Category models.Category `json:"category"`
		Count    int             `json:"count"`
	}

	Stats struct {
		Total         int             `json:"total"`
		Categories    int             `json:"categories"`
		UniqueTags    int             `json:"uniqueTags"`
		AddedThisWeek int             `json:"addedThisWeek"`
		TopCategories []CategoryCount `json:"topCategories"`
	}
)

// Summarize computes the collection overview shown above the resource grid.
func Summarize(list []models.Resource, now time.Time) Stats {
	counts := make([]CategoryCount, 0, len(models.Categories))
	index := make(map[models.Category]int)
	tags := make(map[string]struct{})
	cutoff := now.Add(-recentWindow)

	stats := Stats{Total: len(list)}
	for _, r := range list {
		if i, ok := index[r.Category]; ok {
			counts[i].Count++
		} else {
			index[r.Category] = len(counts)
			counts = append(counts, CategoryCount{Category: r.Category, Count: 1})
		}
		for _, tag := range r.Tags {
			tags[tag] = struct{}{}
		}
		if !r.CreatedAt.IsZero() && r.CreatedAt.After(cutoff) {
			stats.AddedThisWeek++
		}
	}

	sort.SliceStable(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })
	if len(counts) > topCategories {
		stats.TopCategories = counts[:topCategories]
	} else {
		stats.TopCategories = counts
	}
	stats.Categories = len(index)
	stats.UniqueTags = len(tags)

	return stats
}

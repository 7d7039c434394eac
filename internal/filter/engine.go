// Package filter implements the item matching engine shared by the data
// sources.
package filter

import (
	"strings"

	"feedscroll/internal/model"
)

// Match checks whether an item satisfies a query.
// An empty search matches every item; otherwise the search text must occur,
// case-insensitively, in the title or the description.
// An empty tag set matches every item; otherwise the item must carry at
// least one of the tags.
func Match(item model.Item, q model.Query) bool {
	return matchesSearch(item, q.Search) && matchesTags(item, q.Tags)
}

// Apply returns the items that match q, preserving their order.
func Apply(items []model.Item, q model.Query) []model.Item {
	q = q.Normalize()
	if !q.Active() {
		return items
	}
	var out []model.Item
	for _, it := range items {
		if Match(it, q) {
			out = append(out, it)
		}
	}
	return out
}

// matchesSearch treats whitespace as part of the needle; only a blank
// search is ignored.
func matchesSearch(item model.Item, search string) bool {
	if strings.TrimSpace(search) == "" {
		return true
	}
	needle := strings.ToLower(search)
	return strings.Contains(strings.ToLower(item.Title), needle) ||
		strings.Contains(strings.ToLower(item.Description), needle)
}

func matchesTags(item model.Item, tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if item.HasTag(t) {
			return true
		}
	}
	return false
}

// Package nav assembles the host navigation menu from the items active
// modules contribute. Failed or unloaded modules contribute nothing.
package nav

import "sort"

// Item is one navigation menu entry contributed by a module.
type Item struct {
	// Title is the display label.
	Title string

	// Route is the path the entry points at.
	Route string

	// Order positions the entry; lower values sort first.
	Order int

	// Module is the contributing module's ID.
	Module string
}

// Contributor is the optional capability a module implements to add
// navigation entries. Modules without it simply contribute none.
type Contributor interface {
	NavigationItems() []Item
}

// Merge combines per-module item lists into one menu ordered by Order,
// with ties broken by Title then Module for stable output.
func Merge(lists ...[]Item) []Item {
	var merged []Item
	for _, list := range lists {
		merged = append(merged, list...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Order != merged[j].Order {
			return merged[i].Order < merged[j].Order
		}
		if merged[i].Title != merged[j].Title {
			return merged[i].Title < merged[j].Title
		}
		return merged[i].Module < merged[j].Module
	})
	return merged
}

package feed

import "github.com/Sternrassler/postfeed/pkg/model"

// Merge appends the items of page whose ID is not already present.
//
// Page order is preserved and nothing is re-sorted: pages arrive in feed
// order, so appending keeps the list ordered. Merging the same page twice
// yields the same list. Neither input is modified.
func Merge(existing, page []model.Item) []model.Item {
	seen := make(map[string]struct{}, len(existing)+len(page))
	out := make([]model.Item, 0, len(existing)+len(page))
	for _, it := range existing {
		seen[it.ID] = struct{}{}
		out = append(out, it)
	}
	for _, it := range page {
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it)
	}
	return out
}

// Replace swaps the item with the same ID for item. The list is returned
// unchanged when no such item exists.
func Replace(items []model.Item, item model.Item) []model.Item {
	out := make([]model.Item, len(items))
	copy(out, items)
	for i := range out {
		if out[i].ID == item.ID {
			out[i] = item
			break
		}
	}
	return out
}

// Remove drops the item with the given ID.
func Remove(items []model.Item, id string) []model.Item {
	out := make([]model.Item, 0, len(items))
	for _, it := range items {
		if it.ID != id {
			out = append(out, it)
		}
	}
	return out
}

// Prepend puts item at the head of the list, the position of the newest
// post. An existing item with the same ID is dropped.
func Prepend(items []model.Item, item model.Item) []model.Item {
	out := make([]model.Item, 0, len(items)+1)
	out = append(out, item)
	for _, it := range items {
		if it.ID != item.ID {
			out = append(out, it)
		}
	}
	return out
}

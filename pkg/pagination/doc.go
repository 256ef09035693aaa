// Package pagination defines the page request model shared by the feed
// server and the feed client.
//
// Two addressing modes are supported:
//
//   - Offset: page/limit, skipping (page-1)*limit items of the stable
//     (createdAt desc, id desc) order. Simple, but a record inserted ahead of
//     the window between two requests shifts it, so one item can be seen
//     twice or skipped.
//   - Keyset: an opaque Cursor naming the last (createdAt, id) seen. The next
//     page starts strictly after it and is exact-once under concurrent inserts.
//
// Example usage:
//
//	req := pagination.PageRequest{Page: 2, Limit: 500}.Normalize() // Limit clamped to 100
//	u.RawQuery = req.Query().Encode()
//
// Limits are clamped, never rejected.
package pagination

package pagination

import (
	"net/url"
	"strconv"
)

// Page size bounds for feed queries.
const (
	// DefaultPage is the page requested when none is given.
	DefaultPage = 1

	// DefaultLimit is the page size used when none is given or the value is invalid.
	DefaultLimit = 10

	// MaxLimit caps the page size to bound server load.
	MaxLimit = 100
)

// PageRequest identifies one page of the published feed.
//
// Page and Limit drive offset pagination. When Cursor is non-empty the page
// is resolved relative to the cursor instead and Page only counts requests.
type PageRequest struct {
	Page   int
	Limit  int
	Cursor string
}

// DefaultRequest returns the first page with the default limit.
func DefaultRequest() PageRequest {
	return PageRequest{Page: DefaultPage, Limit: DefaultLimit}
}

// Normalize clamps out-of-range values instead of rejecting them.
func (r PageRequest) Normalize() PageRequest {
	if r.Page < 1 {
		r.Page = DefaultPage
	}
	switch {
	case r.Limit < 1:
		r.Limit = DefaultLimit
	case r.Limit > MaxLimit:
		r.Limit = MaxLimit
	}
	return r
}

// Offset returns the number of items skipped before this page.
func (r PageRequest) Offset() int {
	n := r.Normalize()
	return (n.Page - 1) * n.Limit
}

// Query encodes the request as URL query parameters.
func (r PageRequest) Query() url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(r.Page))
	q.Set("limit", strconv.Itoa(r.Limit))
	if r.Cursor != "" {
		q.Set("cursor", r.Cursor)
	}
	return q
}

// FromQuery parses page, limit and cursor from URL query parameters.
// Malformed numbers fall back to the defaults; the result is normalized.
func FromQuery(q url.Values) PageRequest {
	req := DefaultRequest()
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			req.Page = n
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			req.Limit = n
		}
	}
	req.Cursor = q.Get("cursor")
	return req.Normalize()
}

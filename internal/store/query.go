package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/Sternrassler/postfeed/pkg/model"
	"github.com/Sternrassler/postfeed/pkg/pagination"
)

// PublishedQuery builds the feed query for req: published posts joined with
// their owner, newest first with ties broken by id, at most req.Limit rows.
//
// Without a cursor the first (page-1)*limit rows are skipped. With a cursor
// the offset is ignored and the page starts strictly after the cursor
// position, so inserts between requests cannot shift rows across pages.
func PublishedQuery(req pagination.PageRequest) (sq.SelectBuilder, error) {
	req = req.Normalize()

	b := selectPosts().
		Where(sq.Eq{"p.is_published": 1}).
		OrderBy("p.created_at DESC", "p.id DESC").
		Limit(uint64(req.Limit))

	if req.Cursor == "" {
		return b.Offset(uint64(req.Offset())), nil
	}

	c, err := pagination.DecodeCursor(req.Cursor)
	if err != nil {
		return b, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	at := timestamp(c.CreatedAt)
	return b.Where(sq.Or{
		sq.Lt{"p.created_at": at},
		sq.And{sq.Eq{"p.created_at": at}, sq.Lt{"p.id": c.ID}},
	}), nil
}

// PublishedPage returns one page of the published feed. A page beyond the
// data is empty, not an error. NextCursor is set when the page is full.
func (s *Store) PublishedPage(ctx context.Context, req pagination.PageRequest) (model.Page, error) {
	req = req.Normalize()

	b, err := PublishedQuery(req)
	if err != nil {
		return model.Page{}, err
	}
	rows, err := s.queryRows(ctx, b)
	if err != nil {
		return model.Page{}, fmt.Errorf("query feed: %w", err)
	}
	posts, err := scanPosts(rows)
	if err != nil {
		return model.Page{}, err
	}

	page := model.Page{
		Items: make([]model.Item, len(posts)),
		Page:  req.Page,
		Limit: req.Limit,
	}
	for i, p := range posts {
		page.Items[i] = p.Item()
	}
	if n := len(posts); n == req.Limit {
		last := posts[n-1]
		page.NextCursor = pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}

	s.logger.Debug().
		Int("page", req.Page).
		Int("limit", req.Limit).
		Bool("cursor", req.Cursor != "").
		Int("items", len(page.Items)).
		Msg("Feed page queried")
	return page, nil
}

// CountPublished returns the number of published posts.
func (s *Store) CountPublished(ctx context.Context) (int, error) {
	row, err := s.queryRow(ctx, sq.Select("COUNT(*)").From("posts").Where(sq.Eq{"is_published": 1}))
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count published: %w", err)
	}
	return n, nil
}

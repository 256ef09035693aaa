package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/Sternrassler/postfeed/pkg/model"
	"github.com/google/uuid"
)

// postColumns selects a post joined with its owner summary.
var postColumns = []string{
	"p.id", "p.title", "p.content", "p.featured_image_url", "p.tags",
	"p.is_published", "p.created_at", "p.updated_at",
	"u.id", "u.username", "u.email",
}

func selectPosts() sq.SelectBuilder {
	return sq.Select(postColumns...).
		From("posts p").
		Join("users u ON u.id = p.owner_id")
}

// CreatePost stores a post owned by ownerID. Title and content are required.
func (s *Store) CreatePost(ctx context.Context, ownerID string, in model.PostInput) (model.Post, error) {
	title := strings.TrimSpace(deref(in.Title))
	content := deref(in.Content)
	if title == "" || content == "" {
		return model.Post{}, fmt.Errorf("%w: title and content are required", ErrInvalid)
	}

	now := timestamp(s.now())
	id := uuid.NewString()
	published := in.IsPublished != nil && *in.IsPublished

	_, err := s.exec(ctx, sq.Insert("posts").
		Columns("id", "owner_id", "title", "content", "featured_image_url", "tags", "is_published", "created_at", "updated_at").
		Values(id, ownerID, title, content, deref(in.FeaturedImageURL), joinTags(in.Tags), published, now, now))
	if err != nil {
		return model.Post{}, fmt.Errorf("insert post: %w", err)
	}

	s.logger.Debug().Str("post_id", id).Str("user_id", ownerID).Msg("Post created")
	return s.PostByID(ctx, id)
}

// PostByID returns a post with its owner summary.
func (s *Store) PostByID(ctx context.Context, id string) (model.Post, error) {
	rows, err := s.queryRows(ctx, selectPosts().Where(sq.Eq{"p.id": id}).Limit(1))
	if err != nil {
		return model.Post{}, fmt.Errorf("query post: %w", err)
	}
	posts, err := scanPosts(rows)
	if err != nil {
		return model.Post{}, err
	}
	if len(posts) == 0 {
		return model.Post{}, ErrNotFound
	}
	return posts[0], nil
}

// UpdatePost applies the non-empty fields of in to a post owned by callerID.
func (s *Store) UpdatePost(ctx context.Context, callerID, id string, in model.PostInput) (model.Post, error) {
	if err := s.checkOwner(ctx, callerID, id); err != nil {
		return model.Post{}, err
	}

	b := sq.Update("posts").Set("updated_at", timestamp(s.now())).Where(sq.Eq{"id": id})
	// Empty strings keep the stored value.
	if t := strings.TrimSpace(deref(in.Title)); t != "" {
		b = b.Set("title", t)
	}
	if c := deref(in.Content); c != "" {
		b = b.Set("content", c)
	}
	if in.FeaturedImageURL != nil {
		b = b.Set("featured_image_url", *in.FeaturedImageURL)
	}
	if in.Tags != nil && strings.TrimSpace(*in.Tags) != "" {
		b = b.Set("tags", joinTags(in.Tags))
	}
	if in.IsPublished != nil {
		b = b.Set("is_published", *in.IsPublished)
	}
	if _, err := s.exec(ctx, b); err != nil {
		return model.Post{}, fmt.Errorf("update post: %w", err)
	}
	return s.PostByID(ctx, id)
}

// DeletePost removes a post owned by callerID.
func (s *Store) DeletePost(ctx context.Context, callerID, id string) error {
	if err := s.checkOwner(ctx, callerID, id); err != nil {
		return err
	}
	if _, err := s.exec(ctx, sq.Delete("posts").Where(sq.Eq{"id": id})); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// TogglePublish flips the published flag of a post owned by callerID.
func (s *Store) TogglePublish(ctx context.Context, callerID, id string) (model.Post, error) {
	if err := s.checkOwner(ctx, callerID, id); err != nil {
		return model.Post{}, err
	}
	_, err := s.exec(ctx, sq.Update("posts").
		Set("is_published", sq.Expr("1 - is_published")).
		Set("updated_at", timestamp(s.now())).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return model.Post{}, fmt.Errorf("toggle publish: %w", err)
	}
	return s.PostByID(ctx, id)
}

// ListByOwner returns every post of ownerID, published or not, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]model.Post, error) {
	rows, err := s.queryRows(ctx, selectPosts().
		Where(sq.Eq{"p.owner_id": ownerID}).
		OrderBy("p.created_at DESC", "p.id DESC"))
	if err != nil {
		return nil, fmt.Errorf("query owner posts: %w", err)
	}
	return scanPosts(rows)
}

func (s *Store) checkOwner(ctx context.Context, callerID, id string) error {
	row, err := s.queryRow(ctx, sq.Select("owner_id").From("posts").Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	var owner string
	if err := row.Scan(&owner); errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	} else if err != nil {
		return fmt.Errorf("scan owner: %w", err)
	}
	if owner != callerID {
		return ErrForbidden
	}
	return nil
}

func scanPosts(rows *sql.Rows) ([]model.Post, error) {
	defer rows.Close()

	posts := []model.Post{}
	for rows.Next() {
		var (
			p                model.Post
			owner            model.Owner
			tags             string
			created, updated int64
		)
		if err := rows.Scan(
			&p.ID, &p.Title, &p.Content, &p.FeaturedImageURL, &tags,
			&p.IsPublished, &created, &updated,
			&owner.ID, &owner.Username, &owner.Email,
		); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.Tags = model.ParseTags(tags)
		p.CreatedAt = fromTimestamp(created)
		p.UpdatedAt = fromTimestamp(updated)
		p.OwnerID = owner.ID
		p.Owner = &owner
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

func joinTags(s *string) string {
	if s == nil {
		return ""
	}
	return strings.Join(model.ParseTags(*s), ",")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

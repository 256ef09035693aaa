// Package model defines the data structures shared by the feed server and client.
package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// ExcerptLength is the number of runes of content kept in a feed item.
const ExcerptLength = 100

// Owner is the public summary of the account that owns a post.
type Owner struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Item is one published post as it appears in the feed.
// Items are immutable once returned; an edit replaces the whole value.
type Item struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	ContentExcerpt   string    `json:"contentExcerpt"`
	FeaturedImageURL string    `json:"featuredImageUrl"`
	Tags             []string  `json:"tags"`
	CreatedAt        time.Time `json:"createdAt"`
	Owner            Owner     `json:"owner"`
}

// Page is one bounded slice of the feed returned by a single query.
type Page struct {
	Items      []Item `json:"items"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// Post is the full stored record behind a feed item.
type Post struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Content          string    `json:"content"`
	FeaturedImageURL string    `json:"featuredImageUrl"`
	Tags             []string  `json:"tags"`
	OwnerID          string    `json:"ownerId"`
	Owner            *Owner    `json:"owner,omitempty"`
	IsPublished      bool      `json:"isPublished"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Item converts a post into its feed representation.
func (p Post) Item() Item {
	item := Item{
		ID:               p.ID,
		Title:            p.Title,
		ContentExcerpt:   Excerpt(p.Content),
		FeaturedImageURL: p.FeaturedImageURL,
		Tags:             p.Tags,
		CreatedAt:        p.CreatedAt,
	}
	if p.Owner != nil {
		item.Owner = *p.Owner
	} else {
		item.Owner.ID = p.OwnerID
	}
	return item
}

// PostInput carries the client-editable fields of a post.
// Nil fields are left unchanged on edit.
type PostInput struct {
	Title            *string `json:"title,omitempty"`
	Content          *string `json:"content,omitempty"`
	FeaturedImageURL *string `json:"featuredImageUrl,omitempty"`
	Tags             *string `json:"tags,omitempty"` // comma separated
	IsPublished      *bool   `json:"isPublished,omitempty"`
}

// User is an account as exposed over the API.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Owner returns the public summary of the user.
func (u User) Owner() Owner {
	return Owner{ID: u.ID, Username: u.Username, Email: u.Email}
}

// Excerpt returns the first ExcerptLength runes of content.
func Excerpt(content string) string {
	if utf8.RuneCountInString(content) <= ExcerptLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:ExcerptLength])
}

// ParseTags splits a comma-separated tag string, trimming whitespace and
// dropping empty entries.
func ParseTags(s string) []string {
	tags := []string{}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

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

// UserRecord is a stored account including its credentials.
type UserRecord struct {
	model.User
	PasswordHash string

	// RefreshTokenID is the id of the only refresh token currently accepted
	// for the user. Empty after logout.
	RefreshTokenID string
}

var userColumns = []string{"id", "username", "email", "password_hash", "refresh_token_id", "created_at"}

// CreateUser stores a new account. Username and email must be unique.
func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string) (model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" || email == "" || passwordHash == "" {
		return model.User{}, fmt.Errorf("%w: username, email and password are required", ErrInvalid)
	}

	user := model.User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		CreatedAt: s.now().UTC(),
	}
	_, err := s.exec(ctx, sq.Insert("users").
		Columns("id", "username", "email", "password_hash", "created_at").
		Values(user.ID, user.Username, user.Email, passwordHash, timestamp(user.CreatedAt)))
	if isUniqueViolation(err) {
		return model.User{}, fmt.Errorf("%w: username or email already registered", ErrConflict)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	user.CreatedAt = fromTimestamp(timestamp(user.CreatedAt))
	return user, nil
}

// UserByID returns the account with the given id.
func (s *Store) UserByID(ctx context.Context, id string) (UserRecord, error) {
	return s.findUser(ctx, sq.Eq{"id": id})
}

// UserByLogin returns the account whose email or username equals login.
func (s *Store) UserByLogin(ctx context.Context, login string) (UserRecord, error) {
	login = strings.TrimSpace(login)
	return s.findUser(ctx, sq.Or{
		sq.Eq{"email": strings.ToLower(login)},
		sq.Eq{"username": login},
	})
}

// SetRefreshTokenID records the refresh token accepted for the user.
// An empty id revokes every outstanding refresh token.
func (s *Store) SetRefreshTokenID(ctx context.Context, userID, tokenID string) error {
	res, err := s.exec(ctx, sq.Update("users").
		Set("refresh_token_id", tokenID).
		Where(sq.Eq{"id": userID}))
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RotateRefreshTokenID replaces the user's refresh token id with newID,
// provided it still equals oldID. It returns ErrNotFound when the token was
// already rotated or revoked, so a refresh token is accepted at most once.
func (s *Store) RotateRefreshTokenID(ctx context.Context, userID, oldID, newID string) error {
	if oldID == "" {
		return ErrNotFound
	}
	res, err := s.exec(ctx, sq.Update("users").
		Set("refresh_token_id", newID).
		Where(sq.Eq{"id": userID, "refresh_token_id": oldID}))
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) findUser(ctx context.Context, where sq.Sqlizer) (UserRecord, error) {
	row, err := s.queryRow(ctx, sq.Select(userColumns...).From("users").Where(where).Limit(1))
	if err != nil {
		return UserRecord{}, err
	}

	var u UserRecord
	var created int64
	err = row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.RefreshTokenID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return UserRecord{}, ErrNotFound
	}
	if err != nil {
		return UserRecord{}, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = fromTimestamp(created)
	return u, nil
}

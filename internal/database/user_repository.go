package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/nepbot/pkg/models"
)

// UserRepository handles database operations for users
type UserRepository struct{}

// NewUserRepository creates a new repository instance
func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

// Upsert inserts a new user or refreshes the profile fields of an existing one
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO users (id, username, first_name, notification_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			updated_at = excluded.updated_at
	`
	_, err := DB.ExecContext(ctx, DB.Rebind(query),
		user.ID,
		user.Username,
		user.FirstName,
		true,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// GetByID returns a user by Telegram ID, or nil if the user is unknown
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	query := `
		SELECT id, username, first_name, active_child_id, notification_enabled, created_at, updated_at
		FROM users
		WHERE id = ?
	`
	err := DB.GetContext(ctx, &user, DB.Rebind(query), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}
	return &user, nil
}

// SetActiveChild makes childID the child used for feedback and ranking
func (r *UserRepository) SetActiveChild(ctx context.Context, userID, childID int64) error {
	query := `UPDATE users SET active_child_id = ?, updated_at = ? WHERE id = ?`
	result, err := DB.ExecContext(ctx, DB.Rebind(query), childID, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to set active child: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %d not found", userID)
	}
	return nil
}

// SetNotifications turns reminders on or off for a user
func (r *UserRepository) SetNotifications(ctx context.Context, userID int64, enabled bool) error {
	query := `UPDATE users SET notification_enabled = ?, updated_at = ? WHERE id = ?`
	result, err := DB.ExecContext(ctx, DB.Rebind(query), enabled, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to update notifications: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %d not found", userID)
	}
	return nil
}

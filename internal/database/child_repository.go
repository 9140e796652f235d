package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/nepbot/pkg/models"
)

// ChildRepository handles database operations for child profiles
type ChildRepository struct{}

// NewChildRepository creates a new repository instance
func NewChildRepository() *ChildRepository {
	return &ChildRepository{}
}

// Save creates a child or updates the brain profile of an existing one with the same name
func (r *ChildRepository) Save(ctx context.Context, child *models.Child) error {
	if child.CreatedAt.IsZero() {
		child.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO children (user_id, name, brain_profile, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, name) DO UPDATE SET brain_profile = excluded.brain_profile
		RETURNING id
	`
	err := DB.QueryRowxContext(ctx, DB.Rebind(query),
		child.UserID,
		child.Name,
		child.BrainProfile,
		child.CreatedAt,
	).Scan(&child.ID)
	if err != nil {
		return fmt.Errorf("failed to save child: %w", err)
	}
	return nil
}

// GetByID returns a child by ID, or nil if it does not exist
func (r *ChildRepository) GetByID(ctx context.Context, id int64) (*models.Child, error) {
	var child models.Child
	query := `SELECT id, user_id, name, brain_profile, created_at FROM children WHERE id = ?`
	err := DB.GetContext(ctx, &child, DB.Rebind(query), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get child: %w", err)
	}
	return &child, nil
}

// ListByUser returns all children of a user
func (r *ChildRepository) ListByUser(ctx context.Context, userID int64) ([]models.Child, error) {
	query := `
		SELECT id, user_id, name, brain_profile, created_at
		FROM children
		WHERE user_id = ?
		ORDER BY name
	`
	var children []models.Child
	if err := DB.SelectContext(ctx, &children, DB.Rebind(query), userID); err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	return children, nil
}

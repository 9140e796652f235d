package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/nepbot/pkg/models"
)

const scriptColumns = `id, title, category, profile, situation_trigger, emergency_suitable, location,
	phrase_1, phrase_2, phrase_3, action_1, action_2, action_3, neurological_tip`

// ScriptRepository handles database operations for the script library
type ScriptRepository struct{}

// NewScriptRepository creates a new repository instance
func NewScriptRepository() *ScriptRepository {
	return &ScriptRepository{}
}

// Create inserts a new script
func (r *ScriptRepository) Create(ctx context.Context, s *models.Script) error {
	query := `
		INSERT INTO scripts (
			title, category, profile, situation_trigger, emergency_suitable, location,
			phrase_1, phrase_2, phrase_3, action_1, action_2, action_3, neurological_tip
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	err := DB.QueryRowxContext(ctx, DB.Rebind(query),
		s.Title, s.Category, s.Profile, s.SituationTrigger, s.EmergencySuitable, s.Location,
		s.Phrase1, s.Phrase2, s.Phrase3, s.Action1, s.Action2, s.Action3, s.NeurologicalTip,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to create script: %w", err)
	}
	return nil
}

// Update modifies an existing script
func (r *ScriptRepository) Update(ctx context.Context, s *models.Script) error {
	query := `
		UPDATE scripts SET
			title = ?, category = ?, profile = ?, situation_trigger = ?, emergency_suitable = ?,
			location = ?, phrase_1 = ?, phrase_2 = ?, phrase_3 = ?, action_1 = ?, action_2 = ?,
			action_3 = ?, neurological_tip = ?
		WHERE id = ?
	`
	result, err := DB.ExecContext(ctx, DB.Rebind(query),
		s.Title, s.Category, s.Profile, s.SituationTrigger, s.EmergencySuitable, s.Location,
		s.Phrase1, s.Phrase2, s.Phrase3, s.Action1, s.Action2, s.Action3, s.NeurologicalTip,
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update script: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("script %d not found", s.ID)
	}
	return nil
}

// GetByID returns a script by ID, or nil if it does not exist
func (r *ScriptRepository) GetByID(ctx context.Context, id int64) (*models.Script, error) {
	var s models.Script
	err := DB.GetContext(ctx, &s, DB.Rebind(`SELECT `+scriptColumns+` FROM scripts WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get script: %w", err)
	}
	return &s, nil
}

// GetByTitle returns a script by its title (case-insensitive), or nil if it does not exist
func (r *ScriptRepository) GetByTitle(ctx context.Context, title string) (*models.Script, error) {
	var s models.Script
	err := DB.GetContext(ctx, &s, DB.Rebind(`SELECT `+scriptColumns+` FROM scripts WHERE LOWER(title) = LOWER(?)`), title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get script by title: %w", err)
	}
	return &s, nil
}

// EmergencyScripts returns up to limit emergency-suitable scripts, lowest ID first
func (r *ScriptRepository) EmergencyScripts(ctx context.Context, limit int) ([]models.Script, error) {
	query := `SELECT ` + scriptColumns + ` FROM scripts WHERE emergency_suitable = ? ORDER BY id LIMIT ?`
	var scripts []models.Script
	if err := DB.SelectContext(ctx, &scripts, DB.Rebind(query), true, limit); err != nil {
		return nil, fmt.Errorf("failed to get emergency scripts: %w", err)
	}
	return scripts, nil
}

// EmergencyCandidates returns emergency-suitable scripts usable at the given location.
// Scripts without a location are usable anywhere.
func (r *ScriptRepository) EmergencyCandidates(ctx context.Context, location string) ([]models.Script, error) {
	query := `
		SELECT ` + scriptColumns + `
		FROM scripts
		WHERE emergency_suitable = ? AND (location = '' OR LOWER(location) = LOWER(?))
		ORDER BY id
	`
	var scripts []models.Script
	if err := DB.SelectContext(ctx, &scripts, DB.Rebind(query), true, location); err != nil {
		return nil, fmt.Errorf("failed to get emergency candidates: %w", err)
	}
	return scripts, nil
}

// Search returns scripts whose title, category or situation trigger contains q
func (r *ScriptRepository) Search(ctx context.Context, q string, limit int) ([]models.Script, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(q)) + "%"
	query := `
		SELECT ` + scriptColumns + `
		FROM scripts
		WHERE LOWER(title) LIKE ? OR LOWER(category) LIKE ? OR LOWER(situation_trigger) LIKE ?
		ORDER BY emergency_suitable DESC, id
		LIMIT ?
	`
	var scripts []models.Script
	if err := DB.SelectContext(ctx, &scripts, DB.Rebind(query), pattern, pattern, pattern, limit); err != nil {
		return nil, fmt.Errorf("failed to search scripts: %w", err)
	}
	return scripts, nil
}

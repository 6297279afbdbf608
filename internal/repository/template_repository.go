package repository

import (
	"context"
	"database/sql"
	"fmt"

	"sendhorn/internal/models"
)

type templateRepository struct {
	db *sql.DB
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *sql.DB) TemplateRepository {
	return &templateRepository{db: db}
}

// Create creates a new template record
func (r *templateRepository) Create(ctx context.Context, template *models.Template) error {
	query := `
		INSERT INTO templates (name, language, status, category, body_text)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		template.Name,
		template.Language,
		template.Status,
		template.Category,
		template.BodyText,
	).Scan(&template.ID, &template.CreatedAt, &template.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}

	return nil
}

// GetByNameAndLanguage retrieves a template by its unique name/language pair
func (r *templateRepository) GetByNameAndLanguage(ctx context.Context, name, language string) (*models.Template, error) {
	query := `
		SELECT id, name, language, status, category, body_text, created_at, updated_at
		FROM templates
		WHERE name = $1 AND language = $2
	`

	template := &models.Template{}
	err := r.db.QueryRowContext(ctx, query, name, language).Scan(
		&template.ID,
		&template.Name,
		&template.Language,
		&template.Status,
		&template.Category,
		&template.BodyText,
		&template.CreatedAt,
		&template.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("template not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	return template, nil
}

// UpdateStatus records a provider-reported template status change
func (r *templateRepository) UpdateStatus(ctx context.Context, name, language string, status models.TemplateStatus) error {
	query := `
		UPDATE templates
		SET status = $3, updated_at = CURRENT_TIMESTAMP
		WHERE name = $1 AND language = $2
	`

	_, err := r.db.ExecContext(ctx, query, name, language, status)
	if err != nil {
		return fmt.Errorf("failed to update template status: %w", err)
	}

	return nil
}

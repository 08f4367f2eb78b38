package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Settings struct {
	SiteName       string    `json:"site_name"`
	WelcomeMessage string    `json:"welcome_message"`
	GeneralInfo    string    `json:"general_info"`
	ContactInfo    string    `json:"contact_info"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type SettingsInput struct {
	SiteName       string `json:"site_name"`
	WelcomeMessage string `json:"welcome_message"`
	GeneralInfo    string `json:"general_info"`
	ContactInfo    string `json:"contact_info"`
}

var defaults = Settings{
	SiteName:       "Personal Flea Market",
	WelcomeMessage: "Welcome",
	GeneralInfo:    "We are clearing out a few things we no longer need.",
	ContactInfo:    "Contact us for more information.",
}

// Repository stores the single site-settings row. The first read seeds
// the defaults.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context) (Settings, error) {
	var s Settings
	err := r.db.QueryRowContext(ctx, `
		SELECT site_name, welcome_message, general_info, contact_info, updated_at
		FROM site_settings
		WHERE id = 1
	`).Scan(&s.SiteName, &s.WelcomeMessage, &s.GeneralInfo, &s.ContactInfo, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r.seedDefaults(ctx)
		}
		return Settings{}, fmt.Errorf("query site settings: %w", err)
	}

	return s, nil
}

func (r *Repository) seedDefaults(ctx context.Context) (Settings, error) {
	now := time.Now().UTC()
	s := defaults
	s.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO site_settings (id, site_name, welcome_message, general_info, contact_info, created_at, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $5)
		ON CONFLICT (id) DO NOTHING
	`, s.SiteName, s.WelcomeMessage, s.GeneralInfo, s.ContactInfo, now)
	if err != nil {
		return Settings{}, fmt.Errorf("seed site settings: %w", err)
	}

	return s, nil
}

func (r *Repository) Update(ctx context.Context, input SettingsInput) (Settings, error) {
	now := time.Now().UTC()

	var s Settings
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO site_settings (id, site_name, welcome_message, general_info, contact_info, created_at, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $5)
		ON CONFLICT (id) DO UPDATE SET
			site_name = EXCLUDED.site_name,
			welcome_message = EXCLUDED.welcome_message,
			general_info = EXCLUDED.general_info,
			contact_info = EXCLUDED.contact_info,
			updated_at = EXCLUDED.updated_at
		RETURNING site_name, welcome_message, general_info, contact_info, updated_at
	`, input.SiteName, input.WelcomeMessage, input.GeneralInfo, input.ContactInfo, now).
		Scan(&s.SiteName, &s.WelcomeMessage, &s.GeneralInfo, &s.ContactInfo, &s.UpdatedAt)
	if err != nil {
		return Settings{}, fmt.Errorf("update site settings: %w", err)
	}

	return s, nil
}

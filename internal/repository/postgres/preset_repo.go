package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mkarpov/mergerbot/internal/errs"
	"github.com/mkarpov/mergerbot/internal/model"
)

// PresetRepo implements PresetRepository using PostgreSQL. The schema stores
// the four offsets in explicit columns, so records are complete by
// construction and the JSON-document legacy migration does not apply here.
type PresetRepo struct{ db *DB }

// NewPresetRepo constructs a preset repository.
func NewPresetRepo(db *DB) *PresetRepo { return &PresetRepo{db: db} }

// LoadAll selects every preset keyed by name.
func (r *PresetRepo) LoadAll(ctx context.Context) (map[string]model.SpacingOffsets, error) {
	const q = `
SELECT name, image_x, image_y, text_x, text_y FROM presets ORDER BY name`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load presets: %w (%w)", err, errs.ErrStorage)
	}
	defer rows.Close()

	presets := make(map[string]model.SpacingOffsets)
	for rows.Next() {
		var name string
		var sp model.SpacingOffsets
		if err := rows.Scan(&name, &sp.ImageX, &sp.ImageY, &sp.TextX, &sp.TextY); err != nil {
			return nil, fmt.Errorf("scan preset: %w (%w)", err, errs.ErrStorage)
		}
		presets[name] = sp
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load presets: %w (%w)", err, errs.ErrStorage)
	}
	return presets, nil
}

// Load selects a single preset by name.
func (r *PresetRepo) Load(ctx context.Context, name string) (model.SpacingOffsets, error) {
	const q = `
SELECT image_x, image_y, text_x, text_y FROM presets WHERE name=$1`
	row := r.db.Pool.QueryRow(ctx, q, name)
	var sp model.SpacingOffsets
	if err := row.Scan(&sp.ImageX, &sp.ImageY, &sp.TextX, &sp.TextY); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.SpacingOffsets{}, fmt.Errorf("preset %q: %w", name, errs.ErrNotFound)
		}
		return model.SpacingOffsets{}, fmt.Errorf("load preset: %w (%w)", err, errs.ErrStorage)
	}
	return sp, nil
}

// Save upserts a preset row.
func (r *PresetRepo) Save(ctx context.Context, name string, sp model.SpacingOffsets) error {
	const q = `
INSERT INTO presets (name, image_x, image_y, text_x, text_y)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (name) DO UPDATE
SET image_x=EXCLUDED.image_x, image_y=EXCLUDED.image_y,
    text_x=EXCLUDED.text_x, text_y=EXCLUDED.text_y`
	if _, err := r.db.Pool.Exec(ctx, q, name, sp.ImageX, sp.ImageY, sp.TextX, sp.TextY); err != nil {
		return fmt.Errorf("save preset %q: %w (%w)", name, err, errs.ErrStorage)
	}
	return nil
}

// Delete removes a preset row.
func (r *PresetRepo) Delete(ctx context.Context, name string) error {
	const q = `DELETE FROM presets WHERE name=$1`
	tag, err := r.db.Pool.Exec(ctx, q, name)
	if err != nil {
		return fmt.Errorf("delete preset %q: %w (%w)", name, err, errs.ErrStorage)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("preset %q: %w", name, errs.ErrNotFound)
	}
	return nil
}

// Package repository defines durable storage contracts for spacing presets.
package repository

import (
	"context"

	"github.com/mkarpov/mergerbot/internal/model"
)

// PresetRepository is a durable, named store of spacing offsets.
//
// Implementations must serialize concurrent writes: the backing document is a
// single-writer resource and a lost update on near-simultaneous saves is a bug.
type PresetRepository interface {
	// LoadAll returns every stored preset keyed by name. Records are always
	// complete; any offset missing from the stored form is back-filled with 0.
	LoadAll(ctx context.Context) (map[string]model.SpacingOffsets, error)

	// Load returns a single preset by name, or errs.ErrNotFound.
	Load(ctx context.Context, name string) (model.SpacingOffsets, error)

	// Save creates or replaces the preset stored under name.
	Save(ctx context.Context, name string, spacing model.SpacingOffsets) error

	// Delete removes a preset, or returns errs.ErrNotFound.
	Delete(ctx context.Context, name string) error
}

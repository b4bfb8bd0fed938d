// Package file implements PresetRepository over a single JSON document.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/mkarpov/mergerbot/internal/errs"
	"github.com/mkarpov/mergerbot/internal/model"
)

// record is the stored form of one preset. Spacing stays a free-form map so
// legacy documents with directional keys can be inspected before migration.
type record struct {
	Spacing map[string]int `json:"spacing"`
}

var currentKeys = map[string]bool{
	"image_x": true,
	"image_y": true,
	"text_x":  true,
	"text_y":  true,
}

// Repo implements PresetRepository using a JSON file.
//
// All operations are read-modify-write under a single mutex, and every write
// goes through a temp file plus rename so a crash never leaves a torn document.
type Repo struct {
	path string
	log  *zap.Logger
	mu   sync.Mutex
}

// NewRepo constructs a preset repository persisting to path.
func NewRepo(path string, log *zap.Logger) *Repo {
	return &Repo{path: path, log: log}
}

// LoadAll returns every stored preset. Legacy records are migrated to default
// offsets and, if anything changed, the whole document is rewritten so the
// migration runs at most once per stale record.
func (r *Repo) LoadAll(_ context.Context) (map[string]model.SpacingOffsets, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked()
}

// Load returns a single preset by name.
func (r *Repo) Load(_ context.Context, name string) (model.SpacingOffsets, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	presets, err := r.loadLocked()
	if err != nil {
		return model.SpacingOffsets{}, err
	}
	sp, ok := presets[name]
	if !ok {
		return model.SpacingOffsets{}, fmt.Errorf("preset %q: %w", name, errs.ErrNotFound)
	}
	return sp, nil
}

// Save creates or replaces the preset stored under name.
func (r *Repo) Save(_ context.Context, name string, spacing model.SpacingOffsets) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	presets, err := r.loadLocked()
	if err != nil {
		return err
	}
	presets[name] = spacing
	return r.writeLocked(presets)
}

// Delete removes a preset by name.
func (r *Repo) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	presets, err := r.loadLocked()
	if err != nil {
		return err
	}
	if _, ok := presets[name]; !ok {
		return fmt.Errorf("preset %q: %w", name, errs.ErrNotFound)
	}
	delete(presets, name)
	return r.writeLocked(presets)
}

// loadLocked reads and migrates the document. Caller holds r.mu.
func (r *Repo) loadLocked() (map[string]model.SpacingOffsets, error) {
	raw, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]model.SpacingOffsets{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w (%w)", r.path, err, errs.ErrStorage)
	}

	var records map[string]record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w (%w)", r.path, err, errs.ErrStorage)
	}

	presets := make(map[string]model.SpacingOffsets, len(records))
	migrated := false
	for name, rec := range records {
		if isLegacy(rec.Spacing) {
			r.log.Info("migrating legacy preset to default offsets", zap.String("preset", name))
			presets[name] = model.SpacingOffsets{}
			migrated = true
			continue
		}
		// Back-fill anything missing so consumers never see a partial record.
		presets[name] = model.SpacingOffsets{
			ImageX: rec.Spacing["image_x"],
			ImageY: rec.Spacing["image_y"],
			TextX:  rec.Spacing["text_x"],
			TextY:  rec.Spacing["text_y"],
		}
	}

	if migrated {
		// Persist the migrated set so the rewrite happens only once.
		// Failure here is logged but not fatal; the in-memory set is valid.
		if err := r.writeLocked(presets); err != nil {
			r.log.Error("persisting migrated presets", zap.Error(err))
		}
	}
	return presets, nil
}

// isLegacy reports whether a stored spacing uses the old directional schema:
// at least one unknown key and none of the current ones. The rule is a
// key-presence heuristic carried over from the original document format,
// which has no version marker.
func isLegacy(spacing map[string]int) bool {
	if _, ok := spacing["image_x"]; ok {
		return false
	}
	for k := range spacing {
		if !currentKeys[k] {
			return true
		}
	}
	return false
}

// writeLocked atomically replaces the document. Caller holds r.mu.
func (r *Repo) writeLocked(presets map[string]model.SpacingOffsets) error {
	records := make(map[string]record, len(presets))
	for name, sp := range presets {
		records[name] = record{Spacing: map[string]int{
			"image_x": sp.ImageX,
			"image_y": sp.ImageY,
			"text_x":  sp.TextX,
			"text_y":  sp.TextY,
		}}
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode presets: %w (%w)", err, errs.ErrStorage)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".presets-*")
	if err != nil {
		return fmt.Errorf("temp file: %w (%w)", err, errs.ErrStorage)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w (%w)", tmpName, err, errs.ErrStorage)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w (%w)", tmpName, err, errs.ErrStorage)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w (%w)", r.path, err, errs.ErrStorage)
	}
	return nil
}

package file

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/mkarpov/mergerbot/internal/errs"
	"github.com/mkarpov/mergerbot/internal/model"
)

func newTestRepo(t *testing.T) (*Repo, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "presets.json")
	return NewRepo(path, zap.NewNop()), path
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, path := newTestRepo(t)

	want := model.SpacingOffsets{ImageX: 20, ImageY: -10, TextX: 0, TextY: 5}
	if err := repo.Save(ctx, "Demo", want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh instance over the same file must see the exact same offsets.
	reopened := NewRepo(path, zap.NewNop())
	got, err := reopened.Load(ctx, "Demo")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Fatalf("Load = %+v, want %+v", got, want)
	}
}

func TestLoadAllEmptyWhenFileMissing(t *testing.T) {
	repo, _ := newTestRepo(t)

	presets, err := repo.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(presets) != 0 {
		t.Fatalf("LoadAll = %v, want empty", presets)
	}
}

func TestLoadUnknownPreset(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.Load(context.Background(), "nope")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	if err := repo.Save(ctx, "gone", model.SpacingOffsets{ImageX: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Load(ctx, "gone"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("Load after delete: err = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, "gone"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("second Delete: err = %v, want ErrNotFound", err)
	}
}

func TestSaveReplacesExisting(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	if err := repo.Save(ctx, "p", model.SpacingOffsets{ImageX: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	want := model.SpacingOffsets{TextY: 7}
	if err := repo.Save(ctx, "p", want); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	got, err := repo.Load(ctx, "p")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != want {
		t.Fatalf("Load = %+v, want %+v", got, want)
	}
}

func TestLegacyMigration(t *testing.T) {
	ctx := context.Background()
	repo, path := newTestRepo(t)

	legacy := `{"old": {"spacing": {"top": 5, "right": 3}}, "new": {"spacing": {"image_x": 8, "image_y": 0, "text_x": 0, "text_y": -2}}}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	presets, err := repo.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if got := presets["old"]; got != (model.SpacingOffsets{}) {
		t.Fatalf("migrated preset = %+v, want zero offsets", got)
	}
	if got, want := presets["new"], (model.SpacingOffsets{ImageX: 8, TextY: -2}); got != want {
		t.Fatalf("current preset = %+v, want %+v", got, want)
	}

	// The migration rewrites the document in the current schema exactly once.
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read rewritten file: %v", err)
	}
	var records map[string]record
	if err := json.Unmarshal(first, &records); err != nil {
		t.Fatalf("parse rewritten file: %v", err)
	}
	if _, ok := records["old"].Spacing["top"]; ok {
		t.Fatal("legacy key survived the rewrite")
	}
	if records["old"].Spacing["image_x"] != 0 {
		t.Fatalf("rewritten record = %v, want zero offsets", records["old"].Spacing)
	}

	if _, err := repo.LoadAll(ctx); err != nil {
		t.Fatalf("second LoadAll: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(first) != string(second) {
		t.Fatal("document changed on a second load, migration should be one-shot")
	}
}

func TestPartialRecordBackfill(t *testing.T) {
	repo, path := newTestRepo(t)

	partial := `{"p": {"spacing": {"image_x": 12}}}`
	if err := os.WriteFile(path, []byte(partial), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	got, err := repo.Load(context.Background(), "p")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := (model.SpacingOffsets{ImageX: 12}); got != want {
		t.Fatalf("Load = %+v, want %+v", got, want)
	}
}

func TestCorruptDocument(t *testing.T) {
	repo, path := newTestRepo(t)

	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if _, err := repo.LoadAll(context.Background()); !errors.Is(err, errs.ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
}

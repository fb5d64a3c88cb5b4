package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/acme/dataroom/internal/model"
	"github.com/acme/dataroom/internal/store"
)

func TestTokenLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.GetToken(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for empty store, got %v", err)
	}

	if err := s.SaveToken(ctx, &model.OAuthToken{AccessToken: "a", EncryptedRefreshToken: "r"}); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}

	tok, err := s.GetToken(ctx)
	if err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}
	if tok.AccessToken != "a" {
		t.Errorf("Expected access token 'a', got '%s'", tok.AccessToken)
	}
	if tok.UpdatedAt.IsZero() {
		t.Error("Expected UpdatedAt to be set")
	}

	if err := s.DeleteToken(ctx); err != nil {
		t.Fatalf("DeleteToken failed: %v", err)
	}
	if _, err := s.GetToken(ctx); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestInsertRejectsDuplicateDriveID(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.Insert(ctx, &model.ImportedFile{Name: "a", DriveID: "d1"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	err := s.Insert(ctx, &model.ImportedFile{Name: "b", DriveID: "d1"})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
}

func TestListAndSearchOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now().UTC()

	s.Insert(ctx, &model.ImportedFile{Name: "old report", DriveID: "d1", CreatedAt: base.Add(-2 * time.Hour)})
	s.Insert(ctx, &model.ImportedFile{Name: "new report", DriveID: "d2", CreatedAt: base})
	s.Insert(ctx, &model.ImportedFile{Name: "invoice", DriveID: "d3", CreatedAt: base.Add(-1 * time.Hour)})

	files, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(files) != 3 || files[0].Name != "new report" || files[2].Name != "old report" {
		t.Errorf("Expected newest-first order, got %v", files)
	}

	found, err := s.Search(ctx, "REPORT")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("Expected 2 matches, got %d", len(found))
	}
	if found[0].Name != "new report" {
		t.Errorf("Expected 'new report' first, got '%s'", found[0].Name)
	}
}

func TestGetDeleteNotFound(t *testing.T) {
	s := New()
	ctx := context.Background()

	f := &model.ImportedFile{Name: "a", DriveID: "d1"}
	if err := s.Insert(ctx, f); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := s.Get(ctx, f.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "a" {
		t.Errorf("Expected name 'a', got '%s'", got.Name)
	}

	if _, err := s.Get(ctx, 999); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, 999); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := s.Delete(ctx, f.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.GetByDriveID(ctx, "d1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

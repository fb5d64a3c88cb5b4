// Package memory is an in-memory storage driver used by tests and by
// STORAGE_DRIVER=memory in local development. Nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/acme/dataroom/internal/model"
	"github.com/acme/dataroom/internal/store"
)

// Store implements store.Store with mutex-guarded maps.
type Store struct {
	mu     sync.RWMutex
	token  *model.OAuthToken
	files  map[int64]model.ImportedFile
	nextID int64
}

var _ store.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{files: make(map[int64]model.ImportedFile), nextID: 1}
}

// Close is a no-op for the in-memory driver.
func (s *Store) Close() error { return nil }

func (s *Store) GetToken(ctx context.Context) (*model.OAuthToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return nil, store.ErrNotFound
	}
	tok := *s.token
	return &tok, nil
}

func (s *Store) SaveToken(ctx context.Context, token *model.OAuthToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok := *token
	tok.UpdatedAt = time.Now().UTC()
	s.token = &tok
	return nil
}

func (s *Store) DeleteToken(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
	return nil
}

func (s *Store) Insert(ctx context.Context, file *model.ImportedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.files {
		if f.DriveID == file.DriveID {
			return store.ErrDuplicate
		}
	}

	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}
	file.ID = s.nextID
	s.nextID++
	s.files[file.ID] = *file
	return nil
}

func (s *Store) List(ctx context.Context) ([]model.ImportedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(model.ImportedFile) bool { return true }), nil
}

func (s *Store) Search(ctx context.Context, substring string) ([]model.ImportedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(substring)
	return s.collect(func(f model.ImportedFile) bool {
		return strings.Contains(strings.ToLower(f.Name), needle)
	}), nil
}

func (s *Store) Get(ctx context.Context, id int64) (*model.ImportedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &f, nil
}

func (s *Store) GetByDriveID(ctx context.Context, driveID string) (*model.ImportedFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.files {
		if f.DriveID == driveID {
			return &f, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.files, id)
	return nil
}

// collect filters and sorts newest-first. Callers hold the lock.
func (s *Store) collect(keep func(model.ImportedFile) bool) []model.ImportedFile {
	files := []model.ImportedFile{}
	for _, f := range s.files {
		if keep(f) {
			files = append(files, f)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].CreatedAt.Equal(files[j].CreatedAt) {
			return files[i].CreatedAt.After(files[j].CreatedAt)
		}
		return files[i].ID > files[j].ID
	})
	return files
}

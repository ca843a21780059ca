package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/repository"
)

// FileStore keeps uploaded files of one identity. Metadata is held in
// memory and mirrored through the write queue; contents go straight to the
// blob table.
type FileStore struct {
	owner string
	store repository.Store
	queue *writeBehind

	mu    sync.RWMutex
	files map[uuid.UUID]*domain.StoredFile
}

func NewFileStore(store repository.Store, owner string) *FileStore {
	return &FileStore{
		owner: owner,
		store: store,
		queue: newWriteBehind("files"),
		files: make(map[uuid.UUID]*domain.StoredFile),
	}
}

func (s *FileStore) Load(ctx context.Context) error {
	recs, err := s.store.List(ctx, repository.TableFiles, s.owner, repository.Query{})
	if err != nil {
		return fmt.Errorf("load files: %w", err)
	}
	files := make(map[uuid.UUID]*domain.StoredFile, len(recs))
	for _, rec := range recs {
		var f domain.StoredFile
		if err := json.Unmarshal(rec.Data, &f); err != nil {
			return fmt.Errorf("decode file %s: %w", rec.ID, err)
		}
		files[f.ID] = &f
	}

	s.mu.Lock()
	s.files = files
	s.mu.Unlock()
	return nil
}

// UploadFile stores data and returns its metadata. The contents are written
// before the file becomes visible.
func (s *FileStore) UploadFile(ctx context.Context, name, mimeType string, data []byte) (*domain.StoredFile, error) {
	f := &domain.StoredFile{
		ID:         uuid.New(),
		OwnerID:    s.owner,
		Name:       name,
		Type:       mimeType,
		Size:       int64(len(data)),
		UploadedAt: nowUTC(),
	}
	if err := s.store.PutBlob(ctx, s.owner, f.ID.String(), data); err != nil {
		return nil, fmt.Errorf("save file: %w", err)
	}

	rec, _ := json.Marshal(f)
	row := repository.Record{
		Table:     repository.TableFiles,
		Owner:     s.owner,
		ID:        f.ID.String(),
		CreatedAt: f.UploadedAt,
		UpdatedAt: f.UploadedAt,
		Data:      rec,
	}

	s.mu.Lock()
	s.files[f.ID] = f
	s.queue.enqueue("upload file", func(ctx context.Context) error {
		return s.store.Put(ctx, row)
	})
	s.mu.Unlock()

	out := *f
	return &out, nil
}

func (s *FileStore) GetFile(id uuid.UUID) (*domain.StoredFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[id]
	if !ok {
		return nil, domain.ErrFileNotFound
	}
	out := *f
	return &out, nil
}

// GetFileData returns the contents of a file.
func (s *FileStore) GetFileData(ctx context.Context, id uuid.UUID) ([]byte, error) {
	if _, err := s.GetFile(id); err != nil {
		return nil, err
	}
	data, err := s.store.GetBlob(ctx, s.owner, id.String())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrFileNotFound
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// ListFiles returns every file, newest first.
func (s *FileStore) ListFiles() []*domain.StoredFile {
	return s.filter(func(*domain.StoredFile) bool { return true })
}

// FilesByType returns the files whose MIME type starts with prefix, newest first.
func (s *FileStore) FilesByType(prefix string) []*domain.StoredFile {
	return s.filter(func(f *domain.StoredFile) bool { return strings.HasPrefix(f.Type, prefix) })
}

func (s *FileStore) filter(keep func(*domain.StoredFile) bool) []*domain.StoredFile {
	s.mu.RLock()
	out := make([]*domain.StoredFile, 0, len(s.files))
	for _, f := range s.files {
		if keep(f) {
			c := *f
			out = append(out, &c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	return out
}

func (s *FileStore) TotalSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, f := range s.files {
		total += f.Size
	}
	return total
}

func (s *FileStore) DeleteFile(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[id]; !ok {
		return domain.ErrFileNotFound
	}
	delete(s.files, id)

	key := id.String()
	s.queue.enqueue("delete file", func(ctx context.Context) error {
		if err := s.store.Delete(ctx, repository.TableFiles, s.owner, key); err != nil {
			return err
		}
		return s.store.DeleteBlobs(ctx, s.owner, key)
	})
	return nil
}

// Clear removes every file of the identity.
func (s *FileStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.files))
	for id := range s.files {
		ids = append(ids, id.String())
	}
	s.files = make(map[uuid.UUID]*domain.StoredFile)

	s.queue.enqueue("clear files", func(ctx context.Context) error {
		if err := s.store.Delete(ctx, repository.TableFiles, s.owner, ids...); err != nil {
			return err
		}
		return s.store.DeleteBlobs(ctx, s.owner, ids...)
	})
}

func (s *FileStore) Flush(ctx context.Context) error {
	return s.queue.Flush(ctx)
}

func (s *FileStore) Close() {
	s.queue.Close()
}

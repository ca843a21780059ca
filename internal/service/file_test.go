package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/repository"
)

func TestUploadAndReadFile(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(openStore(t), testDID)
	t.Cleanup(s.Close)

	f, err := s.UploadFile(ctx, "photo.png", "image/png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "photo.png", f.Name)
	assert.EqualValues(t, 9, f.Size)
	assert.Equal(t, testDID, f.OwnerID)
	assert.True(t, f.IsImage())

	got, err := s.GetFile(f.ID)
	require.NoError(t, err)
	assert.Equal(t, f, got)

	data, err := s.GetFileData(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	_, err = s.GetFile(uuid.New())
	assert.ErrorIs(t, err, domain.ErrFileNotFound)
	_, err = s.GetFileData(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrFileNotFound)
}

func TestListFilesByTypeAndSize(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(openStore(t), testDID)
	t.Cleanup(s.Close)

	img, err := s.UploadFile(ctx, "a.png", "image/png", make([]byte, 100))
	require.NoError(t, err)
	txt, err := s.UploadFile(ctx, "b.txt", "text/plain", make([]byte, 20))
	require.NoError(t, err)

	assert.Len(t, s.ListFiles(), 2)
	images := s.FilesByType("image/")
	require.Len(t, images, 1)
	assert.Equal(t, img.ID, images[0].ID)
	assert.Empty(t, s.FilesByType("application/pdf"))
	assert.EqualValues(t, 120, s.TotalSize())

	require.NoError(t, s.DeleteFile(txt.ID))
	assert.ErrorIs(t, s.DeleteFile(txt.ID), domain.ErrFileNotFound)
	assert.EqualValues(t, 100, s.TotalSize())
}

func TestFilesPersistAndClear(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	s := NewFileStore(store, testDID)
	kept, err := s.UploadFile(ctx, "kept.pdf", "application/pdf", []byte("%PDF"))
	require.NoError(t, err)
	gone, err := s.UploadFile(ctx, "gone.txt", "text/plain", []byte("bye"))
	require.NoError(t, err)
	require.NoError(t, s.DeleteFile(gone.ID))
	s.Close()

	_, err = store.GetBlob(ctx, testDID, gone.ID.String())
	assert.ErrorIs(t, err, repository.ErrNotFound)

	reloaded := NewFileStore(store, testDID)
	t.Cleanup(reloaded.Close)
	require.NoError(t, reloaded.Load(ctx))
	files := reloaded.ListFiles()
	require.Len(t, files, 1)
	assert.Equal(t, kept.ID, files[0].ID)
	data, err := reloaded.GetFileData(ctx, kept.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), data)

	reloaded.Clear()
	require.NoError(t, reloaded.Flush(ctx))
	assert.Empty(t, reloaded.ListFiles())
	recs, err := store.List(ctx, repository.TableFiles, testDID, repository.Query{})
	require.NoError(t, err)
	assert.Empty(t, recs)
	_, err = store.GetBlob(ctx, testDID, kept.ID.String())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

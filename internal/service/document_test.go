package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/set-night/mindcanvas/internal/domain"
)

func newDocuments(t *testing.T) *DocumentStore {
	t.Helper()
	s := NewDocumentStore(openStore(t), testDID)
	t.Cleanup(s.Close)
	return s
}

func TestCreateDocumentRoundTrip(t *testing.T) {
	s := newDocuments(t)

	for _, kind := range domain.Kinds {
		id := s.CreateDocument("Notes", kind)
		doc, err := s.GetDocument(id)
		require.NoError(t, err)
		assert.Nil(t, doc.Content)
		assert.Equal(t, "Notes", doc.Title)
		assert.Equal(t, kind, doc.Kind)
		assert.Equal(t, testDID, doc.OwnerID)
		assert.True(t, doc.CreatedAt.Equal(doc.UpdatedAt))
	}
}

func TestUpdateDocumentUnknownID(t *testing.T) {
	s := newDocuments(t)
	s.CreateDocument("a", domain.KindText)
	before := s.ListDocuments()

	title := "x"
	_, err := s.UpdateDocument(uuid.New(), DocumentUpdate{Title: &title})
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	assert.Equal(t, before, s.ListDocuments())
}

func TestVersionChain(t *testing.T) {
	s := newDocuments(t)
	id := s.CreateDocument("Essay", domain.KindText)

	contents := []string{"one", "two", "three"}
	var prev *domain.Document
	for _, c := range contents {
		doc, err := s.SetDocumentContent(id, c)
		require.NoError(t, err)
		if prev != nil {
			assert.False(t, doc.UpdatedAt.Before(prev.UpdatedAt))
		}
		prev = doc
	}

	// same content again does not add a version
	_, err := s.SetDocumentContent(id, "three")
	require.NoError(t, err)

	versions, err := s.Versions(id)
	require.NoError(t, err)
	require.Len(t, versions, len(contents))
	for i, v := range versions {
		assert.Equal(t, i, v.Index)
		assert.Equal(t, contents[i], v.Content)
	}

	latest, err := s.Version(id, len(versions)-1)
	require.NoError(t, err)
	doc, err := s.GetDocument(id)
	require.NoError(t, err)
	assert.Equal(t, doc.ContentString(), latest.Content)

	_, err = s.Version(id, len(versions))
	assert.ErrorIs(t, err, domain.ErrVersionNotFound)
	_, err = s.Version(id, -1)
	assert.ErrorIs(t, err, domain.ErrVersionNotFound)
}

func TestRestoreVersionTruncates(t *testing.T) {
	s := newDocuments(t)
	id := s.CreateDocument("Essay", domain.KindText)
	for _, c := range []string{"v0", "v1", "v2"} {
		_, err := s.SetDocumentContent(id, c)
		require.NoError(t, err)
	}

	doc, err := s.RestoreVersion(id, 0)
	require.NoError(t, err)
	assert.Equal(t, "v0", doc.ContentString())

	versions, err := s.Versions(id)
	require.NoError(t, err)
	require.Len(t, versions, 1)

	_, err = s.SetDocumentContent(id, "v1b")
	require.NoError(t, err)
	v, err := s.Version(id, 1)
	require.NoError(t, err)
	assert.Equal(t, "v1b", v.Content)
}

func TestDeleteDocumentCascades(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	s := NewDocumentStore(store, testDID)
	defer s.Close()

	id := s.CreateDocument("Doc", domain.KindText)
	_, err := s.SetDocumentContent(id, "hello")
	require.NoError(t, err)
	sid := s.CreateSuggestion(id, "hello", "hi", "shorter")
	other := s.CreateDocument("Other", domain.KindCode)
	keep := s.CreateSuggestion(other, "a", "b", "c")

	require.NoError(t, s.DeleteDocument(id))
	_, err = s.GetDocument(id)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	_, err = s.GetSuggestion(sid)
	assert.ErrorIs(t, err, domain.ErrSuggestionNotFound)
	_, err = s.GetSuggestion(keep)
	assert.NoError(t, err)
	assert.ErrorIs(t, s.DeleteDocument(id), domain.ErrDocumentNotFound)

	require.NoError(t, s.Flush(ctx))
	reloaded := NewDocumentStore(store, testDID)
	defer reloaded.Close()
	require.NoError(t, reloaded.Load(ctx))
	assert.Len(t, reloaded.ListDocuments(), 1)
	assert.Empty(t, reloaded.SuggestionsByDocument(id))
	assert.Len(t, reloaded.SuggestionsByDocument(other), 1)
}

func TestSuggestions(t *testing.T) {
	s := newDocuments(t)
	docID := s.CreateDocument("Doc", domain.KindText)

	// no check that the document exists
	orphan := s.CreateSuggestion(uuid.New(), "a", "b", "c")
	_, err := s.GetSuggestion(orphan)
	require.NoError(t, err)

	first := s.CreateSuggestion(docID, "teh", "the", "typo")
	second := s.CreateSuggestion(docID, "alot", "a lot", "spelling")

	list := s.SuggestionsByDocument(docID)
	require.Len(t, list, 2)
	assert.False(t, list[0].CreatedAt.Before(list[1].CreatedAt))

	require.NoError(t, s.ResolveSuggestion(first))
	require.NoError(t, s.ResolveSuggestion(first))
	sg, err := s.GetSuggestion(first)
	require.NoError(t, err)
	assert.True(t, sg.IsResolved)

	desc := "spelling fix"
	updated, err := s.UpdateSuggestion(second, SuggestionUpdate{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)
	assert.False(t, updated.IsResolved)

	require.NoError(t, s.DeleteSuggestion(second))
	assert.ErrorIs(t, s.DeleteSuggestion(second), domain.ErrSuggestionNotFound)
	assert.ErrorIs(t, s.ResolveSuggestion(uuid.New()), domain.ErrSuggestionNotFound)
}

func TestListDocumentsOrder(t *testing.T) {
	s := newDocuments(t)
	a := s.CreateDocument("a", domain.KindText)
	b := s.CreateDocument("b", domain.KindText)
	time.Sleep(2 * time.Millisecond)
	_, err := s.SetDocumentContent(a, "touched")
	require.NoError(t, err)

	docs := s.ListDocuments()
	require.Len(t, docs, 2)
	assert.Equal(t, a, docs[0].ID)
	assert.Equal(t, b, docs[1].ID)
}

func TestDocumentsReload(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	s := NewDocumentStore(store, testDID)
	content := "print(1)"
	created := s.CreateDocumentWithID(uuid.New(), "Script", domain.KindCode, &content)
	_, err := s.SetDocumentContent(created.ID, "print(2)")
	require.NoError(t, err)
	s.CreateSuggestion(created.ID, "1", "2", "bump")
	require.NoError(t, s.Flush(ctx))
	s.Close()

	reloaded := NewDocumentStore(store, testDID)
	defer reloaded.Close()
	require.NoError(t, reloaded.Load(ctx))

	doc, err := reloaded.GetDocument(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "print(2)", doc.ContentString())
	assert.Equal(t, domain.KindCode, doc.Kind)

	versions, err := reloaded.Versions(created.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "print(1)", versions[0].Content)
	assert.Len(t, reloaded.SuggestionsByDocument(created.ID), 1)
}

func TestDocumentsClear(t *testing.T) {
	s := newDocuments(t)
	id := s.CreateDocument("a", domain.KindText)
	s.CreateSuggestion(id, "x", "y", "z")
	s.ReplaceArtifact(domain.UIArtifact{DocumentID: id.String(), IsVisible: true, Status: domain.StatusStreaming})

	s.Clear()
	assert.Empty(t, s.ListDocuments())
	assert.Empty(t, s.SuggestionsByDocument(id))
	assert.Equal(t, domain.InitialArtifact(), s.Artifact())
}

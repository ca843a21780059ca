package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/repository"
)

// DocumentUpdate carries the fields to merge; nil fields are left alone.
type DocumentUpdate struct {
	Title   *string
	Kind    *domain.Kind
	Content *string
}

type SuggestionUpdate struct {
	OriginalText  *string
	SuggestedText *string
	Description   *string
	IsResolved    *bool
}

// DocumentStore owns the documents, their version chains, suggestions and
// the single artifact view-model of one identity.
type DocumentStore struct {
	owner string
	store repository.Store
	queue *writeBehind

	mu          sync.RWMutex
	docs        map[uuid.UUID]*domain.Document
	versions    map[uuid.UUID][]domain.DocumentVersion
	suggestions map[uuid.UUID]*domain.Suggestion
	changes     notifier[struct{}]

	artMu      sync.RWMutex
	artifact   domain.UIArtifact
	metadata   map[string]map[string]any
	artChanges notifier[domain.UIArtifact]
}

func NewDocumentStore(store repository.Store, owner string) *DocumentStore {
	return &DocumentStore{
		owner:       owner,
		store:       store,
		queue:       newWriteBehind("documents"),
		docs:        make(map[uuid.UUID]*domain.Document),
		versions:    make(map[uuid.UUID][]domain.DocumentVersion),
		suggestions: make(map[uuid.UUID]*domain.Suggestion),
		artifact:    domain.InitialArtifact(),
		metadata:    make(map[string]map[string]any),
	}
}

// Load replaces the in-memory state with what storage holds for the owner.
func (s *DocumentStore) Load(ctx context.Context) error {
	docRecs, err := s.store.List(ctx, repository.TableDocuments, s.owner, repository.Query{})
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	verRecs, err := s.store.List(ctx, repository.TableVersions, s.owner, repository.Query{})
	if err != nil {
		return fmt.Errorf("load versions: %w", err)
	}
	sugRecs, err := s.store.List(ctx, repository.TableSuggestions, s.owner, repository.Query{})
	if err != nil {
		return fmt.Errorf("load suggestions: %w", err)
	}

	docs := make(map[uuid.UUID]*domain.Document, len(docRecs))
	for _, rec := range docRecs {
		var d domain.Document
		if err := json.Unmarshal(rec.Data, &d); err != nil {
			return fmt.Errorf("decode document %s: %w", rec.ID, err)
		}
		docs[d.ID] = &d
	}

	versions := make(map[uuid.UUID][]domain.DocumentVersion)
	for _, rec := range verRecs {
		var v domain.DocumentVersion
		if err := json.Unmarshal(rec.Data, &v); err != nil {
			return fmt.Errorf("decode version %s: %w", rec.ID, err)
		}
		versions[v.DocumentID] = append(versions[v.DocumentID], v)
	}
	for id, chain := range versions {
		sort.Slice(chain, func(i, j int) bool { return chain[i].Index < chain[j].Index })
		versions[id] = chain
	}

	suggestions := make(map[uuid.UUID]*domain.Suggestion, len(sugRecs))
	for _, rec := range sugRecs {
		var sg domain.Suggestion
		if err := json.Unmarshal(rec.Data, &sg); err != nil {
			return fmt.Errorf("decode suggestion %s: %w", rec.ID, err)
		}
		suggestions[sg.ID] = &sg
	}

	s.mu.Lock()
	s.docs = docs
	s.versions = versions
	s.suggestions = suggestions
	s.mu.Unlock()
	s.changes.publish(struct{}{})
	return nil
}

// CreateDocument inserts an empty document and returns its id.
func (s *DocumentStore) CreateDocument(title string, kind domain.Kind) uuid.UUID {
	id := uuid.New()
	s.CreateDocumentWithID(id, title, kind, nil)
	return id
}

// CreateDocumentWithID inserts a document under a caller-chosen id. A non-nil
// content becomes version 0. An existing document with the same id is replaced.
func (s *DocumentStore) CreateDocumentWithID(id uuid.UUID, title string, kind domain.Kind, content *string) *domain.Document {
	now := nowUTC()
	doc := &domain.Document{
		ID:        id,
		OwnerID:   s.owner,
		Title:     title,
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if content != nil {
		c := *content
		doc.Content = &c
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stale := s.versionIDs(id)
	s.docs[id] = doc
	delete(s.versions, id)
	if doc.Content != nil {
		s.versions[id] = []domain.DocumentVersion{{DocumentID: id, Index: 0, Content: *doc.Content, CreatedAt: now}}
	}

	recs := []repository.Record{s.documentRecord(doc)}
	recs = append(recs, s.versionRecords(id, 0)...)
	s.queue.enqueue("create document", func(ctx context.Context) error {
		if len(stale) > 0 {
			if err := s.store.Delete(ctx, repository.TableVersions, s.owner, stale...); err != nil {
				return err
			}
		}
		return s.store.Put(ctx, recs...)
	})
	s.changes.publish(struct{}{})
	return doc.Clone()
}

func (s *DocumentStore) GetDocument(id uuid.UUID) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return doc.Clone(), nil
}

// ListDocuments returns all documents, most recently updated first.
func (s *DocumentStore) ListDocuments() []*domain.Document {
	s.mu.RLock()
	out := make([]*domain.Document, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// UpdateDocument merges upd into the document. A changed content appends a version.
func (s *DocumentStore) UpdateDocument(id uuid.UUID, upd DocumentUpdate) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	if upd.Title != nil {
		doc.Title = *upd.Title
	}
	if upd.Kind != nil {
		doc.Kind = *upd.Kind
	}

	from := len(s.versions[id])
	if upd.Content != nil && (doc.Content == nil || *doc.Content != *upd.Content) {
		c := *upd.Content
		doc.Content = &c
		s.versions[id] = append(s.versions[id], domain.DocumentVersion{
			DocumentID: id,
			Index:      from,
			Content:    c,
			CreatedAt:  nowUTC(),
		})
	}
	doc.UpdatedAt = nextUpdate(doc.UpdatedAt)

	recs := []repository.Record{s.documentRecord(doc)}
	recs = append(recs, s.versionRecords(id, from)...)
	s.queue.enqueue("update document", func(ctx context.Context) error {
		return s.store.Put(ctx, recs...)
	})
	s.changes.publish(struct{}{})
	return doc.Clone(), nil
}

func (s *DocumentStore) SetDocumentContent(id uuid.UUID, content string) (*domain.Document, error) {
	return s.UpdateDocument(id, DocumentUpdate{Content: &content})
}

// DeleteDocument removes the document together with its versions and suggestions.
func (s *DocumentStore) DeleteDocument(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return domain.ErrDocumentNotFound
	}
	delete(s.docs, id)
	delete(s.versions, id)
	for sid, sg := range s.suggestions {
		if sg.DocumentID == id {
			delete(s.suggestions, sid)
		}
	}

	parent := id.String()
	s.queue.enqueue("delete document", func(ctx context.Context) error {
		if _, err := s.store.DeleteByParent(ctx, repository.TableSuggestions, s.owner, parent); err != nil {
			return err
		}
		if _, err := s.store.DeleteByParent(ctx, repository.TableVersions, s.owner, parent); err != nil {
			return err
		}
		return s.store.Delete(ctx, repository.TableDocuments, s.owner, parent)
	})
	s.changes.publish(struct{}{})
	return nil
}

// Versions returns the version chain of a document, oldest first.
func (s *DocumentStore) Versions(id uuid.UUID) ([]domain.DocumentVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.docs[id]; !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return slices.Clone(s.versions[id]), nil
}

func (s *DocumentStore) Version(id uuid.UUID, index int) (domain.DocumentVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.docs[id]; !ok {
		return domain.DocumentVersion{}, domain.ErrDocumentNotFound
	}
	chain := s.versions[id]
	if index < 0 || index >= len(chain) {
		return domain.DocumentVersion{}, fmt.Errorf("%w: index %d of %d", domain.ErrVersionNotFound, index, len(chain))
	}
	return chain[index], nil
}

// RestoreVersion makes version index current and drops every later version.
func (s *DocumentStore) RestoreVersion(id uuid.UUID, index int) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	chain := s.versions[id]
	if index < 0 || index >= len(chain) {
		return nil, fmt.Errorf("%w: index %d of %d", domain.ErrVersionNotFound, index, len(chain))
	}

	dropped := make([]string, 0, len(chain)-index-1)
	for _, v := range chain[index+1:] {
		dropped = append(dropped, versionID(id, v.Index))
	}
	s.versions[id] = slices.Clone(chain[:index+1])
	c := chain[index].Content
	doc.Content = &c
	doc.UpdatedAt = nextUpdate(doc.UpdatedAt)

	rec := s.documentRecord(doc)
	s.queue.enqueue("restore version", func(ctx context.Context) error {
		if len(dropped) > 0 {
			if err := s.store.Delete(ctx, repository.TableVersions, s.owner, dropped...); err != nil {
				return err
			}
		}
		return s.store.Put(ctx, rec)
	})
	s.changes.publish(struct{}{})
	return doc.Clone(), nil
}

// CreateSuggestion stores a suggestion. The document id is not checked.
func (s *DocumentStore) CreateSuggestion(documentID uuid.UUID, original, suggested, description string) uuid.UUID {
	sg := &domain.Suggestion{
		ID:            uuid.New(),
		OwnerID:       s.owner,
		DocumentID:    documentID,
		OriginalText:  original,
		SuggestedText: suggested,
		Description:   description,
		CreatedAt:     nowUTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.suggestions[sg.ID] = sg
	s.saveSuggestion("create suggestion", sg)
	return sg.ID
}

func (s *DocumentStore) GetSuggestion(id uuid.UUID) (*domain.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sg, ok := s.suggestions[id]
	if !ok {
		return nil, domain.ErrSuggestionNotFound
	}
	c := *sg
	return &c, nil
}

// SuggestionsByDocument returns the suggestions of a document, newest first.
func (s *DocumentStore) SuggestionsByDocument(documentID uuid.UUID) []domain.Suggestion {
	s.mu.RLock()
	var out []domain.Suggestion
	for _, sg := range s.suggestions {
		if sg.DocumentID == documentID {
			out = append(out, *sg)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *DocumentStore) UpdateSuggestion(id uuid.UUID, upd SuggestionUpdate) (*domain.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sg, ok := s.suggestions[id]
	if !ok {
		return nil, domain.ErrSuggestionNotFound
	}
	if upd.OriginalText != nil {
		sg.OriginalText = *upd.OriginalText
	}
	if upd.SuggestedText != nil {
		sg.SuggestedText = *upd.SuggestedText
	}
	if upd.Description != nil {
		sg.Description = *upd.Description
	}
	if upd.IsResolved != nil {
		sg.IsResolved = *upd.IsResolved
	}
	s.saveSuggestion("update suggestion", sg)
	c := *sg
	return &c, nil
}

// ResolveSuggestion marks a suggestion resolved. Resolving twice is a no-op.
func (s *DocumentStore) ResolveSuggestion(id uuid.UUID) error {
	resolved := true
	_, err := s.UpdateSuggestion(id, SuggestionUpdate{IsResolved: &resolved})
	return err
}

func (s *DocumentStore) DeleteSuggestion(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.suggestions[id]; !ok {
		return domain.ErrSuggestionNotFound
	}
	delete(s.suggestions, id)
	key := id.String()
	s.queue.enqueue("delete suggestion", func(ctx context.Context) error {
		return s.store.Delete(ctx, repository.TableSuggestions, s.owner, key)
	})
	s.changes.publish(struct{}{})
	return nil
}

// Clear empties documents, versions and suggestions and resets the artifact.
func (s *DocumentStore) Clear() {
	s.mu.Lock()
	docIDs := make([]string, 0, len(s.docs))
	var verIDs []string
	for id := range s.docs {
		docIDs = append(docIDs, id.String())
		verIDs = append(verIDs, s.versionIDs(id)...)
	}
	sugIDs := make([]string, 0, len(s.suggestions))
	for id := range s.suggestions {
		sugIDs = append(sugIDs, id.String())
	}
	s.docs = make(map[uuid.UUID]*domain.Document)
	s.versions = make(map[uuid.UUID][]domain.DocumentVersion)
	s.suggestions = make(map[uuid.UUID]*domain.Suggestion)

	s.queue.enqueue("clear documents", func(ctx context.Context) error {
		if err := s.store.Delete(ctx, repository.TableSuggestions, s.owner, sugIDs...); err != nil {
			return err
		}
		if err := s.store.Delete(ctx, repository.TableVersions, s.owner, verIDs...); err != nil {
			return err
		}
		return s.store.Delete(ctx, repository.TableDocuments, s.owner, docIDs...)
	})
	s.mu.Unlock()

	s.changes.publish(struct{}{})
	s.ResetArtifact()
}

// Subscribe signals every change to documents or suggestions.
func (s *DocumentStore) Subscribe() (<-chan struct{}, func()) {
	return s.changes.Subscribe()
}

func (s *DocumentStore) Flush(ctx context.Context) error {
	return s.queue.Flush(ctx)
}

func (s *DocumentStore) Close() {
	s.queue.Close()
}

func (s *DocumentStore) saveSuggestion(op string, sg *domain.Suggestion) {
	data, _ := json.Marshal(sg)
	rec := repository.Record{
		Table:     repository.TableSuggestions,
		Owner:     s.owner,
		ID:        sg.ID.String(),
		ParentID:  sg.DocumentID.String(),
		CreatedAt: sg.CreatedAt,
		UpdatedAt: sg.CreatedAt,
		Data:      data,
	}
	s.queue.enqueue(op, func(ctx context.Context) error {
		return s.store.Put(ctx, rec)
	})
	s.changes.publish(struct{}{})
}

func (s *DocumentStore) documentRecord(d *domain.Document) repository.Record {
	data, _ := json.Marshal(d)
	return repository.Record{
		Table:     repository.TableDocuments,
		Owner:     s.owner,
		ID:        d.ID.String(),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		Data:      data,
	}
}

// versionRecords encodes the versions of id starting at index from.
func (s *DocumentStore) versionRecords(id uuid.UUID, from int) []repository.Record {
	chain := s.versions[id]
	if from >= len(chain) {
		return nil
	}
	recs := make([]repository.Record, 0, len(chain)-from)
	for _, v := range chain[from:] {
		data, _ := json.Marshal(v)
		recs = append(recs, repository.Record{
			Table:     repository.TableVersions,
			Owner:     s.owner,
			ID:        versionID(id, v.Index),
			ParentID:  id.String(),
			CreatedAt: v.CreatedAt,
			UpdatedAt: v.CreatedAt,
			Data:      data,
		})
	}
	return recs
}

func (s *DocumentStore) versionIDs(id uuid.UUID) []string {
	chain := s.versions[id]
	ids := make([]string, len(chain))
	for i, v := range chain {
		ids[i] = versionID(id, v.Index)
	}
	return ids
}

func versionID(docID uuid.UUID, index int) string {
	return fmt.Sprintf("%s/%d", docID, index)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// nextUpdate never returns a time before prev, so UpdatedAt cannot go backwards.
func nextUpdate(prev time.Time) time.Time {
	now := nowUTC()
	if now.Before(prev) {
		return prev
	}
	return now
}

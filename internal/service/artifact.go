package service

import (
	"maps"

	"github.com/set-night/mindcanvas/internal/domain"
)

// Artifact returns the current artifact view-model.
func (s *DocumentStore) Artifact() domain.UIArtifact {
	s.artMu.RLock()
	defer s.artMu.RUnlock()
	return s.artifact
}

// SetArtifact applies fn to the current artifact and stores the result.
// It is the mutation path used while a generation streams.
func (s *DocumentStore) SetArtifact(fn func(cur domain.UIArtifact) domain.UIArtifact) domain.UIArtifact {
	s.artMu.Lock()
	defer s.artMu.Unlock()
	s.artifact = fn(s.artifact)
	s.artChanges.publish(s.artifact)
	return s.artifact
}

func (s *DocumentStore) ReplaceArtifact(a domain.UIArtifact) {
	s.SetArtifact(func(domain.UIArtifact) domain.UIArtifact { return a })
}

// ResetArtifact closes the panel and drops per-document metadata.
func (s *DocumentStore) ResetArtifact() {
	s.artMu.Lock()
	defer s.artMu.Unlock()
	s.artifact = domain.InitialArtifact()
	s.metadata = make(map[string]map[string]any)
	s.artChanges.publish(s.artifact)
}

func (s *DocumentStore) SetArtifactMetadata(documentID string, md map[string]any) {
	s.artMu.Lock()
	defer s.artMu.Unlock()
	if md == nil {
		delete(s.metadata, documentID)
		return
	}
	s.metadata[documentID] = maps.Clone(md)
}

func (s *DocumentStore) ArtifactMetadata(documentID string) map[string]any {
	s.artMu.RLock()
	defer s.artMu.RUnlock()
	return maps.Clone(s.metadata[documentID])
}

// SubscribeArtifact delivers the latest artifact state. Intermediate states
// may be skipped by a slow reader; the final one never is.
func (s *DocumentStore) SubscribeArtifact() (<-chan domain.UIArtifact, func()) {
	return s.artChanges.Subscribe()
}

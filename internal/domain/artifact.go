package domain

type ArtifactStatus string

const (
	StatusStreaming ArtifactStatus = "streaming"
	StatusIdle      ArtifactStatus = "idle"
	StatusLoading   ArtifactStatus = "loading"
	StatusError     ArtifactStatus = "error"
	StatusSuccess   ArtifactStatus = "success"
)

// InitDocumentID marks an artifact that is not bound to a document yet.
const InitDocumentID = "init"

type BoundingBox struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// UIArtifact is the transient view-model of the artifact panel.
type UIArtifact struct {
	DocumentID  string         `json:"documentId"`
	Content     string         `json:"content"`
	Kind        Kind           `json:"kind"`
	Title       string         `json:"title"`
	Status      ArtifactStatus `json:"status"`
	IsVisible   bool           `json:"isVisible"`
	BoundingBox BoundingBox    `json:"boundingBox"`
}

func InitialArtifact() UIArtifact {
	return UIArtifact{
		DocumentID: InitDocumentID,
		Kind:       KindText,
		Status:     StatusIdle,
	}
}

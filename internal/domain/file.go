package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// StoredFile is the metadata of an uploaded file. The bytes live in the
// blob table under the same id.
type StoredFile struct {
	ID         uuid.UUID `json:"id"`
	OwnerID    string    `json:"ownerId"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

func (f StoredFile) IsImage() bool {
	return strings.HasPrefix(f.Type, "image/")
}

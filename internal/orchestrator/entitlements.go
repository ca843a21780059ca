package orchestrator

import (
	"fmt"
	"slices"
	"time"

	"github.com/set-night/mindcanvas/internal/domain"
)

// Entitlements limit what one identity may do.
type Entitlements struct {
	MaxMessagesPerDay int
	AvailableModels   []string
}

func (e Entitlements) allowsModel(id string) bool {
	return len(e.AvailableModels) == 0 || slices.Contains(e.AvailableModels, id)
}

// check counts user messages of the last 24 hours across all sessions,
// the one just recorded included.
func (e Entitlements) check(sessions []*domain.ChatSession, modelID string, now time.Time) error {
	if !e.allowsModel(modelID) {
		return newFailure(domain.CategoryValidation,
			fmt.Sprintf("The model %q is not available for your account.", modelID),
			fmt.Errorf("%w: %s", domain.ErrModelNotAvailable, modelID))
	}
	if e.MaxMessagesPerDay <= 0 {
		return nil
	}

	since := now.Add(-24 * time.Hour)
	count := 0
	for _, sess := range sessions {
		for _, m := range sess.Messages {
			if m.Role == domain.RoleUser && m.CreatedAt.After(since) {
				count++
			}
		}
	}
	if count > e.MaxMessagesPerDay {
		return newFailure(domain.CategoryRateLimit,
			fmt.Sprintf("You have reached the limit of %d messages per day. Please try again later.", e.MaxMessagesPerDay),
			domain.ErrMessageLimit)
	}
	return nil
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/set-night/mindcanvas/internal/domain"
)

type settingsPatch struct {
	Language         *string             `json:"language"`
	Name             *string             `json:"name"`
	Avatar           *string             `json:"avatar"`
	ClearAvatar      bool                `json:"clearAvatar"`
	SidebarCollapsed *bool               `json:"sidebarCollapsed"`
	SidebarMode      *domain.SidebarMode `json:"sidebarMode"`
}

func (h *Handler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, workspace(c).Settings.Get())
}

// PutSettings replaces all settings at once.
func (h *Handler) PutSettings(c *gin.Context) {
	var body domain.Settings
	if !bindJSON(c, &body) {
		return
	}
	st := workspace(c).Settings
	if err := st.SetSettings(body); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st.Get())
}

// PatchSettings applies the fields present in the body. Validation happens
// before anything is written.
func (h *Handler) PatchSettings(c *gin.Context) {
	var body settingsPatch
	if !bindJSON(c, &body) {
		return
	}
	st := workspace(c).Settings

	next := st.Get()
	if body.Language != nil {
		next.Language = *body.Language
	}
	if body.Name != nil {
		next.Name = *body.Name
	}
	if body.Avatar != nil {
		next.Avatar = body.Avatar
	}
	if body.ClearAvatar {
		next.Avatar = nil
	}
	if body.SidebarCollapsed != nil {
		next.SidebarCollapsed = *body.SidebarCollapsed
	}
	if body.SidebarMode != nil {
		next.SidebarMode = *body.SidebarMode
	}

	if err := st.SetSettings(next); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st.Get())
}

func (h *Handler) ResetSettings(c *gin.Context) {
	st := workspace(c).Settings
	st.Reset()
	c.JSON(http.StatusOK, st.Get())
}

package domain

type SidebarMode string

const (
	SidebarPinned   SidebarMode = "pinned"
	SidebarFloating SidebarMode = "floating"
)

var Locales = []string{"en", "cn"}

type Settings struct {
	Language         string      `json:"language"`
	Name             string      `json:"name"`
	Avatar           *string     `json:"avatar"`
	SidebarCollapsed bool        `json:"sidebarCollapsed"`
	SidebarMode      SidebarMode `json:"sidebarMode"`
}

func DefaultSettings() Settings {
	return Settings{
		Language:    "en",
		SidebarMode: SidebarPinned,
	}
}

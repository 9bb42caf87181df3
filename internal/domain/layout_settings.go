package domain

type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// LayoutSettings are the dashboard's per-user layout preferences.
type LayoutSettings struct {
	SidebarCollapsed bool   `json:"sidebar_collapsed"`
	Theme            Theme  `json:"theme"`
	ActivePanel      string `json:"active_panel"`
	ChatPanelWidth   int    `json:"chat_panel_width"`
}

func DefaultLayoutSettings() LayoutSettings {
	return LayoutSettings{
		Theme:          ThemeSystem,
		ActivePanel:    "files",
		ChatPanelWidth: 420,
	}
}

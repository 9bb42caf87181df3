package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/njprem/ExcelChat_BackEnd/internal/domain"
	"github.com/njprem/ExcelChat_BackEnd/internal/repository/ports"
)

var ErrInvalidLayoutSettings = errors.New("invalid layout settings")

const (
	minChatPanelWidth = 280
	maxChatPanelWidth = 960
)

var layoutPanels = []string{"files", "upload", "jobs", "chat"}

func layoutSettingsKey(userID string) string {
	return "layout-settings:" + userID
}

// LoadLayoutSettings returns the user's saved layout, or the defaults when
// nothing was saved. Unreadable stored values also fall back to the defaults.
func LoadLayoutSettings(ctx context.Context, store ports.KeyValueStore, userID string) (domain.LayoutSettings, error) {
	raw, err := store.Get(ctx, layoutSettingsKey(userID))
	if errors.Is(err, ports.ErrKeyNotFound) {
		return domain.DefaultLayoutSettings(), nil
	}
	if err != nil {
		return domain.LayoutSettings{}, err
	}
	settings := domain.DefaultLayoutSettings()
	if err := json.Unmarshal(raw, &settings); err != nil {
		return domain.DefaultLayoutSettings(), nil
	}
	if validateLayoutSettings(settings) != nil {
		return domain.DefaultLayoutSettings(), nil
	}
	return settings, nil
}

func SaveLayoutSettings(ctx context.Context, store ports.KeyValueStore, userID string, settings domain.LayoutSettings) error {
	if err := validateLayoutSettings(settings); err != nil {
		return err
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return store.Put(ctx, layoutSettingsKey(userID), raw)
}

func validateLayoutSettings(s domain.LayoutSettings) error {
	switch s.Theme {
	case domain.ThemeLight, domain.ThemeDark, domain.ThemeSystem:
	default:
		return fmt.Errorf("%w: unknown theme %q", ErrInvalidLayoutSettings, s.Theme)
	}
	if !lo.Contains(layoutPanels, s.ActivePanel) {
		return fmt.Errorf("%w: unknown panel %q", ErrInvalidLayoutSettings, s.ActivePanel)
	}
	if s.ChatPanelWidth < minChatPanelWidth || s.ChatPanelWidth > maxChatPanelWidth {
		return fmt.Errorf("%w: chat panel width must be between %d and %d", ErrInvalidLayoutSettings, minChatPanelWidth, maxChatPanelWidth)
	}
	return nil
}

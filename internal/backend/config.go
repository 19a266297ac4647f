package backend

import (
	"errors"
	"fmt"

	"finbot/internal/config"
)

// FromAppConfig converts the application config to backend config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:          backendType,
		Workspace:     appConfig.GoogleSpreadsheetID,
		RenderTimeout: appConfig.RenderTimeout,
		DataDirectory: appConfig.DemoDataDir,
	}, nil
}

func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Workspace == "" {
		switch c.Type {
		case SheetsBackend:
			return errors.New("spreadsheet ID is required for sheets backend")
		default:
			return errors.New("workspace name is required for memory backend")
		}
	}
	return nil
}

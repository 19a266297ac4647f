package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finbot/internal/config"
)

func TestBackendTypeIsValid(t *testing.T) {
	assert.True(t, MemoryBackend.IsValid())
	assert.True(t, SheetsBackend.IsValid())
	assert.False(t, BackendType("sqlite").IsValid())
	assert.False(t, BackendType("").IsValid())
}

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	require.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "excel"})
	require.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:         "sheets",
		GoogleSpreadsheetID: "sheet-123",
		DemoDataDir:         "./data",
	})
	require.NoError(t, err)
	assert.Equal(t, SheetsBackend, cfg.Type)
	assert.Equal(t, "sheet-123", cfg.Workspace)
	assert.Equal(t, "./data", cfg.DataDirectory)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"memory ok", Config{Type: MemoryBackend, Workspace: "demo"}, ""},
		{"sheets ok", Config{Type: SheetsBackend, Workspace: "id"}, ""},
		{"bad type", Config{Type: "csv", Workspace: "x"}, "invalid backend type"},
		{"sheets without id", Config{Type: SheetsBackend}, "spreadsheet ID is required"},
		{"memory without name", Config{Type: MemoryBackend}, "workspace name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCreateMemoryBackend(t *testing.T) {
	f := NewFactory(nil)
	res, err := f.CreateBackend(context.Background(), Config{
		Type:          MemoryBackend,
		Workspace:     "demo",
		DataDirectory: t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, MemoryBackend, res.Type)
	assert.Equal(t, "demo", res.Workspace)
	assert.NoError(t, res.Close())

	ws, err := res.Service.OpenWorkspace(context.Background(), "demo")
	require.NoError(t, err)
	_, err = ws.Surface(context.Background(), "Home")
	assert.NoError(t, err)
}

func TestCreateSheetsBackendWithoutCredentials(t *testing.T) {
	for _, key := range []string{
		"GOOGLE_SERVICE_ACCOUNT_JSON",
		"GOOGLE_SERVICE_ACCOUNT_FILE",
		"GOOGLE_APPLICATION_CREDENTIALS",
		"GOOGLE_CREDENTIALS_BASE64",
	} {
		t.Setenv(key, "")
	}

	f := NewFactory(nil)
	_, err := f.CreateBackend(context.Background(), Config{Type: SheetsBackend, Workspace: "id", DisableRenderer: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Google Sheets client")
}

func TestResultCloseNil(t *testing.T) {
	var r *Result
	assert.NoError(t, r.Close())
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"RALLYUP_CONFIG", "FIREBASE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT", "PORT", "ALLOWED_ORIGINS",
	"FIREBASE_STORAGE_BUCKET", "SIGNED_URL_SERVICE_ACCOUNT_EMAIL", "STORE_BACKEND",
	"AUTH_INSECURE_DEV", "FOURSQUARE_API_KEY", "FOURSQUARE_BASE_URL", "LOG_LEVEL",
	"LOG_FORMAT", "TRACE_EXPORTER",
}

// clearEnv blanks every variable Load reads and moves to an empty directory
// so no stray .env is picked up.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("FIREBASE_PROJECT_ID", "rallyup-dev")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "rallyup-dev", cfg.ProjectID)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, "rallyup-dev.appspot.com", cfg.StorageBucket)
	assert.Equal(t, BackendFirestore, cfg.StoreBackend)
	assert.False(t, cfg.AuthInsecureDev)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "none", cfg.TraceExporter)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_CLOUD_PROJECT", "gcp-project")
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("STORE_BACKEND", "Memory")
	t.Setenv("AUTH_INSECURE_DEV", "true")
	t.Setenv("TRACE_EXPORTER", "stdout")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gcp-project", cfg.ProjectID)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.True(t, cfg.AuthInsecureDev)
	assert.Equal(t, "stdout", cfg.TraceExporter)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "rallyup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
projectId: from-yaml
port: "7070"
allowedOrigins: [https://app.example]
storeBackend: memory
logFormat: json
foursquareApiKey: fsq-key
`), 0o600))
	t.Setenv("RALLYUP_CONFIG", path)
	t.Setenv("PORT", "6060")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-yaml", cfg.ProjectID)
	assert.Equal(t, "6060", cfg.Port, "env wins over yaml")
	assert.Equal(t, []string{"https://app.example"}, cfg.AllowedOrigins)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "fsq-key", cfg.FoursquareAPIKey)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.WriteFile(".env", []byte("STORE_BACKEND=memory\nLOG_LEVEL=debug\n"), 0o600))
	// godotenv only fills variables that are unset
	require.NoError(t, os.Unsetenv("STORE_BACKEND"))
	require.NoError(t, os.Unsetenv("LOG_LEVEL"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	assert.ErrorIs(t, err, ErrInvalid, "firestore needs a project id")

	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("AUTH_INSECURE_DEV", "maybe")
	_, err = Load()
	assert.ErrorIs(t, err, ErrInvalid)

	t.Setenv("AUTH_INSECURE_DEV", "")
	t.Setenv("RALLYUP_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	ok := Config{StoreBackend: BackendMemory, TraceExporter: "none"}
	assert.NoError(t, ok.Validate())

	bad := ok
	bad.StoreBackend = "postgres"
	assert.ErrorIs(t, bad.Validate(), ErrInvalid)

	bad = ok
	bad.TraceExporter = "jaeger"
	assert.ErrorIs(t, bad.Validate(), ErrInvalid)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	ProjectID                    string   `yaml:"projectId"`
	Port                         string   `yaml:"port"`
	AllowedOrigins               []string `yaml:"allowedOrigins"`
	StorageBucket                string   `yaml:"storageBucket"`
	SignedURLServiceAccountEmail string   `yaml:"signedUrlServiceAccountEmail"`

	StoreBackend    string `yaml:"storeBackend"`
	AuthInsecureDev bool   `yaml:"authInsecureDev"`

	FoursquareAPIKey  string `yaml:"foursquareApiKey"`
	FoursquareBaseURL string `yaml:"foursquareBaseUrl"`

	LogLevel      string `yaml:"logLevel"`
	LogFormat     string `yaml:"logFormat"`
	TraceExporter string `yaml:"traceExporter"`
}

// Load reads an optional .env, then the YAML file named by RALLYUP_CONFIG,
// then the environment. Later sources win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	if path := os.Getenv("RALLYUP_CONFIG"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	// FIREBASE_PROJECT_ID or GOOGLE_CLOUD_PROJECT
	projectID := getenv("FIREBASE_PROJECT_ID", "")
	if projectID == "" {
		projectID = getenv("GOOGLE_CLOUD_PROJECT", cfg.ProjectID)
	}
	cfg.ProjectID = projectID

	cfg.Port = getenv("PORT", or(cfg.Port, "8080"))
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" || len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = splitList(getenv("ALLOWED_ORIGINS", "http://localhost:3000"))
	}
	cfg.StorageBucket = getenv("FIREBASE_STORAGE_BUCKET", cfg.StorageBucket)
	if cfg.StorageBucket == "" && cfg.ProjectID != "" {
		cfg.StorageBucket = cfg.ProjectID + ".appspot.com"
	}
	cfg.SignedURLServiceAccountEmail = getenv("SIGNED_URL_SERVICE_ACCOUNT_EMAIL", cfg.SignedURLServiceAccountEmail)

	cfg.StoreBackend = strings.ToLower(getenv("STORE_BACKEND", or(cfg.StoreBackend, BackendFirestore)))
	if v := os.Getenv("AUTH_INSECURE_DEV"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: AUTH_INSECURE_DEV=%q", ErrInvalid, v)
		}
		cfg.AuthInsecureDev = b
	}

	cfg.FoursquareAPIKey = getenv("FOURSQUARE_API_KEY", cfg.FoursquareAPIKey)
	cfg.FoursquareBaseURL = getenv("FOURSQUARE_BASE_URL", cfg.FoursquareBaseURL)

	cfg.LogLevel = getenv("LOG_LEVEL", or(cfg.LogLevel, "info"))
	cfg.LogFormat = getenv("LOG_FORMAT", or(cfg.LogFormat, "text"))
	cfg.TraceExporter = getenv("TRACE_EXPORTER", or(cfg.TraceExporter, "none"))

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case BackendFirestore:
		if c.ProjectID == "" {
			return fmt.Errorf("%w: FIREBASE_PROJECT_ID is required for the firestore backend", ErrInvalid)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown STORE_BACKEND %q", ErrInvalid, c.StoreBackend)
	}
	switch c.TraceExporter {
	case "none", "stdout":
	default:
		return fmt.Errorf("%w: unknown TRACE_EXPORTER %q", ErrInvalid, c.TraceExporter)
	}
	return nil
}

func splitList(s string) []string {
	out := []string{}
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

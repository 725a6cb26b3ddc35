// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// StorageConfig holds credentials for remote file references. Every field is
// optional; a backend without credentials cannot resolve its references.
type StorageConfig struct {
	// S3 fields are nil when not configured.
	S3KeyID    *string
	S3Secret   *string
	S3Endpoint *string
	S3Region   *string
	S3Bucket   *string

	GCSKeyFile string // service account JSON for gs:// references

	AzureAccountName string
	AzureAccountKey  string
}

// HasS3Config returns true if all required S3 fields are set.
func (s *StorageConfig) HasS3Config() bool {
	return s.S3KeyID != nil && s.S3Secret != nil &&
		s.S3Endpoint != nil && s.S3Region != nil
}

// HasAzureConfig returns true if shared key credentials are set.
func (s *StorageConfig) HasAzureConfig() bool {
	return s.AzureAccountName != "" && s.AzureAccountKey != ""
}

// Config holds the configuration of the import tooling.
type Config struct {
	MetaDBPath  string // path to SQLite metastore file
	LogLevel    string // log level: debug, info, warn, error (default "info")
	Env         string // environment: "development" (default) or "production"
	TemplateDir string // directory of job template YAML files
	SchemaFile  string // destination schema YAML file

	// AllowedFileRoots lists the directories local file references may
	// point into. Empty allows the working directory only.
	AllowedFileRoots []string
	// FileCacheDir receives downloaded copies of remote file references.
	FileCacheDir string
	// PreviewRows caps the rows returned by preview commands.
	PreviewRows int

	Storage StorageConfig

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
// Storage credentials are optional; the tool starts without them.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		MetaDBPath:   os.Getenv("META_DB_PATH"),
		LogLevel:     os.Getenv("LOG_LEVEL"),
		Env:          os.Getenv("ENV"),
		TemplateDir:  os.Getenv("TEMPLATE_DIR"),
		SchemaFile:   os.Getenv("SCHEMA_FILE"),
		FileCacheDir: os.Getenv("FILE_CACHE_DIR"),
		Storage: StorageConfig{
			GCSKeyFile:       os.Getenv("GCS_KEY_FILE"),
			AzureAccountName: os.Getenv("AZURE_ACCOUNT_NAME"),
			AzureAccountKey:  os.Getenv("AZURE_ACCOUNT_KEY"),
		},
	}

	if v := os.Getenv("KEY_ID"); v != "" {
		cfg.Storage.S3KeyID = &v
	}
	if v := os.Getenv("SECRET"); v != "" {
		cfg.Storage.S3Secret = &v
	}
	if v := os.Getenv("ENDPOINT"); v != "" {
		cfg.Storage.S3Endpoint = &v
	}
	if v := os.Getenv("REGION"); v != "" {
		cfg.Storage.S3Region = &v
	}
	if v := os.Getenv("BUCKET"); v != "" {
		cfg.Storage.S3Bucket = &v
	}

	if v := os.Getenv("ALLOWED_FILE_ROOTS"); v != "" {
		cfg.AllowedFileRoots = compactNonEmpty(strings.Split(v, string(os.PathListSeparator)))
	}
	if v := os.Getenv("PREVIEW_ROWS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("PREVIEW_ROWS must be a positive integer, got %q", v)
		}
		cfg.PreviewRows = n
	}

	// Defaults
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "isi_meta.sqlite"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.TemplateDir == "" {
		cfg.TemplateDir = "templates"
	}
	if cfg.SchemaFile == "" {
		cfg.SchemaFile = filepath.Join(cfg.TemplateDir, "schema.yaml")
	}
	if cfg.FileCacheDir == "" {
		cfg.FileCacheDir = filepath.Join(os.TempDir(), "isi-import-cache")
	}
	if cfg.PreviewRows == 0 {
		cfg.PreviewRows = 10
	}
	if len(cfg.AllowedFileRoots) == 0 {
		cfg.Warnings = append(cfg.Warnings, "ALLOWED_FILE_ROOTS not set; only files below the working directory can be imported")
	}
	partialS3 := cfg.Storage.S3KeyID != nil || cfg.Storage.S3Secret != nil
	if partialS3 && !cfg.Storage.HasS3Config() {
		cfg.Warnings = append(cfg.Warnings, "S3 is partially configured; set KEY_ID, SECRET, ENDPOINT and REGION to resolve s3:// files")
	}

	// Production mode: ambiguous file access is a fatal error.
	if cfg.IsProduction() && len(cfg.AllowedFileRoots) == 0 {
		return nil, fmt.Errorf("ALLOWED_FILE_ROOTS must be set in production (ENV=production)")
	}

	return cfg, nil
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("setenv %s: %w", key, err)
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

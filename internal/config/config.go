package config

import (
	"log"
	"os"
)

// Config holds process-wide settings loaded once at startup.
type Config struct {
	Port        string
	Environment string

	DatabaseURL string
	CORSOrigins string
	TablePrefix string

	JWKSURL string

	// Transcript API: fetches YouTube-style transcripts (spec.md §4.6.1).
	TranscriptAPIBaseURL string
	TranscriptAPIToken   string

	// Slide extractor: external frame-extraction job runner (spec.md §4.6.3).
	SlideExtractorBaseURL string
	SlideExtractorToken   string

	// Object storage: where the extractor deposits source frames/manifests.
	ObjectStoreBaseURL string
	ObjectStoreToken   string

	// Blob storage: public-facing bucket slides are republished to.
	BlobStoreBaseURL string
	BlobStoreToken   string
	BlobStorePublicBaseURL string

	AnthropicAPIKey string
	DefaultModel    string

	// Debug flags
	Debug bool
}

// Load reads process configuration the same way the teacher does:
// godotenv best-effort, then os.Getenv with defaults for optional values.
// Required external credentials are enforced separately by MustLoad.
func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")
	tablePrefix := getTablePrefix(env)

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,

		DatabaseURL: getEnv("DATABASE_URL", ""),
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix: tablePrefix,

		JWKSURL: getEnv("JWKS_URL", ""),

		TranscriptAPIBaseURL: getEnv("TRANSCRIPT_API_BASE_URL", ""),
		TranscriptAPIToken:   getEnv("TRANSCRIPT_API_TOKEN", ""),

		SlideExtractorBaseURL: getEnv("SLIDE_EXTRACTOR_BASE_URL", ""),
		SlideExtractorToken:   getEnv("SLIDE_EXTRACTOR_TOKEN", ""),

		ObjectStoreBaseURL: getEnv("OBJECT_STORE_BASE_URL", ""),
		ObjectStoreToken:   getEnv("OBJECT_STORE_TOKEN", ""),

		BlobStoreBaseURL:       getEnv("BLOB_STORE_BASE_URL", ""),
		BlobStoreToken:         getEnv("BLOB_STORE_TOKEN", ""),
		BlobStorePublicBaseURL: getEnv("BLOB_STORE_PUBLIC_BASE_URL", ""),

		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		DefaultModel:    getEnv("DEFAULT_MODEL", "claude-sonnet-4-5-20250929"),

		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// MustLoad calls Load and then fatally exits if a credential spec.md §6
// treats as required for talking to an external service is missing. This
// mirrors the teacher's log.Fatalf use around pool creation in
// cmd/server/main.go, extended to the wider set of required externals this
// system depends on.
func MustLoad() *Config {
	cfg := Load()

	requireEnv("DATABASE_URL", cfg.DatabaseURL)
	requireEnv("TRANSCRIPT_API_TOKEN", cfg.TranscriptAPIToken)
	requireEnv("SLIDE_EXTRACTOR_TOKEN", cfg.SlideExtractorToken)
	requireEnv("BLOB_STORE_TOKEN", cfg.BlobStoreToken)
	// ANTHROPIC_API_KEY is required only in prod; dev/test fall back to the
	// lorem fake provider (cmd/server/main.go's newLLMProvider) when unset.
	if cfg.Environment == "prod" {
		requireEnv("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey)
	}

	return cfg
}

func requireEnv(name, value string) {
	if value == "" {
		log.Fatalf("missing required environment variable: %s", name)
	}
}

// getDefaultDebug returns the default debug setting based on environment.
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment.
func getTablePrefix(env string) string {
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}
	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

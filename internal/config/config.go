package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         string
	AllowOrigins []string
	SwaggerSpec  string

	ETLBaseURL  string
	ETLToken    string
	ETLTimeout  time.Duration
	ChatBaseURL string

	DatabaseURL     string
	DatabaseMigrate bool

	MinIOEndpoint      string
	MinIOAccessKey     string
	MinIOSecretKey     string
	MinIOUseSSL        bool
	MinIOBucketStaging string

	JWTSecret   string
	JWTAudience string

	LogstashTCPAddr string

	UploadMaxBytes          int64
	UploadAllowedExtensions []string
	SupportedCountries      []string
	WizardAdvanceDelay      time.Duration
	WizardSessionTTL        time.Duration
	WizardMaxSessions       int

	PollInitialDelay time.Duration
	PollInterval     time.Duration
	PollErrorRetries int
	ManagerIdleTTL   time.Duration
	ManagerMaxUsers  int

	ChatRateLimit         float64
	ChatMinQuestionLength int
}

func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	etlBase := strings.TrimRight(must("ETL_API_BASE_URL"), "/")

	return Config{
		Port:         getenv("PORT", "8080"),
		AllowOrigins: splitAndTrim(getenv("ALLOW_ORIGINS", "*"), "*"),
		SwaggerSpec:  getenv("SWAGGER_SPEC_PATH", "docs/swagger.yaml"),

		ETLBaseURL:  etlBase,
		ETLToken:    getenv("ETL_API_TOKEN", ""),
		ETLTimeout:  duration("ETL_API_TIMEOUT", 0),
		ChatBaseURL: strings.TrimRight(getenv("CHAT_API_BASE_URL", etlBase), "/"),

		DatabaseURL:     getenv("DATABASE_URL", ""),
		DatabaseMigrate: getenv("DATABASE_MIGRATE", "true") == "true",

		MinIOEndpoint:      getenv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:     getenv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:     getenv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:        getenv("MINIO_USE_SSL", "false") == "true",
		MinIOBucketStaging: getenv("MINIO_BUCKET_STAGING", "excelchat-staging"),

		JWTSecret:   getenv("SUPABASE_JWT_SECRET", ""),
		JWTAudience: getenv("SUPABASE_JWT_AUDIENCE", "authenticated"),

		LogstashTCPAddr: getenv("LOGSTASH_TCP_ADDR", ""),

		UploadMaxBytes:          int64(integer("UPLOAD_MAX_BYTES", 50*1024*1024)),
		UploadAllowedExtensions: splitAndTrim(getenv("UPLOAD_ALLOWED_EXTENSIONS", ".xlsx,.xls,.csv"), ".xlsx"),
		SupportedCountries:      splitAndTrim(getenv("SUPPORTED_COUNTRIES", "TW,SG,PM"), "TW"),
		WizardAdvanceDelay:      duration("WIZARD_ADVANCE_DELAY", 500*time.Millisecond),
		WizardSessionTTL:        duration("WIZARD_SESSION_TTL", time.Hour),
		WizardMaxSessions:       integer("WIZARD_MAX_SESSIONS", 1024),

		PollInitialDelay: duration("POLL_INITIAL_DELAY", time.Second),
		PollInterval:     duration("POLL_INTERVAL", 2*time.Second),
		PollErrorRetries: integer("POLL_ERROR_RETRIES", 0),
		ManagerIdleTTL:   duration("MANAGER_IDLE_TTL", 2*time.Hour),
		ManagerMaxUsers:  integer("MANAGER_MAX_USERS", 1024),

		ChatRateLimit:         float("CHAT_RATE_LIMIT", 2),
		ChatMinQuestionLength: integer("CHAT_MIN_QUESTION_LENGTH", 3),
	}
}

func splitAndTrim(input, fallback string) []string {
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{fallback}
	}
	return out
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("missing env: " + k)
	}
	return v
}

func duration(k string, d time.Duration) time.Duration {
	raw := os.Getenv(k)
	if raw == "" {
		return d
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v < 0 {
		log.Printf("Warning: invalid %s=%q, using %s", k, raw, d)
		return d
	}
	return v
}

func integer(k string, d int) int {
	raw := os.Getenv(k)
	if raw == "" {
		return d
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		log.Printf("Warning: invalid %s=%q, using %d", k, raw, d)
		return d
	}
	return v
}

func float(k string, d float64) float64 {
	raw := os.Getenv(k)
	if raw == "" {
		return d
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		log.Printf("Warning: invalid %s=%q, using %g", k, raw, d)
		return d
	}
	return v
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"fileupload/internal/storage"
	"fileupload/internal/upload"
)

// Storage backends.
const (
	BackendFileSystem = "fs"
	BackendMinio      = "minio"
)

type Config struct {
	Port        string
	DatabaseURL string
	DBMaxConns  int32

	UploadDir    string
	WebRoot      string
	ForceWebroot bool
	SpoolDir     string
	AllowedTypes []string
	MaxFileSize  int64

	FileField  string
	ModelField string
	ModelClass string
	Fields     upload.Fields
	MassSave   bool
	Automatic  bool

	StorageBackend string
	Minio          storage.MinioConfig

	SpoolTTL        time.Duration
	CleanupInterval time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
}

// LoadDotEnv loads variables from the given files (default ".env") without
// overriding ones already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
		slog.Info("loaded environment file", "path", f)
	}
	return nil
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBMaxConns:  int32(getEnvInt("DB_MAX_CONNS", 0)),

		UploadDir:    getEnv("UPLOAD_DIR", "files"),
		WebRoot:      getEnv("WEB_ROOT", "./public"),
		ForceWebroot: getEnvBool("FORCE_WEBROOT", true),
		SpoolDir:     getEnv("SPOOL_DIR", os.TempDir()),
		AllowedTypes: getEnvList("ALLOWED_TYPES", nil),
		MaxFileSize:  getEnvInt64("MAX_FILE_SIZE", 50*1024*1024), // 50MB

		FileField:  getEnv("FILE_FIELD", "file"),
		ModelField: getEnv("MODEL_FIELD", ""),
		ModelClass: getEnv("MODEL_CLASS", ""),
		Fields: upload.Fields{
			Name: getEnv("FIELD_NAME", upload.DefaultFields.Name),
			Type: getEnv("FIELD_TYPE", upload.DefaultFields.Type),
			Size: getEnv("FIELD_SIZE", upload.DefaultFields.Size),
		},
		MassSave:  getEnvBool("MASS_SAVE", false),
		Automatic: getEnvBool("AUTOMATIC", true),

		StorageBackend: getEnv("STORAGE_BACKEND", BackendFileSystem),
		Minio: storage.MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    getEnv("MINIO_BUCKET", "uploads"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},

		SpoolTTL:        getEnvDuration("SPOOL_TTL_HOURS", 24*time.Hour),
		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL_HOURS", 1*time.Hour),
		RateLimitRPS:    getEnvFloat64("RATE_LIMIT_RPS", 10),
		RateLimitBurst:  getEnvInt("RATE_LIMIT_BURST", 20),
	}
}

// Validate rejects combinations the server cannot run with.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendFileSystem, BackendMinio:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q (want %s or %s)", c.StorageBackend, BackendFileSystem, BackendMinio)
	}
	if c.ModelClass != "" && c.DatabaseURL == "" {
		return fmt.Errorf("MODEL_CLASS %q needs DATABASE_URL", c.ModelClass)
	}
	return c.UploadOptions().Validate()
}

// UploadOptions converts the configuration into pipeline options.
func (c *Config) UploadOptions() upload.Options {
	return upload.Options{
		UploadDirectory: c.UploadDir,
		AllowedTypes:    append([]string(nil), c.AllowedTypes...),
		FileFieldName:   c.FileField,
		ModelFieldName:  c.ModelField,
		ModelClass:      c.ModelClass,
		Fields:          c.Fields,
		MassSave:        c.MassSave,
		Automatic:       c.Automatic,
		ForceWebroot:    c.ForceWebroot,
		WebRoot:         c.WebRoot,
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat64(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if hours, err := strconv.ParseFloat(val, 64); err == nil {
			return time.Duration(hours * float64(time.Hour))
		}
	}
	return fallback
}

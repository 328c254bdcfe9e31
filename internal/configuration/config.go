package configuration

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Database DatabaseConfig
	MinIO    MinIOConfig
	Server   ServerConfig
	Session  SessionConfig
	NATSURL  string
	// KeycloakUrl is the OIDC issuer used to verify login tokens.
	KeycloakUrl string
	// CLAMAVURL enables the async upload scan when non-empty.
	CLAMAVURL string
	// TraceEnabled turns on the Datadog tracer and gin middleware.
	TraceEnabled bool
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type MinIOConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	BucketName string
	UseSSL     bool
	// MaxDeleteBatch bounds one multi-key delete request (S3 caps at 1000).
	MaxDeleteBatch int
	// PresignExpiry is the lifetime of generated download URLs.
	PresignExpiry time.Duration
}

type ServerConfig struct {
	Port string
}

type SessionConfig struct {
	TTL time.Duration
}

func Load() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "driveuser"),
			Password: getEnv("DB_PASSWORD", "drivepassword"),
			DBName:   getEnv("DB_NAME", "drivecatalog"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		MinIO: MinIOConfig{
			Endpoint:       getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey:      getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey:      getEnv("MINIO_SECRET_KEY", "minioadmin"),
			BucketName:     getEnv("MINIO_BUCKET", "drive"),
			UseSSL:         getEnv("MINIO_USE_SSL", "false") == "true",
			MaxDeleteBatch: getEnvInt("MAX_DELETE_BATCH", 1000),
			PresignExpiry:  time.Duration(getEnvInt("PRESIGN_EXPIRY_MINUTES", 15)) * time.Minute,
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Session: SessionConfig{
			TTL: time.Duration(getEnvInt("SESSION_TTL_MINUTES", 60)) * time.Minute,
		},
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		CLAMAVURL:    getEnv("CLAMAV_URL", ""),
		KeycloakUrl:  getEnv("KEYCLOAK_URL", "http://localhost:8081/realms/drive"),
		TraceEnabled: getEnv("DD_TRACE_ENABLED", "false") == "true",
	}
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

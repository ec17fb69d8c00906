package utils

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTDuration time.Duration
}

type MediaConfig struct {
	Root    string // local directory, used when Bucket is empty
	BaseURL string

	Bucket   string
	Region   string
	Endpoint string
}

type ServerConfig struct {
	Env         string
	HTTPAddr    string
	GRPCAddr    string
	RedisURL    string
	NatsURL     string
	CORSOrigins []string
	MaxUploadMB int
}

// LoadDotEnv reads a .env file from the working directory if one exists.
// Variables already present in the environment win.
func LoadDotEnv() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	if err := godotenv.Load(); err != nil {
		slog.Warn("could not load .env", "error", err)
	}
}

func LoadAuthConfig() AuthConfig {
	secret := getEnv("MANGAVERSE_JWT_SECRET", "")
	if secret == "" {
		// dev default (change for demo / production)
		secret = "dev-secret-change-me"
	}

	return AuthConfig{
		JWTSecret:   secret,
		JWTIssuer:   getEnv("MANGAVERSE_JWT_ISSUER", "mangaverse"),
		JWTDuration: time.Duration(getEnvInt("MANGAVERSE_JWT_TTL_HOURS", 24)) * time.Hour,
	}
}

func LoadMediaConfig() MediaConfig {
	return MediaConfig{
		Root:     getEnv("MANGAVERSE_MEDIA_ROOT", "./media"),
		BaseURL:  getEnv("MANGAVERSE_MEDIA_URL", "/media/"),
		Bucket:   getEnv("MANGAVERSE_S3_BUCKET", ""),
		Region:   getEnv("MANGAVERSE_S3_REGION", "us-east-1"),
		Endpoint: getEnv("MANGAVERSE_S3_ENDPOINT", ""),
	}
}

func LoadServerConfig() ServerConfig {
	var origins []string
	for _, o := range strings.Split(getEnv("MANGAVERSE_CORS_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return ServerConfig{
		Env:         getEnv("APP_ENV", "local"),
		HTTPAddr:    getEnv("MANGAVERSE_HTTP_ADDR", ":8080"),
		GRPCAddr:    getEnv("MANGAVERSE_GRPC_ADDR", ":50051"),
		RedisURL:    getEnv("MANGAVERSE_REDIS_URL", ""),
		NatsURL:     getEnv("MANGAVERSE_NATS_URL", ""),
		CORSOrigins: origins,
		MaxUploadMB: getEnvInt("MANGAVERSE_MAX_UPLOAD_MB", 256),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && i > 0 {
			return i
		}
	}
	return fallback
}

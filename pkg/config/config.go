package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort      string
	FirebaseProject string
	Environment     string
	JWTSecret       string
	JWTExpiry       int64

	// Display title used for push notifications sent on behalf of the
	// support desk to customers and drivers.
	BrandTitle string

	// AdminPageSize is the conversation-directory page size for admin
	// sessions. Non-admin sessions are clamped to a single page of
	// MemberPageSize (customers and drivers only ever see their own
	// support conversation plus their groups).
	AdminPageSize  int
	MemberPageSize int

	// PushTimeout bounds a single push-provider call; a call that does
	// not return in time is treated as failed and never retried here.
	PushTimeout time.Duration
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		FirebaseProject: getEnv("FIREBASE_PROJECT_ID", ""),
		Environment:     getEnv("ENVIRONMENT", "development"),
		JWTSecret:       getEnv("JWT_SECRET", "your-secret-key"),
		JWTExpiry:       getEnvAsInt64("JWT_EXPIRY", 30*24*60*60), // 30 days
		BrandTitle:      getEnv("BRAND_TITLE", "FleetChat Support"),
		AdminPageSize:   int(getEnvAsInt64("ADMIN_PAGE_SIZE", 20)),
		MemberPageSize:  int(getEnvAsInt64("MEMBER_PAGE_SIZE", 50)),
		PushTimeout:     time.Duration(getEnvAsInt64("PUSH_TIMEOUT_SECONDS", 10)) * time.Second,
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

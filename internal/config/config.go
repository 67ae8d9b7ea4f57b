// internal/config/config.go
//
// Environment-driven configuration for the numguess server.
// main loads an optional .env (godotenv) before calling Load, so values can
// come from either the process environment or that file.
//
// Environment variables:
//   PORT               HTTP port (default 5175)
//   DB_PATH            SQLite file (default ./data/app.db)
//   LOG_LEVEL          zerolog level (default info)
//   JWT_SECRET         HMAC secret for session tokens
//   JWT_EXPIRES_DAYS   token lifetime in days (default 14)
//   COOKIE_NAME        auth cookie name (default numguess_token)
//   CLIENT_ORIGIN      allowed CORS origin (default http://localhost:5173)
//   NODE_ENV           "production" switches cookies to Secure/SameSite=None
//   DAILY_SALT         salt for the daily challenge secret
//   ALLOW_FIXED_SECRET lets POST /game/new accept a fixed secret (dev/testing)

package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds every runtime setting.
type Config struct {
	Port             string
	DBPath           string
	LogLevel         string
	JWTSecret        string
	JWTExpiresDays   int
	CookieName       string
	ClientOrigin     string
	Production       bool
	DailySalt        string
	AllowFixedSecret bool
}

// Load reads Config from the environment, applying defaults.
func Load() Config {
	return Config{
		Port:             getEnv("PORT", "5175"),
		DBPath:           getEnv("DB_PATH", "./data/app.db"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		JWTSecret:        getEnv("JWT_SECRET", "dev_secret_change_me"),
		JWTExpiresDays:   envInt("JWT_EXPIRES_DAYS", 14),
		CookieName:       getEnv("COOKIE_NAME", "numguess_token"),
		ClientOrigin:     getEnv("CLIENT_ORIGIN", "http://localhost:5173"),
		Production:       os.Getenv("NODE_ENV") == "production",
		DailySalt:        getEnv("DAILY_SALT", "local_dev_salt"),
		AllowFixedSecret: envBool("ALLOW_FIXED_SECRET", false),
	}
}

// getEnv returns the value of k or def if unset/empty.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return def
}

func envBool(k string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(k))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

// Package config loads the runtime configuration from the process
// environment. It follows the teacher's getEnv/getEnvInt/getEnvFloat/
// getEnvBool + .env-hydration idiom (env.go in the coinbase bot), widened
// to the full key set of spec.md §6 and backed by godotenv instead of a
// hand-rolled scanner.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv hydrates the process environment from ".env" and "../.env"
// without overriding variables the process already has set. Missing files
// are not an error — the teacher's bot is expected to run from exported
// env vars in production and a local .env only in development.
func LoadDotEnv() {
	for _, path := range []string{".env", "../.env"} {
		vals, err := godotenv.Read(path)
		if err != nil {
			continue
		}
		for k, v := range vals {
			if os.Getenv(k) == "" {
				_ = os.Setenv(k, v)
			}
		}
	}
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "y", "yes":
		return true
	case "0", "false", "n", "no":
		return false
	default:
		return def
	}
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvUint64(key string, def uint64) uint64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return i
}

package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Get retrieves a secret value. A KEY_FILE variable pointing at a file wins
// over a direct KEY variable (Docker secrets pattern); the file content is
// trimmed of surrounding whitespace.
func Get(envKey string, defaultValue string) (string, error) {
	if filePath := os.Getenv(envKey + "_FILE"); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("read secret file %s: %w", filePath, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if value := os.Getenv(envKey); value != "" {
		return value, nil
	}

	return defaultValue, nil
}

// GetOptionalSecret retrieves a secret, falling back to the default on any
// error. For secrets the service can run without.
func GetOptionalSecret(envKey string, defaultValue string) string {
	value, err := Get(envKey, defaultValue)
	if err != nil {
		return defaultValue
	}
	return value
}

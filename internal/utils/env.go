package utils

import (
	"fmt"
	"os"
	"strconv"

	"github.com/nanofleet/agentd/internal/logger"
)

func GetEnv(key, defaultVal string, log *logger.Logger) string {
	if log != nil {
		log = log.With("env_var", key)
	}
	val, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("Environment variable not found, using default", "default", defaultVal)
		}
		return defaultVal
	}
	if log != nil {
		log.Debug("Environment variable found, using environment", "environment", val)
	}
	return val
}

func GetEnvAsInt(key string, defaultVal int, log *logger.Logger) int {
	if log != nil {
		log = log.With("env_var", key)
	}
	valStr, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("Environment variable not found, using default", "default", defaultVal)
		}
		return defaultVal
	}
	i, err := strconv.Atoi(valStr)
	if err != nil {
		if log != nil {
			log.Debug("Environment variable could not be parsed as int, using default", "providedVal", valStr, "defaultVal", defaultVal, "error", err)
		}
		return defaultVal
	}
	if log != nil {
		log.Debug("Environment variable found, using it", "value", i)
	}
	return i
}

// RequireEnv is for values the process cannot run without. Callers treat an
// error as fatal at startup.
func RequireEnv(key string, log *logger.Logger) (string, error) {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		if log != nil {
			log.Error("Required environment variable is not set", "env_var", key)
		}
		return "", fmt.Errorf("%s environment variable is required", key)
	}
	return val, nil
}

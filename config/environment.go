package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	appEnvVar              = "APP_ENV"
	environmentDevelopment = "development"
	environmentProduction  = "production"
	environmentTest        = "test"
)

// DefaultPath is the config file used when --config is not given.
const DefaultPath = "config/config.yml"

var environmentAliases = map[string]string{
	"dev":  environmentDevelopment,
	"prod": environmentProduction,
	"ci":   environmentTest,
}

// getAppEnvironment reads the application environment from APP_ENV and
// defaults to development when no value is provided.
func getAppEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if env == "" {
		return environmentDevelopment
	}
	if canonical, ok := environmentAliases[env]; ok {
		return canonical
	}
	return env
}

// ResolvePath picks config/config.<env>.yml over the default file when the
// caller did not ask for a specific path and such a file exists.
func ResolvePath(path string) string {
	if path != "" && path != DefaultPath {
		return path
	}
	env := getAppEnvironment()
	ext := filepath.Ext(DefaultPath)
	candidate := fmt.Sprintf("%s.%s%s", strings.TrimSuffix(DefaultPath, ext), env, ext)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return DefaultPath
}

// AppEnvironment exposes the normalised APP_ENV value.
func AppEnvironment() string {
	return getAppEnvironment()
}

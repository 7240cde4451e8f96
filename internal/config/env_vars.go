package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	appNameVar  = "APP_NAME"
	envVar      = "ENV"
	httpAddrVar = "HTTP_ADDR"
	logLevelVar = "LOG_LEVEL"
	originsVar  = "CORS_ALLOWED_ORIGINS"
)

type EnvVars struct {
	file *File
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return GetEnv(appNameVar, orDefault(e.file.AppName, "Learning Tab"))
}

func (e EnvVars) GetEnv() string {
	return GetEnv(envVar, orDefault(e.file.Env, "DEV"))
}

func (e EnvVars) GetHTTPAddr() string {
	addr := GetEnv(httpAddrVar, orDefault(e.file.HTTPAddr, "8080"))
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	return addr
}

func (e EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, orDefault(e.file.LogLevel, "info"))
}

// GetAllowedOrigins lists the origins allowed to call the tab API.
func (e EnvVars) GetAllowedOrigins() []string {
	return GetEnvList(originsVar, e.file.AllowedOrigins, []string{"*"})
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvDuration parses envVar as a time.Duration, falling back to the
// file value and then to defaultValue when unset or malformed.
func GetEnvDuration(envVar, fileValue string, defaultValue time.Duration) time.Duration {
	for _, raw := range []string{os.Getenv(envVar), fileValue} {
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return defaultValue
}

// GetEnvInt parses envVar as an int with the same fallback order as
// GetEnvDuration. A zero file value counts as unset.
func GetEnvInt(envVar string, fileValue, defaultValue int) int {
	if raw := os.Getenv(envVar); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	if fileValue != 0 {
		return fileValue
	}
	return defaultValue
}

// GetEnvList splits a comma separated envVar.
func GetEnvList(envVar string, fileValue []string, defaultValue []string) []string {
	if raw := os.Getenv(envVar); raw != "" {
		var out []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	if len(fileValue) > 0 {
		return fileValue
	}
	return defaultValue
}

func orDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config interface {
	EnvConfig
	SessionConfig
	RetryConfig
	BusConfig
	StorageConfig
	BackendConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetHTTPAddr() string
	GetLogLevel() string
	GetAllowedOrigins() []string
}

type mainConfig struct {
	EnvVars
	Session
	Retry
	Bus
	Storage
	Backend
}

// New returns a Config read from environment variables, with defaults
// for anything unset.
func New() Config {
	return newConfig(nil)
}

// Load reads an optional .env file and an optional YAML file, then
// applies environment variables on top. Empty paths are skipped.
func Load(envPath, yamlPath string) (Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("[config Load] failed to load env file %s: %w", envPath, err)
		}
	}

	var file *File
	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("[config Load] failed to read %s: %w", yamlPath, err)
		}
		file = &File{}
		if err := yaml.Unmarshal(data, file); err != nil {
			return nil, fmt.Errorf("[config Load] failed to parse %s: %w", yamlPath, err)
		}
	}
	return newConfig(file), nil
}

func newConfig(file *File) Config {
	if file == nil {
		file = &File{}
	}
	return mainConfig{
		EnvVars: EnvVars{file: file},
		Session: Session{file: file},
		Retry:   Retry{file: file},
		Bus:     Bus{file: file},
		Storage: Storage{file: file},
		Backend: Backend{file: file},
	}
}

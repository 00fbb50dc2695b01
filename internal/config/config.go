package config

import "github.com/joho/godotenv"

type Config interface {
	EnvConfig
	APIConfig
	SessionConfig
	StorageConfig
	MockConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type mainConfig struct {
	EnvVars
	API
	Session
	Storage
	Mock
}

// New loads an optional .env file from the working directory and returns the
// environment-backed configuration. Variables already set in the process
// environment take precedence over the file.
func New() Config {
	_ = godotenv.Load()
	return mainConfig{}
}

// NewFromFile behaves like New but loads the named env files.
func NewFromFile(filenames ...string) (Config, error) {
	if err := godotenv.Load(filenames...); err != nil {
		return nil, err
	}
	return mainConfig{}, nil
}

package config

import (
	"fmt"
	"os"
	"strconv"
)

// FromEnv builds a Config from environment variables. It is merged under file
// values and CLI flags.
//
//	DATABASE_URL          PostgreSQL connection URL (selects the postgres store)
//	HIREBOT_STORE         sqlite | postgres | memory
//	HIREBOT_SQLITE_PATH   local database file
//	MONGO_URI, MONGO_DB   feed sink
//	CHROME_PATH           Chrome executable
//	CHROME_REMOTE_URL     DevTools endpoint of a running Chrome
//	HIREBOT_PORT          control API port
func FromEnv() (Config, error) {
	cfg := Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Store:         os.Getenv("HIREBOT_STORE"),
		SQLitePath:    os.Getenv("HIREBOT_SQLITE_PATH"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDatabase: os.Getenv("MONGO_DB"),
		ChromePath:    os.Getenv("CHROME_PATH"),
		RemoteURL:     os.Getenv("CHROME_REMOTE_URL"),
	}

	if portStr := os.Getenv("HIREBOT_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return Config{}, fmt.Errorf("invalid HIREBOT_PORT: %v", err)
		}
		cfg.Port = port
	}

	return cfg, nil
}

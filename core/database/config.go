package database

import coreconfig "github.com/m3rciful/menukit/core/config"

// Config holds database connection settings shared across bots.
type Config struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	// MigrationsDir overrides the default "migrations" directory lookup.
	MigrationsDir string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

// FromStorage adapts the storage section of the core configuration.
func FromStorage(p coreconfig.PostgresConfig) Config {
	return Config{
		Host:           p.Host,
		Port:           p.Port,
		User:           p.User,
		Password:       p.Password,
		Name:           p.Name,
		SSLMode:        p.SSLMode,
		MaxConnections: p.MaxConnections,
	}
}

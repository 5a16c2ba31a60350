package helper

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// DatabaseConfiguration holds the connection parameters for the graph store's
// Postgres backend. Values default from the graph_* environment variables
// documented for this service, falling back to sane local-dev defaults.
type DatabaseConfiguration struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewDatabaseConfiguration reads GRAPH_HOST/GRAPH_PORT/GRAPH_USER/
// GRAPH_PASSWORD/GRAPH_DBNAME from the environment, defaulting to a local
// Postgres instance.
func NewDatabaseConfiguration() *DatabaseConfiguration {
	return &DatabaseConfiguration{
		Host:     envOr("GRAPH_HOST", "localhost"),
		Port:     envIntOr("GRAPH_PORT", 5432),
		User:     envOr("GRAPH_USER", "postgres"),
		Password: envOr("GRAPH_PASSWORD", "postgres"),
		DBName:   envOr("GRAPH_DBNAME", "corpusqa"),
		SSLMode:  envOr("GRAPH_SSLMODE", "disable"),
	}
}

func (c *DatabaseConfiguration) connString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Database bundles the live connection pool with the structured logger every
// database/* handler logs through.
type Database struct {
	Instance *sql.DB
	Logger   *slog.Logger
}

// NewDatabase opens and pings a Postgres connection pool per config.
func NewDatabase(config *DatabaseConfiguration) (*Database, error) {
	if config == nil {
		return nil, NewError("database configuration validation", fmt.Errorf("configuration is nil"))
	}

	instance, err := sql.Open("postgres", config.connString())
	if err != nil {
		return nil, NewErrorKind("open database", KindDependencyUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := instance.PingContext(ctx); err != nil {
		return nil, NewErrorKind("ping database", KindDependencyUnavailable, err)
	}

	logger := slog.New(NewPrettyHandler(os.Stdout, PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{Level: slog.LevelInfo},
	}))

	return &Database{Instance: instance, Logger: logger}, nil
}

// Close closes the underlying connection pool.
func (d *Database) Close() error {
	return d.Instance.Close()
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}

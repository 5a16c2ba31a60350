package helper

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MustStartPostgresContainer starts an ephemeral Postgres container for
// integration tests and returns a teardown function, the host port it
// published, and any startup error.
func MustStartPostgresContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("corpusqa_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, "", fmt.Errorf("starting postgres container: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return nil, "", fmt.Errorf("reading postgres container port: %w", err)
	}

	return container.Terminate, port.Port(), nil
}

// SetTestDatabaseConfigEnvs points the GRAPH_* environment variables at the
// container started by MustStartPostgresContainer for the duration of t.
func SetTestDatabaseConfigEnvs(t *testing.T, port string) {
	t.Helper()
	t.Setenv("GRAPH_HOST", "localhost")
	t.Setenv("GRAPH_PORT", port)
	t.Setenv("GRAPH_USER", "postgres")
	t.Setenv("GRAPH_PASSWORD", "postgres")
	t.Setenv("GRAPH_DBNAME", "corpusqa_test")
	t.Setenv("GRAPH_SSLMODE", "disable")
}

// NewTestDatabase opens a Database against the configuration, retrying
// briefly since the container's port may accept connections slightly before
// Postgres itself is ready to authenticate.
func NewTestDatabase(config *DatabaseConfiguration) (*Database, error) {
	var lastErr error
	for i := 0; i < 10; i++ {
		db, err := NewDatabase(config)
		if err == nil {
			return db, nil
		}
		lastErr = err
		time.Sleep(500 * time.Millisecond)
	}
	return nil, lastErr
}

func init() {
	// Default TESTCONTAINERS_RYUK_DISABLED to "false" (the ryuk reaper stays
	// enabled) when it is not already set.
	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "false")
	}
}

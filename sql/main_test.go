package sql

import (
	"context"
	"log"
	"testing"

	"github.com/ragengine/corpusqa/helper"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
)

var dbPort string

func TestMain(m *testing.M) {
	var teardown func(ctx context.Context, opts ...testcontainers.TerminateOption) error
	var err error
	teardown, dbPort, err = helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("error starting postgres container: %v", err)
	}

	m.Run()

	if teardown != nil && teardown(context.Background()) != nil {
		log.Fatalf("error tearing down postgres container: %v", err)
	}
}

func initDB(t *testing.T) *helper.Database {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig := helper.NewDatabaseConfiguration()
	database, err := helper.NewTestDatabase(dbConfig)
	require.NoError(t, err, "failed to connect to test database")

	err = Init(database.Instance)
	require.NoError(t, err)

	return database
}

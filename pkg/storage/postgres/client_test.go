package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"cryptopulse/pkg/storage/postgres"

	"github.com/stretchr/testify/require"
)

// testClient connects to CRYPTOPULSE_TEST_POSTGRES_DSN or skips.
func testClient(t *testing.T) *postgres.PostgresClient {
	t.Helper()
	dsn := os.Getenv("CRYPTOPULSE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CRYPTOPULSE_TEST_POSTGRES_DSN not set")
	}

	client, err := postgres.NewClient(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.AutoMigrateTriggerRecord())
	return client
}

// go test -v --run ^TestPostgresInvalidDSN$
func TestPostgresInvalidDSN(t *testing.T) {
	invalidDSN := "host=invalid.invalid port=5432 user=fail password=fail dbname=fail sslmode=disable connect_timeout=2"

	_, err := postgres.NewClient(invalidDSN)
	require.Error(t, err)
}

// go test -v --run ^TestPostgresHealthy$
func TestPostgresHealthy(t *testing.T) {
	client := testClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.True(t, client.IsHealthy(ctx))
}

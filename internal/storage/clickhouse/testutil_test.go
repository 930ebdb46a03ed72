package clickhouse

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// schemaDir holds the clickhouse migrations relative to this package. The
// migrations package imports this one, so tests read the files from disk.
const schemaDir = "../migrations/clickhouse"

// newTestConn starts a throwaway ClickHouse server with a "dca" database and
// applies the journal schema. The container stops when the test ends.
func newTestConn(t *testing.T) *Conn {
	t.Helper()
	if testing.Short() {
		t.Skip("clickhouse container tests are skipped with -short")
	}

	ctx := context.Background()
	ctr, err := testcontainers.Run(ctx, "clickhouse/clickhouse-server:24.8-alpine",
		testcontainers.WithExposedPorts("9000/tcp"),
		testcontainers.WithEnv(map[string]string{
			"CLICKHOUSE_DB":                        "dca",
			"CLICKHOUSE_USER":                      "default",
			"CLICKHOUSE_PASSWORD":                  "",
			"CLICKHOUSE_DEFAULT_ACCESS_MANAGEMENT": "1",
		}),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("9000/tcp").WithStartupTimeout(90*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start clickhouse container")

	endpoint, err := ctr.PortEndpoint(ctx, "9000/tcp", "clickhouse")
	require.NoError(t, err)

	conn, err := Open(ctx, endpoint+"/dca", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	names, err := filepath.Glob(filepath.Join(schemaDir, "*.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, names, "no migrations under %s", schemaDir)
	slices.Sort(names)
	for _, name := range names {
		body, err := os.ReadFile(name)
		require.NoError(t, err)
		// Each file holds a single statement; Exec rejects the trailing semicolon.
		stmt := strings.TrimSuffix(strings.TrimSpace(string(body)), ";")
		require.NoError(t, conn.Exec(ctx, stmt), "apply %s", filepath.Base(name))
	}
	return conn
}

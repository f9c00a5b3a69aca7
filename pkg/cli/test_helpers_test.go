package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"ddl-cache/internal/testutil"
)

const testRules = `apiVersion: ddl-cache/v1
kind: Cache
metadata:
  name: totals
spec:
  for: companies
  select: |
    select sum(orders.profit) as total_profit
    from orders
    where orders.id_client = companies.id
---
apiVersion: ddl-cache/v1
kind: Cache
metadata:
  name: percent
spec:
  for: orders
  select: |
    select orders.profit / nullif(companies.total_profit, 0) as percent_of_client_profit
    from companies
    where companies.id = orders.id_client
`

// fakeDatabase records statements instead of talking to PostgreSQL.
type fakeDatabase struct {
	*testutil.MockQuerier
	*testutil.MockExecer
	closed bool
}

func (f *fakeDatabase) Close() error {
	f.closed = true
	return nil
}

// fakeReports is an in-memory report store.
type fakeReports struct {
	*testutil.MockScanReportRepo
}

func (fakeReports) Close() error { return nil }

// testEnv is a root command wired to fakes with captured output.
type testEnv struct {
	app     *app
	db      *fakeDatabase
	reports *testutil.MockScanReportRepo
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
	dir     string
}

// newTestEnv writes the rules to a temp cache directory and clears the
// environment the root command reads.
func newTestEnv(t *testing.T, rules string) *testEnv {
	t.Helper()
	for _, key := range []string{
		"DATABASE_URL", "CACHE_DIR", "REPORT_DB_PATH", "LOG_LEVEL", "SCAN_TIMEOUT",
		"REFRESH_PARALLELISM", "REFRESH_RATE", "REFRESH_TIMEOUT", "AUDIT_SCHEDULE", "AGGREGATORS",
	} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.yaml"), []byte(rules), 0o600))

	env := &testEnv{
		db:      &fakeDatabase{MockQuerier: &testutil.MockQuerier{}, MockExecer: &testutil.MockExecer{}},
		reports: &testutil.MockScanReportRepo{},
		stdout:  &bytes.Buffer{},
		stderr:  &bytes.Buffer{},
		dir:     dir,
	}
	a := newApp()
	a.stdout = env.stdout
	a.stderr = env.stderr
	a.openDB = func(context.Context, string, int) (Database, error) { return env.db, nil }
	a.openReports = func(string) (ReportStore, error) { return fakeReports{env.reports}, nil }
	env.app = a
	return env
}

// run executes the CLI with args plus the test cache directory.
func (e *testEnv) run(args ...string) error {
	cmd := e.root()
	cmd.SetArgs(append(args, "--cache-dir", e.dir, "--env-file", filepath.Join(e.dir, ".env")))
	return cmd.Execute()
}

func (e *testEnv) root() *cobra.Command {
	return newRootCmd(e.app)
}

// containsIgnoreCase checks if s contains substr (case-insensitive).
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

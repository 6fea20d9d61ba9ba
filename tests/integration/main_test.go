package integration

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
)

var (
	testDB   *TestDB
	setupErr error
)

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	db, err := SetupTestDatabase(ctx)
	if err != nil {
		// No container runtime available; every test skips itself.
		setupErr = err
		fmt.Fprintf(os.Stderr, "integration environment unavailable: %v\n", err)
		os.Exit(m.Run())
	}
	testDB = db

	code := m.Run()
	_ = db.Teardown(ctx)
	os.Exit(code)
}

// requireTestDB skips the test when no database is available and resets the
// tables for isolation.
func requireTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if testDB == nil {
		t.Skipf("test database unavailable: %v", setupErr)
	}
	if err := testDB.CleanupTables(context.Background()); err != nil {
		t.Fatalf("cleanup tables: %v", err)
	}
	return testDB
}

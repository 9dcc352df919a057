package testutil

import (
	"database/sql"
	"fmt"
	"strings"
	"testing"
	devenv "trbowatch/dev/env"
	configlibsql "trbowatch/lib/configutil/libsql"
	"trbowatch/lib/telemetry"
)

type DBParams struct {
	Name string
	// if unspecified, it will skip applying a schema
	Schema string
	// if unspecified, it will use `:memory:`, otherwise it is relative to
	// the dev state directory
	Path string
}

// SetupDB sets up test telemetry and opens a sqlite database, both are torn
// down when the test finishes.
func SetupDB(t testing.TB, params DBParams) *sql.DB {
	t.Helper()
	cleanup := telemetry.SetupForTesting(t, fmt.Sprintf("test:%s", params.Name))
	t.Cleanup(cleanup)

	dbpath := ":memory:"
	if params.Path != "" && params.Path != ":memory:" {
		var err error
		dbpath, err = devenv.GetStateFilePath(params.Path)
		if err != nil {
			t.Fatal(err)
		}
	}
	db, err := configlibsql.Struct{File: dbpath}.OpenDB()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	if params.Schema == "" {
		return db
	}
	_, err = db.Exec(params.Schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		t.Fatal(err)
	}
	return db
}

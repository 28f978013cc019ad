package migrate_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/parcel-intake-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestParcelsMigrationContainsConstraints(t *testing.T) {
	assertContains(t, readMigration(t, "create_parcels"), []string{
		"CREATE TABLE IF NOT EXISTS parcels",
		"FOREIGN KEY (manifest_id) REFERENCES manifests(id) ON DELETE CASCADE",
		"CONSTRAINT ux_parcels_tracking_number UNIQUE (tracking_number)",
		"scan_history jsonb NOT NULL DEFAULT '[]'::jsonb",
		"DROP TABLE IF EXISTS parcels",
	})
}

func TestScanSessionsMigrationEnforcesSingleActiveSession(t *testing.T) {
	assertContains(t, readMigration(t, "create_scan_sessions"), []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_scan_sessions_active_user ON scan_sessions (user_id) WHERE is_active",
		"DROP TABLE IF EXISTS scan_sessions",
	})
}

func TestPropagationTasksMigrationContainsStatusCheck(t *testing.T) {
	assertContains(t, readMigration(t, "create_propagation_tasks"), []string{
		"CHECK (status IN ('pending', 'running', 'succeeded', 'failed', 'canceled'))",
		"idx_propagation_tasks_due",
		"DROP TABLE IF EXISTS propagation_tasks",
	})
}

func TestValidateDirAcceptsMigrations(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Parcel Notes!", migrate.CreateOptions{})
	if err != nil {
		t.Fatalf("CreateSQLMigration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_parcel_notes.sql") {
		t.Fatalf("unexpected path %q", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}

func TestCreateSQLMigrationRejectsReusedName(t *testing.T) {
	dir := t.TempDir()
	first := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	if _, err := migrate.CreateSQLMigration(dir, "parcel_notes", migrate.CreateOptions{Now: func() time.Time { return first }}); err != nil {
		t.Fatalf("CreateSQLMigration: %v", err)
	}
	later := first.Add(time.Hour)
	if _, err := migrate.CreateSQLMigration(dir, "Parcel Notes", migrate.CreateOptions{Now: func() time.Time { return later }}); err == nil {
		t.Fatal("expected reused migration name to be rejected")
	}
}

func TestCreateSQLMigrationNoTransaction(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "index_parcels_consignee", migrate.CreateOptions{NoTransaction: true})
	if err != nil {
		t.Fatalf("CreateSQLMigration: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(b), "-- +goose NO TRANSACTION") {
		t.Fatalf("expected NO TRANSACTION header, got %q", string(b))
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}

func TestRunRequiresDatabase(t *testing.T) {
	if err := migrate.Run(context.Background(), nil, migrate.DefaultDir, "up"); err == nil {
		t.Fatal("expected error without a database")
	}
	if err := migrate.MigrateToVersion(context.Background(), nil, migrate.DefaultDir, "20260301090000"); err == nil {
		t.Fatal("expected error without a database")
	}
}

func TestValidateEmbeddedMigrations(t *testing.T) {
	if err := migrate.ValidateDir(migrate.DefaultDir); err != nil {
		t.Fatalf("embedded migrations: %v", err)
	}
}

func TestValidateFSReportsEveryProblem(t *testing.T) {
	fsys := fstest.MapFS{
		"20260101000000_ok.sql":        {Data: []byte("-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")},
		"20260101000000_dup.sql":       {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"bad-name.sql":                 {Data: []byte("")},
		"20260102000000_no_down.sql":   {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		"20260103000000_backwards.sql": {Data: []byte("-- +goose Down\n-- +goose Up\n")},
		"README.md":                    {Data: []byte("ignored")},
	}
	err := migrate.ValidateFS(fsys, ".")
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if got := len(multierr.Errors(err)); got != 4 {
		t.Fatalf("expected 4 problems, got %d: %v", got, err)
	}
	for _, want := range []string{"bad-name.sql", "already used", "missing \"-- +goose Down\"", "must precede"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %v", want, err)
		}
	}
}

func TestValidateFSEmpty(t *testing.T) {
	if err := migrate.ValidateFS(fstest.MapFS{}, "."); err == nil {
		t.Fatal("expected error for empty migrations dir")
	}
}

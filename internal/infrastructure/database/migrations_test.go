package database

import (
	"context"
	"testing"
	"testing/fstest"
	"time"
)

func useMigrations(t *testing.T, files fstest.MapFS) {
	t.Helper()
	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS = origFS
		MigrationsDir = origDir
	})
	MigrationsFS = files
	MigrationsDir = "."
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20261001_090000_create_widget.up.sql":   {Data: []byte("CREATE TABLE widget (id INTEGER PRIMARY KEY);")},
		"20261001_090000_create_widget.down.sql": {Data: []byte("DROP TABLE widget;")},
		"20261002_090000_add_label.up.sql":       {Data: []byte("ALTER TABLE widget ADD COLUMN label TEXT;")},
		"README.md":                              {Data: []byte("ignored")},
	}
}

func TestMigrate(t *testing.T) {
	useMigrations(t, testMigrations())
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if _, err := db.ExecContext(ctx, "INSERT INTO widget (label) VALUES ('x')"); err != nil {
		t.Fatalf("migrated schema unusable: %v", err)
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("applied = %d, want 2", len(applied))
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateFailureRollsBack(t *testing.T) {
	files := testMigrations()
	files["20261003_090000_broken.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE widget (id INTEGER);")}
	useMigrations(t, files)
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err == nil {
		t.Fatal("Migrate() expected error for duplicate table")
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 1 {
		t.Errorf("applied=%d pending=%d, want 2 and 1", len(applied), len(pending))
	}
}

func TestMigrateDown(t *testing.T) {
	files := fstest.MapFS{
		"20261001_090000_create_widget.up.sql":   {Data: []byte("CREATE TABLE widget (id INTEGER PRIMARY KEY);")},
		"20261001_090000_create_widget.down.sql": {Data: []byte("DROP TABLE widget;")},
	}
	useMigrations(t, files)
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='widget'",
	).Scan(&name)
	if err == nil {
		t.Error("table widget still exists after MigrateDown()")
	}

	if err := db.MigrateDown(ctx); err != nil {
		t.Errorf("MigrateDown() with nothing applied error = %v", err)
	}
}

func TestMigrateNoMigrations(t *testing.T) {
	origFS := MigrationsFS
	t.Cleanup(func() { MigrationsFS = origFS })
	MigrationsFS = nil

	db := openTestDB(t)
	if err := db.Migrate(context.Background()); err != nil {
		t.Errorf("Migrate() with no migrations error = %v", err)
	}
}

func TestParseMigrationFile(t *testing.T) {
	tests := []struct {
		filename string
		want     migrationFile
		wantOK   bool
	}{
		{"20261019_120000_initial_schema.up.sql", migrationFile{"20261019_120000", "initial_schema", true}, true},
		{"20261019_120000_initial_schema.down.sql", migrationFile{"20261019_120000", "initial_schema", false}, true},
		{"20261019_120000.up.sql", migrationFile{"20261019_120000", "20261019_120000", true}, true},
		{"20261019_120000_initial_schema.sql", migrationFile{}, false},
		{"20261019.up.sql", migrationFile{}, false},
		{"notes.txt", migrationFile{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, ok := parseMigrationFile(tt.filename)
			if ok != tt.wantOK || (ok && got != tt.want) {
				t.Errorf("parseMigrationFile(%q) = (%+v, %v), want (%+v, %v)",
					tt.filename, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

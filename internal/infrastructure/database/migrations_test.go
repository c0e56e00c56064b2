package database

import (
	"context"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"
)

const (
	usersUp   = "CREATE TABLE test_users (id INTEGER PRIMARY KEY, name TEXT NOT NULL) STRICT;"
	usersDown = "DROP TABLE test_users;"
	tagsUp    = "CREATE TABLE test_tags (id INTEGER PRIMARY KEY, label TEXT) STRICT;"
	tagsDown  = "DROP TABLE test_tags;"
)

// useMigrations swaps the package-level filesystem for the test's duration.
func useMigrations(t *testing.T, files fstest.MapFS) {
	t.Helper()
	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})
	MigrationsFS = files
	MigrationsDir = "."
}

func file(body string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(body)}
}

func twoMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260101_000000_users.up.sql":   file(usersUp),
		"20260101_000000_users.down.sql": file(usersDown),
		"20260102_000000_tags.up.sql":    file(tagsUp),
		"20260102_000000_tags.down.sql":  file(tagsDown),
		"README.md":                      file("ignored"),
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&n)
	if err != nil {
		t.Fatalf("checking table %s: %v", name, err)
	}
	return n == 1
}

func TestMigrate_AppliesInOrder(t *testing.T) {
	useMigrations(t, twoMigrations())
	db := openMemoryDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "test_users") || !tableExists(t, db, "test_tags") {
		t.Fatal("expected both tables to exist")
	}

	status, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(status.Applied) != 2 || len(status.Pending) != 0 {
		t.Fatalf("status = %d applied, %d pending; want 2, 0", len(status.Applied), len(status.Pending))
	}
	if status.Applied[0].Version != "20260101_000000" {
		t.Errorf("first applied = %s", status.Applied[0].Version)
	}
	if status.Applied[0].AppliedAt.IsZero() {
		t.Error("AppliedAt not recorded")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	useMigrations(t, twoMigrations())
	db := openMemoryDB(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := db.Migrate(ctx); err != nil {
			t.Fatalf("Migrate() run %d error = %v", i+1, err)
		}
	}
}

func TestMigrate_FailureStopsAndRollsBack(t *testing.T) {
	files := twoMigrations()
	files["20260103_000000_broken.up.sql"] = file("CREATE TABLE half (id INTEGER); NOT SQL;")
	files["20260104_000000_after.up.sql"] = file("CREATE TABLE after_broken (id INTEGER);")
	useMigrations(t, files)

	db := openMemoryDB(t)
	ctx := context.Background()

	err := db.Migrate(ctx)
	if err == nil {
		t.Fatal("Migrate() expected error for broken migration")
	}
	if !strings.Contains(err.Error(), "20260103_000000") {
		t.Errorf("error %q should name the failing version", err)
	}

	if !tableExists(t, db, "test_tags") {
		t.Error("migrations before the failure should stay applied")
	}
	if tableExists(t, db, "half") {
		t.Error("failed migration should be rolled back")
	}
	if tableExists(t, db, "after_broken") {
		t.Error("migrations after the failure should not run")
	}
}

func TestMigrateDown(t *testing.T) {
	useMigrations(t, twoMigrations())
	db := openMemoryDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	if tableExists(t, db, "test_tags") {
		t.Error("latest migration should be reverted")
	}
	if !tableExists(t, db, "test_users") {
		t.Error("earlier migration should remain")
	}

	status, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(status.Applied) != 1 || len(status.Pending) != 1 {
		t.Errorf("status = %d applied, %d pending; want 1, 1", len(status.Applied), len(status.Pending))
	}
}

func TestMigrateDown_NothingApplied(t *testing.T) {
	useMigrations(t, twoMigrations())
	db := openMemoryDB(t)

	if err := db.MigrateDown(context.Background()); err != nil {
		t.Errorf("MigrateDown() on fresh database = %v, want nil", err)
	}
}

func TestMigrateDown_MissingDownFile(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"20260101_000000_users.up.sql": file(usersUp),
	})
	db := openMemoryDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err == nil {
		t.Error("MigrateDown() should fail without down SQL")
	}
}

func TestLoadMigrations(t *testing.T) {
	tests := []struct {
		name    string
		files   fs.FS
		want    []string
		wantErr bool
	}{
		{
			name:  "nil filesystem",
			files: nil,
			want:  nil,
		},
		{
			name:  "sorted and filtered",
			files: twoMigrations(),
			want:  []string{"20260101_000000", "20260102_000000"},
		},
		{
			name: "bad names ignored",
			files: fstest.MapFS{
				"1_short.up.sql":                  file("x"),
				"20260101_000000_users.sql":       file("x"),
				"20260101_000000_has-dash.up.sql": file("x"),
			},
			want: nil,
		},
		{
			name: "orphan down file",
			files: fstest.MapFS{
				"20260101_000000_users.down.sql": file(usersDown),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			origFS, origDir := MigrationsFS, MigrationsDir
			defer func() { MigrationsFS, MigrationsDir = origFS, origDir }()
			MigrationsFS, MigrationsDir = tt.files, "."

			got, err := loadMigrations()
			if (err != nil) != tt.wantErr {
				t.Fatalf("loadMigrations() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("loadMigrations() returned %d, want %d", len(got), len(tt.want))
			}
			for i, m := range got {
				if m.Version != tt.want[i] {
					t.Errorf("migration %d version = %s, want %s", i, m.Version, tt.want[i])
				}
			}
		})
	}
}

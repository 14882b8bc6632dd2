package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/stub"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("read embedded dir: %v", err)
	}
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	if len(ups) == 0 {
		t.Fatalf("no migrations embedded")
	}
	for v := range ups {
		if !downs[v] {
			t.Fatalf("migration %s has no down file", v)
		}
	}
}

// stubMigrator runs the embedded migrations against an in-memory driver
// that records every script it is given.
func stubMigrator(t *testing.T, version int, dirty bool) (*Migrator, *stub.Stub) {
	t.Helper()
	src, err := embeddedSource()
	if err != nil {
		t.Fatal(err)
	}
	drv, err := stub.WithInstance(nil, &stub.Config{})
	if err != nil {
		t.Fatal(err)
	}
	db := drv.(*stub.Stub)
	db.CurrentVersion = version
	db.IsDirty = dirty
	m, err := migrate.NewWithInstance("iofs", src, "stub", drv)
	if err != nil {
		t.Fatal(err)
	}
	return newMigrator(m, src, nil), db
}

func script(t *testing.T, name string) string {
	t.Helper()
	b, err := fs.ReadFile(migrationsFS, "migrations/"+name)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestUpFromEmpty(t *testing.T) {
	m, db := stubMigrator(t, -1, false)
	if err := m.Up(); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if db.CurrentVersion != 2 || db.IsDirty {
		t.Fatalf("version %d dirty=%v", db.CurrentVersion, db.IsDirty)
	}
	if len(db.MigrationSequence) != 2 {
		t.Fatalf("ran %d scripts", len(db.MigrationSequence))
	}
	if err := m.Up(); err != nil {
		t.Fatalf("second Up: %v", err)
	}
}

func TestDirtyVersionIsRetried(t *testing.T) {
	m, db := stubMigrator(t, 2, true)
	if err := m.Up(); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if db.CurrentVersion != 2 || db.IsDirty {
		t.Fatalf("version %d dirty=%v", db.CurrentVersion, db.IsDirty)
	}
	if len(db.MigrationSequence) != 1 {
		t.Fatalf("ran %d scripts, want only the failed one", len(db.MigrationSequence))
	}
	if got, want := db.MigrationSequence[0], script(t, "000002_arena_ratings.up.sql"); got != want {
		t.Fatalf("re-ran the wrong script:\n%s", got)
	}
}

func TestDirtyFirstVersionStartsOver(t *testing.T) {
	m, db := stubMigrator(t, 1, true)
	if err := m.Up(); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if db.CurrentVersion != 2 || db.IsDirty {
		t.Fatalf("version %d dirty=%v", db.CurrentVersion, db.IsDirty)
	}
	if len(db.MigrationSequence) != 2 || db.MigrationSequence[0] != script(t, "000001_arena_games.up.sql") {
		t.Fatalf("sequence %d", len(db.MigrationSequence))
	}
}

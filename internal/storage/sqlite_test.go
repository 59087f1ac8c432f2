package storage_test

import (
	"path/filepath"
	"testing"

	"ledger/internal/storage"
	"ledger/internal/storage/storagetest"
)

func TestSQLiteRepository(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
		if err != nil {
			t.Fatalf("open repository: %v", err)
		}
		t.Cleanup(func() { repo.Close() })
		return repo
	})
}

func TestMigrationsAreReversible(t *testing.T) {
	dsn := storage.DSN(filepath.Join(t.TempDir(), "ledger.db"))

	if err := storage.RunMigrations(dsn); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	v, dirty, err := storage.MigrationVersion(dsn)
	if err != nil || dirty || v != 2 {
		t.Fatalf("version after up: v=%d dirty=%v err=%v", v, dirty, err)
	}

	if err := storage.RollbackMigrations(dsn, 2); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if v, _, err := storage.MigrationVersion(dsn); err != nil || v != 0 {
		t.Fatalf("version after rollback: v=%d err=%v", v, err)
	}

	if err := storage.RunMigrations(dsn); err != nil {
		t.Fatalf("migrate up again: %v", err)
	}
}

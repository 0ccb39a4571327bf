// Package db owns the on-disk catalog: it opens the SQLite file with the
// pragmas the sync engine depends on, brings the schema up to date and
// validates the singleton library_info row.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// connPragmas ride the DSN so every connection the pool hands out carries
// them. foreign_keys drives the cascade and restrict semantics the prune
// phase relies on; WAL lets reads proceed while a pass writes.
var connPragmas = []string{
	"journal_mode(WAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

// OpenLibrary opens the catalog database at dbPath, creating it on first
// use, and binds it to the library rooted at rootPath.
func OpenLibrary(ctx context.Context, dbPath, rootPath string) (*sql.DB, LibraryInfo, error) {
	database, err := Open(dbPath)
	if err != nil {
		return nil, LibraryInfo{}, err
	}

	info, err := EnsureLibraryInfo(ctx, database, rootPath)
	if err != nil {
		database.Close()
		return nil, LibraryInfo{}, err
	}

	return database, info, nil
}

// Open opens and migrates the catalog database without touching the library
// info row. Tests use it directly against throwaway files.
func Open(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	params := url.Values{}
	for _, pragma := range connPragmas {
		params.Add("_pragma", pragma)
	}
	database, err := sql.Open("sqlite", "file:"+dbPath+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// The engine is a single serial writer; one connection keeps concurrent
	// readers from starving it of the write lock.
	database.SetMaxOpenConns(1)

	var fkEnabled int
	if err := database.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		database.Close()
		return nil, fmt.Errorf("probe sqlite pragmas: %w", err)
	}
	if fkEnabled != 1 {
		database.Close()
		return nil, fmt.Errorf("foreign key enforcement unavailable for %s", dbPath)
	}

	if err := migrate(database); err != nil {
		database.Close()
		return nil, err
	}

	return database, nil
}

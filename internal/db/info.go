package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const schemaVersion = 1

// ErrCorruptInfo reports a library whose singleton info table holds anything
// other than exactly one row. Such a library cannot be opened.
var ErrCorruptInfo = errors.New("library info table is corrupt")

// LibraryInfo is the singleton bookkeeping row for a catalog database.
type LibraryInfo struct {
	SchemaVersion int
	RootPath      string
	CreatedAt     string
	SettingsJSON  string
}

// EnsureLibraryInfo creates the singleton info row if absent, or validates the
// existing one. More than one row, or a mismatched root path, fails the open.
func EnsureLibraryInfo(ctx context.Context, database *sql.DB, rootPath string) (LibraryInfo, error) {
	var count int
	if err := database.QueryRowContext(ctx, "SELECT COUNT(1) FROM library_info").Scan(&count); err != nil {
		return LibraryInfo{}, fmt.Errorf("count library info rows: %w", err)
	}

	switch {
	case count > 1:
		return LibraryInfo{}, fmt.Errorf("%w: %d rows", ErrCorruptInfo, count)
	case count == 0:
		info := LibraryInfo{
			SchemaVersion: schemaVersion,
			RootPath:      rootPath,
			CreatedAt:     time.Now().UTC().Format(time.RFC3339),
			SettingsJSON:  "{}",
		}
		if _, err := database.ExecContext(
			ctx,
			"INSERT INTO library_info(id, schema_version, root_path, created_at, settings_json) VALUES (1, ?, ?, ?, ?)",
			info.SchemaVersion,
			info.RootPath,
			info.CreatedAt,
			info.SettingsJSON,
		); err != nil {
			return LibraryInfo{}, fmt.Errorf("insert library info: %w", err)
		}
		return info, nil
	}

	var info LibraryInfo
	err := database.QueryRowContext(
		ctx,
		"SELECT schema_version, root_path, created_at, settings_json FROM library_info WHERE id = 1",
	).Scan(&info.SchemaVersion, &info.RootPath, &info.CreatedAt, &info.SettingsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LibraryInfo{}, fmt.Errorf("%w: row present but not id=1", ErrCorruptInfo)
		}
		return LibraryInfo{}, fmt.Errorf("read library info: %w", err)
	}

	if rootPath != "" && info.RootPath != rootPath {
		info.RootPath = rootPath
		if _, err := database.ExecContext(
			ctx,
			"UPDATE library_info SET root_path = ? WHERE id = 1",
			rootPath,
		); err != nil {
			return LibraryInfo{}, fmt.Errorf("update library root: %w", err)
		}
	}

	return info, nil
}

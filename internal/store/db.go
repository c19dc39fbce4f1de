// Package store owns the single nmem SQLite database: schema migrations,
// pragmas, retries, envelope encryption, and the CRUD/query surface every
// other package reads and writes through.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

// DefaultDBFileName is the database file under the data directory
// (<home>/.nmem/nmem.db).
const DefaultDBFileName = "nmem.db"

// defaultBusyTimeoutMS is the SQLite busy_timeout in milliseconds.
// Override with NMEM_BUSY_TIMEOUT_MS under contention.
const defaultBusyTimeoutMS = 5000

// Path resolves the database path: explicit override, then NMEM_DB, then
// <home>/.nmem/nmem.db.
func Path(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if v := os.Getenv("NMEM_DB"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".nmem", DefaultDBFileName), nil
}

// EnsureDBDir creates the parent directory of dbPath (mode 0700) and
// returns the absolute path.
func EnsureDBDir(dbPath string) (string, error) {
	if dbPath == ":memory:" || strings.HasPrefix(dbPath, "file::memory:") {
		return dbPath, nil
	}
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("resolve absolute db path: %w", err)
	}
	if dir := filepath.Dir(abs); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("create db directory %s: %w", dir, err)
		}
	}
	return abs, nil
}

// CloseDB runs PRAGMA optimize then closes the connection, refreshing query
// planner statistics accumulated during the session.
func CloseDB(db *sql.DB) error {
	_, _ = db.ExecContext(context.Background(), "PRAGMA optimize")
	return db.Close()
}

var validCheckpointModes = map[string]bool{
	"PASSIVE":  true,
	"FULL":     true,
	"TRUNCATE": true,
	"RESTART":  true,
}

// CheckpointWAL triggers a WAL checkpoint in the given mode. Used by the
// Stop handler and after a retention sweep.
func CheckpointWAL(ctx context.Context, db *sql.DB, mode string) error {
	if !validCheckpointModes[mode] {
		return fmt.Errorf("invalid WAL checkpoint mode %q: must be one of PASSIVE, FULL, TRUNCATE, RESTART", mode)
	}
	_, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint("+mode+")")
	return err
}

// Open opens (creating if absent) a read-write connection, applies the
// encryption key, pragmas, and migrations. keyHex is the raw 64-hex
// (32-byte) key, or "" to fall back to NMEM_KEY or the default key file
// (generated if absent); only NMEM_NO_ENCRYPT=1 opens unencrypted.
func Open(dbPath string, keyHex string) (*sql.DB, error) {
	db, err := OpenNoMigrate(dbPath, keyHex)
	if err != nil {
		return nil, err
	}
	if err := MigrateDB(db, dbPath); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// OpenNoMigrate opens and configures a connection without running
// migrations. Used by CheckSchemaVersion-gated production paths and by the
// read-only Retriever server.
func OpenNoMigrate(dbPath string, keyHex string) (*sql.DB, error) {
	absPath, err := EnsureDBDir(dbPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", normalizeSQLiteDSN(absPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// CLI-tool scale: one connection, no pooling ambiguity over which
	// statement runs on which underlying handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyEncryption(db, keyHex); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// applyPragmas sets WAL mode and concurrent-access pragmas.
//
// Trade-offs:
//
//	busy_timeout      — blocks writers up to N ms instead of failing outright.
//	synchronous=NORMAL — skips fsync on every commit; WAL still guarantees
//	                     crash safety for committed transactions.
//	journal_mode=WAL   — concurrent readers + one writer, required for the
//	                     recorder and retriever to share one file.
//	auto_vacuum=INCREMENTAL — reclaims freed pages on demand after a purge
//	                     without the cost of a full VACUUM.
//	temp_store=MEMORY — temp tables/indices in RAM.
func applyPragmas(db *sql.DB) error {
	busyTimeout := defaultBusyTimeoutMS
	if v := os.Getenv("NMEM_BUSY_TIMEOUT_MS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			busyTimeout = parsed
		}
	}

	pragmas := []string{
		// busy_timeout first so later pragmas (including WAL) wait on locks.
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout),
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA journal_mode=WAL",
		"PRAGMA auto_vacuum=INCREMENTAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA mmap_size=67108864",
		"PRAGMA cache_size=-8000",
		"PRAGMA wal_autocheckpoint=1000",
	}

	for _, pragma := range pragmas {
		if err := RetryWithBackoff(context.Background(), func() error {
			_, err := db.ExecContext(context.Background(), pragma)
			return err
		}); err != nil {
			return fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}
	return nil
}

// CheckSchemaVersion verifies the database schema is current, returning a
// remediation-bearing error if migrations are pending.
func CheckSchemaVersion(db *sql.DB) error {
	current, latest, err := SchemaVersion(db)
	if err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}
	if current < latest {
		return fmt.Errorf("schema version %d, expected %d: run 'nmem maintain' to apply migrations", current, latest)
	}
	return nil
}

func normalizeSQLiteDSN(dbPath string) string {
	// _txlock=immediate makes every BeginTx use BEGIN IMMEDIATE, avoiding
	// writer starvation under concurrent recorder invocations. Skipped for
	// in-memory DSNs, where IMMEDIATE locking can deadlock nested migration
	// queries on a shared-cache connection.
	if strings.HasPrefix(dbPath, "file:") {
		if strings.Contains(dbPath, ":memory:") {
			return dbPath
		}
		if strings.Contains(dbPath, "_txlock=") {
			return dbPath
		}
		if strings.Contains(dbPath, "?") {
			return dbPath + "&_txlock=immediate"
		}
		return dbPath + "?_txlock=immediate"
	}

	if dbPath == ":memory:" {
		return "file::memory:?cache=shared"
	}

	return "file:" + dbPath + "?mode=rwc&_txlock=immediate"
}

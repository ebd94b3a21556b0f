// Package persistence stores run history and archived scans in SQLite.
package persistence

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"spectra/pkg/logx"
)

// driverName is the database/sql name registered by modernc.org/sqlite.
const driverName = "sqlite"

// dsn builds the connection string. Pragmas are applied on every new connection.
func dsn(dbPath string) string {
	pragmas := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
	}
	// WAL is meaningless for in-memory databases.
	if dbPath != ":memory:" {
		pragmas = append(pragmas, "_pragma=journal_mode(WAL)")
	}
	return fmt.Sprintf("file:%s?%s", dbPath, strings.Join(pragmas, "&"))
}

// InitializeDatabase opens the SQLite database at dbPath and brings the schema to
// CurrentSchemaVersion. It is idempotent.
func InitializeDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one writer; a single connection also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logx.NewLogger("persistence").Debug("📦 Database initialized: %s", dbPath)
	return db, nil
}

package database

import (
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	_ "github.com/rqlite/gorqlite/stdlib"

	"github.com/84adam/zkauth/config"
	"github.com/84adam/zkauth/logging"
)

//go:embed schema.sql
var schemaSQL string

var (
	DB *sql.DB
)

// InitDB opens the configured database, applies the schema and sets DB.
func InitDB(cfg *config.Config) error {
	driver, dsn, err := dataSource(cfg)
	if err != nil {
		return err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == "sqlite3" {
		// one writer at a time; avoids SQLITE_BUSY under concurrent requests
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping %s database: %w", driver, err)
	}
	if err := ApplySchema(db); err != nil {
		db.Close()
		return err
	}

	DB = db
	logging.InfoLogger.Printf("Database initialized (%s)", driver)
	return nil
}

// dataSource builds the driver name and DSN. For rqlite the first node is
// the entry point and the rest are listed for cluster discovery.
func dataSource(cfg *config.Config) (string, string, error) {
	switch cfg.Database.Driver {
	case "sqlite3":
		return "sqlite3", cfg.Database.Path + "?_foreign_keys=on&_busy_timeout=5000", nil
	case "rqlite":
		nodes := strings.Split(cfg.Database.RqliteNodes, ",")
		dsn := fmt.Sprintf("http://%s:%s@%s", cfg.Database.RqliteUsername, cfg.Database.RqlitePassword, strings.TrimSpace(nodes[0]))
		if len(nodes) > 1 {
			dsn += "?disableClusterDiscovery=false"
			for _, node := range nodes[1:] {
				dsn += "&node=" + strings.TrimSpace(node)
			}
		}
		return "rqlite", dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// ApplySchema executes the embedded schema one statement at a time, which
// both drivers accept.
func ApplySchema(db *sql.DB) error {
	for _, stmt := range schemaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func schemaStatements() []string {
	var lines []string
	for _, line := range strings.Split(schemaSQL, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		lines = append(lines, line)
	}

	var stmts []string
	for _, stmt := range strings.Split(strings.Join(lines, "\n"), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// Close closes DB if it is open.
func Close() error {
	if DB == nil {
		return nil
	}
	err := DB.Close()
	DB = nil
	return err
}

// Package database provides SQLite connectivity for the relay history.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations registered from an fs.FS (normally embedded)
//   - Connection lifecycle and health checks
//
// All queries use parameterised statements and the database file is
// created with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. New columns must be NULLABLE or have
// DEFAULT values.
package database

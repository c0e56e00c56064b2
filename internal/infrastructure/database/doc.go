// Package database provides SQLite connectivity for the hands-free service.
//
// This package manages:
//   - Opening the database file (or a private in-memory database)
//   - Embedded schema migrations tracked in schema_migrations
//   - Health checks for the status endpoint
//
// The handle is limited to one connection. SQLite serialises writers anyway,
// and the priority store and transition history are low-volume.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files live in the top-level migrations package and are named
// YYYYMMDD_HHMMSS_description.up.sql with a matching .down.sql.
package database

// Package database provides SQLite connectivity for the Venstar bridge.
//
// The store holds the thermostat and sensor registry, persisted
// controller settings (such as the log level) and the event log.
// Schema changes are applied by Migrate from the files registered in
// MigrationsFS, each in its own transaction.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database

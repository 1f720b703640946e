package db

import (
	"fmt"
	"io"
	"io/fs"
	"strconv"
)

// RunMigrateCommand executes one migrate action (up, down, status, to,
// force) against database using the embedded migrations, writing a short
// report to w.
func RunMigrateCommand(w io.Writer, database *DB, action string, args []string) error {
	return runMigrate(w, database, MigrationsFS(), action, args)
}

func runMigrate(w io.Writer, database *DB, migrations fs.FS, action string, args []string) error {
	switch action {
	case "up":
		if err := database.MigrateUp(migrations); err != nil {
			return err
		}
		fmt.Fprintln(w, "✓ All migrations applied successfully")

	case "down":
		if err := database.MigrateDown(migrations); err != nil {
			return err
		}
		fmt.Fprintln(w, "✓ Migration rolled back successfully")

	case "status":

	case "to", "force":
		if len(args) < 1 {
			return fmt.Errorf("migrate %s requires a version number", action)
		}
		v, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version number %q", args[0])
		}
		if action == "to" {
			err = database.MigrateTo(migrations, uint(v))
		} else {
			err = database.MigrateForce(migrations, int(v))
		}
		if err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown migrate action %q: expected up, down, status, to or force", action)
	}

	version, dirty, err := database.MigrateVersion(migrations)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	fmt.Fprintf(w, "Current version: %d (dirty: %v)\n", version, dirty)
	if dirty {
		fmt.Fprintln(w, "⚠️  Database is in a dirty state; fix it and run: sds011 migrate force <version>")
	}
	return nil
}

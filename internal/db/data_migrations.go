package db

import (
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// DataMigration represents a one-off data fix applied after AutoMigrate
type DataMigration struct {
	Version     string
	Description string
	Up          func(*sql.DB) (int64, error)
}

// GetDataMigrations returns all data migrations in apply order
func GetDataMigrations() []DataMigration {
	return []DataMigration{
		{
			Version:     "data_001",
			Description: "Lowercase requester addresses",
			Up:          lowercaseRequesters,
		},
	}
}

func lowercaseRequesters(db *sql.DB) (int64, error) {
	result, err := db.Exec(`UPDATE lending_operations SET requester = LOWER(requester) WHERE requester <> LOWER(requester)`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// FailStalePending closes rows an interrupted process left pending; after
// an hour without a sequencer answer they never will get one.
func FailStalePending(db *sql.DB) (int64, error) {
	result, err := db.Exec(`
		UPDATE lending_operations
		SET status = 'failed', last_error = 'interrupted before sequencer acknowledgement'
		WHERE status = 'pending' AND created_at < NOW() - INTERVAL '1 hour'
	`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RunDataMigrations applies every migration not yet recorded in schema_migrations_log
func RunDataMigrations(db *sql.DB, log *logrus.Entry) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations_log (
			id SERIAL PRIMARY KEY,
			version VARCHAR(50) NOT NULL UNIQUE,
			description TEXT,
			executed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema_migrations_log: %w", err)
	}

	for _, migration := range GetDataMigrations() {
		var count int
		if err := db.QueryRow(
			"SELECT COUNT(*) FROM schema_migrations_log WHERE version = $1",
			migration.Version,
		).Scan(&count); err != nil {
			return err
		}
		if count > 0 {
			continue
		}

		rows, err := migration.Up(db)
		if err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.Version, err)
		}

		if _, err := db.Exec(
			"INSERT INTO schema_migrations_log (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			return err
		}

		log.WithFields(logrus.Fields{
			"version": migration.Version,
			"rows":    rows,
		}).Info("📋 Data migration applied")
	}
	return nil
}

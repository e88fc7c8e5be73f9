package journal

import (
	"database/sql"

	"codeberg.org/mutker/battmon/internal/errors"
	"codeberg.org/mutker/battmon/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS attempts (
	       id          INTEGER PRIMARY KEY AUTOINCREMENT,
	       recorded_at INTEGER NOT NULL CHECK (typeof(recorded_at) = 'integer'),
	       path        TEXT NOT NULL,
	       operation   TEXT NOT NULL CHECK (operation IN ('read', 'write')),
	       outcome     TEXT NOT NULL,
	       raw_value   TEXT,
	       latency_ns  INTEGER NOT NULL CHECK (typeof(latency_ns) = 'integer'),
	       detail      TEXT NOT NULL DEFAULT ''
	   );
	   CREATE INDEX IF NOT EXISTS attempts_path ON attempts (path, id);
	   CREATE TABLE IF NOT EXISTS denials (
	       id          INTEGER PRIMARY KEY AUTOINCREMENT,
	       recorded_at INTEGER NOT NULL,
	       scontext    TEXT NOT NULL,
	       tcontext    TEXT NOT NULL,
	       tclass      TEXT NOT NULL,
	       permission  TEXT NOT NULL DEFAULT '',
	       raw_line    TEXT NOT NULL UNIQUE
	   );`

	insertAttemptSQL = `
    INSERT INTO attempts (
        recorded_at, path, operation, outcome, raw_value, latency_ns, detail
    ) VALUES (?, ?, ?, ?, ?, ?, ?)`

	// Audit logs are re-read on every diagnose; identical lines are kept once.
	insertDenialSQL = `
    INSERT OR IGNORE INTO denials (
        recorded_at, scontext, tcontext, tclass, permission, raw_line
    ) VALUES (?, ?, ?, ?, ?, ?)`

	selectAttemptsSQL = `
    SELECT id, recorded_at, path, operation, outcome, raw_value, latency_ns, detail
    FROM attempts
    WHERE (? = '' OR path = ?)
    ORDER BY id DESC
    LIMIT ?`

	selectDenialsSQL = `
    SELECT id, recorded_at, scontext, tcontext, tclass, permission, raw_line
    FROM denials
    ORDER BY id`
)

var journalTables = []string{"attempts", "denials", "schema_versions"}

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating journal database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				if !errors.Is(err, sql.ErrTxDone) {
					log.Debug().Err(err).Msg("Failed to rollback transaction")
				}
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "create_tables",
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Journal schema initialized")

	return nil
}

// GetSchemaVersion returns the current schema version, 0 for an empty
// database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

func TableExists(db *sql.DB, tableName string) (bool, error) {
	errFactory := errors.New()

	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}

	return exists, nil
}

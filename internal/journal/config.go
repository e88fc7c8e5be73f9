package journal

import (
	"path/filepath"
	"time"

	"codeberg.org/mutker/battmon/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm       = 0o755
	defaultDBPath        = "/var/lib/battmon/journal.db"
	defaultBatchSize     = 32
	defaultFlushInterval = 5 * time.Second
)

type Config struct {
	DBPath          string
	Enabled         bool
	BatchSize       int
	FlushInterval   time.Duration
	BackupOnMigrate bool
	// BackupDir defaults to a backups directory next to DBPath.
	BackupDir string
}

func DefaultConfig() Config {
	return Config{
		DBPath:          defaultDBPath,
		Enabled:         false, // Disabled by default
		BatchSize:       defaultBatchSize,
		FlushInterval:   defaultFlushInterval,
		BackupOnMigrate: true,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate the rest if the journal is enabled
	if !c.Enabled {
		return nil
	}
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 1 {
		return errFactory.WithData(ErrInvalidConfig, "batch size must be at least 1")
	}
	if c.FlushInterval < 0 {
		return errFactory.WithData(ErrInvalidConfig, "flush interval must not be negative")
	}

	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}

	return filepath.Join(filepath.Dir(c.DBPath), "backups")
}

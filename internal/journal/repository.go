package journal

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/battmon/internal/avc"
	"codeberg.org/mutker/battmon/internal/errors"
	"codeberg.org/mutker/battmon/internal/logger"
	"codeberg.org/mutker/battmon/internal/sysfs"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	now           func() time.Time
	mu            sync.Mutex
	buffer        []sysfs.ReadAttempt
	closed        bool
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

func newRepository(cfg Config, log logger.Logger) (*repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("flush_interval", cfg.FlushInterval).
		Msg("Journal initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		now:           time.Now,
		buffer:        make([]sysfs.ReadAttempt, 0, cfg.BatchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.FlushInterval > 0 {
		repo.flushTicker = time.NewTicker(cfg.FlushInterval)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

func (r *repository) Record(attempt sysfs.ReadAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.logger.Debug().Str("path", attempt.Path).Msg("Journal closed, dropping attempt")
		return
	}

	if attempt.At.IsZero() {
		attempt.At = r.now()
	}
	r.buffer = append(r.buffer, attempt)

	if len(r.buffer) >= r.cfg.BatchSize {
		// flush logs its own failures
		_ = r.flush()
	}
}

func (r *repository) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.flush()
}

func (r *repository) RecordDenials(ctx context.Context, denials []avc.Denial) error {
	if len(denials) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				r.logger.Debug().Err(err).Msg("Failed to roll back denial insert")
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertDenialSQL)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	at := r.now().UnixNano()
	for _, d := range denials {
		if _, err := stmt.ExecContext(ctx,
			at, d.SourceContext, d.TargetContext, d.TargetClass, d.Permission, d.RawLine,
		); err != nil {
			return errFactory.WithData(ErrRecordFailed, struct {
				Phase string
				Line  string
				Error string
			}{
				Phase: "insert_denial",
				Line:  d.RawLine,
				Error: err.Error(),
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	committed = true

	r.logger.Debug().Int("denials", len(denials)).Msg("Recorded denials")

	return nil
}

// Attempts returns the newest attempts first, optionally for one path.
// Buffered attempts are flushed before querying.
func (r *repository) Attempts(ctx context.Context, path string, limit int) ([]AttemptEntry, error) {
	errFactory := errors.New()

	if err := r.Flush(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.QueryContext(ctx, selectAttemptsSQL, path, path, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}
	defer rows.Close()

	var entries []AttemptEntry
	for rows.Next() {
		var (
			e         AttemptEntry
			at        int64
			latencyNS int64
			raw       sql.NullString
		)
		if err := rows.Scan(&e.ID, &at, &e.Path, &e.Operation, &e.Outcome, &raw, &latencyNS, &e.Detail); err != nil {
			return nil, errFactory.Wrap(ErrQueryFailed, err)
		}
		e.At = time.Unix(0, at)
		e.Latency = time.Duration(latencyNS)
		e.RawValue = raw.String
		e.HasValue = raw.Valid
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}

	return entries, nil
}

func (r *repository) Denials(ctx context.Context) ([]DenialEntry, error) {
	errFactory := errors.New()

	rows, err := r.db.QueryContext(ctx, selectDenialsSQL)
	if err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}
	defer rows.Close()

	var entries []DenialEntry
	for rows.Next() {
		var (
			e  DenialEntry
			at int64
		)
		if err := rows.Scan(&e.ID, &at, &e.SourceContext, &e.TargetContext, &e.TargetClass, &e.Permission, &e.RawLine); err != nil {
			return nil, errFactory.Wrap(ErrQueryFailed, err)
		}
		e.At = time.Unix(0, at)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}

	return entries, nil
}

func (r *repository) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	// Signal the flusher goroutine to stop and wait for its final flush
	close(r.shutdownChan)
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}
	<-r.flushDoneChan

	r.mu.Lock()
	flushErr := r.flush()
	r.mu.Unlock()

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		r.logger.Debug().Err(err).Msg("Failed to checkpoint WAL")
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("Journal closed")

	return flushErr
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			_ = r.flush()
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

// flush writes the buffer in one transaction. Callers hold r.mu.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to begin transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertAttemptSQL)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to prepare statement")
		if err := tx.Rollback(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, a := range r.buffer {
		var raw any
		if a.HasValue {
			raw = a.RawValue
		}

		if _, err := stmt.Exec(
			a.At.UnixNano(),
			a.Path,
			string(a.Operation),
			a.Outcome.String(),
			raw,
			int64(a.Latency),
			a.Detail,
		); err != nil {
			r.logger.Error().Err(err).Str("path", a.Path).Msg("Failed to execute insert")
			if err := tx.Rollback(); err != nil {
				r.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to commit transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed attempts to journal")
	r.buffer = r.buffer[:0]

	return nil
}

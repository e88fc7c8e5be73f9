package journal

import "codeberg.org/mutker/battmon/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("journal_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("journal_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("journal_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("journal_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("journal_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitJournal
	ErrStorageClose = errors.ErrCloseJournal
	ErrQueryFailed  = errors.ErrorCode("journal_query_failed")
	ErrRecordFailed = errors.ErrRecordAccess

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
)

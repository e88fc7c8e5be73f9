package errors

// ErrorCode identifies an error kind. Shared codes live in codes.go;
// packages declare their own with a package prefix, e.g. "sysfs_write_failed"
// or "profile_invalid".
type ErrorCode string

// Error is a coded error. Two Errors match under Is when their codes are
// equal, so callers test for a kind without holding a sentinel.
type Error interface {
	error
	Code() ErrorCode
	Is(target error) bool
	Unwrap() error

	// WithMessage and WithData return a copy; the receiver is unchanged.
	WithMessage(msg string) Error
	WithData(data any) Error
	// GetData returns the detail attached with WithData, such as the
	// offending path or config value.
	GetData() any
}

// Factory builds coded errors. Functions usually call New() once and reuse
// the result for each return.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}

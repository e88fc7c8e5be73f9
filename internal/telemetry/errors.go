package telemetry

import "codeberg.org/mutker/battmon/internal/errors"

const (
	// Configuration Errors
	ErrInvalidCollector = errors.ErrorCode("telemetry_invalid_collector")

	// Collection Errors
	ErrInvalidValue = errors.ErrorCode("telemetry_invalid_value")
)

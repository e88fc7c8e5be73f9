package sysfs

import "codeberg.org/mutker/battmon/internal/errors"

const (
	ErrUnknownMetric   = errors.ErrorCode("sysfs_unknown_metric")
	ErrPathNotListed   = errors.ErrorCode("sysfs_path_not_listed")
	ErrWriteFailed     = errors.ErrorCode("sysfs_write_failed")
	ErrParseValue      = errors.ErrorCode("sysfs_parse_value_failed")
	ErrDiscoveryFailed = errors.ErrorCode("sysfs_discovery_failed")
)

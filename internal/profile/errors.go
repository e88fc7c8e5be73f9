package profile

import "codeberg.org/mutker/battmon/internal/errors"

const (
	ErrReadProfile    = errors.ErrorCode("profile_read_failed")
	ErrDecodeProfile  = errors.ErrorCode("profile_decode_failed")
	ErrUnknownKeys    = errors.ErrorCode("profile_unknown_keys")
	ErrInvalidProfile = errors.ErrorCode("profile_invalid")
)

package domain

import "errors"

var (
	ErrUnknownOwnerKind  = errors.New("unknown_owner_kind")
	ErrOwnerNotFound     = errors.New("owner_not_found")
	ErrOwnerFileMissing  = errors.New("owner_file_missing")
	ErrFileScanDisabled  = errors.New("file_scan_disabled")
	ErrScanFailed        = errors.New("file_scan_failed")
	ErrMalformedResponse = errors.New("file_scan_malformed_response")
	ErrInvalidFilePath   = errors.New("invalid_file_path")
)

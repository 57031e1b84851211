package config

import "errors"

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigFileRead     = errors.New("cannot read config file")
	errConfigInvalid      = errors.New("invalid config file")
	errSegmentPathEmpty   = errors.New("segment_path cannot be empty")
	errSegmentSizeZero    = errors.New("segment_size_bytes cannot be zero")
	errVMClockPathEmpty   = errors.New("vmclock_path cannot be empty unless disruption support is disabled")
	errPHCRefIDLength     = errors.New("phc_ref_id must be exactly 4 characters")
)

package segment

import "errors"

var (
	errNotWritable      = errors.New("segment: not opened read-write")
	errWriterLogicError = errors.New("segment: writer logic error")
	errOverlappingWrite = errors.New("segment: overlapping write detected")
)

// ReadMaxRetries is the bounded retry budget for reader snapshots (spec
// §4.3: "after R unsuccessful attempts (recommended >= 16), returns
// SegmentMalformed - the writer is likely wedged").
const ReadMaxRetries = 16

package common

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatContentRange renders the Content-Range header of the chunk
// [start, end) of a file of the given size.
func FormatContentRange(start, end, size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", start, end-1, size)
}

// ParseContentRange parses "bytes first-last/size" and returns the half-open
// range [first, last+1). size is -1 when the header gives "*".
func ParseContentRange(h string) (start, end, size int64, err error) {
	rangeSpec, ok := strings.CutPrefix(h, "bytes ")
	if !ok {
		return 0, 0, 0, fmt.Errorf("%w: content range %q: unknown unit", ErrorValidation, h)
	}

	rng, total, ok := strings.Cut(rangeSpec, "/")
	if !ok {
		return 0, 0, 0, fmt.Errorf("%w: content range %q: missing size", ErrorValidation, h)
	}
	first, last, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, 0, fmt.Errorf("%w: content range %q: malformed range", ErrorValidation, h)
	}

	start, err1 := strconv.ParseInt(first, 10, 64)
	stop, err2 := strconv.ParseInt(last, 10, 64)
	if err1 != nil || err2 != nil || start < 0 || stop < start {
		return 0, 0, 0, fmt.Errorf("%w: content range %q: malformed range", ErrorValidation, h)
	}

	size = -1
	if total != "*" {
		size, err = strconv.ParseInt(total, 10, 64)
		if err != nil || size <= stop {
			return 0, 0, 0, fmt.Errorf("%w: content range %q: bad size", ErrorValidation, h)
		}
	}

	return start, stop + 1, size, nil
}

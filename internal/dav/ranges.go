package dav

import (
	"strconv"
	"strings"
)

// parseRange parses an HTTP Range header value against the total object size
// and returns a concrete, clamped inclusive byte interval [start, end].
//
// Supported forms are `bytes=start-end`, `bytes=start-`, and the suffix form
// `bytes=-n` for the final n bytes. ok is false when the header is malformed
// or the start lies at or past the end of the object; callers then degrade
// to full-content delivery instead of rejecting with 416.
func parseRange(header string, size int64) (start int64, end int64, ok bool) {
	full := func() (int64, int64, bool) { return 0, size - 1, false }

	spec, found := strings.CutPrefix(header, "bytes=")
	if !found || size <= 0 {
		return full()
	}

	// Multiple ranges are not supported; only the first is honored.
	if idx := strings.IndexByte(spec, ','); idx != -1 {
		spec = spec[:idx]
	}

	startStr, endStr, found := strings.Cut(strings.TrimSpace(spec), "-")
	if !found {
		return full()
	}

	if startStr == "" {
		// Suffix form: the final n bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return full()
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, true
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return full()
	}

	end = size - 1
	if endStr != "" {
		e, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || e < start {
			return full()
		}
		if e < end {
			end = e
		}
	}

	return start, end, true
}

package stream

import (
	"errors"
	"strconv"
	"strings"
)

const (
	// FirstChunkSize caps an open ended range that starts at byte 0, so
	// playback can begin while the rest is fetched.
	FirstChunkSize int64 = 2 << 20
	// ChunkSize caps every other open ended range.
	ChunkSize int64 = 512 << 10
)

var (
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
	errInvalidRange        = errors.New("invalid range")
)

// Window is an inclusive byte interval of a file.
type Window struct {
	Start int64
	End   int64
}

func (w Window) Length() int64 {
	return w.End - w.Start + 1
}

// ParseRange interprets a single "bytes=" range against a file of size bytes.
// partial is false when no Range header was sent. Malformed or multi-range
// headers return errInvalidRange and callers serve the whole file instead.
func ParseRange(header string, size int64) (win Window, partial bool, err error) {
	full := Window{Start: 0, End: size - 1}
	header = strings.TrimSpace(header)
	if header == "" {
		return full, false, nil
	}
	if !strings.HasPrefix(strings.ToLower(header), "bytes=") {
		return full, false, errInvalidRange
	}
	rangeSet := strings.TrimSpace(header[len("bytes="):])
	if rangeSet == "" || strings.Contains(rangeSet, ",") {
		return full, false, errInvalidRange
	}
	startRaw, endRaw, ok := strings.Cut(rangeSet, "-")
	if !ok {
		return full, false, errInvalidRange
	}
	startRaw = strings.TrimSpace(startRaw)
	endRaw = strings.TrimSpace(endRaw)

	if startRaw == "" {
		// suffix range: the last n bytes
		n, err := strconv.ParseInt(endRaw, 10, 64)
		if err != nil || n < 0 {
			return full, false, errInvalidRange
		}
		if n == 0 || size == 0 {
			return full, false, ErrRangeNotSatisfiable
		}
		if n > size {
			n = size
		}
		return Window{Start: size - n, End: size - 1}, true, nil
	}

	start, err := strconv.ParseInt(startRaw, 10, 64)
	if err != nil || start < 0 {
		return full, false, errInvalidRange
	}
	if start >= size {
		return full, false, ErrRangeNotSatisfiable
	}

	if endRaw == "" {
		ceiling := ChunkSize
		if start == 0 {
			ceiling = FirstChunkSize
		}
		return Window{Start: start, End: min(start+ceiling-1, size-1)}, true, nil
	}

	end, err := strconv.ParseInt(endRaw, 10, 64)
	if err != nil || end < 0 {
		return full, false, errInvalidRange
	}
	if end < start {
		return full, false, ErrRangeNotSatisfiable
	}
	return Window{Start: start, End: min(end, size-1)}, true, nil
}

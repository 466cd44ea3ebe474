package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"reelshelf/internal/metrics"
)

const defaultBufferSize = 64 << 10

var ErrNotFound = errors.New("media not found")

var tvUserAgent = regexp.MustCompile(`(?i)Smart-TV|Tizen|WebOS|Android TV|BRAVIA|Samsung|LG webOS|wv`)

// IOError is a disk failure while serving a file. HeadersSent tells the caller
// whether a status line already went out; if not it should answer 500.
type IOError struct {
	Op          string
	HeadersSent bool
	Err         error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("stream %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Streamer writes video files with single range support.
type Streamer struct {
	logger     zerolog.Logger
	bufferSize int
	open       func(name string) (*os.File, error)
}

func NewStreamer(logger zerolog.Logger) *Streamer {
	return &Streamer{
		logger:     logger.With().Str("component", "stream").Logger(),
		bufferSize: defaultBufferSize,
		open:       os.Open,
	}
}

// Serve answers r with the contents of filePath, which must already be
// validated and resolved. Disk reads stop as soon as the request context ends;
// the file is closed before Serve returns.
func (s *Streamer) Serve(w http.ResponseWriter, r *http.Request, filePath string) error {
	f, err := s.open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return ErrNotFound
		}
		return &IOError{Op: "open", Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &IOError{Op: "stat", Err: err}
	}
	if info.IsDir() {
		return ErrNotFound
	}
	size := info.Size()

	h := w.Header()
	setStreamHeaders(h, filePath, r.UserAgent())

	win, partial, err := ParseRange(r.Header.Get("Range"), size)
	if errors.Is(err, ErrRangeNotSatisfiable) {
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		metrics.StreamsTotal.WithLabelValues("unsatisfiable").Inc()
		return ErrRangeNotSatisfiable
	}
	if err != nil {
		s.logger.Debug().Str("range", r.Header.Get("Range")).Msg("ignoring malformed range header")
		win, partial = Window{Start: 0, End: size - 1}, false
	}

	length := win.Length()
	status := http.StatusOK
	if partial {
		status = http.StatusPartialContent
		h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", win.Start, win.End, size))
	}
	h.Set("Content-Length", strconv.FormatInt(length, 10))

	if r.Method == http.MethodHead {
		w.WriteHeader(status)
		return nil
	}

	section := io.NewSectionReader(f, win.Start, length)
	buf := make([]byte, min(int64(s.bufferSize), max(length, 1)))

	// the first block decides whether the file is readable at all
	n, err := io.ReadFull(section, buf[:min(int64(len(buf)), length)])
	if err != nil && length > 0 {
		metrics.StreamsTotal.WithLabelValues("error").Inc()
		clearStreamHeaders(h)
		return &IOError{Op: "read", Err: err}
	}

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	w.WriteHeader(status)
	written, err := s.copy(r.Context(), w, section, buf, buf[:n])
	metrics.StreamedBytesTotal.Add(float64(written))

	switch {
	case err == nil:
		if partial {
			metrics.StreamsTotal.WithLabelValues("partial").Inc()
		} else {
			metrics.StreamsTotal.WithLabelValues("complete").Inc()
		}
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		metrics.StreamsTotal.WithLabelValues("aborted").Inc()
		s.logger.Debug().Err(err).Str("file", filepath.Base(filePath)).Int64("written", written).Msg("stream interrupted")
		return err
	default:
		metrics.StreamsTotal.WithLabelValues("error").Inc()
		var ioErr *IOError
		if errors.As(err, &ioErr) {
			ioErr.HeadersSent = true
			return ioErr
		}
		// write failures mean the client went away
		s.logger.Debug().Err(err).Str("file", filepath.Base(filePath)).Int64("written", written).Msg("stream write failed")
		return err
	}
}

// copy writes head, then drains src through buf. ctx is checked before every
// read so a departed client stops disk access at the next block.
func (s *Streamer) copy(ctx context.Context, w io.Writer, src io.Reader, buf, head []byte) (int64, error) {
	var written int64
	if len(head) > 0 {
		n, err := w.Write(head)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("write: %w", err)
		}
	}
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			wn, werr := w.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, fmt.Errorf("write: %w", werr)
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, &IOError{Op: "read", Err: rerr}
		}
	}
}

func setStreamHeaders(h http.Header, filePath, userAgent string) {
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", ContentType(filePath))
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Connection", "keep-alive")
	h.Set("X-Content-Type-Options", "nosniff")
	if IsTV(userAgent) {
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
	}
}

// clearStreamHeaders drops everything Serve set, leaving the response free for
// an error body.
func clearStreamHeaders(h http.Header) {
	for _, k := range []string{
		"Accept-Ranges", "Content-Type", "Content-Length", "Content-Range",
		"Cache-Control", "Connection", "X-Content-Type-Options", "Pragma", "Expires",
	} {
		h.Del(k)
	}
}

// ContentType maps a container extension to its media type.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".ogg":
		return "video/ogg"
	case ".avi":
		return "video/x-msvideo"
	case ".mkv":
		return "video/x-matroska"
	default:
		return "application/octet-stream"
	}
}

// IsTV reports whether userAgent looks like a Smart TV or embedded webview.
func IsTV(userAgent string) bool {
	return tvUserAgent.MatchString(userAgent)
}

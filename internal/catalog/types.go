package catalog

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

const (
	// RootGenre is the genre of a series that sits directly under the library root.
	RootGenre = "Root"
	// OtherBucket is the genres key that collects RootGenre series.
	OtherBucket = "Other"
	// AdultFolder is only scanned when IncludeAdult is set.
	AdultFolder = "Adult"
)

var ErrSeriesNotFound = errors.New("series not found")

type Video struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
}

type Series struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Genre      string  `json:"genre"`
	Thumbnail  string  `json:"thumbnail,omitempty"`
	VideoCount int     `json:"videoCount"`
	Videos     []Video `json:"videos,omitempty"`
}

// Catalog is an immutable scan result. Callers must not modify it.
type Catalog struct {
	Series    []Series            `json:"series"`
	Genres    map[string][]Series `json:"genres"`
	ScannedAt time.Time           `json:"scannedAt"`
}

func emptyCatalog(at time.Time) *Catalog {
	return &Catalog{Series: []Series{}, Genres: map[string][]Series{}, ScannedAt: at}
}

// Summary drops the video list, for listings that only need counts.
func (s Series) Summary() Series {
	s.Videos = nil
	return s
}

// IsAdult reports whether an on-disk path relative to the library root lies
// under the Adult folder. Callers pass the resolved name, not the requested one.
func IsAdult(rel string) bool {
	top, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return top == AdultFolder
}

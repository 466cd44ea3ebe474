package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"reelshelf/internal/pathres"
)

// NormalizeQuery keeps ASCII letters, digits and whitespace, lowercased.
func NormalizeQuery(q string) string {
	var b strings.Builder
	for _, r := range q {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Search filters series whose lowercased title contains the normalized query.
// An empty query matches everything.
func Search(series []Series, query string) []Series {
	q := NormalizeQuery(query)
	out := make([]Series, 0, len(series))
	for _, s := range series {
		if q == "" || strings.Contains(strings.ToLower(s.Title), q) {
			out = append(out, s)
		}
	}
	return out
}

// Detail reads one series folder live from disk. Videos come back sorted
// case-insensitively with display titles. id is "folder" or "genre/folder";
// case differences against the disk are tolerated.
func Detail(root, id string) (Series, error) {
	parts := strings.Split(id, "/")
	if len(parts) > 2 {
		return Series{}, ErrSeriesNotFound
	}
	for _, p := range parts {
		if p == "" || p == "." {
			return Series{}, ErrSeriesNotFound
		}
	}
	if !pathres.ValidateSegments(parts) {
		return Series{}, fmt.Errorf("series %q: %w", id, pathres.ErrRejected)
	}

	dir, err := pathres.Locate(root, parts)
	if err != nil {
		return Series{}, ErrSeriesNotFound
	}
	listing, err := os.ReadDir(dir)
	if err != nil {
		return Series{}, ErrSeriesNotFound
	}

	// names as they exist on disk, not as requested
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return Series{}, ErrSeriesNotFound
	}
	onDisk := pathres.Segments(rel)
	genre, folder := "", onDisk[len(onDisk)-1]
	if len(onDisk) == 2 {
		genre = onDisk[0]
	}

	series, ok := buildSeries(listing, genre, folder)
	if !ok {
		return Series{}, ErrSeriesNotFound
	}
	sort.SliceStable(series.Videos, func(i, j int) bool {
		a, b := strings.ToLower(series.Videos[i].Filename), strings.ToLower(series.Videos[j].Filename)
		if a == b {
			return series.Videos[i].Filename < series.Videos[j].Filename
		}
		return a < b
	})
	for i := range series.Videos {
		series.Videos[i].Title = VideoTitle(series.Videos[i].Filename)
	}
	return series, nil
}

// VideoTitle turns "the_pilot-episode.mp4" into "The Pilot Episode".
func VideoTitle(filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	base = strings.Map(func(r rune) rune {
		switch r {
		case '.', '_', '-':
			return ' '
		}
		return r
	}, base)
	return cases.Title(language.Und, cases.NoLower).String(strings.Join(strings.Fields(base), " "))
}

package catalog

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"reelshelf/internal/pathres"
)

// Scanner builds a Catalog from a two level library tree: top level folders
// are either series (they hold videos) or genres (their sub folders do).
type Scanner struct {
	Root         string
	IncludeAdult bool
	Logger       zerolog.Logger
}

// Scan reads the library. An unreadable root yields an empty catalog and an
// error; unreadable folders below it are logged and skipped.
func (s Scanner) Scan(ctx context.Context) (*Catalog, error) {
	started := time.Now()
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return emptyCatalog(started), fmt.Errorf("read library root %s: %w", s.Root, err)
	}

	cat := emptyCatalog(started)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return emptyCatalog(started), err
		}
		name := entry.Name()
		if !isDirEntry(s.Root, entry) {
			continue
		}
		if name == AdultFolder && !s.IncludeAdult {
			continue
		}
		if !pathres.Validate(name) {
			s.Logger.Warn().Str("folder", name).Msg("skipping folder with unsafe name")
			continue
		}

		dir := filepath.Join(s.Root, name)
		listing, err := os.ReadDir(dir)
		if err != nil {
			s.Logger.Warn().Err(err).Str("folder", name).Msg("skipping unreadable folder")
			continue
		}

		if series, ok := buildSeries(listing, "", name); ok {
			cat.Series = append(cat.Series, series)
			cat.Genres[OtherBucket] = append(cat.Genres[OtherBucket], series)
			continue
		}

		for _, sub := range listing {
			if !isDirEntry(dir, sub) || !pathres.Validate(sub.Name()) {
				continue
			}
			subListing, err := os.ReadDir(filepath.Join(dir, sub.Name()))
			if err != nil {
				s.Logger.Warn().Err(err).Str("folder", name+"/"+sub.Name()).Msg("skipping unreadable folder")
				continue
			}
			if series, ok := buildSeries(subListing, name, sub.Name()); ok {
				cat.Series = append(cat.Series, series)
				cat.Genres[name] = append(cat.Genres[name], series)
			}
		}
	}
	return cat, nil
}

// buildSeries turns a folder listing into a series, reporting false when the
// folder holds no videos. genre is empty for series at the library root.
func buildSeries(listing []os.DirEntry, genre, folder string) (Series, bool) {
	prefix := []string{folder}
	series := Series{ID: folder, Title: folder, Genre: RootGenre}
	if genre != "" {
		prefix = []string{genre, folder}
		series.ID = genre + "/" + folder
		series.Genre = genre
	}

	for _, e := range listing {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if series.Thumbnail == "" && isThumbnail(name) {
			series.Thumbnail = MediaURL(append(prefix, name)...)
		}
		if IsVideo(name) {
			series.Videos = append(series.Videos, Video{
				Filename: name,
				URL:      MediaURL(append(prefix, name)...),
			})
		}
	}
	series.VideoCount = len(series.Videos)
	return series, series.VideoCount > 0
}

// MediaURL builds the /videos/ URL for a path below the library root, escaping
// each segment on its own.
func MediaURL(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, seg := range segments {
		escaped[i] = url.PathEscape(seg)
	}
	return "/videos/" + strings.Join(escaped, "/")
}

// IsVideo reports whether name has one of the streamable container extensions.
func IsVideo(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp4", ".webm", ".ogg", ".avi", ".mkv":
		return true
	}
	return false
}

func isThumbnail(name string) bool {
	lower := strings.ToLower(name)
	return lower == "img" || strings.HasPrefix(lower, "img.")
}

func isDirEntry(parent string, e os.DirEntry) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(parent, e.Name()))
	return err == nil && info.IsDir()
}

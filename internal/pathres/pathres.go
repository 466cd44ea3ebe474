// Package pathres maps untrusted, client supplied relative paths onto files
// below a library root. Validation is purely lexical and never touches the
// filesystem; resolution tolerates case differences between the request and
// the names on disk.
package pathres

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrRejected = errors.New("path rejected")
	ErrNotFound = errors.New("path not found")
)

// Validate reports whether rel is safe to join onto a root: no ".." segment,
// not absolute, no NUL byte. Both separators count.
func Validate(rel string) bool {
	if strings.ContainsRune(rel, 0) {
		return false
	}
	if strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) {
		return false
	}
	if hasDriveLetter(rel) || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return false
	}
	for _, seg := range strings.FieldsFunc(rel, isSeparator) {
		if seg == ".." {
			return false
		}
	}
	return true
}

// ValidateSegments applies Validate to every segment and to the joined path.
func ValidateSegments(segments []string) bool {
	for _, seg := range segments {
		if !Validate(seg) {
			return false
		}
	}
	return Validate(strings.Join(segments, "/"))
}

// Segments splits rel on either separator, dropping empty and "." parts.
func Segments(rel string) []string {
	parts := strings.FieldsFunc(rel, isSeparator)
	out := parts[:0]
	for _, p := range parts {
		if p == "." {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Resolve walks root one segment at a time. At each level an exact name wins,
// otherwise the first case-insensitive match in listing order is taken.
func Resolve(root string, segments []string) (string, error) {
	if !ValidateSegments(segments) {
		return "", ErrRejected
	}
	current := root
	for _, seg := range segments {
		entries, err := os.ReadDir(current)
		if err != nil {
			return "", ErrNotFound
		}
		match := ""
		for _, e := range entries {
			if e.Name() == seg {
				match = seg
				break
			}
			if match == "" && strings.EqualFold(e.Name(), seg) {
				match = e.Name()
			}
		}
		if match == "" {
			return "", ErrNotFound
		}
		current = filepath.Join(current, match)
	}
	return current, nil
}

// Locate resolves segments and falls back to the literal joined path when the
// case-insensitive walk fails but the path exists as given.
func Locate(root string, segments []string) (string, error) {
	full, err := Resolve(root, segments)
	if err == nil {
		return full, nil
	}
	if errors.Is(err, ErrRejected) {
		return "", err
	}
	literal := filepath.Join(append([]string{root}, segments...)...)
	if _, statErr := os.Stat(literal); statErr == nil {
		return literal, nil
	}
	return "", ErrNotFound
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

func hasDriveLetter(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

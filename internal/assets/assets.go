package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"reelforge/internal/config"
	"reelforge/internal/services"
)

// Kind identifies the media category an asset reference declares.
type Kind string

const (
	KindVideo Kind = "video"
	KindImage Kind = "image"
	KindAudio Kind = "audio"
	KindFont  Kind = "font"
)

var kindExtensions = map[Kind]map[string]struct{}{
	KindVideo: {".mp4": {}, ".mov": {}, ".avi": {}, ".mkv": {}},
	KindImage: {".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}},
	KindAudio: {".mp3": {}, ".wav": {}, ".aac": {}, ".m4a": {}, ".ogg": {}, ".flac": {}},
	KindFont:  {".ttf": {}, ".otf": {}, ".woff": {}, ".woff2": {}},
}

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	kind := Kind(strings.ToLower(strings.TrimSpace(value)))
	switch kind {
	case KindVideo, KindImage, KindAudio, KindFont:
		return kind, true
	}
	return "", false
}

// DetectKind infers the media kind from a file extension.
func DetectKind(path string) (Kind, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for kind, set := range kindExtensions {
		if _, ok := set[ext]; ok {
			return kind, true
		}
	}
	return "", false
}

// Ref identifies an input resource before resolution.
type Ref struct {
	Kind         Kind    `json:"kind"`
	Locator      string  `json:"locator"`
	DurationHint float64 `json:"duration_hint,omitempty"`
}

// Resolved is a validated asset reference pointing at a readable file.
type Resolved struct {
	Ref
	Path      string
	SizeBytes int64
}

// Store resolves asset references against the configured read-only roots.
// It performs no writes and is safe for concurrent use.
type Store struct {
	roots map[Kind][]string
}

// NewStore builds a store from the configured asset directories. Video and
// image locators resolve under the upload directory, audio under music then
// uploads (uploaded voiceovers), fonts under the font directory.
func NewStore(cfg *config.Config) *Store {
	return &Store{roots: map[Kind][]string{
		KindVideo: {cfg.Paths.UploadDir},
		KindImage: {cfg.Paths.UploadDir},
		KindAudio: {cfg.Paths.MusicDir, cfg.Paths.UploadDir},
		KindFont:  {cfg.Paths.FontDir},
	}}
}

// Resolve validates that ref points at an existing, readable file of the
// declared kind inside one of the configured roots.
func (s *Store) Resolve(ref Ref) (Resolved, error) {
	if _, ok := ParseKind(string(ref.Kind)); !ok {
		return Resolved{}, services.Wrap(services.ErrValidation, "assets", "resolve",
			fmt.Sprintf("unknown asset kind %q", ref.Kind), nil)
	}
	locator := strings.TrimSpace(ref.Locator)
	if locator == "" {
		return Resolved{}, services.Wrap(services.ErrInvalidLocator, "assets", "resolve", "empty locator", nil)
	}

	roots := s.roots[ref.Kind]
	path, err := s.resolvePath(ref.Kind, locator, roots)
	if err != nil {
		return Resolved{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Resolved{}, services.Wrap(services.ErrNotFound, "assets", "resolve",
				fmt.Sprintf("asset %q does not exist", locator), nil)
		}
		return Resolved{}, services.Wrap(services.ErrNotFound, "assets", "resolve",
			fmt.Sprintf("asset %q is not readable", locator), err)
	}
	if info.IsDir() {
		return Resolved{}, services.Wrap(services.ErrInvalidLocator, "assets", "resolve",
			fmt.Sprintf("asset %q is a directory", locator), nil)
	}

	detected, ok := DetectKind(path)
	if !ok || detected != ref.Kind {
		return Resolved{}, services.Wrap(services.ErrTypeMismatch, "assets", "resolve",
			fmt.Sprintf("asset %q is not a %s", locator, ref.Kind), nil)
	}

	return Resolved{Ref: ref, Path: path, SizeBytes: info.Size()}, nil
}

// resolvePath joins the locator under each root and returns the first
// candidate whose real location stays inside that root. Locators that escape
// every root (.. segments, absolute paths outside, symlink escapes) fail with
// an invalid locator error.
func (s *Store) resolvePath(kind Kind, locator string, roots []string) (string, error) {
	var firstCandidate string
	for _, root := range roots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		candidate := locator
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(root, candidate)
		}
		candidate = filepath.Clean(candidate)
		if !within(root, candidate) {
			continue
		}
		if firstCandidate == "" {
			firstCandidate = candidate
		}
		real, err := filepath.EvalSymlinks(candidate)
		if err != nil {
			// Missing files surface as NotFound from the Stat in Resolve.
			if os.IsNotExist(err) {
				continue
			}
			return "", services.Wrap(services.ErrInvalidLocator, "assets", "resolve",
				fmt.Sprintf("asset %q cannot be resolved", locator), err)
		}
		realRoot, err := filepath.EvalSymlinks(root)
		if err != nil {
			realRoot = root
		}
		if !within(realRoot, real) {
			return "", services.Wrap(services.ErrInvalidLocator, "assets", "resolve",
				fmt.Sprintf("asset %q escapes the %s root", locator, kind), nil)
		}
		return candidate, nil
	}
	if firstCandidate != "" {
		return firstCandidate, nil
	}
	return "", services.Wrap(services.ErrInvalidLocator, "assets", "resolve",
		fmt.Sprintf("asset %q escapes the %s root", locator, kind), nil)
}

func within(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if path == root {
		return false
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

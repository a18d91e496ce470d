package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"reelforge/internal/services"
)

// Font describes an entry in the font catalog.
type Font struct {
	Name string `json:"name"`
	File string `json:"file"`
	Path string `json:"path"`
}

var titleCaser = cases.Title(language.English)

// Catalog scans the font root and returns the available fonts sorted by
// display name. A missing font directory yields an empty catalog.
func (s *Store) Catalog() ([]Font, error) {
	roots := s.roots[KindFont]
	if len(roots) == 0 {
		return nil, nil
	}
	entries, err := os.ReadDir(roots[0])
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan font directory: %w", err)
	}

	var fonts []Font
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if kind, ok := DetectKind(name); !ok || kind != KindFont {
			continue
		}
		fonts = append(fonts, Font{
			Name: fontDisplayName(name),
			File: name,
			Path: filepath.Join(roots[0], name),
		})
	}
	sort.Slice(fonts, func(i, j int) bool { return fonts[i].Name < fonts[j].Name })
	return fonts, nil
}

// FindFont resolves a requested font name against the catalog. Matching is
// case-insensitive and ignores spaces, dashes, and underscores, so "Open Sans"
// matches "open-sans.ttf". A file name from the catalog also matches directly.
func (s *Store) FindFont(name string) (Resolved, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Resolved{}, services.Wrap(services.ErrValidation, "assets", "find font", "empty font name", nil)
	}

	fonts, err := s.Catalog()
	if err != nil {
		return Resolved{}, services.Wrap(services.ErrNotFound, "assets", "find font", "font catalog unavailable", err)
	}

	wanted := normalizeFontName(trimmed)
	for _, font := range fonts {
		if font.File == trimmed || normalizeFontName(font.Name) == wanted {
			return s.Resolve(Ref{Kind: KindFont, Locator: font.File})
		}
	}
	for _, font := range fonts {
		if strings.Contains(normalizeFontName(font.Name), wanted) {
			return s.Resolve(Ref{Kind: KindFont, Locator: font.File})
		}
	}
	return Resolved{}, services.Wrap(services.ErrNotFound, "assets", "find font",
		fmt.Sprintf("no font matches %q", name), nil)
}

func fontDisplayName(filename string) string {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	stem = strings.NewReplacer("-", " ", "_", " ").Replace(stem)
	return titleCaser.String(strings.Join(strings.Fields(stem), " "))
}

func normalizeFontName(name string) string {
	return strings.ToLower(strings.NewReplacer(" ", "", "-", "", "_", "").Replace(name))
}

// Package profile loads the candidate's base document.
package profile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/jobscout/internal/normalize"
	"github.com/JakeFAU/jobscout/internal/posting"
)

// ErrEmpty is returned when the profile file holds no usable text.
var ErrEmpty = errors.New("candidate profile is empty")

// FileLoader reads a profile from disk. HTML files are passed through the
// content normalizer; everything else is taken as plain text.
type FileLoader struct {
	Path       string
	Normalizer normalize.Normalizer
}

// NewFileLoader builds a loader for path.
func NewFileLoader(path string, maxLength int) *FileLoader {
	return &FileLoader{Path: path, Normalizer: normalize.Normalizer{MaxLength: maxLength}}
}

// Load reads and normalizes the profile.
func (l *FileLoader) Load(ctx context.Context) (posting.Profile, error) {
	if err := ctx.Err(); err != nil {
		return posting.Profile{}, err
	}
	if strings.TrimSpace(l.Path) == "" {
		return posting.Profile{}, errors.New("profile path is required")
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return posting.Profile{}, fmt.Errorf("read profile %s: %w", l.Path, err)
	}
	text := string(data)
	switch strings.ToLower(filepath.Ext(l.Path)) {
	case ".html", ".htm":
		text = l.Normalizer.Clean(text)
	default:
		text = strings.TrimSpace(text)
	}
	p := posting.Profile{Text: text, Source: l.Path}
	if p.Empty() {
		return posting.Profile{}, fmt.Errorf("load profile %s: %w", l.Path, ErrEmpty)
	}
	return p, nil
}

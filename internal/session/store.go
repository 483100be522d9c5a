// Package session persists the authenticated LinkedIn session and tracks
// whether it still works.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/JakeFAU/jobscout/internal/browser"
	"github.com/JakeFAU/jobscout/internal/filelock"
)

// ErrNoSession is returned when an operation needs stored cookies and there are none.
var ErrNoSession = errors.New("no stored session")

const defaultDomain = "linkedin.com"

// Info describes the stored cookie file.
type Info struct {
	SavedAt     time.Time `json:"saved_at"`
	CookieCount int       `json:"cookie_count"`
	Domain      string    `json:"domain"`
}

// Store persists session cookies.
type Store interface {
	Save(ctx context.Context, cookies []browser.Cookie) error
	Load(ctx context.Context) ([]browser.Cookie, error)
	Exists() bool
	Info(ctx context.Context) (*Info, error)
	Delete(ctx context.Context) error
}

type cookieFile struct {
	Cookies []browser.Cookie `json:"cookies"`
	SavedAt time.Time        `json:"saved_at"`
	Domain  string           `json:"domain"`
}

// FileStore keeps cookies in a JSON file guarded by flock.
type FileStore struct {
	path string
	now  func() time.Time
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: func() time.Time { return time.Now().UTC() }}
}

// Path reports the cookie file location.
func (s *FileStore) Path() string { return s.path }

// Save replaces the stored cookies.
func (s *FileStore) Save(ctx context.Context, cookies []browser.Cookie) error {
	payload, err := json.MarshalIndent(cookieFile{
		Cookies: cookies,
		SavedAt: s.now(),
		Domain:  defaultDomain,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	return filelock.Exclusive(ctx, s.path, func() error {
		return filelock.WriteFileAtomic(s.path, payload, 0o600)
	})
}

// Load returns the stored cookies, or nil when none are stored.
func (s *FileStore) Load(ctx context.Context) ([]browser.Cookie, error) {
	f, err := s.read(ctx)
	if err != nil || f == nil {
		return nil, err
	}
	return f.Cookies, nil
}

// Exists reports whether a cookie file is present.
func (s *FileStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Info summarizes the cookie file, or returns nil when none is stored.
func (s *FileStore) Info(ctx context.Context) (*Info, error) {
	f, err := s.read(ctx)
	if err != nil || f == nil {
		return nil, err
	}
	domain := f.Domain
	if domain == "" {
		domain = defaultDomain
	}
	return &Info{SavedAt: f.SavedAt, CookieCount: len(f.Cookies), Domain: domain}, nil
}

// Delete removes the cookie file. Deleting a missing file is not an error.
func (s *FileStore) Delete(ctx context.Context) error {
	return filelock.Exclusive(ctx, s.path, func() error {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove cookie file: %w", err)
		}
		return nil
	})
}

func (s *FileStore) read(ctx context.Context) (*cookieFile, error) {
	var data []byte
	err := filelock.Shared(ctx, s.path, func() error {
		var err error
		data, err = filelock.ReadFile(s.path)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var f cookieFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode cookie file: %w", err)
	}
	return &f, nil
}

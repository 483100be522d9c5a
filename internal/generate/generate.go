// Package generate writes tailored candidate documents for matched postings.
package generate

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout/internal/hash/sha256"
	"github.com/JakeFAU/jobscout/internal/logging"
	"github.com/JakeFAU/jobscout/internal/metrics"
	"github.com/JakeFAU/jobscout/internal/posting"
)

//go:embed prompt.md
var promptTemplate string

const contentType = "text/markdown; charset=utf-8"

var (
	thinkBlocks  = regexp.MustCompile(`(?s)<think>.*?</think>`)
	outerFence   = regexp.MustCompile("(?s)^```(?:markdown|md)?\\s*\n(.*?)\n?```$")
	unsafeSource = regexp.MustCompile(`[^a-z0-9_-]+`)
)

// ErrEmptyDocument is returned when the model produced no usable text.
var ErrEmptyDocument = errors.New("generated document is empty")

// TextGenerator is a text completion backend.
type TextGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// BlobStore persists artifacts and returns a reference to them.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Hasher digests posting URLs into artifact names.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Config configures a Service.
type Config struct {
	Text   TextGenerator
	Blobs  BlobStore
	Hasher Hasher
	// Prefix is the top-level artifact directory, "artifacts" by default.
	Prefix string
	Logger *zap.Logger
}

// Service tailors the profile to a posting and stores the result.
type Service struct {
	text   TextGenerator
	blobs  BlobStore
	hasher Hasher
	prefix string
	logger *zap.Logger
}

// New builds a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Text == nil {
		return nil, errors.New("text generator is required")
	}
	if cfg.Blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if cfg.Hasher == nil {
		cfg.Hasher = sha256.New()
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "artifacts"
	}
	return &Service{
		text:   cfg.Text,
		blobs:  cfg.Blobs,
		hasher: cfg.Hasher,
		prefix: prefix,
		logger: logging.OrNop(cfg.Logger).With(zap.String("component", "generate")),
	}, nil
}

// Generate writes a document tailored to p and returns its blob reference.
func (s *Service) Generate(ctx context.Context, profile posting.Profile, p posting.Posting) (ref string, err error) {
	defer func() {
		if err != nil {
			metrics.ObserveArtifact("error")
			return
		}
		metrics.ObserveArtifact("success")
	}()
	if profile.Empty() {
		return "", errors.New("candidate profile is empty")
	}
	if strings.TrimSpace(p.Description) == "" {
		return "", errors.New("posting description is empty")
	}
	objectPath, err := s.ArtifactPath(p)
	if err != nil {
		return "", err
	}
	raw, err := s.text.GenerateContent(ctx, buildPrompt(p.Description, profile.Text))
	if err != nil {
		return "", fmt.Errorf("generate document: %w", err)
	}
	doc := cleanDocument(raw)
	if doc == "" {
		return "", ErrEmptyDocument
	}
	ref, err = s.blobs.PutObject(ctx, objectPath, contentType, strings.NewReader(doc+"\n"))
	if err != nil {
		return "", fmt.Errorf("store artifact: %w", err)
	}
	s.logger.Info("artifact stored", zap.String("url", p.URL), zap.String("ref", ref))
	return ref, nil
}

// ArtifactPath names the artifact for p as <prefix>/<source>/<sha256 of url>.md.
func (s *Service) ArtifactPath(p posting.Posting) (string, error) {
	if strings.TrimSpace(p.URL) == "" {
		return "", errors.New("posting url is required")
	}
	digest, err := s.hasher.Hash([]byte(p.URL))
	if err != nil {
		return "", fmt.Errorf("hash posting url: %w", err)
	}
	source := unsafeSource.ReplaceAllString(strings.ToLower(p.Source), "_")
	if strings.Trim(source, "_") == "" {
		source = "unknown"
	}
	return path.Join(s.prefix, source, digest+".md"), nil
}

func buildPrompt(description, cv string) string {
	prompt := strings.ReplaceAll(promptTemplate, "{{JOB_DESCRIPTION}}", strings.TrimSpace(description))
	return strings.ReplaceAll(prompt, "{{CV_TEXT}}", strings.TrimSpace(cv))
}

// cleanDocument drops reasoning blocks and an enclosing code fence.
func cleanDocument(raw string) string {
	doc := strings.TrimSpace(thinkBlocks.ReplaceAllString(raw, ""))
	if m := outerFence.FindStringSubmatch(doc); m != nil {
		doc = strings.TrimSpace(m[1])
	}
	return doc
}

// Package fileref turns the file references stored on import requests into
// readable local paths. Local paths are checked against an allowlist of
// roots; remote object-store references are downloaded into a cache directory.
package fileref

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"isi-import/internal/domain"
)

var _ domain.FileResolver = (*Resolver)(nil)

// Fetcher copies the object behind a remote reference into w.
// Implementations: S3Fetcher, GCSFetcher, AzureFetcher.
type Fetcher interface {
	Fetch(ctx context.Context, ref string, w io.Writer) error
}

// Resolver implements domain.FileResolver.
type Resolver struct {
	roots    []string
	cacheDir string
	fetchers map[string]Fetcher
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFetcher registers f for references with the given URL scheme.
func WithFetcher(scheme string, f Fetcher) Option {
	return func(r *Resolver) { r.fetchers[strings.ToLower(scheme)] = f }
}

// NewResolver creates a Resolver. With no roots only files below the working
// directory are accepted.
func NewResolver(roots []string, cacheDir string, logger *slog.Logger, opts ...Option) (*Resolver, error) {
	if len(roots) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("working directory: %w", err)
		}
		roots = []string{wd}
	}
	abs := make([]string, 0, len(roots))
	for _, root := range roots {
		a, err := canonical(root)
		if err != nil {
			return nil, fmt.Errorf("file root %q: %w", root, err)
		}
		abs = append(abs, a)
	}
	r := &Resolver{
		roots:    abs,
		cacheDir: cacheDir,
		fetchers: make(map[string]Fetcher),
		logger:   logger,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Resolve returns a local path for ref.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", &domain.FileNotLocalError{Ref: ref, Reason: "empty reference"}
	}
	scheme, ok := remoteScheme(ref)
	if !ok {
		return r.resolveLocal(ref, ref)
	}
	if scheme == "file" {
		u, err := url.Parse(ref)
		if err != nil {
			return "", &domain.FileNotLocalError{Ref: ref, Reason: err.Error()}
		}
		return r.resolveLocal(ref, u.Path)
	}
	f, ok := r.fetchers[scheme]
	if !ok {
		return "", &domain.FileNotLocalError{Ref: ref, Reason: fmt.Sprintf("no storage configured for %s://", scheme)}
	}
	return r.download(ctx, ref, f)
}

func (r *Resolver) resolveLocal(ref, p string) (string, error) {
	abs, err := canonical(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &domain.FileNotLocalError{Ref: ref, Reason: "file does not exist"}
		}
		return "", &domain.FileNotLocalError{Ref: ref, Reason: err.Error()}
	}
	if !r.allowed(abs) {
		return "", &domain.FileNotLocalError{Ref: ref, Reason: "outside the allowed file roots"}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", &domain.FileNotLocalError{Ref: ref, Reason: err.Error()}
	}
	if info.IsDir() {
		return "", &domain.FileNotLocalError{Ref: ref, Reason: "is a directory"}
	}
	return abs, nil
}

func (r *Resolver) allowed(abs string) bool {
	for _, root := range r.roots {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}

// download materialises ref under the cache directory. A previously
// downloaded copy is reused.
func (r *Resolver) download(ctx context.Context, ref string, f Fetcher) (string, error) {
	if err := os.MkdirAll(r.cacheDir, 0o750); err != nil {
		return "", fmt.Errorf("create file cache dir: %w", err)
	}
	target := filepath.Join(r.cacheDir, cacheName(ref))
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		r.logger.Debug("file reference served from cache", "ref", ref, "path", target)
		return target, nil
	}

	tmp, err := os.CreateTemp(r.cacheDir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := f.Fetch(ctx, ref, tmp); err != nil {
		tmp.Close() //nolint:errcheck,gosec
		return "", &domain.FileNotLocalError{Ref: ref, Reason: err.Error()}
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write download %q: %w", ref, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("store download %q: %w", ref, err)
	}
	r.logger.Info("file reference downloaded", "ref", ref, "path", target)
	return target, nil
}

// cacheName keeps the extension so the tabular reader can pick a format.
func cacheName(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	ext := path.Ext(ref)
	if u, err := url.Parse(ref); err == nil {
		ext = path.Ext(u.Path)
	}
	return hex.EncodeToString(sum[:16]) + strings.ToLower(ext)
}

func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// remoteScheme reports the lower-cased scheme of a URL-style reference.
// Windows drive letters are not schemes.
func remoteScheme(ref string) (string, bool) {
	scheme, _, ok := strings.Cut(ref, "://")
	if !ok || len(scheme) < 2 || strings.ContainsAny(scheme, `/\`) {
		return "", false
	}
	return strings.ToLower(scheme), true
}

package uploads

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/pagecraft/pagecraft/pkg/log"
)

// Store keeps uploaded assets in per-bucket directories on disk and hands
// out public URLs for them. Stored names are uuid-prefixed so repeated
// uploads of the same file never collide or overwrite each other.
type Store struct {
	root          string
	publicBaseURL string
	logger        *log.Logger
}

// New creates an upload store rooted at dir. publicBaseURL is the origin the
// served /uploads/ tree is reachable at, without a trailing slash.
func New(dir, publicBaseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating uploads directory: %w", err)
	}
	return &Store{
		root:          dir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        log.ForComponent("uploads"),
	}, nil
}

// Root returns the directory the buckets live under, for static serving.
func (s *Store) Root() string {
	return s.root
}

// Upload stores the reader's content under bucket and returns the stored
// file name. The original name only contributes its sanitized base and
// extension.
func (s *Store) Upload(bucket, name string, r io.Reader) (string, error) {
	bucket, err := cleanComponent(bucket)
	if err != nil {
		return "", fmt.Errorf("invalid bucket: %w", err)
	}

	dir := filepath.Join(s.root, bucket)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating bucket %s: %w", bucket, err)
	}

	stored := storedName(name)
	path := filepath.Join(dir, stored)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", stored, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		if cerr := f.Close(); cerr != nil {
			s.logger.Warnf("closing failed upload %s: %v", stored, cerr)
		}
		if rerr := os.Remove(path); rerr != nil {
			s.logger.Warnf("removing failed upload %s: %v", stored, rerr)
		}
		return "", fmt.Errorf("writing %s: %w", stored, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", stored, err)
	}

	s.logger.Debugf("stored %s/%s", bucket, stored)
	return stored, nil
}

// PublicURL returns the URL a stored file is served at.
func (s *Store) PublicURL(bucket, stored string) string {
	return fmt.Sprintf("%s/uploads/%s/%s", s.publicBaseURL, bucket, stored)
}

// List returns the stored names in a bucket, empty for unknown buckets.
func (s *Store) List(bucket string) ([]string, error) {
	bucket, err := cleanComponent(bucket)
	if err != nil {
		return nil, fmt.Errorf("invalid bucket: %w", err)
	}

	entries, err := os.ReadDir(filepath.Join(s.root, bucket))
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading bucket %s: %w", bucket, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Remove deletes a stored file. Removing an unknown file is a no-op.
func (s *Store) Remove(bucket, stored string) error {
	bucket, err := cleanComponent(bucket)
	if err != nil {
		return fmt.Errorf("invalid bucket: %w", err)
	}
	stored, err = cleanComponent(stored)
	if err != nil {
		return fmt.Errorf("invalid name: %w", err)
	}

	if err := os.Remove(filepath.Join(s.root, bucket, stored)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s/%s: %w", bucket, stored, err)
	}
	return nil
}

// storedName builds a collision-free file name from the upload's base name.
func storedName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, base)
	base = strings.Trim(base, ".-")
	if base == "" {
		base = "upload"
	}
	return uuid.NewString() + "-" + base
}

// cleanComponent rejects anything that could escape the uploads tree.
func cleanComponent(c string) (string, error) {
	c = strings.TrimSpace(c)
	if c == "" || c == "." || c == ".." {
		return "", fmt.Errorf("empty or reserved path component")
	}
	if strings.ContainsAny(c, "/\\") {
		return "", fmt.Errorf("path separators not allowed in %q", c)
	}
	return c, nil
}

package snapshot

import (
	"crypto/sha1"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/docsearch/pkg/models"
)

// documentExts is the allow-list of corpus file extensions. Everything else
// on disk is invisible to ingestion.
var documentExts = map[string]struct{}{
	".txt":      {},
	".text":     {},
	".md":       {},
	".markdown": {},
	".docx":     {},
}

// IsDocument reports whether the path looks like an ingestible document.
func IsDocument(path string) bool {
	_, ok := documentExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Fingerprint returns the SHA-1 content hash of the file as a hex string.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Build creates the immutable per-attempt snapshot for one file. RawText is
// left empty; the parse stage fills it in.
func Build(root, path string) (*models.FileSnapshot, error) {
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(root, path)
	}
	hash, err := Fingerprint(full)
	if err != nil {
		return nil, err
	}
	return &models.FileSnapshot{
		Hash:     hash,
		Path:     rel(root, full),
		FullPath: full,
	}, nil
}

// Walker abstracts directory traversal so tests can substitute a fixed file
// list for godirwalk.
type Walker interface {
	Walk(root string, options *godirwalk.Options) error
}

// DefaultWalker implements Walker using godirwalk.
type DefaultWalker struct{}

func (d *DefaultWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// Scanner produces the full on-disk corpus listing fed to filesystem
// reconciliation.
type Scanner struct {
	Root   string
	Walker Walker
}

func NewScanner(root string) *Scanner {
	return &Scanner{Root: root, Walker: &DefaultWalker{}}
}

// Scan walks the corpus root and returns one listing entry per document,
// with logical path, content hash, size, and mtime. Unreadable files are
// skipped with a warning rather than failing the whole sweep.
func (s *Scanner) Scan() ([]models.FileListing, error) {
	var listings []models.FileListing
	err := s.Walker.Walk(s.Root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de != nil && de.IsDir() {
				if shouldSkipDir(path) {
					return filepath.SkipDir
				}
				return nil
			}
			if !IsDocument(path) {
				return nil
			}

			fi, err := os.Stat(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("failed to stat file")
				return nil
			}
			hash, err := Fingerprint(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("failed to fingerprint file")
				return nil
			}

			listings = append(listings, models.FileListing{
				Path:    rel(s.Root, path),
				Hash:    hash,
				Size:    fi.Size(),
				ModTime: fi.ModTime(),
			})
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return listings, nil
}

// shouldSkipDir prunes directories that never hold corpus documents.
func shouldSkipDir(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") && base != "." && base != ".." {
		return true
	}
	switch strings.ToLower(base) {
	case "node_modules", "vendor", "tmp", "temp", "__pycache__":
		return true
	}
	return false
}

func rel(root, p string) string {
	r, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(r)
}

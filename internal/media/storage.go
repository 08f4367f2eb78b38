package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// Store keeps uploaded images on the local filesystem under a single
// directory. Filenames are randomized so an upload can never clobber
// another or escape the directory.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Save writes the image bytes under a fresh random name, keeping the
// original extension. The caller has already validated the content.
func (s *Store) Save(originalName string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !allowedExtensions[ext] {
		return "", ErrUnsupportedType
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate filename: %w", err)
	}
	filename := id.String() + ext

	if err := os.WriteFile(filepath.Join(s.dir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("write image file: %w", err)
	}

	return filename, nil
}

func (s *Store) Exists(filename string) bool {
	if !validFilename(filename) {
		return false
	}
	_, err := os.Stat(filepath.Join(s.dir, filename))
	return err == nil
}

// Remove deletes the file. A file already gone is not an error.
func (s *Store) Remove(filename string) error {
	if !validFilename(filename) {
		return fmt.Errorf("invalid filename: %q", filename)
	}

	err := os.Remove(filepath.Join(s.dir, filename))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove image file: %w", err)
	}

	return nil
}

func validFilename(filename string) bool {
	if filename == "" || strings.ContainsAny(filename, "/\\") {
		return false
	}
	return filepath.Base(filename) == filename
}

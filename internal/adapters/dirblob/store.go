package dirblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"intradaySync/internal/domain"
	"intradaySync/internal/ports"
)

// Store implements ports.BlobStore on a local directory tree. A folder is a
// sub directory of Root and a blob id is "<folder>/<name>".
type Store struct {
	root   string
	logger ports.Logger
}

// Config holds configuration for the directory blob store.
type Config struct {
	Root   string
	Logger ports.Logger
}

// New creates a Store rooted at cfg.Root, creating the directory if needed.
func New(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for directory blob store")
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("%w: REMOTE_DIR is empty", ports.ErrConfigurationError)
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: cannot create %s: %w", ports.ErrRemoteUnavailable, cfg.Root, err)
	}
	return &Store{root: cfg.Root, logger: cfg.Logger}, nil
}

// Ping creates folder if missing and checks it is a directory.
func (s *Store) Ping(ctx context.Context, folder string) error {
	op := "Ping"
	dir, err := s.folderPath(folder)
	if err != nil {
		return s.handleError(ctx, err, op)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return s.handleError(ctx, err, op)
	}
	return nil
}

// Find returns the blob named name in folder, if present.
func (s *Store) Find(ctx context.Context, folder, name string) ([]domain.BlobRef, error) {
	op := "Find"
	id, err := blobID(folder, name)
	if err != nil {
		return nil, s.handleError(ctx, err, op)
	}
	info, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(id)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, s.handleError(ctx, err, op)
	}
	if info.IsDir() {
		return nil, nil
	}
	return []domain.BlobRef{{ID: id, Name: name}}, nil
}

// Download copies blob id into w.
func (s *Store) Download(ctx context.Context, id string, w io.Writer) error {
	op := "Download"
	p, err := s.blobPath(id)
	if err != nil {
		return s.handleError(ctx, err, op)
	}
	f, err := os.Open(p)
	if err != nil {
		return s.handleError(ctx, err, op)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return s.handleError(ctx, err, op)
	}
	return nil
}

// Create writes a new blob. An existing blob with the same name is replaced,
// so callers wanting update semantics should Find first.
func (s *Store) Create(ctx context.Context, folder, name string, content io.Reader) (string, error) {
	op := "Create"
	id, err := blobID(folder, name)
	if err != nil {
		return "", s.handleError(ctx, err, op)
	}
	if err := os.MkdirAll(filepath.Join(s.root, folder), 0o755); err != nil {
		return "", s.handleError(ctx, err, op)
	}
	if err := s.write(id, content); err != nil {
		return "", s.handleError(ctx, err, op)
	}
	return id, nil
}

// Update replaces the content of an existing blob.
func (s *Store) Update(ctx context.Context, id string, content io.Reader) error {
	op := "Update"
	p, err := s.blobPath(id)
	if err != nil {
		return s.handleError(ctx, err, op)
	}
	if _, err := os.Stat(p); err != nil {
		return s.handleError(ctx, err, op)
	}
	if err := s.write(id, content); err != nil {
		return s.handleError(ctx, err, op)
	}
	return nil
}

func (s *Store) write(id string, content io.Reader) error {
	dst := filepath.Join(s.root, filepath.FromSlash(id))
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func (s *Store) folderPath(folder string) (string, error) {
	if folder == "" || strings.ContainsAny(folder, `/\`) || folder == "." || folder == ".." {
		return "", fmt.Errorf("%w: invalid folder %q", ports.ErrInvalidRequest, folder)
	}
	return filepath.Join(s.root, folder), nil
}

func (s *Store) blobPath(id string) (string, error) {
	folder, name := path.Split(id)
	if _, err := blobID(strings.TrimSuffix(folder, "/"), name); err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(id)), nil
}

func blobID(folder, name string) (string, error) {
	for _, part := range []string{folder, name} {
		if part == "" || strings.ContainsAny(part, `/\`) || part == "." || part == ".." {
			return "", fmt.Errorf("%w: invalid blob path %q/%q", ports.ErrInvalidRequest, folder, name)
		}
	}
	return folder + "/" + name, nil
}

// handleError translates filesystem errors into standardized ports errors.
func (s *Store) handleError(ctx context.Context, err error, operation string) error {
	var mapped error
	switch {
	case errors.Is(err, ports.ErrInvalidRequest):
		return fmt.Errorf("%s failed: %w", operation, err)
	case errors.Is(err, fs.ErrNotExist):
		mapped = ports.ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		mapped = ports.ErrPermissionDenied
	default:
		mapped = ports.ErrRemoteUnavailable
	}
	s.logger.Debug(ctx, fmt.Sprintf("directory blob %s failed", operation), map[string]interface{}{"error": err.Error()})
	return fmt.Errorf("%s failed: %w: %w", operation, mapped, err)
}

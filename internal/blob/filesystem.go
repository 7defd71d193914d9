package blob

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"linerelay/internal/domain"
)

// FSStore writes blobs below {root}/{bucket}. It stands in for S3 in local
// setups; locators still use the public base URL.
type FSStore struct {
	root       string
	bucket     string
	publicBase string
	logger     *slog.Logger
}

func NewFSStore(root, bucket, publicBase string, logger *slog.Logger) *FSStore {
	if publicBase == "" {
		publicBase = DefaultPublicBaseURL(bucket)
	}
	return &FSStore{root: root, bucket: bucket, publicBase: publicBase, logger: logger}
}

func (s *FSStore) Bucket() string { return s.bucket }

// Path returns the file backing name.
func (s *FSStore) Path(name string) (string, error) {
	base := filepath.Join(s.root, s.bucket)
	p := filepath.Join(base, filepath.FromSlash(name))
	if p != base && !strings.HasPrefix(p, base+string(filepath.Separator)) {
		return "", fmt.Errorf("object name %q escapes the bucket", name)
	}
	return p, nil
}

func (s *FSStore) Put(ctx context.Context, name string, data []byte, contentType string) (domain.BlobRef, error) {
	if err := ctx.Err(); err != nil {
		return domain.BlobRef{}, err
	}
	p, err := s.Path(name)
	if err != nil {
		return domain.BlobRef{}, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return domain.BlobRef{}, fmt.Errorf("create object directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return domain.BlobRef{}, fmt.Errorf("write object: %w", err)
	}
	s.logger.Debug("blob stored", "path", p, "content_type", contentType, "bytes", len(data))
	return domain.BlobRef{Bucket: s.bucket, Key: name, Locator: Locator(s.publicBase, name)}, nil
}

package domain

import "context"

// BlobRef identifies a stored object and the URL it is served from.
type BlobRef struct {
	Bucket  string `json:"bucket"`
	Key     string `json:"key"`
	Locator string `json:"locator"`
}

// ObjectStore writes blobs by name. Writes overwrite unconditionally.
type ObjectStore interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (BlobRef, error)
	Bucket() string
}

// Label is one classification result. Confidence is a percentage in [0, 100].
type Label struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Classifier labels a stored image. Results are ordered by confidence,
// highest first, and may be empty.
type Classifier interface {
	Classify(ctx context.Context, ref BlobRef) ([]Label, error)
}

package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/formatconvert/internal/models"
)

// maxCatalogBytes bounds how much of a catalog object is read.
const maxCatalogBytes = 1 << 20

// GCSSource reads catalogs published as JSON objects named
// <prefix><category>.json in a bucket.
type GCSSource struct {
	bucket *storage.BucketHandle
	prefix string
}

// NewGCSSource returns a Source backed by bucketName.
func NewGCSSource(client *storage.Client, bucketName, prefix string) *GCSSource {
	return &GCSSource{bucket: client.Bucket(bucketName), prefix: prefix}
}

// SupportedFormats implements Source.
func (s *GCSSource) SupportedFormats(ctx context.Context, category models.Category) (*models.SupportedFormats, error) {
	objectName := s.prefix + string(category) + ".json"
	reader, err := s.bucket.Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog object %s: %w", objectName, err)
	}
	defer reader.Close()
	return decodeSupportedFormats(io.LimitReader(reader, maxCatalogBytes))
}

func decodeSupportedFormats(r io.Reader) (*models.SupportedFormats, error) {
	var payload models.SupportedFormats
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &payload, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/formatconvert/internal/gcp"
	"github.com/Lllllllleong/formatconvert/internal/models"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"
)

// ResultStore turns a remote result locator into a durable copy owned by us.
type ResultStore interface {
	Store(ctx context.Context, batchID string, index int, item models.ConversionItem) (string, error)
}

// resultObjectName is "<batchID>/<index>-<stem>.<target>".
func resultObjectName(batchID string, index int, item models.ConversionItem) string {
	base := path.Base(filepath.ToSlash(item.DisplayName))
	stem := strings.TrimSuffix(base, path.Ext(base))
	if stem == "" || stem == "." || stem == "/" {
		stem = "result"
	}
	return fmt.Sprintf("%s/%03d-%s.%s", batchID, index, stem, item.TargetFormat)
}

// openResult opens an http(s) URL, a gs:// URI or a local path.
func openResult(ctx context.Context, httpClient *http.Client, storageClient *storage.Client, locator string) (io.ReadCloser, error) {
	if !strings.HasPrefix(locator, "http://") && !strings.HasPrefix(locator, "https://") {
		return gcp.OpenLocator(ctx, storageClient, locator)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", locator, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("download %s: unexpected status %s", locator, resp.Status)
	}
	return resp.Body, nil
}

// GCSResultStore copies results into a bucket. Writes are if-not-exists so a
// retried persist never overwrites an earlier copy.
type GCSResultStore struct {
	storageClient *storage.Client
	httpClient    *http.Client
	bucket        string
}

func NewGCSResultStore(storageClient *storage.Client, httpClient *http.Client, bucket string) *GCSResultStore {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &GCSResultStore{storageClient: storageClient, httpClient: httpClient, bucket: bucket}
}

func (s *GCSResultStore) Store(ctx context.Context, batchID string, index int, item models.ConversionItem) (string, error) {
	objectName := resultObjectName(batchID, index, item)
	dest := fmt.Sprintf("gs://%s/%s", s.bucket, objectName)
	logCtx := slog.With("batchId", batchID, "index", index, "gcsObject", dest)
	bucket := s.storageClient.Bucket(s.bucket)

	if gcp.IsGCSURI(item.ResultLocator) {
		srcBucket, srcObject, err := gcp.ParseGCSURI(item.ResultLocator)
		if err != nil {
			return "", err
		}
		src := s.storageClient.Bucket(srcBucket).Object(srcObject)
		copier := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).CopierFrom(src)
		if _, err := copier.Run(ctx); err != nil {
			var gerr *googleapi.Error
			if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
				logCtx.Info("Result already stored. SKIPPING.")
				return dest, nil
			}
			return "", fmt.Errorf("failed to copy %s: %w", item.ResultLocator, err)
		}
		return dest, nil
	}

	reader, err := openResult(ctx, s.httpClient, s.storageClient, item.ResultLocator)
	if err != nil {
		return "", err
	}
	defer reader.Close()
	if err := gcp.SaveToGCSAtomically(ctx, bucket, objectName, reader); err != nil {
		if errors.Is(err, gcp.ErrObjectExists) {
			logCtx.Info("Result already stored. SKIPPING.")
			return dest, nil
		}
		return "", err
	}
	return dest, nil
}

// LocalResultStore downloads results into a directory.
type LocalResultStore struct {
	dir           string
	httpClient    *http.Client
	storageClient *storage.Client
}

// NewLocalResultStore stores under dir. storageClient may be nil when no
// result lives in GCS.
func NewLocalResultStore(dir string, httpClient *http.Client, storageClient *storage.Client) *LocalResultStore {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &LocalResultStore{dir: dir, httpClient: httpClient, storageClient: storageClient}
}

func (s *LocalResultStore) Store(ctx context.Context, batchID string, index int, item models.ConversionItem) (string, error) {
	dest := filepath.Join(s.dir, filepath.FromSlash(resultObjectName(batchID, index, item)))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create result dir: %w", err)
	}

	reader, err := openResult(ctx, s.httpClient, s.storageClient, item.ResultLocator)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".partial-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to download result: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to finish result file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("failed to move result into place: %w", err)
	}
	return dest, nil
}

// Persister copies the results of succeeded items through a ResultStore,
// several at a time, retrying each with a doubling backoff.
type Persister struct {
	Store       ResultStore
	Concurrency int
	MaxRetries  int
	Backoff     time.Duration
}

func NewPersister(store ResultStore) *Persister {
	return &Persister{Store: store, Concurrency: 10, MaxRetries: 4, Backoff: time.Second}
}

// PersistAll stores every succeeded item and returns the durable locators by
// item index. Items that could not be stored are absent from the map and
// their errors are joined.
func (p *Persister) PersistAll(ctx context.Context, batchID string, items []models.ConversionItem) (map[int]string, error) {
	var (
		mu     sync.Mutex
		stored = make(map[int]string)
		errs   []error
	)
	var eg errgroup.Group
	eg.SetLimit(max(1, p.Concurrency))
	for index, item := range items {
		if item.Status != models.StatusSucceeded || item.ResultLocator == "" {
			continue
		}
		eg.Go(func() error {
			locator, err := p.storeWithRetry(ctx, batchID, index, item)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("item %d: %w", index, err))
				return nil
			}
			stored[index] = locator
			return nil
		})
	}
	_ = eg.Wait()
	return stored, errors.Join(errs...)
}

func (p *Persister) storeWithRetry(ctx context.Context, batchID string, index int, item models.ConversionItem) (string, error) {
	maxRetries := max(1, p.MaxRetries)
	backoff := p.Backoff
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		locator, err := p.Store.Store(ctx, batchID, index, item)
		if err == nil {
			return locator, nil
		}
		lastErr = err
		if i == maxRetries-1 {
			break
		}
		slog.Warn(
			"Storing result failed, will retry.",
			"batchId", batchID,
			"index", index,
			"attempt", i+1,
			"maxRetries", maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "batchId", batchID, "index", index, "error", ctx.Err())
			return "", ctx.Err()
		}
	}
	slog.Error("Storing result failed after all retries.", "batchId", batchID, "index", index, "error", lastErr)
	return "", fmt.Errorf("result of item %d failed after all retries: %w", index, lastErr)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/formatconvert/internal/catalog"
	"github.com/Lllllllleong/formatconvert/internal/gcp"
	"github.com/Lllllllleong/formatconvert/internal/models"
	"github.com/Lllllllleong/formatconvert/internal/remote"
)

const (
	BackendHTTP      = "http"
	BackendWorkflows = "workflows"
)

// BatchServiceConfig holds configuration for the batch conversion service.
type BatchServiceConfig struct {
	ProjectID        string
	Backend          string
	ConverterBaseURL string
	WorkflowID       string
	WorkflowLocation string
	CollectionName   string
	ResultsBucket    string
	CatalogBucket    string
	CatalogPrefix    string
	PollTimeout      time.Duration
	PollInterval     time.Duration
}

// LoadBatchServiceConfig reads the service configuration from the environment.
func LoadBatchServiceConfig() (*BatchServiceConfig, error) {
	config := &BatchServiceConfig{
		ProjectID:        gcp.GetEnv("PROJECT_ID", ""),
		Backend:          strings.ToLower(gcp.GetEnv("CONVERTER_BACKEND", BackendHTTP)),
		ConverterBaseURL: gcp.GetEnv("CONVERTER_BASE_URL", ""),
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", "format-converter"),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		CollectionName:   gcp.GetEnv("FIRESTORE_COLLECTION", "conversionBatches"),
		ResultsBucket:    gcp.GetEnv("RESULTS_BUCKET", ""),
		CatalogBucket:    gcp.GetEnv("CATALOG_BUCKET", ""),
		CatalogPrefix:    gcp.GetEnv("CATALOG_PREFIX", "catalog/"),
	}

	var err error
	defaults := DefaultPollerConfig()
	if config.PollTimeout, err = gcp.GetDurationEnv("POLL_TIMEOUT", defaults.Timeout); err != nil {
		return nil, err
	}
	if config.PollInterval, err = gcp.GetDurationEnv("POLL_INTERVAL", defaults.Interval); err != nil {
		return nil, err
	}

	switch config.Backend {
	case BackendHTTP:
		if config.ConverterBaseURL == "" {
			return nil, fmt.Errorf("CONVERTER_BASE_URL environment variable must be set for the http backend")
		}
	case BackendWorkflows:
		if config.ProjectID == "" {
			return nil, fmt.Errorf("PROJECT_ID environment variable must be set for the workflows backend")
		}
	default:
		return nil, fmt.Errorf("CONVERTER_BACKEND must be %q or %q, got %q", BackendHTTP, BackendWorkflows, config.Backend)
	}
	return config, nil
}

// BatchService runs a whole request: intake, conversion, result persistence.
type BatchService struct {
	catalog   *catalog.Catalog
	intake    *Intake
	converter *BatchConverter
	ledger    *FirestoreLedger
	persister *Persister
	config    BatchServiceConfig
}

// ErrNoLedger is returned by lookups when the service runs without Firestore.
var ErrNoLedger = errors.New("no batch ledger configured")

// NewBatchService builds the service from the environment with GCP clients.
func NewBatchService(ctx context.Context) (*BatchService, error) {
	config, err := LoadBatchServiceConfig()
	if err != nil {
		return nil, err
	}
	if config.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	client, source, err := NewJobClient(ctx, config, storageClient)
	if err != nil {
		return nil, err
	}
	if config.CatalogBucket != "" {
		source = catalog.NewGCSSource(storageClient, config.CatalogBucket, config.CatalogPrefix)
	}
	cat := catalog.New(source)
	if err := cat.RefreshAll(ctx); err != nil {
		slog.Warn("Starting with default formats for some categories.", "error", err)
	}

	var store ResultStore
	if config.ResultsBucket != "" {
		store = NewGCSResultStore(storageClient, nil, config.ResultsBucket)
	}

	s := NewBatchServiceFrom(*config, cat, client, NewFirestoreLedger(firestoreClient, config.CollectionName), store)
	slog.Info("Batch conversion service initialized.", "backend", config.Backend, "collection", config.CollectionName, "resultsBucket", config.ResultsBucket)
	return s, nil
}

// NewJobClient builds the configured remote backend. The HTTP backend also
// serves as the catalog source.
func NewJobClient(ctx context.Context, config *BatchServiceConfig, storageClient *storage.Client) (remote.JobClient, catalog.Source, error) {
	switch config.Backend {
	case BackendWorkflows:
		executionsClient, err := gcp.NewExecutionsClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
		}
		parent := gcp.WorkflowParent(config.ProjectID, config.WorkflowLocation, config.WorkflowID)
		return remote.NewWorkflowsClient(executionsClient, parent), nil, nil
	default:
		httpClient, err := remote.NewHTTPClient(config.ConverterBaseURL, storageClient, nil)
		if err != nil {
			return nil, nil, err
		}
		if err := httpClient.Health(ctx); err != nil {
			slog.Warn("Conversion service health check failed.", "baseUrl", config.ConverterBaseURL, "error", err)
		}
		return httpClient, httpClient, nil
	}
}

// NewBatchServiceFrom assembles a service from ready collaborators. ledger and
// store may be nil; extra observers see every run.
func NewBatchServiceFrom(config BatchServiceConfig, cat *catalog.Catalog, client remote.JobClient, ledger *FirestoreLedger, store ResultStore, observers ...BatchObserver) *BatchService {
	if ledger != nil {
		observers = append(observers, ledger)
	}
	poller := NewJobPoller(client, PollerConfig{
		Timeout:  config.PollTimeout,
		Interval: config.PollInterval,
	})
	s := &BatchService{
		catalog:   cat,
		intake:    NewIntake(cat),
		converter: NewBatchConverter(cat, client, poller, Observers(observers)),
		ledger:    ledger,
		config:    config,
	}
	if store != nil {
		s.persister = NewPersister(store)
	}
	return s
}

func (s *BatchService) Catalog() *catalog.Catalog { return s.catalog }

// Process runs one batch request to completion and persists its results.
// The response is returned alongside ctx.Err() when the run was cancelled.
func (s *BatchService) Process(ctx context.Context, req *models.BatchConvertRequest) (*models.BatchConvertResponse, error) {
	logCtx := slog.With("category", req.Category, "sourceFormat", req.SourceFormat, "targetFormat", req.TargetFormat)
	logCtx.Info("Received batch request.", "files", len(req.Files))

	// --- 1. Intake ---
	report, err := s.intake.Accept(req.Category, req.SourceFormat, req.Files)
	if err != nil {
		logCtx.Error("Batch request rejected.", "error", err)
		return nil, err
	}
	if len(report.Items) == 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("none of the %d files is a %s file", len(req.Files), s.catalog.DisplayName(req.Category, req.SourceFormat))}
	}
	batch := NewBatch(req.Category)
	if err := batch.Add(report.Items...); err != nil {
		return nil, err
	}
	logCtx = logCtx.With("batchId", batch.ID)

	// --- 2. Convert ---
	result, runErr := s.converter.Run(ctx, batch, req.TargetFormat)
	if result == nil {
		return nil, runErr
	}
	resp := &models.BatchConvertResponse{
		Status:  "completed",
		Result:  *result,
		Items:   batch.Snapshot(),
		Skipped: report.Skipped,
	}
	resp.Result.Skipped += len(report.Skipped)
	if result.Cancelled {
		resp.Status = "cancelled"
		return resp, runErr
	}

	// --- 3. Persist results ---
	if s.persister != nil && result.Succeeded > 0 {
		stored, err := s.persister.PersistAll(ctx, batch.ID, resp.Items)
		if err != nil {
			logCtx.Error("Some results could not be stored.", "stored", len(stored), "error", err)
		}
		resp.Stored = stored
	}
	logCtx.Info("Batch request complete.", "succeeded", result.Succeeded, "failed", result.Failed, "stored", len(resp.Stored))
	return resp, nil
}

// Items returns the ledger's copy of a batch.
func (s *BatchService) Items(ctx context.Context, batchID string) ([]models.ConversionItem, map[models.ItemStatus]int, error) {
	if s.ledger == nil {
		return nil, nil, ErrNoLedger
	}
	items, err := s.ledger.Items(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	return items, countByStatus(items), nil
}

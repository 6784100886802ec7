package services

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strconv"

	"github.com/Lllllllleong/formatconvert/internal/gcp"
	"github.com/Lllllllleong/formatconvert/internal/models"
)

// UploadConverterConfig holds configuration for the upload trigger.
type UploadConverterConfig struct {
	Category     models.Category
	TargetFormat string
}

// UploadConverterFunction converts each object uploaded to a bucket as a
// one-item batch.
type UploadConverterFunction struct {
	service *BatchService
	config  UploadConverterConfig
}

// NewUploadConverter creates the trigger on top of a fully wired BatchService.
func NewUploadConverter(ctx context.Context) (*UploadConverterFunction, error) {
	config := UploadConverterConfig{
		Category:     models.Category(gcp.GetEnv("UPLOAD_CATEGORY", string(models.CategoryDocument))),
		TargetFormat: gcp.GetEnv("UPLOAD_TARGET_FORMAT", ""),
	}
	if !config.Category.Valid() {
		return nil, fmt.Errorf("UPLOAD_CATEGORY %q is not a known category", config.Category)
	}
	if config.TargetFormat == "" {
		return nil, fmt.Errorf("UPLOAD_TARGET_FORMAT environment variable must be set")
	}
	service, err := NewBatchService(ctx)
	if err != nil {
		return nil, err
	}
	return NewUploadConverterFrom(service, config), nil
}

func NewUploadConverterFrom(service *BatchService, config UploadConverterConfig) *UploadConverterFunction {
	return &UploadConverterFunction{service: service, config: config}
}

// Process converts the uploaded object. Objects that are not a convertible
// source format, and objects written to the results bucket, are ignored.
func (f *UploadConverterFunction) Process(ctx context.Context, e models.GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new GCS object.")

	if e.Bucket == f.service.config.ResultsBucket {
		logCtx.Info("Object is a conversion result. Skipping.")
		return nil
	}
	cat := f.service.Catalog()
	sourceFormat, ok := cat.FormatForFilename(f.config.Category, e.Name)
	if !ok {
		logCtx.Info("Object is not a supported source format. Skipping.", "category", f.config.Category)
		return nil
	}
	if !cat.IsAllowed(f.config.Category, sourceFormat, f.config.TargetFormat) {
		logCtx.Info("Object cannot be converted to the target format. Skipping.", "sourceFormat", sourceFormat, "targetFormat", f.config.TargetFormat)
		return nil
	}

	size, _ := strconv.ParseInt(e.Size, 10, 64)
	resp, err := f.service.Process(ctx, &models.BatchConvertRequest{
		Category:     f.config.Category,
		SourceFormat: sourceFormat,
		TargetFormat: f.config.TargetFormat,
		Files: []models.PickedFile{{
			Locator:   fmt.Sprintf("gs://%s/%s", e.Bucket, e.Name),
			Name:      path.Base(e.Name),
			SizeBytes: size,
		}},
	})
	if err != nil {
		logCtx.Error("Upload conversion failed.", "error", err)
		return err
	}
	if item := resp.Items[0]; item.Status == models.StatusFailed {
		return fmt.Errorf("conversion of gs://%s/%s failed: %s", e.Bucket, e.Name, item.ErrorInfo)
	}
	logCtx.Info("Upload converted.", "batchId", resp.Result.BatchID, "resultLocator", resp.Items[0].ResultLocator, "stored", resp.Stored[0])
	return nil
}

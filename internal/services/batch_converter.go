package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/Lllllllleong/formatconvert/internal/catalog"
	"github.com/Lllllllleong/formatconvert/internal/models"
	"github.com/Lllllllleong/formatconvert/internal/remote"
)

// BatchConverter runs batches one item at a time against a remote job client.
type BatchConverter struct {
	catalog  *catalog.Catalog
	client   remote.JobClient
	poller   *JobPoller
	observer BatchObserver
}

// NewBatchConverter wires a converter. A nil observer disables notifications.
func NewBatchConverter(cat *catalog.Catalog, client remote.JobClient, poller *JobPoller, observer BatchObserver) *BatchConverter {
	if observer == nil {
		observer = NopObserver{}
	}
	return &BatchConverter{
		catalog:  cat,
		client:   client,
		poller:   poller,
		observer: observer,
	}
}

type itemOutcome int

const (
	outcomeSucceeded itemOutcome = iota
	outcomeFailed
	outcomeCancelled
)

// Run converts every pending item of batch to targetFormat, in order. Item
// failures are recorded on the item and never stop the run. A
// ConfigurationError is returned before any remote call when the batch is
// empty or any item cannot be converted to targetFormat. When ctx is
// cancelled the in-flight item is left processing and Run returns the partial
// result together with ctx.Err().
func (c *BatchConverter) Run(ctx context.Context, batch *Batch, targetFormat string) (*models.BatchResult, error) {
	targetFormat = strings.ToLower(strings.TrimSpace(targetFormat))
	logCtx := slog.With("batchId", batch.ID, "category", batch.Category, "targetFormat", targetFormat)

	if err := c.validate(batch, targetFormat); err != nil {
		logCtx.Error("Batch rejected before submission.", "error", err)
		return nil, err
	}

	pending, err := batch.begin()
	if err != nil {
		return nil, err
	}
	defer batch.end()

	result := &models.BatchResult{
		BatchID: batch.ID,
		Total:   len(pending),
		Skipped: batch.Len() - len(pending),
	}
	logCtx.Info("Starting batch.", "pending", result.Total, "skipped", result.Skipped)
	c.observer.BatchStarted(ctx, batch, targetFormat)

	done := 0
	for _, index := range pending {
		if ctx.Err() != nil {
			return c.cancelled(ctx, logCtx, batch, result)
		}

		switch c.convertItem(ctx, logCtx.With("index", index), batch, index, targetFormat) {
		case outcomeCancelled:
			return c.cancelled(ctx, logCtx, batch, result)
		case outcomeSucceeded:
			result.Succeeded++
		case outcomeFailed:
			result.Failed++
		}

		done++
		percent := batch.setProgress(aggregateProgress(done, result.Total))
		c.observer.BatchProgress(ctx, batch.ID, percent)
	}

	if result.Total == 0 {
		c.observer.BatchProgress(ctx, batch.ID, batch.setProgress(100))
	}
	result.Progress = batch.Progress()
	logCtx.Info("Batch finished.", "succeeded", result.Succeeded, "failed", result.Failed)
	c.observer.BatchFinished(ctx, batch.ID, *result)
	return result, nil
}

func (c *BatchConverter) validate(batch *Batch, targetFormat string) error {
	items := batch.Snapshot()
	if len(items) == 0 {
		return &ConfigurationError{Reason: "batch has no items"}
	}
	if !batch.Category.Valid() {
		return &ConfigurationError{Reason: fmt.Sprintf("unknown category %q", batch.Category)}
	}
	for _, item := range items {
		if !c.catalog.IsAllowed(batch.Category, item.SourceFormat, targetFormat) {
			return &ConfigurationError{Reason: fmt.Sprintf("%s cannot be converted to %s (%s)",
				c.catalog.DisplayName(batch.Category, item.SourceFormat),
				c.catalog.DisplayName(batch.Category, targetFormat),
				item.DisplayName)}
		}
	}
	return nil
}

// --- One item: submit, poll, record ---
func (c *BatchConverter) convertItem(ctx context.Context, logCtx *slog.Logger, batch *Batch, index int, targetFormat string) itemOutcome {
	item, err := batch.update(index, func(it *models.ConversionItem) error {
		return it.MarkProcessing(targetFormat)
	})
	if err != nil {
		logCtx.Error("Item could not enter processing.", "error", err)
		return outcomeFailed
	}
	c.observer.ItemChanged(ctx, batch.ID, index, item)

	jobID, err := c.client.Submit(ctx, models.SubmitRequest{
		Category:      item.Category,
		SourceLocator: item.SourceLocator,
		SourceFormat:  item.SourceFormat,
		TargetFormat:  targetFormat,
		DisplayName:   item.DisplayName,
	})
	if err != nil {
		if ctx.Err() != nil {
			return outcomeCancelled
		}
		return c.handleError(ctx, logCtx, batch, index, &SubmissionError{Err: err})
	}

	item, err = batch.update(index, func(it *models.ConversionItem) error {
		return it.SetRemoteJobID(jobID)
	})
	if err != nil {
		logCtx.Error("Failed to record remote job.", "jobId", jobID, "error", err)
	}
	c.observer.ItemChanged(ctx, batch.ID, index, item)
	logCtx.Info("Submitted item.", "jobId", jobID)

	locator, err := c.poller.AwaitCompletion(ctx, jobID, func(percent int) {
		if _, err := batch.update(index, func(it *models.ConversionItem) error {
			it.SetProgress(percent)
			return nil
		}); err == nil {
			c.observer.ItemProgress(ctx, batch.ID, index, percent)
		}
	})
	if err != nil {
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return outcomeCancelled
		}
		return c.handleError(ctx, logCtx, batch, index, err)
	}

	item, err = batch.update(index, func(it *models.ConversionItem) error {
		return it.MarkSucceeded(locator)
	})
	if err != nil {
		logCtx.Error("Failed to record success.", "error", err)
		return outcomeFailed
	}
	c.observer.ItemChanged(ctx, batch.ID, index, item)
	logCtx.Info("Item converted.", "resultLocator", locator)
	return outcomeSucceeded
}

// handleError marks the item failed, notifies observers and lets the run go on.
func (c *BatchConverter) handleError(ctx context.Context, logCtx *slog.Logger, batch *Batch, index int, cause error) itemOutcome {
	logCtx.Warn("Item failed.", "error", cause)
	item, err := batch.update(index, func(it *models.ConversionItem) error {
		return it.MarkFailed(cause)
	})
	if err != nil {
		logCtx.Error("CRITICAL: Failed to mark item as failed.", "error", err)
		return outcomeFailed
	}
	c.observer.ItemChanged(ctx, batch.ID, index, item)
	return outcomeFailed
}

func (c *BatchConverter) cancelled(ctx context.Context, logCtx *slog.Logger, batch *Batch, result *models.BatchResult) (*models.BatchResult, error) {
	result.Cancelled = true
	result.Progress = batch.Progress()
	logCtx.Warn("Batch cancelled.", "succeeded", result.Succeeded, "failed", result.Failed, "error", ctx.Err())
	c.observer.BatchFinished(context.WithoutCancel(ctx), batch.ID, *result)
	return result, ctx.Err()
}

func aggregateProgress(done, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}

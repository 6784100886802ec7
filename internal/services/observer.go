package services

import (
	"context"

	"github.com/Lllllllleong/formatconvert/internal/models"
)

// BatchObserver is notified as a run moves through a batch. Calls come from
// the running goroutine in order; implementations must not block for long.
type BatchObserver interface {
	BatchStarted(ctx context.Context, batch *Batch, targetFormat string)
	ItemChanged(ctx context.Context, batchID string, index int, item models.ConversionItem)
	ItemProgress(ctx context.Context, batchID string, index int, percent int)
	BatchProgress(ctx context.Context, batchID string, percent int)
	BatchFinished(ctx context.Context, batchID string, result models.BatchResult)
}

// NopObserver ignores every notification. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) BatchStarted(context.Context, *Batch, string) {}
func (NopObserver) ItemChanged(context.Context, string, int, models.ConversionItem) {}
func (NopObserver) ItemProgress(context.Context, string, int, int) {}
func (NopObserver) BatchProgress(context.Context, string, int) {}
func (NopObserver) BatchFinished(context.Context, string, models.BatchResult) {}

// Observers fans every notification out in order.
type Observers []BatchObserver

func (o Observers) BatchStarted(ctx context.Context, batch *Batch, targetFormat string) {
	for _, obs := range o {
		obs.BatchStarted(ctx, batch, targetFormat)
	}
}

func (o Observers) ItemChanged(ctx context.Context, batchID string, index int, item models.ConversionItem) {
	for _, obs := range o {
		obs.ItemChanged(ctx, batchID, index, item)
	}
}

func (o Observers) ItemProgress(ctx context.Context, batchID string, index int, percent int) {
	for _, obs := range o {
		obs.ItemProgress(ctx, batchID, index, percent)
	}
}

func (o Observers) BatchProgress(ctx context.Context, batchID string, percent int) {
	for _, obs := range o {
		obs.BatchProgress(ctx, batchID, percent)
	}
}

func (o Observers) BatchFinished(ctx context.Context, batchID string, result models.BatchResult) {
	for _, obs := range o {
		obs.BatchFinished(ctx, batchID, result)
	}
}

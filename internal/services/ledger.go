package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/formatconvert/internal/models"
	"google.golang.org/api/iterator"
)

// Batch document statuses.
const (
	LedgerRunning   = "RUNNING"
	LedgerCompleted = "COMPLETED"
	LedgerCancelled = "CANCELLED"
)

// BatchRecord is the Firestore document kept for each batch. Items live in
// the "items" subcollection, one document per index.
type BatchRecord struct {
	Category     models.Category     `firestore:"category" json:"category"`
	TargetFormat string              `firestore:"targetFormat" json:"targetFormat"`
	Status       string              `firestore:"status" json:"status"`
	Progress     int                 `firestore:"progress" json:"progress"`
	ItemCount    int                 `firestore:"itemCount" json:"itemCount"`
	Result       *models.BatchResult `firestore:"result,omitempty" json:"result,omitempty"`
	CreatedAt    time.Time           `firestore:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time           `firestore:"updatedAt" json:"updatedAt"`
}

// FirestoreLedger records batch runs in Firestore. As an observer it never
// fails a run: write errors are logged and dropped.
type FirestoreLedger struct {
	NopObserver
	client     *firestore.Client
	collection string
}

func NewFirestoreLedger(client *firestore.Client, collection string) *FirestoreLedger {
	return &FirestoreLedger{client: client, collection: collection}
}

func (l *FirestoreLedger) batchRef(batchID string) *firestore.DocumentRef {
	return l.client.Collection(l.collection).Doc(batchID)
}

func (l *FirestoreLedger) itemRef(batchID string, index int) *firestore.DocumentRef {
	return l.batchRef(batchID).Collection("items").Doc(itemDocID(index))
}

// itemDocID keeps lexical document order equal to item order.
func itemDocID(index int) string {
	return fmt.Sprintf("%05d", index)
}

func (l *FirestoreLedger) BatchStarted(ctx context.Context, batch *Batch, targetFormat string) {
	logCtx := slog.With("batchId", batch.ID)
	items := batch.Snapshot()
	now := time.Now()
	record := BatchRecord{
		Category:     batch.Category,
		TargetFormat: targetFormat,
		Status:       LedgerRunning,
		ItemCount:    len(items),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := l.batchRef(batch.ID).Set(ctx, record); err != nil {
		logCtx.Error("Failed to write batch record.", "error", err)
		return
	}

	bw := l.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(items))
	for i, item := range items {
		job, err := bw.Set(l.itemRef(batch.ID, i), item)
		if err != nil {
			logCtx.Error("Failed to queue item record.", "index", i, "error", err)
			continue
		}
		jobs = append(jobs, job)
	}
	bw.End()
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			logCtx.Error("Failed to write item record.", "error", err)
		}
	}
}

func (l *FirestoreLedger) ItemChanged(ctx context.Context, batchID string, index int, item models.ConversionItem) {
	if _, err := l.itemRef(batchID, index).Set(ctx, item); err != nil {
		slog.Error("Failed to update item record.", "batchId", batchID, "index", index, "status", item.Status, "error", err)
	}
}

func (l *FirestoreLedger) BatchProgress(ctx context.Context, batchID string, percent int) {
	l.update(ctx, batchID, []firestore.Update{
		{Path: "progress", Value: percent},
	})
}

func (l *FirestoreLedger) BatchFinished(ctx context.Context, batchID string, result models.BatchResult) {
	status := LedgerCompleted
	if result.Cancelled {
		status = LedgerCancelled
	}
	l.update(ctx, batchID, []firestore.Update{
		{Path: "status", Value: status},
		{Path: "progress", Value: result.Progress},
		{Path: "result", Value: result},
	})
}

func (l *FirestoreLedger) update(ctx context.Context, batchID string, updates []firestore.Update) {
	updates = append(updates, firestore.Update{Path: "updatedAt", Value: time.Now()})
	if _, err := l.batchRef(batchID).Update(ctx, updates); err != nil {
		slog.Error("Failed to update batch record.", "batchId", batchID, "error", err)
	}
}

// Record reads the batch document.
func (l *FirestoreLedger) Record(ctx context.Context, batchID string) (*BatchRecord, error) {
	snap, err := l.batchRef(batchID).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch %s: %w", batchID, err)
	}
	var record BatchRecord
	if err := snap.DataTo(&record); err != nil {
		return nil, fmt.Errorf("failed to decode batch %s: %w", batchID, err)
	}
	return &record, nil
}

// Items lists the stored items of a batch in order.
func (l *FirestoreLedger) Items(ctx context.Context, batchID string) ([]models.ConversionItem, error) {
	iter := l.batchRef(batchID).Collection("items").OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var items []models.ConversionItem
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list items of batch %s: %w", batchID, err)
		}
		var item models.ConversionItem
		if err := doc.DataTo(&item); err != nil {
			return nil, fmt.Errorf("failed to decode item %s: %w", doc.Ref.ID, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Stats counts the stored items of a batch by status.
func (l *FirestoreLedger) Stats(ctx context.Context, batchID string) (map[models.ItemStatus]int, error) {
	items, err := l.Items(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return countByStatus(items), nil
}

func countByStatus(items []models.ConversionItem) map[models.ItemStatus]int {
	stats := map[models.ItemStatus]int{
		models.StatusPending:    0,
		models.StatusProcessing: 0,
		models.StatusSucceeded:  0,
		models.StatusFailed:     0,
	}
	for _, item := range items {
		stats[item.Status]++
	}
	return stats
}

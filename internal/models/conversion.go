package models

import (
	"errors"
	"fmt"
	"time"
)

// Category groups formats that share a catalog and a conversion backend route.
type Category string

const (
	CategoryDocument Category = "document"
	CategoryAudio    Category = "audio"
)

// Categories lists every category known to the catalog, in display order.
var Categories = []Category{CategoryDocument, CategoryAudio}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ItemStatus is the lifecycle state of a single ConversionItem.
type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusProcessing ItemStatus = "processing"
	StatusSucceeded  ItemStatus = "succeeded"
	StatusFailed     ItemStatus = "failed"
)

// Terminal reports whether no further transition can happen without a Reset.
func (s ItemStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ErrInvalidTransition is returned when a status change would move an item
// backwards or skip a state.
var ErrInvalidTransition = errors.New("invalid status transition")

// ConversionItem is one file's conversion record. It is stored in Firestore by
// the batch ledger and returned to callers as a snapshot.
type ConversionItem struct {
	SourceLocator string     `firestore:"sourceLocator" json:"sourceLocator"`
	DisplayName   string     `firestore:"displayName" json:"displayName"`
	SizeBytes     int64      `firestore:"sizeBytes" json:"sizeBytes"`
	Category      Category   `firestore:"category" json:"category"`
	SourceFormat  string     `firestore:"sourceFormat" json:"sourceFormat"`
	TargetFormat  string     `firestore:"targetFormat,omitempty" json:"targetFormat,omitempty"`
	Status        ItemStatus `firestore:"status" json:"status"`
	Progress      int        `firestore:"progress" json:"progress"`
	PageCount     int        `firestore:"pageCount,omitempty" json:"pageCount,omitempty"`
	RemoteJobID   string     `firestore:"remoteJobId,omitempty" json:"remoteJobId,omitempty"`
	ResultLocator string     `firestore:"resultLocator,omitempty" json:"resultLocator,omitempty"`
	ErrorInfo     string     `firestore:"errorInfo,omitempty" json:"errorInfo,omitempty"`
	UpdatedAt     time.Time  `firestore:"updatedAt" json:"updatedAt"`
}

// NewConversionItem returns a pending item for a file that already passed
// extension validation.
func NewConversionItem(category Category, sourceFormat string, file PickedFile) ConversionItem {
	return ConversionItem{
		SourceLocator: file.Locator,
		DisplayName:   file.Name,
		SizeBytes:     file.SizeBytes,
		Category:      category,
		SourceFormat:  sourceFormat,
		Status:        StatusPending,
		UpdatedAt:     time.Now(),
	}
}

// MarkProcessing moves a pending item into processing for the given target.
func (it *ConversionItem) MarkProcessing(targetFormat string) error {
	if it.Status != StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, it.Status, StatusProcessing)
	}
	it.Status = StatusProcessing
	it.TargetFormat = targetFormat
	it.Progress = 0
	it.UpdatedAt = time.Now()
	return nil
}

// SetRemoteJobID records the job backing this item. It can only be set once
// per processing attempt.
func (it *ConversionItem) SetRemoteJobID(jobID string) error {
	if it.Status != StatusProcessing || it.RemoteJobID != "" {
		return fmt.Errorf("%w: job id on %s item", ErrInvalidTransition, it.Status)
	}
	it.RemoteJobID = jobID
	it.UpdatedAt = time.Now()
	return nil
}

// SetProgress records a per-item progress estimate. Values only move up and
// only while the item is processing.
func (it *ConversionItem) SetProgress(percent int) bool {
	if it.Status != StatusProcessing || percent <= it.Progress {
		return false
	}
	it.Progress = min(percent, 100)
	return true
}

// MarkSucceeded completes a processing item with the remote artifact locator.
func (it *ConversionItem) MarkSucceeded(resultLocator string) error {
	if it.Status != StatusProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, it.Status, StatusSucceeded)
	}
	it.Status = StatusSucceeded
	it.ResultLocator = resultLocator
	it.ErrorInfo = ""
	it.Progress = 100
	it.UpdatedAt = time.Now()
	return nil
}

// MarkFailed completes a processing item with a human-readable cause.
func (it *ConversionItem) MarkFailed(cause error) error {
	if it.Status != StatusProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, it.Status, StatusFailed)
	}
	it.Status = StatusFailed
	it.ResultLocator = ""
	it.ErrorInfo = "conversion failed"
	if cause != nil && cause.Error() != "" {
		it.ErrorInfo = cause.Error()
	}
	it.UpdatedAt = time.Now()
	return nil
}

// Reset returns a terminal item to pending so a later run picks it up again.
// Processing items cannot be reset; their outcome is still owned by a run.
func (it *ConversionItem) Reset() error {
	if it.Status == StatusProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, it.Status, StatusPending)
	}
	it.Status = StatusPending
	it.TargetFormat = ""
	it.Progress = 0
	it.RemoteJobID = ""
	it.ResultLocator = ""
	it.ErrorInfo = ""
	it.UpdatedAt = time.Now()
	return nil
}

// PickedFile is what the file acquisition layer hands over for one selection.
type PickedFile struct {
	Locator   string `json:"locator"`
	Name      string `json:"name"`
	SizeBytes int64  `json:"sizeBytes"`
}

// BatchResult is the tally reported once a run stops.
type BatchResult struct {
	BatchID   string `firestore:"batchId" json:"batchId"`
	Total     int    `firestore:"total" json:"total"`
	Succeeded int    `firestore:"succeeded" json:"succeeded"`
	Failed    int    `firestore:"failed" json:"failed"`
	Skipped   int    `firestore:"skipped" json:"skipped"`
	Cancelled bool   `firestore:"cancelled" json:"cancelled"`
	Progress  int    `firestore:"progress" json:"progress"`
}

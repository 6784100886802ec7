package services

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Lllllllleong/formatconvert/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrBatchRunning is returned by mutations attempted while a run owns the batch.
	ErrBatchRunning = errors.New("batch is running")
	// ErrItemIndex is returned for an index outside the batch.
	ErrItemIndex = errors.New("item index out of range")
)

// Batch is an ordered set of conversion items sharing one category. Items are
// stored in place and only the running BatchConverter writes them; everyone
// else reads copies through Snapshot.
type Batch struct {
	ID       string
	Category models.Category

	mu       sync.RWMutex
	items    []models.ConversionItem
	progress int
	running  bool
}

func NewBatch(category models.Category) *Batch {
	return &Batch{
		ID:       uuid.New().String(),
		Category: category,
	}
}

// Add appends items in order.
func (b *Batch) Add(items ...models.ConversionItem) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return ErrBatchRunning
	}
	for _, item := range items {
		if item.Category != b.Category {
			return fmt.Errorf("item %q is %s, batch is %s", item.DisplayName, item.Category, b.Category)
		}
	}
	b.items = append(b.items, items...)
	return nil
}

// Remove drops the item at index, shifting later items down.
func (b *Batch) Remove(index int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return ErrBatchRunning
	}
	if index < 0 || index >= len(b.items) {
		return ErrItemIndex
	}
	b.items = append(b.items[:index], b.items[index+1:]...)
	return nil
}

// Reset returns the given items to pending, or every terminal item when no
// index is given, so the next run converts them again.
func (b *Batch) Reset(indices ...int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return ErrBatchRunning
	}
	if len(indices) == 0 {
		for i := range b.items {
			if b.items[i].Status.Terminal() {
				indices = append(indices, i)
			}
		}
	}
	for _, i := range indices {
		if i < 0 || i >= len(b.items) {
			return ErrItemIndex
		}
	}
	for _, i := range indices {
		if err := b.items[i].Reset(); err != nil {
			return fmt.Errorf("reset item %d: %w", i, err)
		}
	}
	return nil
}

func (b *Batch) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// Item returns a copy of the item at index.
func (b *Batch) Item(index int) (models.ConversionItem, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if index < 0 || index >= len(b.items) {
		return models.ConversionItem{}, false
	}
	return b.items[index], true
}

// Snapshot copies every item in order.
func (b *Batch) Snapshot() []models.ConversionItem {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.ConversionItem, len(b.items))
	copy(out, b.items)
	return out
}

// Progress is the aggregate percent of the current or last run.
func (b *Batch) Progress() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.progress
}

func (b *Batch) Running() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// begin claims the batch for a run and returns the indices of pending items.
func (b *Batch) begin() ([]int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil, ErrBatchRunning
	}
	var pending []int
	for i, item := range b.items {
		if item.Status == models.StatusPending {
			pending = append(pending, i)
		}
	}
	b.running = true
	b.progress = 0
	return pending, nil
}

func (b *Batch) end() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
}

// update applies fn to the item at index and returns the resulting copy.
func (b *Batch) update(index int, fn func(*models.ConversionItem) error) (models.ConversionItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index < 0 || index >= len(b.items) {
		return models.ConversionItem{}, ErrItemIndex
	}
	err := fn(&b.items[index])
	return b.items[index], err
}

// setProgress raises the aggregate percent and returns the current value.
func (b *Batch) setProgress(percent int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if percent > b.progress {
		b.progress = min(percent, 100)
	}
	return b.progress
}

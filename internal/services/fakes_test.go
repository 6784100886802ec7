package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Lllllllleong/formatconvert/internal/models"
)

type fakeStatus struct {
	status *models.JobStatus
	err    error
}

func processing() fakeStatus {
	return fakeStatus{status: &models.JobStatus{State: models.JobProcessing}}
}

func succeeded(locator string) fakeStatus {
	return fakeStatus{status: &models.JobStatus{State: models.JobSucceeded, ResultLocator: locator}}
}

func failed(message string) fakeStatus {
	return fakeStatus{status: &models.JobStatus{State: models.JobFailed, Message: message}}
}

// fakeJobClient hands out job-1, job-2, ... and replays scripted statuses per
// job. The last scripted status repeats; an unscripted job succeeds at once.
type fakeJobClient struct {
	mu         sync.Mutex
	submits    []models.SubmitRequest
	submitErrs map[int]error
	statuses   map[string][]fakeStatus
	queries    map[string]int
	onQuery    func(jobID string)
}

func newFakeJobClient() *fakeJobClient {
	return &fakeJobClient{
		submitErrs: map[int]error{},
		statuses:   map[string][]fakeStatus{},
		queries:    map[string]int{},
	}
}

func (f *fakeJobClient) Submit(ctx context.Context, req models.SubmitRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := len(f.submits)
	f.submits = append(f.submits, req)
	if err := f.submitErrs[call]; err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("job-%d", call+1), nil
}

func (f *fakeJobClient) QueryStatus(ctx context.Context, jobID string) (*models.JobStatus, error) {
	f.mu.Lock()
	f.queries[jobID]++
	seq := f.statuses[jobID]
	var next fakeStatus
	switch {
	case len(seq) == 0:
		next = succeeded("https://results.example.com/" + jobID)
	case len(seq) == 1:
		next = seq[0]
	default:
		next = seq[0]
		f.statuses[jobID] = seq[1:]
	}
	hook := f.onQuery
	f.mu.Unlock()

	if hook != nil {
		hook(jobID)
	}
	return next.status, next.err
}

func (f *fakeJobClient) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

func (f *fakeJobClient) queryCount(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[jobID]
}

// fakeClock only moves when the poller sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) Elapsed(start time.Time) time.Duration {
	return c.Now().Sub(start)
}

func newTestPoller(client *fakeJobClient, config PollerConfig) (*JobPoller, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	p := NewJobPoller(client, config)
	p.now = clock.Now
	p.sleep = clock.Sleep
	return p, clock
}

// recordingObserver keeps every notification for assertions.
type recordingObserver struct {
	NopObserver
	mu          sync.Mutex
	transitions map[int][]models.ItemStatus
	batch       []int
	finished    []models.BatchResult
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{transitions: map[int][]models.ItemStatus{}}
}

func (o *recordingObserver) ItemChanged(ctx context.Context, batchID string, index int, item models.ConversionItem) {
	o.mu.Lock()
	defer o.mu.Unlock()
	seq := o.transitions[index]
	if len(seq) == 0 || seq[len(seq)-1] != item.Status {
		o.transitions[index] = append(seq, item.Status)
	}
}

func (o *recordingObserver) BatchProgress(ctx context.Context, batchID string, percent int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.batch = append(o.batch, percent)
}

func (o *recordingObserver) BatchFinished(ctx context.Context, batchID string, result models.BatchResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, result)
}

package services

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/Lllllllleong/formatconvert/internal/models"
	"github.com/Lllllllleong/formatconvert/internal/remote"
)

// PollerConfig bounds how a JobPoller waits on one remote job.
type PollerConfig struct {
	Timeout        time.Duration
	Interval       time.Duration
	Smoothing      func(elapsed time.Duration) int
	MaxQueryErrors int
}

// DefaultPollerConfig matches the behaviour the conversion service clients
// have always used: five minutes, twice a second.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Timeout:        300 * time.Second,
		Interval:       500 * time.Millisecond,
		Smoothing:      DefaultSmoothing,
		MaxQueryErrors: 3,
	}
}

// DefaultSmoothing estimates 3% per elapsed second, held between 5 and 90.
func DefaultSmoothing(elapsed time.Duration) int {
	estimate := int(math.Floor(elapsed.Seconds() * 3))
	return min(90, max(5, estimate))
}

// JobPoller drives a single remote job to a terminal state.
type JobPoller struct {
	client remote.JobClient
	config PollerConfig
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewJobPoller fills zero fields of config with the defaults.
func NewJobPoller(client remote.JobClient, config PollerConfig) *JobPoller {
	defaults := DefaultPollerConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Smoothing == nil {
		config.Smoothing = defaults.Smoothing
	}
	if config.MaxQueryErrors <= 0 {
		config.MaxQueryErrors = defaults.MaxQueryErrors
	}
	return &JobPoller{
		client: client,
		config: config,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// AwaitCompletion polls jobID until it succeeds, fails or the poll timeout
// passes. onProgress, when set, receives non-decreasing estimates and a final
// 100 on success. The returned locator is never empty on a nil error.
func (p *JobPoller) AwaitCompletion(ctx context.Context, jobID string, onProgress func(percent int)) (string, error) {
	logCtx := slog.With("jobId", jobID)
	start := p.now()
	reported := 0
	report := func(percent int) {
		if percent <= reported {
			return
		}
		reported = percent
		if onProgress != nil {
			onProgress(percent)
		}
	}

	queryErrors := 0
	for elapsed := time.Duration(0); elapsed < p.config.Timeout; elapsed = p.now().Sub(start) {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		status, err := p.client.QueryStatus(ctx, jobID)
		report(min(99, p.config.Smoothing(p.now().Sub(start))))

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			queryErrors++
			logCtx.Warn("Status query failed.", "attempt", queryErrors, "maxQueryErrors", p.config.MaxQueryErrors, "error", err)
			if queryErrors >= p.config.MaxQueryErrors {
				return "", &RemoteError{Message: "status unavailable", Err: err}
			}
		case status.State == models.JobFailed:
			message := status.Message
			if message == "" {
				message = "conversion failed"
			}
			logCtx.Info("Remote job failed.", "message", message)
			return "", &RemoteError{Message: message}
		case status.State == models.JobSucceeded && status.ResultLocator != "":
			report(100)
			return status.ResultLocator, nil
		default:
			queryErrors = 0
		}

		if err := p.sleep(ctx, p.config.Interval); err != nil {
			return "", err
		}
	}

	elapsed := p.now().Sub(start)
	logCtx.Warn("Remote job did not finish in time.", "elapsed", elapsed.String())
	return "", &TimeoutError{JobID: jobID, Elapsed: elapsed}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

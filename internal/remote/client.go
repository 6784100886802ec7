// Package remote talks to the services that actually convert files. Every
// backend exposes the same submit/query contract through JobClient.
package remote

import (
	"context"

	"github.com/Lllllllleong/formatconvert/internal/models"
)

// JobClient submits conversion jobs and reports their status.
type JobClient interface {
	Submit(ctx context.Context, req models.SubmitRequest) (string, error)
	QueryStatus(ctx context.Context, jobID string) (*models.JobStatus, error)
}

package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/Lllllllleong/formatconvert/internal/gcp"
	"github.com/Lllllllleong/formatconvert/internal/models"
	"github.com/googleapis/gax-go/v2"
)

// ExecutionsAPI is the subset of the Workflows Executions client used here.
// *executions.Client satisfies it.
type ExecutionsAPI interface {
	CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest, opts ...gax.CallOption) (*executionspb.Execution, error)
	GetExecution(ctx context.Context, req *executionspb.GetExecutionRequest, opts ...gax.CallOption) (*executionspb.Execution, error)
}

// WorkflowsClient runs each conversion as a Cloud Workflows execution. The
// workflow reads the source from GCS and returns {"outputUri": "..."}.
type WorkflowsClient struct {
	api    ExecutionsAPI
	parent string
}

// NewWorkflowsClient creates a JobClient for the workflow at parent
// (projects/<p>/locations/<l>/workflows/<w>).
func NewWorkflowsClient(api ExecutionsAPI, parent string) *WorkflowsClient {
	return &WorkflowsClient{api: api, parent: parent}
}

type workflowArgument struct {
	SourceURI    string          `json:"sourceUri"`
	SourceFormat string          `json:"sourceFormat"`
	TargetFormat string          `json:"targetFormat"`
	Category     models.Category `json:"category"`
	DisplayName  string          `json:"displayName,omitempty"`
}

type workflowResult struct {
	OutputURI string `json:"outputUri"`
}

// Submit starts an execution and returns its resource name as the job id.
func (c *WorkflowsClient) Submit(ctx context.Context, req models.SubmitRequest) (string, error) {
	if !gcp.IsGCSURI(req.SourceLocator) {
		return "", fmt.Errorf("workflow backend needs a gs:// source, got %q", req.SourceLocator)
	}
	payloadBytes, err := json.Marshal(workflowArgument{
		SourceURI:    req.SourceLocator,
		SourceFormat: req.SourceFormat,
		TargetFormat: req.TargetFormat,
		Category:     req.Category,
		DisplayName:  req.DisplayName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow payload: %w", err)
	}

	execution, err := c.api.CreateExecution(ctx, &executionspb.CreateExecutionRequest{
		Parent: c.parent,
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	if execution.GetName() == "" {
		return "", fmt.Errorf("workflow execution was created without a name")
	}
	return execution.GetName(), nil
}

// QueryStatus reads the execution and maps it onto the job contract.
func (c *WorkflowsClient) QueryStatus(ctx context.Context, jobID string) (*models.JobStatus, error) {
	execution, err := c.api.GetExecution(ctx, &executionspb.GetExecutionRequest{Name: jobID})
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow execution: %w", err)
	}
	return mapExecution(execution), nil
}

func mapExecution(execution *executionspb.Execution) *models.JobStatus {
	switch execution.GetState() {
	case executionspb.Execution_QUEUED:
		return &models.JobStatus{State: models.JobPending}
	case executionspb.Execution_SUCCEEDED:
		var result workflowResult
		if err := json.Unmarshal([]byte(execution.GetResult()), &result); err != nil || result.OutputURI == "" {
			return &models.JobStatus{State: models.JobFailed, Message: "workflow finished without an outputUri"}
		}
		return &models.JobStatus{State: models.JobSucceeded, ResultLocator: result.OutputURI}
	case executionspb.Execution_FAILED, executionspb.Execution_CANCELLED, executionspb.Execution_UNAVAILABLE:
		message := strings.ToLower(execution.GetState().String())
		if payload := execution.GetError().GetPayload(); payload != "" {
			message = payload
		}
		return &models.JobStatus{State: models.JobFailed, Message: message}
	default:
		return &models.JobStatus{State: models.JobProcessing}
	}
}

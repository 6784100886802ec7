package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/formatconvert/internal/gcp"
	"github.com/Lllllllleong/formatconvert/internal/models"
)

const maxErrorBody = 512

// HTTPClient is a JobClient for the conversion service's REST API. It also
// serves the service's supported-formats endpoint as a catalog source.
type HTTPClient struct {
	baseURL       *url.URL
	httpClient    *http.Client
	storageClient *storage.Client
}

// NewHTTPClient creates a client for the service at baseURL. storageClient is
// only needed when sources are gs:// locators; httpClient defaults to one
// with a 60s timeout.
func NewHTTPClient(baseURL string, storageClient *storage.Client, httpClient *http.Client) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid converter base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("converter base url must be http(s), got %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPClient{baseURL: u, httpClient: httpClient, storageClient: storageClient}, nil
}

type taskCreatedResponse struct {
	TaskID string `json:"taskId"`
}

type taskStatusResponse struct {
	State   string `json:"state"`
	URL     string `json:"url"`
	Message string `json:"message"`
}

// Submit uploads the source file and starts a conversion task.
func (c *HTTPClient) Submit(ctx context.Context, req models.SubmitRequest) (string, error) {
	src, err := gcp.OpenLocator(ctx, c.storageClient, req.SourceLocator)
	if err != nil {
		return "", err
	}

	filename := req.DisplayName
	if filename == "" {
		filename = filepath.Base(req.SourceLocator)
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		defer src.Close()
		pw.CloseWithError(writeConvertForm(form, filename, req, src))
	}()

	endpoint := c.endpoint("api", string(req.Category), "convert")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("failed to build convert request: %w", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())

	var created taskCreatedResponse
	if err := c.do(httpReq, &created); err != nil {
		return "", err
	}
	if created.TaskID == "" {
		return "", fmt.Errorf("conversion service returned no task id")
	}
	return created.TaskID, nil
}

func writeConvertForm(form *multipart.Writer, filename string, req models.SubmitRequest, src io.Reader) error {
	if err := form.WriteField("target_format", req.TargetFormat); err != nil {
		return err
	}
	if req.SourceFormat != "" {
		if err := form.WriteField("source_format", req.SourceFormat); err != nil {
			return err
		}
	}
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("failed to stream source file: %w", err)
	}
	return form.Close()
}

// QueryStatus reads the state of a task.
func (c *HTTPClient) QueryStatus(ctx context.Context, jobID string) (*models.JobStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("api", "task", jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}
	var body taskStatusResponse
	if err := c.do(httpReq, &body); err != nil {
		return nil, err
	}
	status := &models.JobStatus{
		State:   mapTaskState(body.State),
		Message: body.Message,
	}
	if body.URL != "" {
		status.ResultLocator = c.NormalizeURL(body.URL)
	}
	return status, nil
}

// SupportedFormats implements catalog.Source.
func (c *HTTPClient) SupportedFormats(ctx context.Context, category models.Category) (*models.SupportedFormats, error) {
	endpoint := c.endpoint("api", "formats") + "?" + url.Values{"category": {string(category)}}.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build formats request: %w", err)
	}
	var payload models.SupportedFormats
	if err := c.do(httpReq, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Health checks that the service answers.
func (c *HTTPClient) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("health"), nil)
	if err != nil {
		return err
	}
	return c.do(httpReq, nil)
}

// NormalizeURL turns a relative result path returned by the service into an
// absolute URL under the service base URL.
func (c *HTTPClient) NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() {
		return raw
	}
	abs := *c.baseURL
	abs.Path = path.Join("/", c.baseURL.Path, u.Path)
	abs.RawPath = ""
	abs.RawQuery = u.RawQuery
	return abs.String()
}

func (c *HTTPClient) endpoint(parts ...string) string {
	u := *c.baseURL
	u.Path = path.Join(append([]string{"/", u.Path}, parts...)...)
	u.RawPath = ""
	u.RawQuery = ""
	return u.String()
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s %s: conversion service returned %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

func mapTaskState(state string) models.JobState {
	switch strings.ToLower(state) {
	case "finished", "success", "succeeded", "done":
		return models.JobSucceeded
	case "error", "failed", "failure":
		return models.JobFailed
	case "processing", "running", "converting":
		return models.JobProcessing
	default:
		return models.JobPending
	}
}

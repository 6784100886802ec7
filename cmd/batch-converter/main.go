package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/formatconvert/internal/models"
	"github.com/Lllllllleong/formatconvert/internal/services"
)

// batchService is the part of services.BatchService the handler needs.
type batchService interface {
	Process(ctx context.Context, req *models.BatchConvertRequest) (*models.BatchConvertResponse, error)
	Items(ctx context.Context, batchID string) ([]models.ConversionItem, map[models.ItemStatus]int, error)
}

type itemsResponse struct {
	BatchID string                    `json:"batchId"`
	Items   []models.ConversionItem   `json:"items"`
	Stats   map[models.ItemStatus]int `json:"stats"`
}

var (
	batchInstance batchService
	once          sync.Once
	initErr       error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleConvertBatch", handleConvertBatch)
}

func main() {}

// handleConvertBatch runs a batch on POST and reads a stored batch on GET.
func handleConvertBatch(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		var s *services.BatchService
		s, initErr = services.NewBatchService(context.Background())
		if initErr == nil {
			batchInstance = s
		}
	})
	if initErr != nil {
		slog.Error("Critical: Batch converter initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	serveBatch(w, r, batchInstance)
}

func serveBatch(w http.ResponseWriter, r *http.Request, svc batchService) {
	switch r.Method {
	case http.MethodPost:
		convertBatch(w, r, svc)
	case http.MethodGet:
		getBatch(w, r, svc)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func convertBatch(w http.ResponseWriter, r *http.Request, svc batchService) {
	var req models.BatchConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := svc.Process(r.Context(), &req)
	if err != nil {
		var cfgErr *services.ConfigurationError
		switch {
		case errors.As(err, &cfgErr):
			http.Error(w, "Bad Request: "+cfgErr.Reason, http.StatusBadRequest)
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			// Partial results are still worth returning.
			if res != nil {
				writeJSON(w, http.StatusServiceUnavailable, res)
				return
			}
			http.Error(w, "Service Unavailable: request cancelled", http.StatusServiceUnavailable)
		default:
			http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func getBatch(w http.ResponseWriter, r *http.Request, svc batchService) {
	batchID := r.URL.Query().Get("batchId")
	if batchID == "" {
		http.Error(w, "Bad Request: batchId is required", http.StatusBadRequest)
		return
	}
	items, stats, err := svc.Items(r.Context(), batchID)
	if err != nil {
		slog.Error("Failed to read batch", "batchId", batchID, "error", err)
		http.Error(w, "Internal Server Error: could not read batch", http.StatusInternalServerError)
		return
	}
	if len(items) == 0 {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse{BatchID: batchID, Items: items, Stats: stats})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

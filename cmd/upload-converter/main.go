package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/formatconvert/internal/models"
	"github.com/Lllllllleong/formatconvert/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	uploadConverterInstance *services.UploadConverterFunction
	once                    sync.Once
	initErr                 error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("ConvertOnUpload", convertOnUpload)
}

// main is required by the Go Functions Framework.
func main() {}

// convertOnUpload receives storage object finalize events.
func convertOnUpload(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		uploadConverterInstance, initErr = services.NewUploadConverter(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	gcsEvent, err := decodeGCSEvent(e)
	if err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "eventId", e.ID(), "data", string(e.Data()))
		return err
	}
	return uploadConverterInstance.Process(ctx, gcsEvent)
}

func decodeGCSEvent(e cloudevents.Event) (models.GCSEvent, error) {
	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		return gcsEvent, fmt.Errorf("json.Unmarshal: %w", err)
	}
	if gcsEvent.Bucket == "" || gcsEvent.Name == "" {
		return gcsEvent, fmt.Errorf("event %s has no bucket or object name", e.ID())
	}
	return gcsEvent, nil
}

package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/Lllllllleong/formatconvert/internal/catalog"
	"github.com/Lllllllleong/formatconvert/internal/models"
)

func TestLoadBatchServiceConfig(t *testing.T) {
	t.Run("http defaults", func(t *testing.T) {
		t.Setenv("CONVERTER_BACKEND", "")
		t.Setenv("CONVERTER_BASE_URL", "https://convert.example.com")
		t.Setenv("POLL_TIMEOUT", "")
		t.Setenv("POLL_INTERVAL", "2s")
		os.Unsetenv("CONVERTER_BACKEND")

		config, err := LoadBatchServiceConfig()
		if err != nil {
			t.Fatalf("LoadBatchServiceConfig: %v", err)
		}
		if config.Backend != BackendHTTP || config.CollectionName != "conversionBatches" {
			t.Fatalf("config = %+v", config)
		}
		if config.PollTimeout != 300*time.Second || config.PollInterval != 2*time.Second {
			t.Fatalf("poll = %s/%s", config.PollTimeout, config.PollInterval)
		}
	})

	t.Run("http without base url", func(t *testing.T) {
		t.Setenv("CONVERTER_BACKEND", "http")
		t.Setenv("CONVERTER_BASE_URL", "")
		if _, err := LoadBatchServiceConfig(); err == nil {
			t.Fatal("expected missing base url error")
		}
	})

	t.Run("workflows needs project", func(t *testing.T) {
		t.Setenv("CONVERTER_BACKEND", "Workflows")
		t.Setenv("PROJECT_ID", "")
		if _, err := LoadBatchServiceConfig(); err == nil {
			t.Fatal("expected missing project error")
		}
		t.Setenv("PROJECT_ID", "p")
		config, err := LoadBatchServiceConfig()
		if err != nil || config.Backend != BackendWorkflows || config.WorkflowLocation != "us-central1" {
			t.Fatalf("config = %+v, err = %v", config, err)
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("CONVERTER_BACKEND", "sqs")
		if _, err := LoadBatchServiceConfig(); err == nil {
			t.Fatal("expected unknown backend error")
		}
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("CONVERTER_BACKEND", "http")
		t.Setenv("CONVERTER_BASE_URL", "https://convert.example.com")
		t.Setenv("POLL_TIMEOUT", "soon")
		if _, err := LoadBatchServiceConfig(); err == nil {
			t.Fatal("expected duration parse error")
		}
	})
}

func TestBatchServiceProcess(t *testing.T) {
	results := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("RIFF" + r.URL.Path))
	}))
	defer results.Close()

	client := newFakeJobClient()
	client.statuses["job-1"] = []fakeStatus{succeeded(results.URL + "/a.wav")}
	client.statuses["job-2"] = []fakeStatus{failed("unsupported bitrate")}
	dir := t.TempDir()
	s := NewBatchServiceFrom(BatchServiceConfig{}, catalog.New(nil), client, nil, NewLocalResultStore(dir, results.Client(), nil))

	resp, err := s.Process(context.Background(), &models.BatchConvertRequest{
		Category:     models.CategoryAudio,
		SourceFormat: "mp3",
		TargetFormat: "wav",
		Files: []models.PickedFile{
			{Locator: "/music/a.mp3"},
			{Locator: "/music/b.mp3"},
			{Locator: "/music/cover.jpg"},
		},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if resp.Status != "completed" || resp.Result.Succeeded != 1 || resp.Result.Failed != 1 || resp.Result.Skipped != 1 {
		t.Fatalf("response = %+v", resp)
	}
	if len(resp.Items) != 2 || len(resp.Skipped) != 1 || resp.Skipped[0].File.Name != "cover.jpg" {
		t.Fatalf("items = %+v skipped = %+v", resp.Items, resp.Skipped)
	}
	stored, ok := resp.Stored[0]
	if !ok || len(resp.Stored) != 1 {
		t.Fatalf("stored = %v", resp.Stored)
	}
	if got, _ := os.ReadFile(stored); string(got) != "RIFF/a.wav" {
		t.Fatalf("stored content = %q", got)
	}

	if _, _, err := s.Items(context.Background(), resp.Result.BatchID); !errors.Is(err, ErrNoLedger) {
		t.Fatalf("Items without ledger = %v", err)
	}
}

func TestBatchServiceProcessRejects(t *testing.T) {
	client := newFakeJobClient()
	s := NewBatchServiceFrom(BatchServiceConfig{}, catalog.New(nil), client, nil, nil)
	var cfgErr *ConfigurationError

	_, err := s.Process(context.Background(), &models.BatchConvertRequest{
		Category: models.CategoryAudio, SourceFormat: "mp3", TargetFormat: "wav",
		Files: []models.PickedFile{{Locator: "/docs/a.pdf"}},
	})
	if !errors.As(err, &cfgErr) {
		t.Fatalf("no acceptable files err = %v", err)
	}

	_, err = s.Process(context.Background(), &models.BatchConvertRequest{
		Category: models.CategoryAudio, SourceFormat: "flac", TargetFormat: "ogg",
		Files: []models.PickedFile{{Locator: "/music/a.flac"}},
	})
	if !errors.As(err, &cfgErr) {
		t.Fatalf("flac -> ogg err = %v", err)
	}
	if client.submitCount() != 0 {
		t.Fatalf("submitted %d jobs for rejected requests", client.submitCount())
	}
}

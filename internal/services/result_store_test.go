package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Lllllllleong/formatconvert/internal/models"
)

func TestResultObjectName(t *testing.T) {
	item := models.ConversionItem{DisplayName: "Quarterly Report.PDF", TargetFormat: "docx"}
	if got := resultObjectName("b1", 7, item); got != "b1/007-Quarterly Report.docx" {
		t.Fatalf("resultObjectName = %q", got)
	}
	item.DisplayName = ""
	if got := resultObjectName("b1", 0, item); got != "b1/000-result.docx" {
		t.Fatalf("resultObjectName without name = %q", got)
	}
}

func TestPersistAllToLocalDirectory(t *testing.T) {
	var flaky atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/out/a.docx":
			w.Write([]byte("converted a"))
		case "/out/flaky.docx":
			if flaky.Add(1) == 1 {
				http.Error(w, "try again", http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte("converted flaky"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	p := NewPersister(NewLocalResultStore(dir, srv.Client(), nil))
	p.Backoff = time.Millisecond
	p.MaxRetries = 2

	items := []models.ConversionItem{
		{DisplayName: "a.pdf", TargetFormat: "docx", Status: models.StatusSucceeded, ResultLocator: srv.URL + "/out/a.docx"},
		{DisplayName: "b.pdf", TargetFormat: "docx", Status: models.StatusFailed, ErrorInfo: "boom"},
		{DisplayName: "flaky.pdf", TargetFormat: "docx", Status: models.StatusSucceeded, ResultLocator: srv.URL + "/out/flaky.docx"},
		{DisplayName: "gone.pdf", TargetFormat: "docx", Status: models.StatusSucceeded, ResultLocator: srv.URL + "/out/gone.docx"},
	}

	stored, err := p.PersistAll(context.Background(), "batch-1", items)
	if err == nil || !strings.Contains(err.Error(), "item 3") {
		t.Fatalf("err = %v, want failure for item 3", err)
	}
	if len(stored) != 2 {
		t.Fatalf("stored = %v, want items 0 and 2", stored)
	}
	if _, ok := stored[1]; ok {
		t.Fatal("failed item must not be persisted")
	}

	got, err := os.ReadFile(stored[0])
	if err != nil || string(got) != "converted a" {
		t.Fatalf("item 0 file = %q, %v", got, err)
	}
	if stored[2] != filepath.Join(dir, "batch-1", "002-flaky.docx") {
		t.Fatalf("item 2 path = %q", stored[2])
	}
	if got, _ := os.ReadFile(stored[2]); string(got) != "converted flaky" {
		t.Fatalf("item 2 file = %q", got)
	}
	if flaky.Load() != 2 {
		t.Fatalf("flaky endpoint hit %d times, want 2", flaky.Load())
	}
}

func TestLocalResultStoreCopiesLocalFiles(t *testing.T) {
	src := filepath.Join(t.TempDir(), "out.mp3")
	if err := os.WriteFile(src, []byte("ID3"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewLocalResultStore(t.TempDir(), nil, nil)
	dest, err := store.Store(context.Background(), "b", 1, models.ConversionItem{
		DisplayName: "song.flac", TargetFormat: "mp3", ResultLocator: src,
	})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(dest) != "001-song.mp3" {
		t.Fatalf("dest = %q", dest)
	}

	if _, err := store.Store(context.Background(), "b", 2, models.ConversionItem{
		DisplayName: "x.flac", TargetFormat: "mp3", ResultLocator: "gs://bucket/x.mp3",
	}); err == nil {
		t.Fatal("gs:// result without a storage client should fail")
	}
}

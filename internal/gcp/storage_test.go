package gcp

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseGCSURI(t *testing.T) {
	cases := []struct {
		uri     string
		bucket  string
		object  string
		wantErr bool
	}{
		{"gs://in/docs/report.pdf", "in", "docs/report.pdf", false},
		{"gs://in/", "", "", true},
		{"gs://", "", "", true},
		{"/tmp/report.pdf", "", "", true},
	}
	for _, tc := range cases {
		bucket, object, err := ParseGCSURI(tc.uri)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseGCSURI(%q) err = %v, wantErr %v", tc.uri, err, tc.wantErr)
		}
		if bucket != tc.bucket || object != tc.object {
			t.Fatalf("ParseGCSURI(%q) = (%q,%q), want (%q,%q)", tc.uri, bucket, object, tc.bucket, tc.object)
		}
	}
}

func TestGetDurationEnv(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("POLL_TIMEOUT", "")
		got, err := GetDurationEnv("POLL_TIMEOUT", 5*time.Minute)
		if err != nil || got != 5*time.Minute {
			t.Fatalf("GetDurationEnv default = (%v,%v)", got, err)
		}
	})
	t.Run("override", func(t *testing.T) {
		t.Setenv("POLL_TIMEOUT", "90s")
		got, err := GetDurationEnv("POLL_TIMEOUT", 5*time.Minute)
		if err != nil || got != 90*time.Second {
			t.Fatalf("GetDurationEnv override = (%v,%v)", got, err)
		}
	})
	t.Run("invalid", func(t *testing.T) {
		t.Setenv("POLL_TIMEOUT", "soon")
		if _, err := GetDurationEnv("POLL_TIMEOUT", time.Second); err == nil {
			t.Fatal("expected error for unparsable duration")
		}
	})
	t.Run("negative", func(t *testing.T) {
		t.Setenv("POLL_TIMEOUT", "-1s")
		if _, err := GetDurationEnv("POLL_TIMEOUT", time.Second); err == nil {
			t.Fatal("expected error for negative duration")
		}
	})
}

func TestOpenLocatorLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	rc, err := OpenLocator(context.Background(), nil, path)
	if err != nil {
		t.Fatalf("OpenLocator: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "hello" {
		t.Fatalf("body = %q", body)
	}
}

func TestOpenLocatorGCSWithoutClient(t *testing.T) {
	if _, err := OpenLocator(context.Background(), nil, "gs://b/o.pdf"); err == nil {
		t.Fatal("expected error without a storage client")
	}
}

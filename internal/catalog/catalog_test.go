package catalog

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Lllllllleong/formatconvert/internal/models"
)

type stubSource struct {
	payload *models.SupportedFormats
	err     error
	calls   atomic.Int32
}

func (s *stubSource) SupportedFormats(ctx context.Context, category models.Category) (*models.SupportedFormats, error) {
	s.calls.Add(1)
	return s.payload, s.err
}

func TestResolveAllowedTargets(t *testing.T) {
	c := New(nil)

	got := c.ResolveAllowedTargets(models.CategoryDocument, "pdf")
	want := []string{"doc", "docx", "ppt", "pptx", "xls", "xlsx", "txt", "rtf"}
	if !slices.Equal(got, want) {
		t.Fatalf("ResolveAllowedTargets(pdf) = %v, want %v", got, want)
	}

	if got := c.ResolveAllowedTargets(models.CategoryDocument, "exe"); got == nil || len(got) != 0 {
		t.Fatalf("unknown source should give empty non-nil slice, got %#v", got)
	}
	if got := c.ResolveAllowedTargets("video", "mp4"); len(got) != 0 {
		t.Fatalf("unknown category should give empty slice, got %v", got)
	}

	// Callers must not be able to corrupt the shared catalog.
	got[0] = "mutated"
	if c.ResolveAllowedTargets(models.CategoryDocument, "pdf")[0] != "doc" {
		t.Fatal("ResolveAllowedTargets leaked internal slice")
	}
}

func TestIsAllowed(t *testing.T) {
	c := New(nil)
	if c.IsAllowed(models.CategoryDocument, "pdf", "xlsx") != true {
		t.Fatal("pdf -> xlsx is in the default map")
	}
	if c.IsAllowed(models.CategoryDocument, "rtf", "pdf") {
		t.Fatal("rtf -> pdf is not in the default map")
	}
	if !c.IsAllowed(models.CategoryAudio, "FLAC", "MP3") {
		t.Fatal("lookups should ignore case")
	}
}

func TestValidateExtension(t *testing.T) {
	c := New(nil)
	cases := []struct {
		category models.Category
		format   string
		filename string
		want     bool
	}{
		{models.CategoryDocument, "pdf", "report.PDF", true},
		{models.CategoryDocument, "pdf", "report.pdf", true},
		{models.CategoryDocument, "html", "index.HTM", true},
		{models.CategoryDocument, "pdf", "report.pdf.docx", false},
		{models.CategoryDocument, "pdf", "report", false},
		{models.CategoryDocument, "pdf", "report.", false},
		{models.CategoryDocument, "pdf", "gs://bucket/dir.pdf/report", false},
		{models.CategoryAudio, "mp3", "/music/Track.Mp3", true},
		{models.CategoryAudio, "pdf", "report.pdf", false},
	}
	for _, tc := range cases {
		if got := c.ValidateExtension(tc.category, tc.format, tc.filename); got != tc.want {
			t.Errorf("ValidateExtension(%s, %s, %q) = %v, want %v", tc.category, tc.format, tc.filename, got, tc.want)
		}
	}
}

func TestFormatForFilename(t *testing.T) {
	c := New(nil)
	if got, ok := c.FormatForFilename(models.CategoryDocument, "uploads/site.htm"); !ok || got != "html" {
		t.Fatalf("FormatForFilename(.htm) = (%q,%v)", got, ok)
	}
	if _, ok := c.FormatForFilename(models.CategoryDocument, "song.mp3"); ok {
		t.Fatal("mp3 is not a document source format")
	}
}

func TestDisplayNames(t *testing.T) {
	c := New(nil)
	if got := c.DisplayName(models.CategoryDocument, "docx"); got != "Word(.docx)" {
		t.Fatalf("DisplayName(docx) = %q", got)
	}
	if got := c.DisplayName(models.CategoryAudio, "opus"); got != "OPUS" {
		t.Fatalf("DisplayName fallback = %q, want OPUS", got)
	}
	got := c.TargetDisplayNames(models.CategoryDocument, "ppt")
	want := []string{"PPT(.pptx)", "ODP", "PDF"}
	if !slices.Equal(got, want) {
		t.Fatalf("TargetDisplayNames(ppt) = %v, want %v", got, want)
	}
}

func TestRefreshReplacesWholeCategory(t *testing.T) {
	src := &stubSource{payload: &models.SupportedFormats{
		SourceFormats:      []string{"PDF", "md"},
		ConversionMap:      map[string][]string{"pdf": {"EPUB"}, "md": {"pdf"}},
		ExtensionWhitelist: map[string][]string{"pdf": {"pdf"}, "md": {".md", ".MARKDOWN"}},
		DisplayNames:       map[string]string{"md": "Markdown"},
	}}
	c := New(src)

	updated, warn := c.Refresh(context.Background(), models.CategoryDocument)
	if !updated || warn != nil {
		t.Fatalf("Refresh = (%v,%v), want (true,nil)", updated, warn)
	}
	if got := c.ResolveAllowedTargets(models.CategoryDocument, "pdf"); !slices.Equal(got, []string{"epub"}) {
		t.Fatalf("targets after refresh = %v", got)
	}
	// Old entries are gone: no partial merge.
	if got := c.ResolveAllowedTargets(models.CategoryDocument, "docx"); len(got) != 0 {
		t.Fatalf("docx should be gone after wholesale replace, got %v", got)
	}
	if !c.ValidateExtension(models.CategoryDocument, "md", "notes.markdown") {
		t.Fatal("normalised extension should validate")
	}
	if !c.ValidateExtension(models.CategoryDocument, "pdf", "x.pdf") {
		t.Fatal("extension without dot should be normalised")
	}
	// Other categories are untouched.
	if len(c.ResolveAllowedTargets(models.CategoryAudio, "mp3")) == 0 {
		t.Fatal("audio catalog should keep its defaults")
	}
}

func TestRefreshFailureKeepsCurrent(t *testing.T) {
	cases := []struct {
		name string
		src  *stubSource
	}{
		{"network", &stubSource{err: errors.New("connection refused")}},
		{"nil payload", &stubSource{}},
		{"no sources", &stubSource{payload: &models.SupportedFormats{ConversionMap: map[string][]string{"pdf": {"doc"}}}}},
		{"unknown key", &stubSource{payload: &models.SupportedFormats{
			SourceFormats:      []string{"pdf"},
			ConversionMap:      map[string][]string{"doc": {"pdf"}},
			ExtensionWhitelist: map[string][]string{"pdf": {".pdf"}},
		}}},
		{"no extensions", &stubSource{payload: &models.SupportedFormats{
			SourceFormats: []string{"pdf"},
			ConversionMap: map[string][]string{"pdf": {"doc"}},
		}}},
		{"empty targets", &stubSource{payload: &models.SupportedFormats{
			SourceFormats:      []string{"pdf"},
			ConversionMap:      map[string][]string{"pdf": {}},
			ExtensionWhitelist: map[string][]string{"pdf": {".pdf"}},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := New(tc.src)
			before := c.Formats(models.CategoryDocument)

			updated, warn := c.Refresh(context.Background(), models.CategoryDocument)
			if updated {
				t.Fatal("Refresh should report no update")
			}
			if warn == nil {
				t.Fatal("Refresh should surface a warning")
			}
			if c.Formats(models.CategoryDocument) != before {
				t.Fatal("catalog must not change on failed refresh")
			}
			if !slices.Contains(c.ResolveAllowedTargets(models.CategoryDocument, "pdf"), "docx") {
				t.Fatal("defaults should still resolve")
			}
		})
	}
}

func TestRefreshWithoutSource(t *testing.T) {
	c := New(nil)
	updated, warn := c.Refresh(context.Background(), models.CategoryAudio)
	if updated || warn != nil {
		t.Fatalf("Refresh without source = (%v,%v)", updated, warn)
	}
}

func TestRefreshAllJoinsWarnings(t *testing.T) {
	src := &stubSource{err: errors.New("unreachable")}
	c := New(src)
	err := c.RefreshAll(context.Background())
	if err == nil {
		t.Fatal("expected joined warnings")
	}
	if int(src.calls.Load()) != len(models.Categories) {
		t.Fatalf("source called %d times, want %d", src.calls.Load(), len(models.Categories))
	}
	if !strings.Contains(err.Error(), "document") || !strings.Contains(err.Error(), "audio") {
		t.Fatalf("warning should name both categories: %v", err)
	}
}

func TestDecodeSupportedFormats(t *testing.T) {
	if _, err := decodeSupportedFormats(strings.NewReader("{not json")); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
	p, err := decodeSupportedFormats(strings.NewReader(`{"sourceFormats":["mp3"],"conversionMap":{"mp3":["wav"]},"extensionWhitelist":{"mp3":[".mp3"]}}`))
	if err != nil || len(p.SourceFormats) != 1 {
		t.Fatalf("decode = (%+v,%v)", p, err)
	}
}

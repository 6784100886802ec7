// Command convert-local converts local or gs:// files through the configured
// conversion backend and downloads the results into a directory.
//
//	convert-local -category document -from pdf -to docx -out converted report.pdf notes.pdf
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/formatconvert/internal/catalog"
	"github.com/Lllllllleong/formatconvert/internal/gcp"
	"github.com/Lllllllleong/formatconvert/internal/models"
	"github.com/Lllllllleong/formatconvert/internal/services"
	_ "github.com/joho/godotenv/autoload"
)

type options struct {
	category string
	from     string
	to       string
	out      string
	list     bool
	files    []string
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	var opts options
	flag.StringVar(&opts.category, "category", string(models.CategoryDocument), "document or audio")
	flag.StringVar(&opts.from, "from", "", "source format, e.g. pdf")
	flag.StringVar(&opts.to, "to", "", "target format, e.g. docx")
	flag.StringVar(&opts.out, "out", "converted", "directory for downloaded results")
	flag.BoolVar(&opts.list, "list", false, "print the targets allowed for -from and exit")
	flag.Parse()
	opts.files = flag.Args()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "convert-local:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	category := models.Category(strings.ToLower(opts.category))
	if opts.from == "" {
		return errors.New("-from is required")
	}

	config, err := services.LoadBatchServiceConfig()
	if err != nil {
		return err
	}

	var storageClient *storage.Client
	if needsStorage(config, opts.files) {
		storageClient, err = storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("failed to create Storage client: %w", err)
		}
		defer storageClient.Close()
	}

	client, source, err := services.NewJobClient(ctx, config, storageClient)
	if err != nil {
		return err
	}
	if config.CatalogBucket != "" {
		source = catalog.NewGCSSource(storageClient, config.CatalogBucket, config.CatalogPrefix)
	}
	cat := catalog.New(source)
	if _, err := cat.Refresh(ctx, category); err != nil {
		fmt.Fprintln(stderr, "warning: using built-in formats:", err)
	}

	if opts.list {
		for _, name := range cat.TargetDisplayNames(category, opts.from) {
			fmt.Fprintln(stdout, name)
		}
		return nil
	}
	if opts.to == "" {
		return errors.New("-to is required")
	}
	if len(opts.files) == 0 {
		return errors.New("no input files")
	}

	store := services.NewLocalResultStore(opts.out, nil, storageClient)
	svc := services.NewBatchServiceFrom(*config, cat, client, nil, store, &progressPrinter{w: stderr})

	resp, err := svc.Process(ctx, &models.BatchConvertRequest{
		Category:     category,
		SourceFormat: opts.from,
		TargetFormat: opts.to,
		Files:        pickFiles(opts.files),
	})
	if resp != nil {
		printSummary(stdout, resp)
	}
	if err != nil {
		return err
	}
	if resp.Result.Failed > 0 {
		return fmt.Errorf("%d of %d conversions failed", resp.Result.Failed, resp.Result.Total)
	}
	return nil
}

func needsStorage(config *services.BatchServiceConfig, files []string) bool {
	if config.CatalogBucket != "" || config.Backend == services.BackendWorkflows {
		return true
	}
	for _, f := range files {
		if gcp.IsGCSURI(f) {
			return true
		}
	}
	return false
}

func pickFiles(paths []string) []models.PickedFile {
	files := make([]models.PickedFile, 0, len(paths))
	for _, p := range paths {
		file := models.PickedFile{Locator: p}
		if !gcp.IsGCSURI(p) {
			file.Name = filepath.Base(p)
			if info, err := os.Stat(p); err == nil {
				file.SizeBytes = info.Size()
			}
		}
		files = append(files, file)
	}
	return files
}

func printSummary(w io.Writer, resp *models.BatchConvertResponse) {
	for _, skipped := range resp.Skipped {
		fmt.Fprintf(w, "skipped    %s: %s\n", skipped.File.Name, skipped.Reason)
	}
	for i, item := range resp.Items {
		switch item.Status {
		case models.StatusSucceeded:
			dest := resp.Stored[i]
			if dest == "" {
				dest = item.ResultLocator
			}
			fmt.Fprintf(w, "converted  %s -> %s\n", item.DisplayName, dest)
		case models.StatusFailed:
			fmt.Fprintf(w, "failed     %s: %s\n", item.DisplayName, item.ErrorInfo)
		default:
			fmt.Fprintf(w, "%-10s %s\n", item.Status, item.DisplayName)
		}
	}
	fmt.Fprintf(w, "%d succeeded, %d failed, %d skipped (%s)\n", resp.Result.Succeeded, resp.Result.Failed, resp.Result.Skipped, resp.Status)
}

// progressPrinter writes one line per item transition and batch step.
type progressPrinter struct {
	services.NopObserver
	w io.Writer
}

func (p *progressPrinter) ItemChanged(ctx context.Context, batchID string, index int, item models.ConversionItem) {
	if item.Status == models.StatusProcessing && item.RemoteJobID != "" {
		return
	}
	fmt.Fprintf(p.w, "[%d] %s %s\n", index+1, item.DisplayName, item.Status)
}

func (p *progressPrinter) BatchProgress(ctx context.Context, batchID string, percent int) {
	fmt.Fprintf(p.w, "batch %d%%\n", percent)
}

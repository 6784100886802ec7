package services

import (
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/Lllllllleong/formatconvert/internal/catalog"
	"github.com/Lllllllleong/formatconvert/internal/gcp"
	"github.com/Lllllllleong/formatconvert/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// IntakeReport is the outcome of turning picked files into batch items.
type IntakeReport struct {
	Items   []models.ConversionItem
	Skipped []models.SkippedFile
}

// Intake validates picked files against the catalog before they join a batch.
type Intake struct {
	catalog *catalog.Catalog
	// PreflightPDF opens local PDFs with pdfcpu to reject unreadable files
	// early and record their page count.
	PreflightPDF bool
}

func NewIntake(cat *catalog.Catalog) *Intake {
	return &Intake{catalog: cat, PreflightPDF: true}
}

// Accept builds pending items for every file whose extension matches
// sourceFormat. Mismatched or unreadable files are skipped with a reason. An
// unknown category or source format rejects the whole selection.
func (in *Intake) Accept(category models.Category, sourceFormat string, files []models.PickedFile) (*IntakeReport, error) {
	sourceFormat = strings.ToLower(strings.TrimSpace(sourceFormat))
	if !category.Valid() {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown category %q", category)}
	}
	if len(in.catalog.ResolveAllowedTargets(category, sourceFormat)) == 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("%s is not a %s source format", sourceFormat, category)}
	}

	report := &IntakeReport{}
	for _, file := range files {
		if file.Name == "" {
			file.Name = path.Base(file.Locator)
		}
		if !in.catalog.ValidateExtension(category, sourceFormat, file.Name) {
			report.Skipped = append(report.Skipped, models.SkippedFile{
				File:   file,
				Reason: fmt.Sprintf("not a %s file", in.catalog.DisplayName(category, sourceFormat)),
			})
			continue
		}

		item := models.NewConversionItem(category, sourceFormat, file)
		if in.PreflightPDF && sourceFormat == "pdf" && !gcp.IsGCSURI(file.Locator) {
			pageCount, err := inspectPDF(file.Locator)
			if err != nil {
				report.Skipped = append(report.Skipped, models.SkippedFile{
					File:   file,
					Reason: fmt.Sprintf("unreadable PDF: %v", err),
				})
				continue
			}
			item.PageCount = pageCount
		}
		report.Items = append(report.Items, item)
	}

	if len(report.Skipped) > 0 {
		slog.Info("Skipped picked files.", "category", category, "sourceFormat", sourceFormat, "skipped", len(report.Skipped), "accepted", len(report.Items))
	}
	return report, nil
}

func inspectPDF(localPath string) (int, error) {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(localPath, cfg); err != nil {
		return 0, err
	}
	return api.PageCountFile(localPath)
}

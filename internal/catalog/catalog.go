// Package catalog holds the per-category format vocabulary: which source
// formats exist, which targets each may convert to, which file extensions are
// accepted and how formats are labelled.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/Lllllllleong/formatconvert/internal/models"
	"golang.org/x/sync/errgroup"
)

// Source fetches a fresh catalog for one category.
type Source interface {
	SupportedFormats(ctx context.Context, category models.Category) (*models.SupportedFormats, error)
}

// Formats is an immutable, normalised catalog for one category. Values
// published by a Catalog are never mutated; refreshes swap in a new one.
type Formats struct {
	SourceFormats      []string
	ConversionMap      map[string][]string
	ExtensionWhitelist map[string][]string
	DisplayNames       map[string]string
}

// ErrMalformed marks a refresh payload that failed shape validation.
var ErrMalformed = errors.New("malformed catalog")

// Catalog serves lookups against the current Formats of each category.
type Catalog struct {
	source Source
	sets   map[models.Category]*atomic.Pointer[Formats]
}

// New returns a catalog loaded with the compiled-in defaults. source may be
// nil, in which case Refresh always keeps the defaults.
func New(source Source) *Catalog {
	c := &Catalog{
		source: source,
		sets:   make(map[models.Category]*atomic.Pointer[Formats], len(models.Categories)),
	}
	for _, category := range models.Categories {
		p := &atomic.Pointer[Formats]{}
		if f, ok := Defaults(category); ok {
			p.Store(f)
		}
		c.sets[category] = p
	}
	return c
}

// Formats returns the current catalog for a category, or nil if unknown.
func (c *Catalog) Formats(category models.Category) *Formats {
	p, ok := c.sets[category]
	if !ok {
		return nil
	}
	return p.Load()
}

// ResolveAllowedTargets returns the configured targets for sourceFormat, or an
// empty slice when the category or source format is unknown.
func (c *Catalog) ResolveAllowedTargets(category models.Category, sourceFormat string) []string {
	f := c.Formats(category)
	if f == nil {
		return []string{}
	}
	targets, ok := f.ConversionMap[strings.ToLower(sourceFormat)]
	if !ok {
		return []string{}
	}
	return slices.Clone(targets)
}

// IsAllowed reports whether sourceFormat may be converted to targetFormat.
func (c *Catalog) IsAllowed(category models.Category, sourceFormat, targetFormat string) bool {
	return slices.Contains(c.ResolveAllowedTargets(category, sourceFormat), strings.ToLower(targetFormat))
}

// SourceFormats lists the source formats of a category in display order.
func (c *Catalog) SourceFormats(category models.Category) []string {
	f := c.Formats(category)
	if f == nil {
		return nil
	}
	return slices.Clone(f.SourceFormats)
}

// AllowedExtensions returns the accepted extensions (with leading dot) for format.
func (c *Catalog) AllowedExtensions(category models.Category, format string) []string {
	f := c.Formats(category)
	if f == nil {
		return nil
	}
	return slices.Clone(f.ExtensionWhitelist[strings.ToLower(format)])
}

// ValidateExtension checks the last dot-delimited suffix of filename against
// the whitelist of format, ignoring case.
func (c *Catalog) ValidateExtension(category models.Category, format, filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || ext == "." {
		return false
	}
	return slices.Contains(c.AllowedExtensions(category, format), ext)
}

// FormatForFilename finds the first source format whose whitelist accepts the
// extension of filename.
func (c *Catalog) FormatForFilename(category models.Category, filename string) (string, bool) {
	f := c.Formats(category)
	if f == nil {
		return "", false
	}
	ext := strings.ToLower(filepath.Ext(filename))
	for _, format := range f.SourceFormats {
		if slices.Contains(f.ExtensionWhitelist[format], ext) {
			return format, true
		}
	}
	return "", false
}

// DisplayName returns the human label for a format, or the upper-cased
// format when no label is configured.
func (c *Catalog) DisplayName(category models.Category, format string) string {
	if f := c.Formats(category); f != nil {
		if name, ok := f.DisplayNames[strings.ToLower(format)]; ok {
			return name
		}
	}
	return strings.ToUpper(format)
}

// TargetDisplayNames labels every allowed target of sourceFormat.
func (c *Catalog) TargetDisplayNames(category models.Category, sourceFormat string) []string {
	targets := c.ResolveAllowedTargets(category, sourceFormat)
	names := make([]string, len(targets))
	for i, target := range targets {
		names[i] = c.DisplayName(category, target)
	}
	return names
}

// Replace validates a payload and swaps it in for category. On any error the
// current value is left untouched.
func (c *Catalog) Replace(category models.Category, payload *models.SupportedFormats) error {
	p, ok := c.sets[category]
	if !ok {
		return fmt.Errorf("unknown category %q", category)
	}
	f, err := normalize(payload)
	if err != nil {
		return err
	}
	p.Store(f)
	return nil
}

// Refresh fetches the catalog of a category from the configured source. It
// never fails the caller: a fetch or validation problem is logged and returned
// as a warning, and the previous catalog stays in place.
func (c *Catalog) Refresh(ctx context.Context, category models.Category) (bool, error) {
	logCtx := slog.With("category", category)
	if c.source == nil {
		return false, nil
	}
	payload, err := c.source.SupportedFormats(ctx, category)
	if err != nil {
		logCtx.Warn("Catalog refresh failed, keeping current formats.", "error", err)
		return false, fmt.Errorf("refresh %s catalog: %w", category, err)
	}
	if err := c.Replace(category, payload); err != nil {
		logCtx.Warn("Catalog refresh returned an unusable payload, keeping current formats.", "error", err)
		return false, fmt.Errorf("refresh %s catalog: %w", category, err)
	}
	logCtx.Info("Catalog refreshed.", "sourceFormats", len(payload.SourceFormats))
	return true, nil
}

// RefreshAll refreshes every category concurrently. Each category is
// independent; the returned warnings are joined.
func (c *Catalog) RefreshAll(ctx context.Context) error {
	warnings := make([]error, len(models.Categories))
	var eg errgroup.Group
	for i, category := range models.Categories {
		eg.Go(func() error {
			_, warnings[i] = c.Refresh(ctx, category)
			return nil
		})
	}
	_ = eg.Wait()
	return errors.Join(warnings...)
}

// normalize validates the payload shape and returns a deep, lower-cased copy.
func normalize(payload *models.SupportedFormats) (*Formats, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if len(payload.SourceFormats) == 0 {
		return nil, fmt.Errorf("%w: no source formats", ErrMalformed)
	}
	if len(payload.ConversionMap) == 0 {
		return nil, fmt.Errorf("%w: no conversion map", ErrMalformed)
	}

	f := &Formats{
		ConversionMap:      make(map[string][]string, len(payload.ConversionMap)),
		ExtensionWhitelist: make(map[string][]string, len(payload.ExtensionWhitelist)),
		DisplayNames:       make(map[string]string, len(payload.DisplayNames)),
	}
	for _, source := range payload.SourceFormats {
		source = strings.ToLower(strings.TrimSpace(source))
		if source == "" {
			return nil, fmt.Errorf("%w: blank source format", ErrMalformed)
		}
		if !slices.Contains(f.SourceFormats, source) {
			f.SourceFormats = append(f.SourceFormats, source)
		}
	}
	for source, targets := range payload.ConversionMap {
		source = strings.ToLower(strings.TrimSpace(source))
		if !slices.Contains(f.SourceFormats, source) {
			return nil, fmt.Errorf("%w: conversion map key %q is not a source format", ErrMalformed, source)
		}
		if len(targets) == 0 {
			return nil, fmt.Errorf("%w: source %q has no targets", ErrMalformed, source)
		}
		clean := make([]string, 0, len(targets))
		for _, target := range targets {
			target = strings.ToLower(strings.TrimSpace(target))
			if target == "" {
				return nil, fmt.Errorf("%w: blank target for %q", ErrMalformed, source)
			}
			clean = append(clean, target)
		}
		f.ConversionMap[source] = clean
	}
	for format, exts := range payload.ExtensionWhitelist {
		format = strings.ToLower(strings.TrimSpace(format))
		clean := make([]string, 0, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" || ext == "." {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			clean = append(clean, ext)
		}
		f.ExtensionWhitelist[format] = clean
	}
	for _, source := range f.SourceFormats {
		if len(f.ExtensionWhitelist[source]) == 0 {
			return nil, fmt.Errorf("%w: source %q has no accepted extensions", ErrMalformed, source)
		}
	}
	for format, name := range payload.DisplayNames {
		f.DisplayNames[strings.ToLower(strings.TrimSpace(format))] = name
	}
	return f, nil
}

package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yuanying/epubweb/internal/epub"
	"github.com/yuanying/epubweb/internal/storage"
)

// Book is the part of *epub.Document the publish pipeline reads.
type Book interface {
	Manifest() []epub.ManifestEntry
	RewrittenFile(id string) ([]byte, error)
}

// PublishOptions holds options for the publish pipeline.
type PublishOptions struct {
	// Images optimizes raster images before upload. Nil uploads them as stored.
	Images *ImageOptimizer
	// SkipExisting leaves objects that already exist in the destination alone.
	SkipExisting bool
	Logger       *zap.Logger
}

// PublishReport summarizes a publish run.
type PublishReport struct {
	Written   int      `json:"written" yaml:"written"`
	Skipped   int      `json:"skipped" yaml:"skipped"`
	Optimized int      `json:"optimized" yaml:"optimized"`
	Missing   []string `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// Pipeline copies every manifest item of a book into a storage adapter
// under its archive href, with content documents rewritten for the web.
type Pipeline struct {
	book    Book
	adapter storage.Adapter
	opts    PublishOptions
	logger  *zap.Logger
}

// NewPipeline creates a new publish pipeline.
func NewPipeline(book Book, adapter storage.Adapter, opts PublishOptions) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{book: book, adapter: adapter, opts: opts, logger: logger}
}

// Publish executes the pipeline. Manifest items absent from the archive are
// logged and reported; storage failures abort the run.
func (p *Pipeline) Publish(ctx context.Context) (PublishReport, error) {
	var report PublishReport

	for _, item := range p.book.Manifest() {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if p.opts.SkipExisting {
			exists, err := p.adapter.Exists(ctx, item.Href)
			if err != nil {
				return report, fmt.Errorf("failed to check %s: %w", item.Href, err)
			}
			if exists {
				report.Skipped++
				continue
			}
		}

		data, err := p.book.RewrittenFile(item.ID)
		if errors.Is(err, epub.ErrNotFound) {
			p.logger.Warn("manifest item missing from archive, skipping", zap.String("href", item.Href))
			report.Missing = append(report.Missing, item.Href)
			continue
		}
		if err != nil {
			return report, fmt.Errorf("failed to read %s: %w", item.Href, err)
		}

		if p.opts.Images != nil && isRasterImage(item.MediaType) {
			optimized, err := p.opts.Images.Optimize(item.Href, item.MediaType, data)
			if err != nil {
				return report, fmt.Errorf("failed to optimize %s: %w", item.Href, err)
			}
			if optimized.Warning != "" {
				p.logger.Warn("image kept as is", zap.String("href", item.Href), zap.String("reason", optimized.Warning))
			}
			if !bytes.Equal(optimized.Data, data) {
				report.Optimized++
			}
			data = optimized.Data
		}

		if err := p.adapter.Put(ctx, item.Href, bytes.NewReader(data)); err != nil {
			return report, fmt.Errorf("failed to store %s: %w", item.Href, err)
		}
		p.logger.Debug("published", zap.String("href", item.Href), zap.Int("bytes", len(data)))
		report.Written++
	}

	return report, nil
}

// isRasterImage checks if a media type indicates a raster image file.
func isRasterImage(mediaType string) bool {
	if mediaType == "image/svg+xml" {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}

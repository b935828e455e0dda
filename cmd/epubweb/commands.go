package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yuanying/epubweb/internal/converter"
	"github.com/yuanying/epubweb/internal/epub"
	"github.com/yuanying/epubweb/internal/server"
	"github.com/yuanying/epubweb/internal/storage"
)

// filesPrefix is the server route that serves manifest items by href.
const filesPrefix = "/files"

type bookSummary struct {
	Path        string               `json:"path" yaml:"path"`
	PackagePath string               `json:"package_path" yaml:"package_path"`
	Metadata    epub.MetadataMap     `json:"metadata" yaml:"metadata"`
	Spine       []string             `json:"spine" yaml:"spine"`
	Manifest    []epub.ManifestEntry `json:"manifest" yaml:"manifest"`
	Cover       *epub.CoverInfo      `json:"cover,omitempty" yaml:"cover,omitempty"`
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <book.epub>",
		Short: "Print metadata, spine and manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.openBook(args[0])
			if err != nil {
				return err
			}
			summary := bookSummary{
				Path:        doc.Path(),
				PackagePath: doc.PackagePath(),
				Metadata:    doc.Metadata(),
				Spine:       doc.Spine(),
				Manifest:    doc.Manifest(),
			}
			if cover, ok := doc.Cover(); ok {
				summary.Cover = cover
			}
			return render(cmd.OutOrStdout(), a.outputFormat, summary)
		},
	}
}

func newTOCCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toc <book.epub>",
		Short: "Print the table of contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.openBook(args[0])
			if err != nil {
				return err
			}
			toc := doc.TOC()
			if flat, _ := cmd.Flags().GetBool("flat"); flat {
				toc = epub.FlattenTOC(toc)
				for i := range toc {
					toc[i].Children = nil
				}
			}
			return render(cmd.OutOrStdout(), a.outputFormat, toc)
		},
	}
	cmd.Flags().Bool("flat", false, "List entries in reading order without nesting")
	return cmd
}

func newChapterCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chapter <book.epub> <manifest-id>",
		Short: "Print a chapter body with references rewritten",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.openBook(args[0])
			if err != nil {
				return err
			}
			raw, _ := cmd.Flags().GetBool("raw")
			text, _ := cmd.Flags().GetBool("text")
			if raw && text {
				return fmt.Errorf("--raw and --text are mutually exclusive")
			}

			var out string
			switch {
			case raw:
				data, err := doc.RawChapter(args[1])
				if err != nil {
					return err
				}
				out = string(data)
			case text:
				out, err = doc.ChapterText(args[1])
			default:
				out, err = doc.Chapter(args[1])
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().Bool("raw", false, "Print the stored document unchanged")
	cmd.Flags().Bool("text", false, "Print the visible text only")
	return cmd
}

func newExtractCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <book.epub> <dir>",
		Short: "Extract the archive and rewrite content documents in place",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.openBook(args[0])
			if err != nil {
				return err
			}
			mediaType, _ := cmd.Flags().GetString("media-type")
			hrefs, _ := cmd.Flags().GetStringSlice("href")
			exclude, _ := cmd.Flags().GetBool("exclude")

			if err := doc.Extract(args[1], epub.ExtractOptions{
				MediaType: mediaType,
				Hrefs:     hrefs,
				Exclude:   exclude,
			}); err != nil {
				return err
			}
			a.logger.Info("extracted", zap.String("epub", args[0]), zap.String("dir", args[1]))
			return nil
		},
	}
	cmd.Flags().String("media-type", "", "Only extract items of this media type (or /regexp/)")
	cmd.Flags().StringSlice("href", nil, "Only extract these archive paths")
	cmd.Flags().Bool("exclude", false, "Invert the selection")
	return cmd
}

func newPublishCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish <book.epub>",
		Short: "Upload every manifest item to the configured storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.openBook(args[0])
			if err != nil {
				return err
			}
			adapter, err := storage.NewAdapter(cmd.Context(), a.cfg.Storage)
			if err != nil {
				return err
			}
			defer adapter.Close()

			skip, _ := cmd.Flags().GetBool("skip-existing")
			opts := converter.PublishOptions{SkipExisting: skip, Logger: a.logger}
			if a.optimizeImages(cmd) {
				opts.Images = a.imageOptimizer()
			}

			report, err := converter.NewPipeline(doc, adapter, opts).Publish(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), a.outputFormat, report)
		},
	}
	cmd.Flags().Bool("skip-existing", false, "Leave objects that already exist untouched")
	cmd.Flags().Bool("optimize-images", false, "Resize and re-encode raster images")
	return cmd
}

func newCoverCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cover <book.epub> <out>",
		Short: "Write the cover image, optionally as a JPEG thumbnail",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.openBook(args[0])
			if err != nil {
				return err
			}
			cover, ok := doc.Cover()
			if !ok {
				return fmt.Errorf("%s: %w: no cover image", args[0], epub.ErrNotFound)
			}
			data, err := doc.Image(cover.ManifestID)
			if err != nil {
				return err
			}

			if width, _ := cmd.Flags().GetInt("width"); width > 0 {
				data, err = a.imageOptimizer().Thumbnail(data, width)
				if err != nil {
					return err
				}
			}
			if err := os.WriteFile(args[1], data, 0o644); err != nil {
				return fmt.Errorf("failed to write cover: %w", err)
			}
			a.logger.Info("cover written",
				zap.String("href", cover.Href),
				zap.String("method", cover.DetectionMethod),
				zap.String("out", args[1]),
			)
			return nil
		},
	}
	cmd.Flags().Int("width", 0, "Thumbnail width in pixels (0 keeps the original image)")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <book.epub>",
		Short: "Serve the book over HTTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// rewritten references must resolve against this server
			if a.cfg.ImageBaseURL == "" {
				a.cfg.ImageBaseURL = filesPrefix
			}
			if a.cfg.LinkBaseURL == "" {
				a.cfg.LinkBaseURL = filesPrefix
			}
			doc, err := a.openBook(args[0])
			if err != nil {
				return err
			}

			opts := server.Options{Logger: a.logger}
			if a.optimizeImages(cmd) {
				opts.Images = a.imageOptimizer()
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.ListenAndServe(ctx, a.cfg.Server.Addr, server.NewHandler(doc, opts), a.logger)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default from server.addr)")
	cmd.Flags().Bool("optimize-images", false, "Resize and re-encode raster images")
	a.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

// optimizeImages honours --optimize-images over images.optimize.
func (a *app) optimizeImages(cmd *cobra.Command) bool {
	if f := cmd.Flags().Lookup("optimize-images"); f != nil && f.Changed {
		on, _ := cmd.Flags().GetBool("optimize-images")
		return on
	}
	return a.cfg.Images.Optimize
}

func (a *app) imageOptimizer() *converter.ImageOptimizer {
	return converter.NewImageOptimizer(converter.ImageOptions{
		MaxWidth:    a.cfg.Images.MaxWidth,
		JPEGQuality: a.cfg.Images.JPEGQuality,
	})
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/yuanying/epubweb/internal/config"
	"github.com/yuanying/epubweb/internal/epub"
	"github.com/yuanying/epubweb/internal/log"
)

// app carries the state shared by every subcommand after flag parsing.
type app struct {
	v            *viper.Viper
	cfg          *config.Config
	logger       *zap.Logger
	outputFormat string
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	cmd := &cobra.Command{
		Use:   "epubweb",
		Short: "Read EPUB books and prepare them for the web",
		Long: `epubweb reads EPUB packages and exposes their metadata, reading order,
table of contents and content documents. Chapters are rewritten so that
images and links point at configurable base URLs, ready to be embedded in
a web page, extracted to disk, published to storage or served over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Config file (YAML)")
	flags.String("image-base-url", "", "Base URL prepended to rewritten image sources")
	flags.String("link-base-url", "", "Base URL prepended to rewritten links")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: console or json")
	flags.StringP("output-format", "f", "yaml", "Output format for structured results: yaml or json")

	a.v.BindPFlag("image_base_url", flags.Lookup("image-base-url"))
	a.v.BindPFlag("link_base_url", flags.Lookup("link-base-url"))
	a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	a.v.BindPFlag("log.format", flags.Lookup("log-format"))

	cmd.AddCommand(
		newInfoCmd(a),
		newTOCCmd(a),
		newChapterCmd(a),
		newExtractCmd(a),
		newPublishCmd(a),
		newCoverCmd(a),
		newServeCmd(a),
	)
	return cmd
}

// load reads configuration and builds the logger.
func (a *app) load(cmd *cobra.Command) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(a.v, configFile)
	if err != nil {
		return err
	}

	format, _ := cmd.Flags().GetString("output-format")
	format = strings.ToLower(format)
	if format != "yaml" && format != "json" {
		return fmt.Errorf("--output-format must be yaml or json, got %q", format)
	}

	logger, err := log.New(cmd.ErrOrStderr(), cfg.Log.LoggerOptions())
	if err != nil {
		return fmt.Errorf("--log-level/--log-format: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	a.outputFormat = format
	return nil
}

func (a *app) openBook(path string) (*epub.Document, error) {
	doc, err := epub.Open(path, epub.Options{
		ImageBaseURL: a.cfg.ImageBaseURL,
		LinkBaseURL:  a.cfg.LinkBaseURL,
		Logger:       a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return doc, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

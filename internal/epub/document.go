package epub

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

const (
	mediaTypeXHTML = "application/xhtml+xml"
	mediaTypeSVG   = "image/svg+xml"
)

// Options configures a Document.
type Options struct {
	// ImageBaseURL prefixes rewritten image references. Empty means "".
	ImageBaseURL string
	// LinkBaseURL prefixes rewritten hyperlinks to manifest items.
	LinkBaseURL string
	// Logger receives warnings for recovered parse failures. Nil disables logging.
	Logger *zap.Logger
}

// Document is a loaded EPUB package. The archive is opened and closed
// around each operation, so a Document holds no file handle between calls.
// A Document must be used from a single goroutine at a time.
type Document struct {
	path   string
	opts   Options
	logger *zap.Logger

	packagePath string
	packageDir  string

	metadata      MetadataMap
	manifest      []ManifestEntry
	manifestIndex map[string]int
	spine         []string
	toc           []TOCNode
	coverID       string

	rewriter *Rewriter
}

// ExtractOptions selects the manifest items written by Extract.
type ExtractOptions struct {
	// MediaType selects items by exact media type, or by regular expression
	// when written as /pattern/.
	MediaType string
	// Hrefs selects items by archive path. Ignored when MediaType is set.
	Hrefs []string
	// Exclude inverts the selection against the whole manifest.
	Exclude bool
}

// Open validates and loads the EPUB at path.
func Open(path string, opts Options) (*Document, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Document{
		path:   path,
		opts:   opts,
		logger: logger.With(zap.String("epub", path)),
	}
	if err := d.load(); err != nil {
		return nil, err
	}
	return d, nil
}

// withArchive opens the archive for the duration of fn.
func (d *Document) withArchive(fn func(*archive) error) error {
	a, err := openArchive(d.path)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func (d *Document) load() error {
	return d.withArchive(func(a *archive) error {
		mimetype, err := a.ReadEntry("mimetype")
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: missing mimetype entry", ErrNotAnEpub)
		}
		if err != nil {
			return err
		}
		if err := checkMimetype(mimetype); err != nil {
			return err
		}

		containerXML, err := a.ReadEntry(containerPath)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %s not found", ErrMalformedContainer, containerPath)
		}
		if err != nil {
			return err
		}
		d.packagePath, err = LocatePackage(containerXML)
		if err != nil {
			return err
		}
		d.packageDir = packageDir(d.packagePath)

		opf, err := a.ReadEntry(d.packagePath)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: %w", ErrPackageUnreadable, err)
		}
		if err != nil {
			return err
		}

		d.metadata = ReadMetadata(opf, d.logger)
		d.manifest = ReadManifest(opf, d.packageDir, d.logger)
		d.manifestIndex = make(map[string]int, len(d.manifest))
		for i, e := range d.manifest {
			d.manifestIndex[e.ID] = i
		}

		d.spine, err = ReadSpine(opf, d.logger)
		if err != nil {
			return err
		}
		for _, idref := range d.spine {
			if _, ok := d.manifestIndex[idref]; !ok {
				d.logger.Debug("spine item not in manifest", zap.String("idref", idref))
			}
		}

		d.coverID = readCoverID(opf)
		d.toc = d.loadTOC(a)
		d.rewriter = NewRewriter(d.manifest, d.opts.ImageBaseURL, d.opts.LinkBaseURL)
		return nil
	})
}

// loadTOC builds the table of contents. Every failure is logged and yields
// an empty forest.
func (d *Document) loadTOC(a *archive) []TOCNode {
	nav, isNCX, ok := d.findNavDocument()
	if !ok {
		return []TOCNode{}
	}

	data, err := a.ReadEntry(nav.Href)
	if err != nil {
		d.logger.Warn("failed to read navigation document", zap.String("path", nav.Href), zap.Error(err))
		return []TOCNode{}
	}

	var toc []TOCNode
	if isNCX {
		toc, err = BuildTOC(data, d.packageDir)
	} else {
		toc, err = BuildNavTOC(data, nav.Href)
	}
	if err != nil {
		d.logger.Warn("failed to parse navigation document", zap.String("path", nav.Href), zap.Error(err))
		return []TOCNode{}
	}
	return toc
}

// findNavDocument prefers the item with id "ncx", then any NCX media type,
// then the EPUB 3 nav document.
func (d *Document) findNavDocument() (entry ManifestEntry, isNCX bool, ok bool) {
	if e, found := d.ManifestItem(ncxManifestID); found {
		return e, true, true
	}
	if matches := d.ManifestByType(mediaTypeNCX); len(matches) > 0 {
		return matches[0], true, true
	}
	for _, e := range d.manifest {
		if e.HasProperty(navProperty) {
			return e, false, true
		}
	}
	return ManifestEntry{}, false, false
}

// Path returns the archive file path.
func (d *Document) Path() string { return d.path }

// PackagePath returns the package document path as listed in container.xml.
func (d *Document) PackagePath() string { return d.packagePath }

// PackageDir returns the directory containing the package document.
func (d *Document) PackageDir() string { return d.packageDir }

// Metadata returns a copy of the Dublin Core metadata.
func (d *Document) Metadata() MetadataMap {
	md := make(MetadataMap, len(d.metadata))
	for k, v := range d.metadata {
		md[k] = append(MetadataValue(nil), v...)
	}
	return md
}

// MetadataItem returns a single metadata value.
func (d *Document) MetadataItem(key string) (MetadataValue, bool) {
	v, ok := d.metadata[key]
	return append(MetadataValue(nil), v...), ok
}

// Manifest returns a copy of the manifest in document order.
func (d *Document) Manifest() []ManifestEntry {
	return append([]ManifestEntry(nil), d.manifest...)
}

// ManifestItem looks up a manifest entry by id.
func (d *Document) ManifestItem(id string) (ManifestEntry, bool) {
	i, ok := d.manifestIndex[id]
	if !ok {
		return ManifestEntry{}, false
	}
	return d.manifest[i], true
}

// ManifestItemByHref looks up a manifest entry by its normalized href.
func (d *Document) ManifestItemByHref(href string) (ManifestEntry, bool) {
	for _, e := range d.manifest {
		if e.Href == href {
			return e, true
		}
	}
	return ManifestEntry{}, false
}

// ManifestByType returns the entries whose media type equals pattern, or
// matches it when pattern is a regular expression written as /re/.
func (d *Document) ManifestByType(pattern string) []ManifestEntry {
	match := func(mediaType string) bool { return mediaType == pattern }
	if re := compileSlashPattern(pattern); re != nil {
		match = re.MatchString
	}

	var out []ManifestEntry
	for _, e := range d.manifest {
		if match(e.MediaType) {
			out = append(out, e)
		}
	}
	return out
}

// compileSlashPattern compiles "/re/" patterns; anything else returns nil.
func compileSlashPattern(pattern string) *regexp.Regexp {
	if len(pattern) < 2 || !strings.HasPrefix(pattern, "/") || !strings.HasSuffix(pattern, "/") {
		return nil
	}
	re, err := regexp.Compile(pattern[1 : len(pattern)-1])
	if err != nil {
		return nil
	}
	return re
}

// Spine returns the reading order as manifest ids.
func (d *Document) Spine() []string {
	return append([]string(nil), d.spine...)
}

// TOC returns the table of contents. Callers must not modify it.
func (d *Document) TOC() []TOCNode {
	return d.toc
}

// Cover returns the detected cover image.
func (d *Document) Cover() (*CoverInfo, bool) {
	c := detectCover(d.manifest, d.coverID)
	return c, c != nil
}

// Chapter returns the rewritten body markup of a chapter.
func (d *Document) Chapter(id string) (string, error) {
	entry, raw, err := d.readChapter(id)
	if err != nil {
		return "", err
	}
	return d.rewriter.RewriteChapter(string(raw), entry.Href)
}

// RawChapter returns the unmodified bytes of a chapter.
func (d *Document) RawChapter(id string) ([]byte, error) {
	_, raw, err := d.readChapter(id)
	return raw, err
}

func (d *Document) readChapter(id string) (ManifestEntry, []byte, error) {
	entry, ok := d.ManifestItem(id)
	if !ok {
		return entry, nil, fmt.Errorf("%w: manifest id %q", ErrNotFound, id)
	}
	if entry.MediaType != mediaTypeXHTML && entry.MediaType != mediaTypeSVG {
		return entry, nil, fmt.Errorf("%w: chapter %q is %s", ErrUnsupportedMediaType, id, entry.MediaType)
	}
	raw, err := d.readEntry(entry.Href)
	return entry, raw, err
}

// Image returns the bytes of an image manifest item.
func (d *Document) Image(id string) ([]byte, error) {
	entry, ok := d.ManifestItem(id)
	if !ok {
		return nil, fmt.Errorf("%w: manifest id %q", ErrNotFound, id)
	}
	if !isImageMediaType(entry.MediaType) {
		return nil, fmt.Errorf("%w: image %q is %s", ErrUnsupportedMediaType, id, entry.MediaType)
	}
	return d.readEntry(entry.Href)
}

// File returns the bytes of any manifest item.
func (d *Document) File(id string) ([]byte, error) {
	entry, ok := d.ManifestItem(id)
	if !ok {
		return nil, fmt.Errorf("%w: manifest id %q", ErrNotFound, id)
	}
	return d.readEntry(entry.Href)
}

// RewrittenFile returns a manifest item ready to be served as a standalone
// file: XHTML documents have their references rewritten, other items are
// returned as stored.
func (d *Document) RewrittenFile(id string) ([]byte, error) {
	entry, ok := d.ManifestItem(id)
	if !ok {
		return nil, fmt.Errorf("%w: manifest id %q", ErrNotFound, id)
	}
	data, err := d.readEntry(entry.Href)
	if err != nil || entry.MediaType != mediaTypeXHTML {
		return data, err
	}
	return []byte(d.rewriter.RewriteExtractedFile(string(data), entry.Href)), nil
}

func (d *Document) readEntry(href string) ([]byte, error) {
	var data []byte
	err := d.withArchive(func(a *archive) error {
		var err error
		data, err = a.ReadEntry(href)
		return err
	})
	return data, err
}

// Extract writes the selected manifest items (or the whole archive when
// opts selects nothing) under dest, then rewrites the references of every
// extracted XHTML document in place.
func (d *Document) Extract(dest string, opts ExtractOptions) error {
	info, err := os.Stat(dest)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrInvalidDestination, dest)
	}

	selection := d.selectHrefs(opts)
	selected := make(map[string]bool, len(selection))
	for _, href := range selection {
		selected[href] = true
	}

	return d.withArchive(func(a *archive) error {
		if selection == nil {
			err = a.ExtractAll(dest)
		} else {
			err = a.ExtractSelected(dest, selection)
		}
		if err != nil {
			return err
		}

		for _, e := range d.manifest {
			if e.MediaType != mediaTypeXHTML {
				continue
			}
			if selection != nil && !selected[e.Href] {
				continue
			}
			if err := d.rewriteOnDisk(filepath.Join(dest, filepath.FromSlash(e.Href)), e.Href); err != nil {
				return err
			}
		}
		return nil
	})
}

// selectHrefs returns the hrefs chosen by opts, or nil for "everything".
func (d *Document) selectHrefs(opts ExtractOptions) []string {
	var limit []string
	switch {
	case opts.MediaType != "":
		limit = []string{}
		for _, e := range d.ManifestByType(opts.MediaType) {
			limit = append(limit, e.Href)
		}
	case len(opts.Hrefs) > 0:
		limit = append([]string{}, opts.Hrefs...)
	}

	if !opts.Exclude || limit == nil {
		return limit
	}

	excluded := make(map[string]bool, len(limit))
	for _, href := range limit {
		excluded[href] = true
	}
	inverted := []string{}
	for _, e := range d.manifest {
		if !excluded[e.Href] {
			inverted = append(inverted, e.Href)
		}
	}
	return inverted
}

// rewriteOnDisk rewrites one extracted content document in place.
func (d *Document) rewriteOnDisk(realPath, href string) error {
	data, err := os.ReadFile(realPath)
	if errors.Is(err, os.ErrNotExist) {
		d.logger.Warn("manifest item missing from archive", zap.String("href", href))
		return nil
	}
	if err != nil {
		return fmt.Errorf("rewrite %s: %w", href, err)
	}
	out := d.rewriter.RewriteExtractedFile(string(data), href)
	if err := os.WriteFile(realPath, []byte(out), 0o644); err != nil {
		return fmt.Errorf("rewrite %s: %w", href, err)
	}
	return nil
}

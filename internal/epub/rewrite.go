package epub

import (
	"fmt"
	"regexp"
	"strings"
)

// lineSentinel stands in for line breaks while the single-line patterns run.
const lineSentinel = "\x00"

var (
	lineBreakRe = regexp.MustCompile(`\r?\n`)
	bodyRe      = regexp.MustCompile(`(?i)<body[^>]*?>(.*)</body[^>]*?>`)
	scriptRe    = regexp.MustCompile(`(?i)<script[^>]*?>(.*?)</script[^>]*?>`)
	styleRe     = regexp.MustCompile(`(?i)<style[^>]*?>(.*?)</style[^>]*?>`)

	// The leading and trailing classes include the sentinel so attributes
	// that started a new line are still matched.
	eventHandlerRe = regexp.MustCompile(`([\s\x00])(on\w+)(\s*=\s*["']?[^"'\s>\x00]*?["'\s>\x00])`)
	imageAttrRe    = regexp.MustCompile(`([\s\x00](?:xlink:href|src)\s*=\s*["']?)([^"'\s>\x00]*?)(["'\s>\x00])`)
	linkAttrRe     = regexp.MustCompile(`([\s\x00]href\s*=\s*["']?)([^"'\s>\x00]*?)(["'\s>\x00])`)
)

// disabledEventPrefix is prepended to inline event handler attribute names.
const disabledEventPrefix = "skip-"

// Rewriter rewrites content documents so that image and link references
// point at external base URLs. References are validated against the
// manifest: unknown images are emptied and unknown links are left alone.
type Rewriter struct {
	imageBaseURL string
	linkBaseURL  string

	images map[string]bool // normalized href
	links  map[string]bool // normalized href without fragment
}

// NewRewriter indexes the manifest hrefs once.
func NewRewriter(manifest []ManifestEntry, imageBaseURL, linkBaseURL string) *Rewriter {
	r := &Rewriter{
		imageBaseURL: imageBaseURL,
		linkBaseURL:  linkBaseURL,
		images:       make(map[string]bool, len(manifest)),
		links:        make(map[string]bool, len(manifest)),
	}
	for _, e := range manifest {
		r.images[e.Href] = true
		p, _, _ := splitFragment(e.Href)
		r.links[p] = true
	}
	return r
}

// RewriteChapter returns the body of a chapter with scripts and styles
// removed, event handlers disabled and references rewritten. chapterHref is
// the archive path of the chapter and anchors relative references.
func (r *Rewriter) RewriteChapter(raw, chapterHref string) (string, error) {
	text := lineBreakRe.ReplaceAllString(raw, lineSentinel)

	m := bodyRe.FindStringSubmatch(text)
	if m == nil {
		return "", fmt.Errorf("%w: %s", ErrNoBodyContent, chapterHref)
	}
	text = strings.Trim(m[1], " \t\r\v\f"+lineSentinel)

	text = scriptRe.ReplaceAllString(text, "")
	text = styleRe.ReplaceAllString(text, "")
	text = eventHandlerRe.ReplaceAllString(text, "${1}"+disabledEventPrefix+"${2}${3}")

	text = r.rewriteReferences(text, chapterHref)
	return strings.ReplaceAll(text, lineSentinel, "\n"), nil
}

// RewriteExtractedFile rewrites the references of a complete content
// document written to disk. The document keeps its head, scripts and styles.
func (r *Rewriter) RewriteExtractedFile(raw, fileHref string) string {
	text := lineBreakRe.ReplaceAllString(raw, lineSentinel)
	text = r.rewriteReferences(text, fileHref)
	return strings.ReplaceAll(text, lineSentinel, "\n")
}

func (r *Rewriter) rewriteReferences(text, baseHref string) string {
	text = replaceAttr(imageAttrRe, text, func(value string) string {
		return r.imageURL(value, baseHref)
	})
	return replaceAttr(linkAttrRe, text, func(value string) string {
		return r.linkURL(value, baseHref)
	})
}

// imageURL maps an image reference to its served URL, or "" when the
// resolved path is not a manifest item.
func (r *Rewriter) imageURL(value, baseHref string) string {
	resolved := ResolvePath(baseHref, decodeHref(value), true)
	if !r.images[resolved] {
		return ""
	}
	return r.imageBaseURL + "/" + resolved
}

// linkURL maps a hyperlink to its served URL. Links whose path is not a
// manifest item are returned unchanged.
func (r *Rewriter) linkURL(value, baseHref string) string {
	p, fragment, hasFragment := splitFragment(value)
	resolved := ResolvePath(baseHref, decodeHref(p), true)
	if p == "" || !r.links[resolved] {
		return value
	}
	if hasFragment {
		resolved += "#" + fragment
	}
	return r.linkBaseURL + "/" + resolved
}

// replaceAttr applies fn to the value group of every match of re, keeping
// the attribute prefix and the closing delimiter.
func replaceAttr(re *regexp.Regexp, text string, fn func(string) string) string {
	return re.ReplaceAllStringFunc(text, func(match string) string {
		m := re.FindStringSubmatch(match)
		return m[1] + fn(m[2]) + m[3]
	})
}

package epub

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"
)

// dcNamespace is the Dublin Core elements namespace used by OPF metadata.
const dcNamespace = "http://purl.org/dc/elements/1.1/"

// ReadMetadata collects the Dublin Core elements of the package metadata.
// Repeated elements keep every value in document order. A descriptor that
// does not parse yields an empty map.
func ReadMetadata(opf []byte, logger *zap.Logger) MetadataMap {
	md := make(MetadataMap)

	root, err := parseXML(opf)
	if err != nil {
		logger.Warn("package metadata unreadable", zap.Error(err))
		return md
	}
	metadata := root.SelectElement("metadata")
	if metadata == nil {
		return md
	}

	for _, el := range metadata.ChildElements() {
		if !isDublinCore(el) {
			continue
		}
		md[el.Tag] = append(md[el.Tag], strings.TrimSpace(el.Text()))
	}
	return md
}

// isDublinCore reports whether el lives in the dc namespace, either by
// declaration or by the conventional prefix.
func isDublinCore(el *etree.Element) bool {
	if el.NamespaceURI() == dcNamespace {
		return true
	}
	return el.Space == "dc"
}

// ReadManifest returns the manifest items in document order with hrefs
// resolved against packageDir. Items without an id or href are skipped and
// duplicate ids keep their first occurrence. A descriptor that does not
// parse yields an empty manifest.
func ReadManifest(opf []byte, packageDir string, logger *zap.Logger) []ManifestEntry {
	root, err := parseXML(opf)
	if err != nil {
		logger.Warn("package manifest unreadable", zap.Error(err))
		return []ManifestEntry{}
	}
	manifest := root.SelectElement("manifest")
	if manifest == nil {
		return []ManifestEntry{}
	}

	entries := make([]ManifestEntry, 0, len(manifest.ChildElements()))
	seen := make(map[string]bool)
	for _, item := range manifest.SelectElements("item") {
		id := item.SelectAttrValue("id", "")
		href := item.SelectAttrValue("href", "")
		if id == "" || href == "" {
			continue
		}
		if seen[id] {
			logger.Warn("duplicate manifest id ignored", zap.String("id", id), zap.String("href", href))
			continue
		}
		seen[id] = true

		entry := ManifestEntry{
			ID:        id,
			Href:      ResolvePath(packageDir, decodeHref(href), false),
			MediaType: item.SelectAttrValue("media-type", ""),
		}
		if props := item.SelectAttrValue("properties", ""); props != "" {
			entry.Properties = strings.Fields(props)
		}
		entries = append(entries, entry)
	}
	return entries
}

// ReadSpine returns the spine idrefs in reading order. Membership in the
// manifest is not checked. A descriptor that does not parse is fatal; a
// missing spine element only logs a warning.
func ReadSpine(opf []byte, logger *zap.Logger) ([]string, error) {
	root, err := parseXML(opf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPackageUnreadable, err)
	}

	spine := root.SelectElement("spine")
	if spine == nil {
		logger.Warn("no spine found in package document")
		return []string{}, nil
	}

	idrefs := []string{}
	for _, itemref := range spine.SelectElements("itemref") {
		if attr := itemref.SelectAttr("idref"); attr != nil {
			idrefs = append(idrefs, attr.Value)
		}
	}
	return idrefs, nil
}

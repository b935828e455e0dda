package epub

import (
	"path"
	"strings"
)

// CoverInfo holds information about the detected cover image.
type CoverInfo struct {
	ManifestID      string `json:"manifest_id" yaml:"manifest_id"`
	Href            string `json:"href" yaml:"href"`
	MediaType       string `json:"media_type" yaml:"media_type"`
	DetectionMethod string `json:"detection_method" yaml:"detection_method"` // "properties", "meta", "filename"
}

// readCoverID returns the content of <meta name="cover"> (EPUB 2), if any.
func readCoverID(opf []byte) string {
	root, err := parseXML(opf)
	if err != nil {
		return ""
	}
	metadata := root.SelectElement("metadata")
	if metadata == nil {
		return ""
	}
	for _, m := range metadata.SelectElements("meta") {
		if m.SelectAttrValue("name", "") == "cover" {
			return m.SelectAttrValue("content", "")
		}
	}
	return ""
}

// detectCover finds the cover image. Methods are tried in priority order:
//  1. properties="cover-image" (EPUB 3)
//  2. meta name="cover" (EPUB 2)
//  3. image whose basename contains "cover", case-insensitive
func detectCover(manifest []ManifestEntry, coverID string) *CoverInfo {
	for _, item := range manifest {
		if isImageMediaType(item.MediaType) && item.HasProperty("cover-image") {
			return newCoverInfo(item, "properties")
		}
	}

	if coverID != "" {
		for _, item := range manifest {
			if item.ID == coverID && isImageMediaType(item.MediaType) {
				return newCoverInfo(item, "meta")
			}
		}
	}

	for _, item := range manifest {
		if !isImageMediaType(item.MediaType) {
			continue
		}
		if strings.Contains(strings.ToLower(path.Base(item.Href)), "cover") {
			return newCoverInfo(item, "filename")
		}
	}
	return nil
}

func newCoverInfo(item ManifestEntry, method string) *CoverInfo {
	return &CoverInfo{
		ManifestID:      item.ID,
		Href:            item.Href,
		MediaType:       item.MediaType,
		DetectionMethod: method,
	}
}

// isImageMediaType reports whether mediaType has the image/ prefix.
func isImageMediaType(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "image/")
}

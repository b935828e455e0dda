package epub

import (
	"encoding/json"
	"strings"
)

// ManifestEntry represents an item in the package manifest.
// Href is archive-root-relative, normalized and percent-decoded.
type ManifestEntry struct {
	ID         string   `json:"id" yaml:"id"`
	Href       string   `json:"href" yaml:"href"`
	MediaType  string   `json:"media_type" yaml:"media_type"`
	Properties []string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// HasProperty reports whether the entry lists prop in its properties attribute.
func (e ManifestEntry) HasProperty(prop string) bool {
	for _, p := range e.Properties {
		if strings.EqualFold(p, prop) {
			return true
		}
	}
	return false
}

// MetadataValue holds the text of one Dublin Core element, or of every
// occurrence when the element repeats. An empty element yields [""].
type MetadataValue []string

// String returns the first value.
func (v MetadataValue) String() string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// IsList reports whether the element occurred more than once.
func (v MetadataValue) IsList() bool {
	return len(v) > 1
}

// MarshalJSON encodes a single value as a string and repeats as an array.
func (v MetadataValue) MarshalJSON() ([]byte, error) {
	if v.IsList() {
		return json.Marshal([]string(v))
	}
	return json.Marshal(v.String())
}

// MarshalYAML mirrors MarshalJSON.
func (v MetadataValue) MarshalYAML() (interface{}, error) {
	if v.IsList() {
		return []string(v), nil
	}
	return v.String(), nil
}

// MetadataMap maps Dublin Core local names (title, creator, ...) to values.
type MetadataMap map[string]MetadataValue

// TOCNode is one entry of the table of contents.
type TOCNode struct {
	ID       string    `json:"id" yaml:"id"`
	Name     string    `json:"name" yaml:"name"`
	FileName string    `json:"file_name" yaml:"file_name"`
	Src      string    `json:"src" yaml:"src"`
	PageID   string    `json:"page_id,omitempty" yaml:"page_id,omitempty"` // fragment without "#", empty when absent
	Children []TOCNode `json:"children,omitempty" yaml:"children,omitempty"`
}

// FlattenTOC returns every node of the forest in document order (pre-order).
func FlattenTOC(nodes []TOCNode) []TOCNode {
	var out []TOCNode
	var walk func([]TOCNode)
	walk = func(ns []TOCNode) {
		for _, n := range ns {
			out = append(out, n)
			walk(n.Children)
		}
	}
	walk(nodes)
	return out
}

package epub

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

const (
	// ncxManifestID is the manifest id conventionally given to the NCX.
	ncxManifestID = "ncx"
	mediaTypeNCX  = "application/x-dtbncx+xml"
)

// BuildTOC parses an NCX navigation document into a forest of TOCNode.
// Content targets are resolved against packageDir and split into file name
// and page id. Nesting depth is unbounded and source order is preserved.
func BuildTOC(ncx []byte, packageDir string) ([]TOCNode, error) {
	root, err := parseXML(ncx)
	if err != nil {
		return nil, fmt.Errorf("parse NCX: %w", err)
	}
	navMap := root.SelectElement("navMap")
	if navMap == nil {
		return nil, fmt.Errorf("parse NCX: missing navMap")
	}
	return convertNavPoints(navMap.SelectElements("navPoint"), packageDir), nil
}

// convertNavPoints recursively converts navPoint elements into TOC nodes.
func convertNavPoints(points []*etree.Element, packageDir string) []TOCNode {
	nodes := make([]TOCNode, 0, len(points))
	for _, np := range points {
		node := TOCNode{
			ID:   np.SelectAttrValue("id", ""),
			Name: navLabel(np),
		}

		var src string
		if content := np.SelectElement("content"); content != nil {
			src = content.SelectAttrValue("src", "")
		}
		setTarget(&node, ResolveTarget(packageDir, src, false))

		if children := np.SelectElements("navPoint"); len(children) > 0 {
			node.Children = convertNavPoints(children, packageDir)
		}
		nodes = append(nodes, node)
	}
	return nodes
}

func navLabel(np *etree.Element) string {
	label := np.SelectElement("navLabel")
	if label == nil {
		return ""
	}
	text := label.SelectElement("text")
	if text == nil {
		return ""
	}
	return strings.TrimSpace(text.Text())
}

// ResolveTarget resolves the path portion of a reference and re-appends its
// fragment, if any.
func ResolveTarget(base, ref string, baseIsFile bool) string {
	p, fragment, hasFragment := splitFragment(ref)
	resolved := ResolvePath(base, p, baseIsFile)
	if hasFragment {
		return resolved + "#" + fragment
	}
	return resolved
}

// setTarget fills Src, FileName and PageID from a resolved target.
func setTarget(node *TOCNode, src string) {
	node.Src = src
	fileName, pageID, _ := splitFragment(src)
	node.FileName = fileName
	node.PageID = pageID
}

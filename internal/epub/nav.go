package epub

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// navProperty marks the EPUB 3 navigation document in the manifest.
const navProperty = "nav"

// BuildNavTOC parses an EPUB 3 navigation document. Targets are resolved
// relative to navHref, the archive path of the document itself.
func BuildNavTOC(nav []byte, navHref string) ([]TOCNode, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(nav))
	if err != nil {
		return nil, fmt.Errorf("parse nav document: %w", err)
	}

	var toc *goquery.Selection
	doc.Find("nav").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if hasEpubType(s, "toc") {
			toc = s
			return false
		}
		return true
	})
	if toc == nil {
		return nil, fmt.Errorf("parse nav document: no toc nav element")
	}

	ol := toc.Find("ol").First()
	if ol.Length() == 0 {
		return []TOCNode{}, nil
	}
	return convertNavList(ol, navHref), nil
}

// convertNavList converts the <li> children of an <ol> into TOC nodes.
func convertNavList(ol *goquery.Selection, navHref string) []TOCNode {
	nodes := []TOCNode{}
	ol.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		node := TOCNode{}
		node.ID, _ = li.Attr("id")

		if a := li.ChildrenFiltered("a").First(); a.Length() > 0 {
			if node.ID == "" {
				node.ID, _ = a.Attr("id")
			}
			node.Name = collapseSpace(a.Text())
			href, _ := a.Attr("href")
			setTarget(&node, ResolveTarget(navHref, decodeHref(href), true))
		} else {
			node.Name = collapseSpace(li.ChildrenFiltered("span").First().Text())
		}

		if sub := li.ChildrenFiltered("ol").First(); sub.Length() > 0 {
			node.Children = convertNavList(sub, navHref)
		}
		nodes = append(nodes, node)
	})
	return nodes
}

// hasEpubType checks the space-separated epub:type tokens of s.
func hasEpubType(s *goquery.Selection, typeName string) bool {
	val, _ := s.Attr("epub:type")
	for _, t := range strings.Fields(val) {
		if t == typeName {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

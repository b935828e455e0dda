package epub

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ChapterText returns the visible text of a chapter with whitespace collapsed.
func (d *Document) ChapterText(id string) (string, error) {
	body, err := d.Chapter(id)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse chapter %q: %w", id, err)
	}
	return collapseSpace(doc.Text()), nil
}

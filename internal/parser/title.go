package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Title returns the whitespace-collapsed text of the first <title> element,
// or "" when the document has none.
func Title(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(doc.Find("title").First().Text()), " ")
}

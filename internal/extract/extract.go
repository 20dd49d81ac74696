package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var whitespace = regexp.MustCompile(`\s+`)

// Normalize collapses runs of whitespace to single spaces and trims the
// result. All text entering the chunker goes through this first.
func Normalize(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// FromHTML strips markup and boilerplate elements from an HTML document
// and returns normalized body text.
func FromHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	return Normalize(doc.Find("body").Text()), nil
}

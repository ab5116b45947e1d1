package crawler

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var textNoise = strings.NewReplacer("\n", "", "\r", "", "\t", "")

// Select returns the descendants of root matching selector, in document
// order. A selector that matches nothing yields an empty selection.
func Select(root *goquery.Selection, selector string) *goquery.Selection {
	return root.Find(selector)
}

// Text normalizes each matched node's text (newlines, carriage returns and
// tabs removed, surrounding whitespace trimmed) and joins the results with a
// newline. An empty selection yields "".
func Text(matches *goquery.Selection) string {
	if matches == nil || matches.Length() == 0 {
		return ""
	}
	parts := make([]string, 0, matches.Length())
	matches.Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, strings.TrimSpace(textNoise.Replace(s.Text())))
	})
	return strings.Join(parts, "\n")
}

// SelectText is Text(Select(root, selector)).
func SelectText(root *goquery.Selection, selector string) string {
	return Text(Select(root, selector))
}

// Link returns the href of the first node under root matching selector.
func Link(root *goquery.Selection, selector string) (string, error) {
	matches := Select(root, selector)
	if matches.Length() == 0 {
		return "", &ExtractError{Kind: ExtractNoMatch, Selector: selector}
	}
	href, ok := matches.First().Attr("href")
	if !ok {
		return "", &ExtractError{Kind: ExtractNoLinkAttribute, Selector: selector}
	}
	return href, nil
}

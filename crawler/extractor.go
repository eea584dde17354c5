package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// ExtractionResult holds the structured fields pulled from one HTML page.
type ExtractionResult struct {
	Title      string
	Text       string
	Links      []string
	ImageCount int
}

// Extractor turns raw HTML into structured page fields. The crawler's
// responsibility ends at handing HTML over and receiving these fields back.
type Extractor interface {
	Extract(htmlContent string, base *url.URL) (*ExtractionResult, error)
}

// HTMLExtractor extracts the readable text via go-shiori/readability and
// walks the DOM with goquery for links, images and the title fallback.
type HTMLExtractor struct{}

func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

func (e *HTMLExtractor) Extract(htmlContent string, base *url.URL) (*ExtractionResult, error) {
	node, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc := goquery.NewDocumentFromNode(node)

	article, err := readability.FromReader(strings.NewReader(htmlContent), base)
	if err != nil {
		return nil, fmt.Errorf("readability: %w", err)
	}

	result := &ExtractionResult{
		Title:      strings.TrimSpace(article.Title),
		Text:       strings.TrimSpace(article.TextContent),
		ImageCount: doc.Find("img").Length(),
	}
	if result.Title == "" {
		result.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		link := resolveLink(base, href)
		if link == "" {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		result.Links = append(result.Links, link)
	})

	return result, nil
}

// resolveLink makes href absolute against base and drops anything that is
// not a fetchable http(s) document reference.
func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

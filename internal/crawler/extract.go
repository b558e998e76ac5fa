package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/inbucket/html2text"
	"golang.org/x/net/html"
)

// Elements whose content is navigation chrome or machinery, never knowledge.
var strippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"nav":      true,
	"footer":   true,
	"header":   true,
	"aside":    true,
	"iframe":   true,
	"noscript": true,
}

// contentSelectors are tried in order; the first matching element becomes the
// content root. Falls back to <body>.
var contentSelectors = []selector{
	{tag: "main"},
	{tag: "article"},
	{attr: "role", value: "main"},
	{class: "content"},
	{class: "main-content"},
	{id: "content"},
	{id: "main"},
	{class: "post-content"},
	{class: "entry-content"},
}

var (
	binaryExtensions = regexp.MustCompile(`(?i)\.(pdf|zip|doc|docx|xls|xlsx|ppt|pptx|jpg|jpeg|png|gif|svg|webp|ico|mp3|mp4|wav|avi|mov)$`)
	skipPathPatterns = regexp.MustCompile(`(?i)/(login|logout|register|signup|signin|cart|checkout|account|admin)(/|$)`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
)

type selector struct {
	tag   string
	id    string
	class string
	attr  string
	value string
}

func (s selector) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" {
		return n.Data == s.tag
	}
	if s.id != "" {
		return attrValue(n, "id") == s.id
	}
	if s.class != "" {
		for _, c := range strings.Fields(attrValue(n, "class")) {
			if c == s.class {
				return true
			}
		}
		return false
	}
	if s.attr != "" {
		return attrValue(n, s.attr) == s.value
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// stripNonContent removes chrome elements from the tree in place.
func stripNonContent(n *html.Node) {
	var next *html.Node
	for child := n.FirstChild; child != nil; child = next {
		next = child.NextSibling
		if child.Type == html.ElementNode && strippedElements[child.Data] {
			n.RemoveChild(child)
			continue
		}
		stripNonContent(child)
	}
}

func extractTitle(doc *html.Node) string {
	if title := findFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "title"
	}); title != nil {
		return strings.TrimSpace(textOf(title))
	}
	if h1 := findFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "h1"
	}); h1 != nil {
		return strings.TrimSpace(textOf(h1))
	}
	return ""
}

// extractContent picks the best content root, renders it back to HTML, runs
// it through the sanitizer, then converts to plain text with whitespace
// collapsed.
func (c *Crawler) extractContent(doc *html.Node) (string, error) {
	root := contentRoot(doc)
	if root == nil {
		return "", nil
	}

	var buf strings.Builder
	if err := html.Render(&buf, root); err != nil {
		return "", fmt.Errorf("render: %w", err)
	}

	clean := c.sanitizer.Sanitize(buf.String())
	text, err := html2text.FromString(clean, html2text.Options{TextOnly: true})
	if err != nil {
		return "", fmt.Errorf("html2text: %w", err)
	}
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " ")), nil
}

func contentRoot(doc *html.Node) *html.Node {
	for _, sel := range contentSelectors {
		if n := findFirst(doc, sel.matches); n != nil {
			return n
		}
	}
	return findFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "body"
	})
}

// extractLinks collects deduplicated same-origin links, skipping anchors,
// mailto/tel schemes, binary files and auth or commerce paths.
func extractLinks(doc *html.Node, pageURL, origin string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "a" {
			return
		}
		href := strings.TrimSpace(attrValue(n, "href"))
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") ||
			strings.HasPrefix(href, "javascript:") {
			return
		}

		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		resolved.Fragment = ""
		link := resolved.String()

		if !strings.HasPrefix(link, origin) {
			return
		}
		if binaryExtensions.MatchString(resolved.Path) || skipPathPatterns.MatchString(resolved.Path) {
			return
		}
		if !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	})
	return links
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findFirst(child, match); found != nil {
			return found
		}
	}
	return nil
}

func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walk(child, visit)
	}
}

func textOf(n *html.Node) string {
	var buf strings.Builder
	walk(n, func(node *html.Node) {
		if node.Type == html.TextNode {
			buf.WriteString(node.Data)
		}
	})
	return buf.String()
}

package preprocess

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

const maxHTMLDepth = 200

var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "iframe": true,
	"svg": true, "template": true, "head": true, "nav": true, "footer": true,
}

var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "table": true, "tr": true, "dl": true, "dt": true, "dd": true,
	"blockquote": true, "pre": true, "figure": true, "figcaption": true,
}

// HTMLToText returns the visible text of an HTML document, one block per
// line. The title is kept as the first line and images as "[Image: alt](src)".
func HTMLToText(doc string) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	var sb strings.Builder
	if title := findTitle(root); title != "" {
		sb.WriteString(title)
		sb.WriteString("\n")
	}
	walk(root, &sb, 0)
	return cleanLines(sb.String()), nil
}

func walk(n *html.Node, sb *strings.Builder, depth int) {
	if depth > maxHTMLDepth {
		return
	}
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		if skippedElements[n.Data] {
			return
		}
		switch n.Data {
		case "br":
			sb.WriteString("\n")
			return
		case "li":
			sb.WriteString("\n- ")
		case "td", "th":
			sb.WriteString(" | ")
		case "img":
			if alt, src := attr(n, "alt"), attr(n, "src"); alt != "" || src != "" {
				fmt.Fprintf(sb, "\n[Image: %s](%s)\n", alt, src)
			}
			return
		default:
			if blockElements[n.Data] {
				sb.WriteString("\n")
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, sb, depth+1)
	}
	if n.Type == html.ElementNode && (blockElements[n.Data] || n.Data == "li") {
		sb.WriteString("\n")
	}
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		var sb strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
		}
		return strings.Join(strings.Fields(sb.String()), " ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// cleanLines collapses whitespace inside lines and drops empty ones.
func cleanLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		line = strings.Trim(line, "| ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

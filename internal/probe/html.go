package probe

import (
	"bytes"
	"context"
	"strings"

	"golang.org/x/net/html"
)

func (p *HTTP) fetchDocument(ctx context.Context, rawURL string) (*html.Node, error) {
	body, err := p.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return html.Parse(bytes.NewReader(body))
}

// extractTitle returns the document title, falling back to og:title,
// twitter:title and the first h1 in that order.
func extractTitle(n *html.Node) string {
	var htmlTitle, ogTitle, twitterTitle, h1Title string

	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				var property, name, content string
				for _, attr := range n.Attr {
					switch attr.Key {
					case "property":
						property = strings.ToLower(attr.Val)
					case "name":
						name = strings.ToLower(attr.Val)
					case "content":
						content = attr.Val
					}
				}
				if property == "og:title" && ogTitle == "" {
					ogTitle = content
				} else if name == "twitter:title" && twitterTitle == "" {
					twitterTitle = content
				}
			case "h1":
				if h1Title == "" {
					h1Title = textOf(n)
				}
			case "title":
				if htmlTitle == "" && n.FirstChild != nil {
					htmlTitle = n.FirstChild.Data
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)

	for _, candidate := range []string{htmlTitle, ogTitle, twitterTitle, h1Title} {
		if t := collapse(candidate); t != "" {
			return t
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var parts []string
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			if trimmed := strings.TrimSpace(n.Data); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return strings.Join(parts, " ")
}

// extractText returns the visible body text, skipping scripts and styles.
func extractText(n *html.Node) string {
	var buf strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template", "head":
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return collapse(buf.String())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func capRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

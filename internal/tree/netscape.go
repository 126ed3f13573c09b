package tree

import (
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"time"

	xhtml "golang.org/x/net/html"

	"github.com/nikbrunner/gmark/internal/model"
)

// ReadHTML parses a Netscape bookmark file into a MemoryTree. A folder marked
// as the personal toolbar, or carrying a root id, maps onto that root. Other
// top-level items land in Other Bookmarks. Nodes keep an ID attribute when
// present so ids survive a save and reload.
func ReadHTML(r io.Reader) (*MemoryTree, error) {
	doc, err := xhtml.Parse(r)
	if err != nil {
		return nil, err
	}

	t := NewMemoryTree()
	var stack []*Node // open folders, nil top means top level
	var pending *Node // folder waiting to be pushed on next DL

	current := func() *Node {
		if len(stack) > 0 && stack[len(stack)-1] != nil {
			return stack[len(stack)-1]
		}
		return t.nodes[OtherID]
	}
	topLevel := func() bool {
		return len(stack) == 0 || stack[len(stack)-1] == nil
	}

	var parse func(*xhtml.Node)
	parse = func(n *xhtml.Node) {
		if n.Type == xhtml.ElementNode {
			switch strings.ToLower(n.Data) {
			case "h3":
				id := getAttr(n, "id")
				if topLevel() {
					if getAttr(n, "personal_toolbar_folder") == "true" {
						id = ToolbarID
					}
					if root, ok := t.nodes[id]; ok && isProtected(id) {
						root.Title = getTextContent(n)
						pending = root
						return
					}
				}
				if id == "" || t.nodes[id] != nil {
					id = model.GenerateUUID()
				}
				folder := &Node{ID: id, Title: getTextContent(n), DateAdded: parseDate(getAttr(n, "add_date"))}
				t.attach(current(), folder)
				pending = folder
				return

			case "a":
				href := getAttr(n, "href")
				if href == "" {
					return
				}
				id := getAttr(n, "id")
				if id == "" || t.nodes[id] != nil {
					id = model.GenerateUUID()
				}
				title := getTextContent(n)
				if title == "" {
					title = href
				}
				t.attach(current(), &Node{ID: id, Title: title, URL: href, DateAdded: parseDate(getAttr(n, "add_date"))})
				return

			case "dl":
				if pending != nil {
					stack = append(stack, pending)
					pending = nil
				} else if len(stack) == 0 {
					stack = append(stack, nil)
				} else {
					stack = append(stack, stack[len(stack)-1])
				}
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					parse(c)
				}
				stack = stack[:len(stack)-1]
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			parse(c)
		}
	}

	parse(doc)
	return t, nil
}

// WriteHTML writes the tree in Netscape bookmark format.
func (t *MemoryTree) WriteHTML(w io.Writer) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.writeHTML(w)
}

func (t *MemoryTree) writeHTML(w io.Writer) error {
	return WriteHTML(w, t.root.Children)
}

// WriteHTML writes nodes as the top level of a Netscape bookmark file.
func WriteHTML(w io.Writer, nodes []*Node) error {
	var b strings.Builder

	b.WriteString("<!DOCTYPE NETSCAPE-Bookmark-file-1>\n")
	b.WriteString("<META HTTP-EQUIV=\"Content-Type\" CONTENT=\"text/html; charset=UTF-8\">\n")
	b.WriteString("<TITLE>Bookmarks</TITLE>\n")
	b.WriteString("<H1>Bookmarks</H1>\n")
	b.WriteString("<DL><p>\n")
	writeItems(&b, nodes, 1)
	b.WriteString("</DL><p>\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// writeItems recursively writes folders and links in child order.
func writeItems(b *strings.Builder, nodes []*Node, indent int) {
	prefix := strings.Repeat("    ", indent)

	for _, n := range nodes {
		if n.IsFolder() {
			toolbar := ""
			if n.ID == ToolbarID {
				toolbar = ` PERSONAL_TOOLBAR_FOLDER="true"`
			}
			fmt.Fprintf(b, "%s<DT><H3 ID=\"%s\" ADD_DATE=\"%d\"%s>%s</H3>\n",
				prefix, html.EscapeString(n.ID), n.DateAdded.Unix(), toolbar, html.EscapeString(n.Title))
			fmt.Fprintf(b, "%s<DL><p>\n", prefix)
			writeItems(b, n.Children, indent+1)
			fmt.Fprintf(b, "%s</DL><p>\n", prefix)
			continue
		}

		fmt.Fprintf(b, "%s<DT><A HREF=\"%s\" ID=\"%s\" ADD_DATE=\"%d\">%s</A>\n",
			prefix,
			html.EscapeString(n.URL),
			html.EscapeString(n.ID),
			n.DateAdded.Unix(),
			html.EscapeString(n.Title),
		)
	}
}

// FromBookmarks groups stored bookmarks into one folder per category.
func FromBookmarks(bookmarks []model.Bookmark) []*Node {
	var folders []*Node
	byCategory := make(map[string]*Node)

	for _, bm := range bookmarks {
		folder, ok := byCategory[bm.Category]
		if !ok {
			folder = &Node{ID: model.GenerateUUID(), Title: bm.Category, DateAdded: bm.CreatedAt, Index: len(folders)}
			byCategory[bm.Category] = folder
			folders = append(folders, folder)
		}
		folder.Children = append(folder.Children, &Node{
			ID:        bm.ID,
			ParentID:  folder.ID,
			Index:     len(folder.Children),
			Title:     bm.Title,
			URL:       bm.URL,
			DateAdded: bm.CreatedAt,
		})
	}
	return folders
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Now()
	}
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.Unix(ts, 0)
}

// getTextContent returns the text content of a node.
func getTextContent(n *xhtml.Node) string {
	var text strings.Builder
	var extract func(*xhtml.Node)
	extract = func(n *xhtml.Node) {
		if n.Type == xhtml.TextNode {
			text.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return strings.TrimSpace(text.String())
}

// getAttr returns the value of an attribute, case-insensitive.
func getAttr(n *xhtml.Node, key string) string {
	key = strings.ToLower(key)
	for _, attr := range n.Attr {
		if strings.ToLower(attr.Key) == key {
			return attr.Val
		}
	}
	return ""
}

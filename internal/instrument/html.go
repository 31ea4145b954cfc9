package instrument

import (
	"bytes"
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// IsHTMLDocument decides HTML-document vs other-document routing per
// §4.2: a declared text/html content-type is authoritative; absent
// that, a body not starting with an XML prolog is treated as HTML.
func IsHTMLDocument(contentType string, body []byte) bool {
	if contentType != "" {
		return containsHTMLType(contentType)
	}
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	return !bytes.HasPrefix(trimmed, []byte("<?xml"))
}

func containsHTMLType(contentType string) bool {
	for _, want := range []string{"text/html", "application/xhtml+xml"} {
		if bytes.Contains([]byte(contentType), []byte(want)) {
			return true
		}
	}
	return false
}

// HTMLDocument instruments every inline <script> element (one without
// a src attribute) in body, leaving text nodes, attributes, and
// external script elements untouched; externals are intercepted and
// instrumented separately as Script responses. sourceID seeds every
// inline script's edge ids with the same document identity, folded
// with the script's ordinal to keep edge ids distinct between
// multiple inline scripts on one page.
func HTMLDocument(body []byte, sourceID uint64, edgeMapSize int) ([]byte, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("instrument: parse html: %w", err)
	}

	ordinal := uint64(0)
	var walk func(*html.Node) error
	walk = func(n *html.Node) error {
		if n.Type == html.ElementNode && n.DataAtom == atom.Script && !hasSrcAttr(n) {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				rewritten, err := Script(n.FirstChild.Data, sourceID^ordinal, edgeMapSize)
				if err != nil {
					return fmt.Errorf("inline script %d: %w", ordinal, err)
				}
				n.FirstChild.Data = rewritten
				ordinal++
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(doc); err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := html.Render(&out, doc); err != nil {
		return nil, fmt.Errorf("instrument: render html: %w", err)
	}
	return out.Bytes(), nil
}

func hasSrcAttr(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == "src" {
			return true
		}
	}
	return false
}

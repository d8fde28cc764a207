package cronista

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Selectors names the CSS classes of the quote cards.
type Selectors struct {
	Buy       string `json:"buy" yaml:"buy"`
	Sell      string `json:"sell" yaml:"sell"`
	Variation string `json:"variation" yaml:"variation"`
}

// DefaultSelectors matches the Mercados Online card layout.
func DefaultSelectors() Selectors {
	return Selectors{
		Buy:       "markets-online__card--buy",
		Sell:      "markets-online__card--sell",
		Variation: "markets-online__card--percentage",
	}
}

func (s Selectors) withDefaults() Selectors {
	d := DefaultSelectors()
	if s.Buy == "" {
		s.Buy = d.Buy
	}
	if s.Sell == "" {
		s.Sell = d.Sell
	}
	if s.Variation == "" {
		s.Variation = d.Variation
	}
	return s
}

// Fragments holds the raw text found on a quote page. Empty means the card
// was not present.
type Fragments struct {
	Buy       string
	Sell      string
	Variation string
}

// Empty reports whether nothing was found.
func (f Fragments) Empty() bool {
	return f.Buy == "" && f.Sell == "" && f.Variation == ""
}

// Extract parses an HTML document and pulls the buy, sell and variation
// fragments out of it.
func Extract(r io.Reader, sel Selectors) (Fragments, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Fragments{}, fmt.Errorf("parse html: %w", err)
	}
	sel = sel.withDefaults()
	return Fragments{
		Buy:       cardValue(doc, sel.Buy),
		Sell:      cardValue(doc, sel.Sell),
		Variation: cardValue(doc, sel.Variation),
	}, nil
}

// cardValue finds the first div carrying class and returns the trimmed text
// of its second descendant div. The first descendant holds the card caption.
func cardValue(doc *html.Node, class string) string {
	card := findDivByClass(doc, class)
	if card == nil {
		return ""
	}
	divs := descendantDivs(card)
	if len(divs) < 2 {
		return ""
	}
	return strings.TrimSpace(textContent(divs[1]))
}

func findDivByClass(n *html.Node, class string) *html.Node {
	if isDiv(n) && hasClass(n, class) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findDivByClass(c, class); found != nil {
			return found
		}
	}
	return nil
}

// descendantDivs lists div elements below n in document order.
func descendantDivs(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(p *html.Node) {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if isDiv(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(p *html.Node) {
		if p.Type == html.TextNode {
			sb.WriteString(p.Data)
		}
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func isDiv(n *html.Node) bool {
	return n.Type == html.ElementNode && n.DataAtom == atom.Div
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Namespace != "" || a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

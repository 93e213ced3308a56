package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Lang names the query language of a Query.
type Lang string

// Supported query languages.
const (
	LangCSS   Lang = "css"
	LangXPath Lang = "xpath"
)

// Query is one structural lookup relative to a node. An empty Expr addresses
// the node itself; a non-empty Attr reads that attribute instead of the text.
type Query struct {
	Lang Lang
	Expr string
	Attr string
}

// CSS builds a text query from a CSS selector.
func CSS(expr string) Query { return Query{Lang: LangCSS, Expr: expr} }

// CSSAttr builds an attribute query from a CSS selector.
func CSSAttr(expr, attr string) Query { return Query{Lang: LangCSS, Expr: expr, Attr: attr} }

// XPath builds a text query from an XPath expression.
func XPath(expr string) Query { return Query{Lang: LangXPath, Expr: expr} }

// XPathAttr builds an attribute query from an XPath expression.
func XPathAttr(expr, attr string) Query { return Query{Lang: LangXPath, Expr: expr, Attr: attr} }

// Self reads an attribute of the node itself.
func Self(attr string) Query { return Query{Lang: LangCSS, Attr: attr} }

// Nodes returns the nodes matched under root. Invalid expressions match nothing.
func (q Query) Nodes(root *html.Node) []*html.Node {
	if root == nil {
		return nil
	}
	if q.Expr == "" {
		return []*html.Node{root}
	}
	switch q.Lang {
	case LangXPath:
		nodes, err := htmlquery.QueryAll(root, q.Expr)
		if err != nil {
			return nil
		}
		return nodes
	default:
		return goquery.NewDocumentFromNode(root).Find(q.Expr).Nodes
	}
}

// Values returns the non-empty, whitespace-collapsed values matched under root.
func (q Query) Values(root *html.Node) []string {
	nodes := q.Nodes(root)
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		var raw string
		if q.Attr != "" {
			raw = htmlquery.SelectAttr(n, q.Attr)
		} else {
			raw = htmlquery.InnerText(n)
		}
		if v := collapse(raw); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Chain is an ordered list of candidate queries for one field.
type Chain []Query

// First returns the first non-empty value produced by the earliest query that
// yields one. Later queries are not evaluated once a value is found.
func (c Chain) First(node *html.Node) string {
	for _, q := range c {
		if values := q.Values(node); len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// All returns every value from the earliest query that yields at least one.
func (c Chain) All(node *html.Node) []string {
	for _, q := range c {
		if values := q.Values(node); len(values) > 0 {
			return values
		}
	}
	return nil
}

// Containers selects the entity nodes of a document: the first query that
// matches at least one node is used for the whole document.
func Containers(root *html.Node, queries []Query) []*html.Node {
	for _, q := range queries {
		if nodes := q.Nodes(root); len(nodes) > 0 {
			return nodes
		}
	}
	return nil
}

var whitespace = regexp.MustCompile(`\s+`)

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// Package extract turns a company web page into question/answer candidates.
//
// HTMLExtractor recognises the FAQ markup found on most small-business
// sites: schema.org FAQPage JSON-LD, <details>/<summary> accordions,
// <dl> definition lists and headings phrased as questions followed by
// their answer paragraphs. Answers are sanitized and returned as markdown.
//
// The output is deliberately loosely typed ([]map[string]any), the same
// shape a remote NLP extractor returns; callers validate it.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Candidate origins reported in the "origin" key.
const (
	OriginJSONLD  = "jsonld"
	OriginDetails = "details"
	OriginDL      = "dl"
	OriginHeading = "heading"
)

// HTMLExtractor extracts FAQ candidates from HTML. Safe for concurrent use.
type HTMLExtractor struct {
	policy *bluemonday.Policy
	md     *converter.Converter
}

// NewHTML returns an HTMLExtractor.
func NewHTML() *HTMLExtractor {
	return &HTMLExtractor{
		policy: bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// Extract parses content and returns candidates in document order,
// JSON-LD first. A question seen twice keeps its first answer.
func (x *HTMLExtractor) Extract(ctx context.Context, content []byte, baseURL string) ([]map[string]any, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("extract: parse html: %w", err)
	}

	c := &collector{x: x, baseURL: baseURL, seen: make(map[string]bool)}
	c.jsonLD(doc)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.walk(doc)
	return c.out, ctx.Err()
}

type collector struct {
	x       *HTMLExtractor
	baseURL string
	seen    map[string]bool
	out     []map[string]any
}

func (c *collector) add(question, answerHTML, origin string) {
	q := collapse(question)
	if q == "" {
		return
	}
	key := strings.ToLower(q)
	if c.seen[key] {
		return
	}
	a := c.x.answerMarkdown(answerHTML, c.baseURL)
	if a == "" {
		return
	}
	c.seen[key] = true
	c.out = append(c.out, map[string]any{"question": q, "answer": a, "origin": origin})
}

// answerMarkdown sanitizes an answer fragment and converts it to markdown.
// Falls back to the fragment's plain text when conversion yields nothing.
func (x *HTMLExtractor) answerMarkdown(fragment, baseURL string) string {
	clean := x.policy.Sanitize(fragment)
	md, err := x.md.ConvertString(clean, converter.WithDomain(baseURL))
	if err == nil && strings.TrimSpace(md) != "" {
		return strings.TrimSpace(md)
	}
	nodes, err := html.ParseFragment(strings.NewReader(clean), &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div})
	if err != nil {
		return ""
	}
	var parts []string
	for _, n := range nodes {
		if t := textOf(n); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

func (c *collector) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Nav, atom.Footer, atom.Template:
			return
		case atom.Details:
			c.details(n)
		case atom.Dl:
			c.definitionList(n)
		case atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			c.heading(n)
		}
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.walk(ch)
	}
}

func (c *collector) details(n *html.Node) {
	var question string
	var answer []*html.Node
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if ch.Type == html.ElementNode && ch.DataAtom == atom.Summary && question == "" {
			question = textOf(ch)
			continue
		}
		answer = append(answer, ch)
	}
	c.add(question, render(answer...), OriginDetails)
}

func (c *collector) definitionList(n *html.Node) {
	var question string
	var answer []*html.Node
	flush := func() {
		if question != "" && len(answer) > 0 {
			c.add(question, render(answer...), OriginDL)
		}
		question, answer = "", nil
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if ch.Type != html.ElementNode {
			continue
		}
		switch ch.DataAtom {
		case atom.Dt:
			flush()
			question = textOf(ch)
		case atom.Dd:
			for s := ch.FirstChild; s != nil; s = s.NextSibling {
				answer = append(answer, s)
			}
		}
	}
	flush()
}

// heading takes a heading phrased as a question and the siblings after it,
// up to the next heading of the same or a higher level.
func (c *collector) heading(n *html.Node) {
	question := textOf(n)
	if !isQuestion(question) {
		return
	}
	level := headingLevel(n)
	var answer []*html.Node
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			if l := headingLevel(s); l > 0 && l <= level {
				break
			}
		}
		answer = append(answer, s)
	}
	c.add(question, render(answer...), OriginHeading)
}

// jsonLD collects schema.org FAQPage questions from ld+json scripts.
func (c *collector) jsonLD(n *html.Node) {
	if n.Type == html.ElementNode && n.DataAtom == atom.Script &&
		strings.EqualFold(attr(n, "type"), "application/ld+json") && n.FirstChild != nil {
		var v any
		if json.Unmarshal([]byte(n.FirstChild.Data), &v) == nil {
			c.faqPage(v)
		}
		return
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.jsonLD(ch)
	}
}

func (c *collector) faqPage(v any) {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			c.faqPage(item)
		}
	case map[string]any:
		if graph, ok := t["@graph"]; ok {
			c.faqPage(graph)
		}
		if hasType(t["@type"], "FAQPage") {
			c.questions(t["mainEntity"])
		}
	}
}

func (c *collector) questions(v any) {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			c.questions(item)
		}
	case map[string]any:
		if !hasType(t["@type"], "Question") {
			return
		}
		name, _ := t["name"].(string)
		var text string
		if acc, ok := t["acceptedAnswer"].(map[string]any); ok {
			text, _ = acc["text"].(string)
		}
		c.add(name, text, OriginJSONLD)
	}
}

func hasType(v any, want string) bool {
	switch t := v.(type) {
	case string:
		return t == want
	case []any:
		for _, x := range t {
			if s, ok := x.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

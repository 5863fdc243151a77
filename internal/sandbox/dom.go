package sandbox

import (
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// DOM provides a lightweight document proxy for sandboxed scripts. It wraps
// the parsed document so selectors and mutations act on the same tree.
type DOM struct {
	doc     *goquery.Document
	head    string
	changes []DOMChange
	mu      sync.RWMutex
}

// Element is a handle on one element node of a DOM
type Element struct {
	dom  *DOM
	node *html.Node
}

// DOMChange represents a modification made by a script
type DOMChange struct {
	Type     string // set_attribute, set_text, set_html, set_head, remove
	Selector string
	Property string
	Value    string
}

// NewDOM creates an empty document
func NewDOM() *DOM {
	return &DOM{doc: goquery.NewDocumentFromNode(&html.Node{Type: html.DocumentNode})}
}

// ParseDOM builds the proxy from a parsed document
func ParseDOM(doc *goquery.Document) *DOM {
	return &DOM{doc: doc}
}

// Query returns the elements matching a CSS selector in document order
func (d *DOM) Query(selector string) ([]*Element, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, fmt.Errorf("empty selector")
	}
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	nodes := d.doc.FindMatcher(matcher).Nodes
	elems := make([]*Element, 0, len(nodes))
	for _, node := range nodes {
		elems = append(elems, &Element{dom: d, node: node})
	}
	return elems, nil
}

// ByID returns the first element with the given id, or nil
func (d *DOM) ByID(id string) *Element {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var found *html.Node
	d.doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr("id"); ok && v == id {
			found = s.Nodes[0]
			return false
		}
		return true
	})
	if found == nil {
		return nil
	}
	return &Element{dom: d, node: found}
}

// ByClass returns every element carrying all of the space separated classes
func (d *DOM) ByClass(names string) []*Element {
	want := strings.Fields(names)
	if len(want) == 0 {
		return nil
	}
	return d.filter(func(s *goquery.Selection) bool {
		for _, name := range want {
			if !s.HasClass(name) {
				return false
			}
		}
		return true
	})
}

// ByTag returns every element with the given tag name, or all for "*"
func (d *DOM) ByTag(tag string) []*Element {
	tag = strings.ToLower(tag)
	return d.filter(func(s *goquery.Selection) bool {
		return tag == "*" || goquery.NodeName(s) == tag
	})
}

func (d *DOM) filter(keep func(*goquery.Selection) bool) []*Element {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var elems []*Element
	d.doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		if keep(s) {
			elems = append(elems, &Element{dom: d, node: s.Nodes[0]})
		}
	})
	return elems
}

// Head returns the injected head content
func (d *DOM) Head() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.head
}

// SetHead replaces the head content
func (d *DOM) SetHead(head string) {
	d.mu.Lock()
	d.head = head
	d.mu.Unlock()
	d.RecordChange(DOMChange{Type: "set_head", Selector: "head", Property: "innerHTML", Value: head})
}

// GetChanges returns accumulated DOM changes
func (d *DOM) GetChanges() []DOMChange {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]DOMChange{}, d.changes...)
}

// RecordChange adds a DOM change
func (d *DOM) RecordChange(change DOMChange) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changes = append(d.changes, change)
}

func (e *Element) selection() *goquery.Selection {
	return goquery.NewDocumentFromNode(e.node).Selection
}

// TagName returns the lower case tag name
func (e *Element) TagName() string {
	return strings.ToLower(e.node.Data)
}

// ID returns the id attribute
func (e *Element) ID() string {
	id, _ := e.GetAttribute("id")
	return id
}

// ClassName returns the class attribute
func (e *Element) ClassName() string {
	class, _ := e.GetAttribute("class")
	return class
}

// Text returns the text content of e and its descendants. Script and style
// contents are not part of it.
func (e *Element) Text() string {
	e.dom.mu.RLock()
	defer e.dom.mu.RUnlock()

	var b strings.Builder
	writeText(&b, e.node)
	return b.String()
}

func writeText(b *strings.Builder, node *html.Node) {
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case html.TextNode:
			b.WriteString(child.Data)
		case html.ElementNode:
			if child.Data == "script" || child.Data == "style" {
				continue
			}
			writeText(b, child)
		}
	}
}

// HTML renders the markup of e's children
func (e *Element) HTML() string {
	e.dom.mu.RLock()
	defer e.dom.mu.RUnlock()

	out, err := e.selection().Html()
	if err != nil {
		return ""
	}
	return out
}

// SetText replaces the element's children with text
func (e *Element) SetText(text string) {
	e.dom.mu.Lock()
	defer e.dom.mu.Unlock()
	e.selection().SetText(text)
}

// SetHTML replaces the element's children with parsed markup
func (e *Element) SetHTML(markup string) {
	e.dom.mu.Lock()
	defer e.dom.mu.Unlock()
	e.selection().SetHtml(markup)
}

// GetAttribute retrieves attribute value
func (e *Element) GetAttribute(name string) (string, bool) {
	e.dom.mu.RLock()
	defer e.dom.mu.RUnlock()
	return e.selection().Attr(name)
}

// SetAttribute sets attribute value
func (e *Element) SetAttribute(name, value string) {
	e.dom.mu.Lock()
	defer e.dom.mu.Unlock()
	e.selection().SetAttr(name, value)
}

// Selector returns a selector that identifies e for change records
func (e *Element) Selector() string {
	if id := e.ID(); id != "" {
		return "#" + id
	}
	return e.TagName()
}

// Remove detaches the element from its parent
func (e *Element) Remove() {
	e.dom.mu.Lock()
	defer e.dom.mu.Unlock()
	e.selection().Remove()
}

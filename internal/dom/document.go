// Package dom holds the rendering substrate the pipeline works against: a
// mutable HTML tree queried with CSS selectors, with change notifications for
// inserted nodes and title changes. The live browser session mirrors the real
// tab into a Document; tests build one from fixtures.
package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Mutation describes elements inserted by a single Insert call
type Mutation struct {
	Added []*Element
}

// Document is a live, observable HTML tree
type Document struct {
	mu       sync.RWMutex
	root     *html.Node
	location string

	obsMu          sync.Mutex
	nextObserver   int
	observers      map[int]func(Mutation)
	titleObservers map[int]func()
}

// Parse builds a document from HTML
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &Document{
		root:           root,
		observers:      make(map[int]func(Mutation)),
		titleObservers: make(map[int]func()),
	}, nil
}

// ParseString builds a document from an HTML string
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Blank returns an empty document with a #contents container for mirrored feed nodes
func Blank() *Document {
	doc, err := ParseString(`<html><head><title></title></head><body><div id="contents"></div></body></html>`)
	if err != nil {
		panic(err) // static markup
	}
	return doc
}

// Root returns the document root element (<html>)
func (d *Document) Root() *Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return d.wrap(c)
		}
	}
	return nil
}

// QueryAll returns every element matching sel in document order
func (d *Document) QueryAll(sel string) []*Element {
	s := compile(sel)
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.wrapAll(queryAll(d.root, s))
}

// Query returns the first element matching sel, or nil
func (d *Document) Query(sel string) *Element {
	s := compile(sel)
	d.mu.RLock()
	defer d.mu.RUnlock()
	if n := queryFirst(d.root, s); n != nil {
		return d.wrap(n)
	}
	return nil
}

// Insert parses markup and appends the resulting nodes to parent, then
// notifies mutation observers with the inserted top-level elements.
func (d *Document) Insert(parent *Element, markup string) ([]*Element, error) {
	if parent == nil || parent.doc != d {
		return nil, fmt.Errorf("insert target does not belong to this document")
	}
	return d.insert(parent.n, nil, markup)
}

// Replace parses markup into the position of old, detaches old, and
// notifies observers with the new top-level elements.
func (d *Document) Replace(old *Element, markup string) ([]*Element, error) {
	if old == nil || old.doc != d || old.n.Parent == nil {
		return nil, fmt.Errorf("replace target is not attached to this document")
	}
	added, err := d.insert(old.n.Parent, old.n, markup)
	if err != nil {
		return nil, err
	}
	d.Remove(old)
	return added, nil
}

func (d *Document) insert(parent, before *html.Node, markup string) ([]*Element, error) {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fragment: %w", err)
	}

	d.mu.Lock()
	var added []*Element
	for _, n := range nodes {
		parent.InsertBefore(n, before)
		if n.Type == html.ElementNode {
			added = append(added, d.wrap(n))
		}
	}
	d.mu.Unlock()

	if len(added) > 0 {
		d.notify(Mutation{Added: added})
	}
	return added, nil
}

// Remove detaches el from the tree
func (d *Document) Remove(el *Element) {
	if el == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if el.n.Parent != nil {
		el.n.Parent.RemoveChild(el.n)
	}
}

// Location returns the current page URL
func (d *Document) Location() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.location
}

// Title returns the text of the <title> element
func (d *Document) Title() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if t := queryFirst(d.root, compile("title")); t != nil {
		return strings.TrimSpace(textOf(t))
	}
	return ""
}

// Navigate records a location change and rewrites the <title>, which is what
// title observers watch on a single-page application.
func (d *Document) Navigate(location, title string) {
	d.mu.Lock()
	d.location = location
	t := queryFirst(d.root, compile("title"))
	if t == nil {
		t = &html.Node{Type: html.ElementNode, Data: "title", DataAtom: atom.Title}
		if head := queryFirst(d.root, compile("head")); head != nil {
			head.AppendChild(t)
		} else {
			d.root.AppendChild(t)
		}
	}
	for c := t.FirstChild; c != nil; c = t.FirstChild {
		t.RemoveChild(c)
	}
	t.AppendChild(&html.Node{Type: html.TextNode, Data: title})
	d.mu.Unlock()

	d.obsMu.Lock()
	fns := make([]func(), 0, len(d.titleObservers))
	for _, fn := range d.titleObservers {
		fns = append(fns, fn)
	}
	d.obsMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Observe registers fn for insert notifications. The returned func unregisters it.
func (d *Document) Observe(fn func(Mutation)) func() {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	id := d.nextObserver
	d.nextObserver++
	d.observers[id] = fn
	return func() {
		d.obsMu.Lock()
		delete(d.observers, id)
		d.obsMu.Unlock()
	}
}

// ObserveTitle registers fn for title changes. The returned func unregisters it.
func (d *Document) ObserveTitle(fn func()) func() {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	id := d.nextObserver
	d.nextObserver++
	d.titleObservers[id] = fn
	return func() {
		d.obsMu.Lock()
		delete(d.titleObservers, id)
		d.obsMu.Unlock()
	}
}

// HTML renders the whole document
func (d *Document) HTML() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var buf bytes.Buffer
	_ = html.Render(&buf, d.root)
	return buf.String()
}

func (d *Document) notify(m Mutation) {
	d.obsMu.Lock()
	fns := make([]func(Mutation), 0, len(d.observers))
	for _, fn := range d.observers {
		fns = append(fns, fn)
	}
	d.obsMu.Unlock()
	for _, fn := range fns {
		fn(m)
	}
}

func (d *Document) wrap(n *html.Node) *Element {
	return &Element{doc: d, n: n}
}

func (d *Document) wrapAll(nodes []*html.Node) []*Element {
	out := make([]*Element, len(nodes))
	for i, n := range nodes {
		out[i] = d.wrap(n)
	}
	return out
}

var selectorCache sync.Map // string -> cascadia.Selector

// compile returns a cached compiled selector. Selectors are program
// constants, so an invalid one panics.
func compile(sel string) cascadia.Selector {
	if s, ok := selectorCache.Load(sel); ok {
		return s.(cascadia.Selector)
	}
	s, err := cascadia.Compile(sel)
	if err != nil {
		panic(fmt.Sprintf("dom: invalid selector %q: %v", sel, err))
	}
	selectorCache.Store(sel, s)
	return s
}

// queryAll collects matching descendants of n (excluding n) in document order
func queryAll(n *html.Node, s cascadia.Selector) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(p *html.Node) {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if s.Match(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

func queryFirst(n *html.Node, s cascadia.Selector) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if s.Match(c) {
			return c
		}
		if found := queryFirst(c, s); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textOf(c))
	}
	return sb.String()
}

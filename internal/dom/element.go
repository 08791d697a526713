package dom

import (
	"bytes"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Element is a handle to a node in a Document. Two Elements wrapping the same
// node compare equal with Same.
type Element struct {
	doc *Document
	n   *html.Node
}

// Same reports whether both handles refer to the same node
func (e *Element) Same(o *Element) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.n == o.n
}

// Document returns the owning document
func (e *Element) Document() *Document {
	return e.doc
}

// Tag returns the lowercase tag name
func (e *Element) Tag() string {
	return e.n.Data
}

// ID returns the id attribute
func (e *Element) ID() string {
	return e.Attr("id")
}

// Attr returns the attribute value, or "" when absent
func (e *Element) Attr(name string) string {
	v, _ := e.LookupAttr(name)
	return v
}

// LookupAttr returns the attribute value and whether it is present
func (e *Element) LookupAttr(name string) (string, bool) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return getAttr(e.n, name)
}

// SetAttr sets or replaces an attribute
func (e *Element) SetAttr(name, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	setAttr(e.n, name, value)
}

// RemoveAttr deletes an attribute
func (e *Element) RemoveAttr(name string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	removeAttr(e.n, name)
}

// Data reads a data-* attribute ("yt-filtered" reads data-yt-filtered)
func (e *Element) Data(key string) string {
	return e.Attr("data-" + key)
}

// SetData writes a data-* attribute
func (e *Element) SetData(key, value string) {
	e.SetAttr("data-"+key, value)
}

// DeleteData removes a data-* attribute
func (e *Element) DeleteData(key string) {
	e.RemoveAttr("data-" + key)
}

// Text returns the concatenated text content
func (e *Element) Text() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return textOf(e.n)
}

// Parent returns the parent element, or nil at the root
func (e *Element) Parent() *Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	if p := e.n.Parent; p != nil && p.Type == html.ElementNode {
		return e.doc.wrap(p)
	}
	return nil
}

// Children returns the child elements
func (e *Element) Children() []*Element {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	var out []*Element
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, e.doc.wrap(c))
		}
	}
	return out
}

// Query returns the first descendant matching sel, or nil
func (e *Element) Query(sel string) *Element {
	s := compile(sel)
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	if n := queryFirst(e.n, s); n != nil {
		return e.doc.wrap(n)
	}
	return nil
}

// QueryAll returns all descendants matching sel in document order
func (e *Element) QueryAll(sel string) []*Element {
	s := compile(sel)
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.doc.wrapAll(queryAll(e.n, s))
}

// Matches reports whether the element itself matches sel
func (e *Element) Matches(sel string) bool {
	s := compile(sel)
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return s.Match(e.n)
}

// Closest returns the nearest inclusive ancestor matching sel, or nil
func (e *Element) Closest(sel string) *Element {
	s := compile(sel)
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	for n := e.n; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && s.Match(n) {
			return e.doc.wrap(n)
		}
	}
	return nil
}

// HasClass reports whether the class list contains name
func (e *Element) HasClass(name string) bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	v, _ := getAttr(e.n, "class")
	for _, c := range strings.Fields(v) {
		if c == name {
			return true
		}
	}
	return false
}

// AddClass appends name to the class list if missing
func (e *Element) AddClass(name string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	v, _ := getAttr(e.n, "class")
	classes := strings.Fields(v)
	for _, c := range classes {
		if c == name {
			return
		}
	}
	setAttr(e.n, "class", strings.Join(append(classes, name), " "))
}

// RemoveClass drops name from the class list
func (e *Element) RemoveClass(name string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	v, ok := getAttr(e.n, "class")
	if !ok {
		return
	}
	var kept []string
	for _, c := range strings.Fields(v) {
		if c != name {
			kept = append(kept, c)
		}
	}
	setAttr(e.n, "class", strings.Join(kept, " "))
}

// Style returns an inline style property
func (e *Element) Style(prop string) string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	v, _ := getAttr(e.n, "style")
	for _, d := range parseStyle(v) {
		if d.prop == prop {
			return d.value
		}
	}
	return ""
}

// SetStyle sets an inline style property
func (e *Element) SetStyle(prop, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	v, _ := getAttr(e.n, "style")
	decls := parseStyle(v)
	found := false
	for i := range decls {
		if decls[i].prop == prop {
			decls[i].value = value
			found = true
		}
	}
	if !found {
		decls = append(decls, decl{prop: prop, value: value})
	}
	setAttr(e.n, "style", formatStyle(decls))
}

// RemoveStyle deletes an inline style property
func (e *Element) RemoveStyle(prop string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	v, ok := getAttr(e.n, "style")
	if !ok {
		return
	}
	var kept []decl
	for _, d := range parseStyle(v) {
		if d.prop != prop {
			kept = append(kept, d)
		}
	}
	if len(kept) == 0 {
		removeAttr(e.n, "style")
		return
	}
	setAttr(e.n, "style", formatStyle(kept))
}

// Hide sets display:none
func (e *Element) Hide() {
	e.SetStyle("display", "none")
}

// Show removes an inline display:none
func (e *Element) Show() {
	if e.Hidden() {
		e.RemoveStyle("display")
	}
}

// Hidden reports whether the element carries display:none
func (e *Element) Hidden() bool {
	return e.Style("display") == "none"
}

// AppendElement creates a child element with the given attributes and text
func (e *Element) AppendElement(tag string, attrs map[string]string, text string) *Element {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n.Attr = append(n.Attr, html.Attribute{Key: k, Val: attrs[k]})
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}

	e.doc.mu.Lock()
	e.n.AppendChild(n)
	e.doc.mu.Unlock()
	return e.doc.wrap(n)
}

// OuterHTML renders the element and its subtree
func (e *Element) OuterHTML() string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	var buf bytes.Buffer
	_ = html.Render(&buf, e.n)
	return buf.String()
}

func getAttr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(n *html.Node, name string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

type decl struct {
	prop  string
	value string
}

func parseStyle(s string) []decl {
	var out []decl
	for _, part := range strings.Split(s, ";") {
		prop, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		if prop == "" {
			continue
		}
		out = append(out, decl{prop: prop, value: strings.TrimSpace(value)})
	}
	return out
}

func formatStyle(decls []decl) string {
	parts := make([]string, len(decls))
	for i, d := range decls {
		parts[i] = d.prop + ": " + d.value
	}
	return strings.Join(parts, "; ")
}

package env

import (
	"bytes"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultMarkup is the document a new environment starts with.
const DefaultMarkup = "<!DOCTYPE html><html><head></head><body></body></html>"

// Window is the global object of a window context.
type Window struct {
	document *Document
	props    *Object
}

// NewWindow creates a window owning doc.
func NewWindow(doc *Document) *Window {
	return &Window{document: doc, props: NewObject()}
}

// Document returns the window's document.
func (w *Window) Document() *Document {
	return w.document
}

// Set assigns a property on the window.
func (w *Window) Set(name string, v Value) {
	w.props.Set(name, v)
}

// StringTag implements Tagger.
func (w *Window) StringTag() string { return "Window" }

func (w *Window) property(name string) Value {
	switch name {
	case "document":
		if w.document == nil {
			return nil
		}
		return w.document
	case "self", "window", "globalThis":
		return w
	}
	if v, ok := w.props.Get(name); ok {
		return v
	}
	return Undefined
}

// Global is the global object of a non-window context, such as a worker
// scope or a server-side runtime.
type Global struct {
	tag   string
	props *Object
}

// NewGlobal creates a global object reporting tag as its class.
func NewGlobal(tag string) *Global {
	return &Global{tag: tag, props: NewObject()}
}

// Set assigns a property on the global object.
func (g *Global) Set(name string, v Value) {
	g.props.Set(name, v)
}

// StringTag implements Tagger.
func (g *Global) StringTag() string { return g.tag }

// Document is an HTML document tree.
type Document struct {
	mu       sync.Mutex
	root     *html.Node
	elements map[*html.Node]*Element
}

// ParseDocument parses markup into a document. Missing html, head and body
// elements are synthesized.
func ParseDocument(markup string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}
	return &Document{root: root, elements: make(map[*html.Node]*Element)}, nil
}

// StringTag implements Tagger.
func (d *Document) StringTag() string { return "HTMLDocument" }

// Body returns the body element, or nil when the document has none.
func (d *Document) Body() *Element {
	n := findElement(d.root, atom.Body)
	if n == nil {
		return nil
	}
	return d.wrap(n)
}

// DocumentElement returns the root html element.
func (d *Document) DocumentElement() *Element {
	n := findElement(d.root, atom.Html)
	if n == nil {
		return nil
	}
	return d.wrap(n)
}

// CreateElement creates a detached element.
func (d *Document) CreateElement(tag string) (*Element, error) {
	if tag == "" || strings.ContainsAny(tag, " \t\n\f\r<>/=\"'") {
		return nil, DOMException("InvalidCharacterError",
			"The tag name provided ('"+tag+"') is not a valid name.")
	}
	name := strings.ToLower(tag)
	n := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Lookup([]byte(name)),
		Data:     name,
	}
	return d.wrap(n), nil
}

// Render writes the whole document as HTML.
func (d *Document) Render() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf bytes.Buffer
	_ = html.Render(&buf, d.root)
	return buf.String()
}

func (d *Document) property(name string) Value {
	switch name {
	case "body":
		if b := d.Body(); b != nil {
			return b
		}
		return nil
	case "documentElement":
		if e := d.DocumentElement(); e != nil {
			return e
		}
		return nil
	}
	return Undefined
}

// wrap returns the single Element that stands for n.
func (d *Document) wrap(n *html.Node) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.elements[n]; ok {
		return e
	}
	e := &Element{doc: d, node: n}
	d.elements[n] = e
	return e
}

// release stops tracking e when it is no longer part of the document tree.
func (d *Document) release(e *Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	top := e.node
	for top.Parent != nil {
		top = top.Parent
	}
	if top != d.root && d.elements[e.node] == e {
		delete(d.elements, e.node)
	}
}

// Element is an element node of a Document.
type Element struct {
	doc  *Document
	node *html.Node
}

// Document returns the owner document.
func (e *Element) Document() *Document { return e.doc }

// Drop implements heap.Dropper. A detached element is forgotten by its
// document once a handle to it is released.
func (e *Element) Drop() {
	e.doc.release(e)
}

// TagName returns the upper-case tag name.
func (e *Element) TagName() string {
	return strings.ToUpper(e.node.Data)
}

// Parent returns the parent element, or nil.
func (e *Element) Parent() *Element {
	p := e.node.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return e.doc.wrap(p)
}

// StringTag implements Tagger.
func (e *Element) StringTag() string {
	if name, ok := elementClasses[e.node.DataAtom]; ok {
		return name
	}
	return "HTMLElement"
}

var elementClasses = map[atom.Atom]string{
	atom.Html:   "HTMLHtmlElement",
	atom.Head:   "HTMLHeadElement",
	atom.Body:   "HTMLBodyElement",
	atom.Div:    "HTMLDivElement",
	atom.Span:   "HTMLSpanElement",
	atom.P:      "HTMLParagraphElement",
	atom.A:      "HTMLAnchorElement",
	atom.Ul:     "HTMLUListElement",
	atom.Ol:     "HTMLOListElement",
	atom.Li:     "HTMLLIElement",
	atom.H1:     "HTMLHeadingElement",
	atom.H2:     "HTMLHeadingElement",
	atom.H3:     "HTMLHeadingElement",
	atom.Button: "HTMLButtonElement",
	atom.Input:  "HTMLInputElement",
	atom.Img:    "HTMLImageElement",
	atom.Script: "HTMLScriptElement",
	atom.Style:  "HTMLStyleElement",
}

// IsHTMLElement reports whether v is an element in the HTML namespace.
func IsHTMLElement(v Value) bool {
	e, ok := v.(*Element)
	return ok && e.node.Namespace == ""
}

// InsertAdjacentHTML parses markup and inserts the resulting nodes relative
// to the element. position is one of beforebegin, afterbegin, beforeend and
// afterend, compared case-insensitively.
func (e *Element) InsertAdjacentHTML(position, markup string) error {
	pos := strings.ToLower(position)

	var context *html.Node
	switch pos {
	case "beforebegin", "afterend":
		p := e.node.Parent
		if p == nil || p.Type == html.DocumentNode {
			return DOMException("NoModificationAllowedError",
				"The element has no parent.")
		}
		context = p
	case "afterbegin", "beforeend":
		context = e.node
	default:
		return DOMException("SyntaxError",
			"The value provided ('"+position+"') is not one of 'beforeBegin', 'afterBegin', 'beforeEnd', or 'afterEnd'.")
	}

	nodes, err := html.ParseFragment(strings.NewReader(markup), fragmentContext(context))
	if err != nil {
		return DOMException("SyntaxError", err.Error())
	}

	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	switch pos {
	case "beforebegin":
		for _, n := range nodes {
			e.node.Parent.InsertBefore(n, e.node)
		}
	case "afterbegin":
		first := e.node.FirstChild
		for _, n := range nodes {
			e.node.InsertBefore(n, first)
		}
	case "beforeend":
		for _, n := range nodes {
			e.node.AppendChild(n)
		}
	case "afterend":
		next := e.node.NextSibling
		for _, n := range nodes {
			e.node.Parent.InsertBefore(n, next)
		}
	}
	return nil
}

// fragmentContext substitutes a body element for contexts the fragment
// parser cannot use.
func fragmentContext(n *html.Node) *html.Node {
	if n.Type != html.ElementNode || n.DataAtom == atom.Html {
		return &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
	}
	return n
}

// SetInnerHTML replaces the element's children with parsed markup.
func (e *Element) SetInnerHTML(markup string) error {
	nodes, err := html.ParseFragment(strings.NewReader(markup), fragmentContext(e.node))
	if err != nil {
		return DOMException("SyntaxError", err.Error())
	}

	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for c := e.node.FirstChild; c != nil; {
		next := c.NextSibling
		e.node.RemoveChild(c)
		c = next
	}
	for _, n := range nodes {
		e.node.AppendChild(n)
	}
	return nil
}

// AppendChild moves child to the end of the element's children.
func (e *Element) AppendChild(child *Element) (*Element, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	for n := e.node; n != nil; n = n.Parent {
		if n == child.node {
			return nil, DOMException("HierarchyRequestError",
				"The new child element contains the parent.")
		}
	}
	if child.node.Parent != nil {
		child.node.Parent.RemoveChild(child.node)
	}
	e.node.AppendChild(child.node)
	if child.doc == e.doc {
		e.doc.elements[child.node] = child
	}
	return child, nil
}

// InnerHTML renders the element's children.
func (e *Element) InnerHTML() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	var buf bytes.Buffer
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

// OuterHTML renders the element including its own tags.
func (e *Element) OuterHTML() string {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	var buf bytes.Buffer
	_ = html.Render(&buf, e.node)
	return buf.String()
}

func (e *Element) property(name string) Value {
	switch name {
	case "tagName":
		return e.TagName()
	case "innerHTML":
		return e.InnerHTML()
	case "outerHTML":
		return e.OuterHTML()
	case "parentElement":
		if p := e.Parent(); p != nil {
			return p
		}
		return nil
	}
	return Undefined
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

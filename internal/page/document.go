package page

import (
	"errors"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/nao1215/protectmyart/internal/metascan"
)

// ErrNotInDocument is returned when a node does not belong to the document.
var ErrNotInDocument = errors.New("node is not part of the document")

// MutationType distinguishes structural changes from attribute changes.
type MutationType int

const (
	// MutationChildList reports nodes added to or removed from a parent.
	MutationChildList MutationType = iota

	// MutationAttributes reports a changed attribute on an element.
	MutationAttributes
)

// String returns the mutation type name.
func (t MutationType) String() string {
	switch t {
	case MutationChildList:
		return "childList"
	case MutationAttributes:
		return "attributes"
	default:
		return "unknown"
	}
}

// Mutation describes one change to a Document. Nodes carried by a Mutation
// are detached copies taken when the change happened, so subscribers can
// read them without holding the document lock.
type Mutation struct {
	// Type is the kind of change.
	Type MutationType

	// Target is the parent node for child list changes and the changed
	// element for attribute changes.
	Target *html.Node

	// Added holds nodes inserted by a child list change.
	Added []*html.Node

	// Removed holds nodes removed by a child list change.
	Removed []*html.Node

	// AttributeName is the changed attribute for attribute changes.
	AttributeName string

	// OldValue is the attribute value before the change.
	OldValue string
}

// subscription is one mutation subscriber.
type subscription struct {
	ch   chan Mutation
	done chan struct{}
}

// Document is the mutable node tree of a loaded page.
// All methods are safe for concurrent use.
type Document struct {
	url string

	mu   sync.RWMutex
	root *html.Node

	subMu  sync.Mutex
	subs   map[int]*subscription
	nextID int
}

// New wraps an already parsed node tree.
func New(url string, root *html.Node) *Document {
	if root == nil {
		root = &html.Node{Type: html.DocumentNode}
	}
	return &Document{
		url:  url,
		root: root,
		subs: make(map[int]*subscription),
	}
}

// Parse parses page source into a Document.
func Parse(url string, r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return New(url, root), nil
}

// ParseString parses page source held in a string.
func ParseString(url, source string) (*Document, error) {
	return Parse(url, strings.NewReader(source))
}

// URL returns the address the document was loaded from.
func (d *Document) URL() string {
	return d.url
}

// RobotsContents returns the content attribute of every robots meta tag.
func (d *Document) RobotsContents() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return metascan.RobotsContents(d.root)
}

// Scan returns the opt-out directives currently declared by the document.
func (d *Document) Scan() metascan.Flags {
	return metascan.FlagsFromContents(d.RobotsContents())
}

// Render serializes the current tree back to HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return html.Render(w, d.root)
}

// AppendMeta appends <meta name=... content=...> to the document head and
// returns the new element.
func (d *Document) AppendMeta(name, content string) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     "meta",
		DataAtom: atom.Meta,
		Attr: []html.Attribute{
			{Key: "name", Val: name},
			{Key: "content", Val: content},
		},
	}
	d.appendTo(n, atom.Head)
	return n
}

// AppendElement appends an empty element with the given tag to the body.
func (d *Document) AppendElement(tag string) *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
	d.appendTo(n, atom.Body)
	return n
}

func (d *Document) appendTo(n *html.Node, container atom.Atom) {
	d.mu.Lock()
	parent := findElement(d.root, container)
	if parent == nil {
		parent = d.root
	}
	parent.AppendChild(n)
	m := Mutation{Type: MutationChildList, Target: snapshot(parent), Added: []*html.Node{snapshot(n)}}
	d.mu.Unlock()

	d.publish(m)
}

// Remove detaches n from the document.
func (d *Document) Remove(n *html.Node) error {
	d.mu.Lock()
	if n == nil || n.Parent == nil || !contains(d.root, n) {
		d.mu.Unlock()
		return ErrNotInDocument
	}
	parent := n.Parent
	parent.RemoveChild(n)
	m := Mutation{Type: MutationChildList, Target: snapshot(parent), Removed: []*html.Node{snapshot(n)}}
	d.mu.Unlock()

	d.publish(m)
	return nil
}

// SetAttr sets attribute key on element n, adding it when missing.
func (d *Document) SetAttr(n *html.Node, key, val string) error {
	d.mu.Lock()
	if n == nil || !contains(d.root, n) {
		d.mu.Unlock()
		return ErrNotInDocument
	}
	var old string
	found := false
	for i, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			old = a.Val
			n.Attr[i].Val = val
			found = true
			break
		}
	}
	if !found {
		n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
	}
	m := Mutation{Type: MutationAttributes, Target: snapshot(n), AttributeName: strings.ToLower(key), OldValue: old}
	d.mu.Unlock()

	d.publish(m)
	return nil
}

// Subscribe registers for mutation records. The returned channel is never
// closed; callers stop reading after calling cancel. Delivery blocks until
// the subscriber reads or cancels, so no mutation is dropped.
func (d *Document) Subscribe(buffer int) (<-chan Mutation, func()) {
	if buffer < 0 {
		buffer = 0
	}
	sub := &subscription{
		ch:   make(chan Mutation, buffer),
		done: make(chan struct{}),
	}

	d.subMu.Lock()
	id := d.nextID
	d.nextID++
	d.subs[id] = sub
	d.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.subMu.Lock()
			delete(d.subs, id)
			d.subMu.Unlock()
			close(sub.done)
		})
	}
	return sub.ch, cancel
}

// publish delivers m to every current subscriber.
func (d *Document) publish(m Mutation) {
	d.subMu.Lock()
	subs := make([]*subscription, 0, len(d.subs))
	for _, s := range d.subs {
		subs = append(subs, s)
	}
	d.subMu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- m:
		case <-s.done:
		}
	}
}

// snapshot returns a detached copy of element n without children.
func snapshot(n *html.Node) *html.Node {
	attrs := make([]html.Attribute, len(n.Attr))
	copy(attrs, n.Attr)
	return &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      attrs,
	}
}

// findElement returns the first element with atom a in document order.
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

// contains reports whether n is root or one of its descendants.
func contains(root, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

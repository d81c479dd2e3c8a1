package page

import "strings"

// Attrs is the attribute set of an element.
type Attrs map[string]string

// Element is a node of the page structure. The tree is immutable once the
// document has been built; nothing in the capture pipeline mutates it.
type Element struct {
	Tag      string
	Parent   *Element
	Children []*Element

	attrs   Attrs
	content []node
}

// node keeps text and child elements in document order so TextContent
// matches what a browser reports.
type node struct {
	text  string
	child *Element
}

// NewElement builds an element. Content items are either strings (text) or
// *Element children, kept in the given order.
func NewElement(tag string, attrs Attrs, content ...any) *Element {
	el := &Element{Tag: strings.ToLower(tag), attrs: Attrs{}}
	for k, v := range attrs {
		el.attrs[strings.ToLower(k)] = v
	}
	for _, c := range content {
		switch v := c.(type) {
		case string:
			el.appendText(v)
		case *Element:
			el.appendChild(v)
		}
	}
	return el
}

func (e *Element) appendChild(child *Element) {
	child.Parent = e
	e.Children = append(e.Children, child)
	e.content = append(e.content, node{child: child})
}

func (e *Element) appendText(text string) {
	e.content = append(e.content, node{text: text})
}

// Attr reports whether the element exposes the named attribute.
func (e *Element) Attr(name string) (string, bool) {
	if e == nil {
		return "", false
	}
	v, ok := e.attrs[strings.ToLower(name)]
	return v, ok
}

func (e *Element) ID() string {
	v, _ := e.Attr("id")
	return v
}

// ClassName is the raw class attribute.
func (e *Element) ClassName() string {
	v, _ := e.Attr("class")
	return v
}

func (e *Element) ClassList() []string {
	return strings.Fields(e.ClassName())
}

func (e *Element) HasClass(class string) bool {
	for _, c := range e.ClassList() {
		if c == class {
			return true
		}
	}
	return false
}

// TextContent concatenates all descendant text in document order.
func (e *Element) TextContent() string {
	var b strings.Builder
	e.writeText(&b)
	return b.String()
}

func (e *Element) writeText(b *strings.Builder) {
	for _, n := range e.content {
		if n.child != nil {
			n.child.writeText(b)
			continue
		}
		b.WriteString(n.text)
	}
}

// Walk visits e and its descendants in document order.
func (e *Element) Walk(fn func(*Element)) {
	fn(e)
	for _, c := range e.Children {
		c.Walk(fn)
	}
}

// QueryFirst returns the first descendant (excluding e) matching pred.
func (e *Element) QueryFirst(pred func(*Element) bool) *Element {
	for _, c := range e.Children {
		if pred(c) {
			return c
		}
		if found := c.QueryFirst(pred); found != nil {
			return found
		}
	}
	return nil
}

// QueryAll returns every descendant (excluding e) matching pred.
func (e *Element) QueryAll(pred func(*Element) bool) []*Element {
	var out []*Element
	for _, c := range e.Children {
		c.Walk(func(el *Element) {
			if pred(el) {
				out = append(out, el)
			}
		})
	}
	return out
}

// Closest returns the nearest of e and its ancestors matching pred.
func (e *Element) Closest(pred func(*Element) bool) *Element {
	for el := e; el != nil; el = el.Parent {
		if pred(el) {
			return el
		}
	}
	return nil
}

// IsHeading reports h1 through h6.
func IsHeading(e *Element) bool {
	switch e.Tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

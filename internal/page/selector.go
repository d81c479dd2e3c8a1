package page

import (
	"fmt"
	"strings"
)

// Selector is a chain of compound selectors joined by the descendant
// combinator, e.g. "div.product #buy". Only tag, #id and .class parts are
// understood.
type Selector struct {
	parts []compound
}

type compound struct {
	tag     string
	id      string
	classes []string
}

func ParseSelector(s string) (Selector, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Selector{}, fmt.Errorf("empty selector")
	}
	sel := Selector{parts: make([]compound, 0, len(fields))}
	for _, f := range fields {
		c, err := parseCompound(f)
		if err != nil {
			return Selector{}, fmt.Errorf("selector %q: %w", s, err)
		}
		sel.parts = append(sel.parts, c)
	}
	return sel, nil
}

func parseCompound(s string) (compound, error) {
	var c compound
	i := 0
	for i < len(s) && s[i] != '#' && s[i] != '.' {
		i++
	}
	c.tag = strings.ToLower(s[:i])
	for i < len(s) {
		marker := s[i]
		j := i + 1
		for j < len(s) && s[j] != '#' && s[j] != '.' {
			j++
		}
		name := s[i+1 : j]
		if name == "" {
			return compound{}, fmt.Errorf("dangling %q", marker)
		}
		if marker == '#' {
			c.id = name
		} else {
			c.classes = append(c.classes, name)
		}
		i = j
	}
	if c.tag == "*" {
		c.tag = ""
	}
	return c, nil
}

func (c compound) match(el *Element) bool {
	if c.tag != "" && el.Tag != c.tag {
		return false
	}
	if c.id != "" && el.ID() != c.id {
		return false
	}
	for _, class := range c.classes {
		if !el.HasClass(class) {
			return false
		}
	}
	return true
}

// Match reports whether el is selected: the last part must match el and
// the earlier parts must match ancestors in order.
func (s Selector) Match(el *Element) bool {
	if len(s.parts) == 0 || !s.parts[len(s.parts)-1].match(el) {
		return false
	}
	anc := el.Parent
	for i := len(s.parts) - 2; i >= 0; i-- {
		for anc != nil && !s.parts[i].match(anc) {
			anc = anc.Parent
		}
		if anc == nil {
			return false
		}
		anc = anc.Parent
	}
	return true
}

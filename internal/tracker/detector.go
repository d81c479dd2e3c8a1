package tracker

import (
	"strings"

	"github.com/vincentbai/behaviortrace/internal/page"
)

// Product is a detected product element. Element is a reference into the
// page, never serialized.
type Product struct {
	Element *page.Element
	Price   *string
	Title   *string
}

// ProductMatcher decides which elements are products. Candidate is a cheap
// predicate over the element's own attributes; Confirm inspects descendants.
type ProductMatcher interface {
	Candidate(el *page.Element) bool
	Confirm(el *page.Element) (Product, bool)
}

// HeuristicMatcher flags elements whose id or class mentions "product"
// (any case), or <product> tags, and confirms them when they contain a
// price-like element or a heading.
type HeuristicMatcher struct{}

func (HeuristicMatcher) Candidate(el *page.Element) bool {
	return strings.Contains(strings.ToLower(el.ID()), "product") ||
		strings.Contains(strings.ToLower(el.ClassName()), "product") ||
		el.Tag == "product"
}

func (HeuristicMatcher) Confirm(el *page.Element) (Product, bool) {
	price := el.QueryFirst(isPriceElement)
	title := el.QueryFirst(page.IsHeading)
	if price == nil && title == nil {
		return Product{}, false
	}
	return Product{
		Element: el,
		Price:   textOf(price),
		Title:   textOf(title),
	}, true
}

func isPriceElement(el *page.Element) bool {
	return strings.Contains(el.ClassName(), "price") || strings.Contains(el.ID(), "price")
}

func textOf(el *page.Element) *string {
	if el == nil {
		return nil
	}
	text := el.TextContent()
	return &text
}

// Detect scans the whole tree once and returns confirmed products in
// document order. Nested candidates are each evaluated on their own.
func Detect(root *page.Element, matcher ProductMatcher) []Product {
	if root == nil {
		return nil
	}
	var products []Product
	root.Walk(func(el *page.Element) {
		if !matcher.Candidate(el) {
			return
		}
		if p, ok := matcher.Confirm(el); ok {
			products = append(products, p)
		}
	})
	return products
}

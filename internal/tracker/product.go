package tracker

import (
	"strings"
	"unicode/utf8"

	"github.com/vincentbai/behaviortrace/internal/models"
	"github.com/vincentbai/behaviortrace/internal/page"
)

const textSnippetLen = 100

// Describe snapshots el into a descriptor that holds no page references.
func Describe(el *page.Element) models.ElementDescriptor {
	d := models.ElementDescriptor{
		Tag:     el.Tag,
		ID:      el.ID(),
		Classes: el.ClassList(),
		Text:    truncate(el.TextContent(), textSnippetLen),
	}
	if d.Classes == nil {
		d.Classes = []string{}
	}
	if v, ok := el.Attr("href"); ok {
		d.Href = &v
	}
	if v, ok := el.Attr("type"); ok {
		d.Type = &v
	}
	if v, ok := el.Attr("value"); ok {
		d.Value = &v
	}
	return d
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func isProductContainer(el *page.Element) bool {
	return strings.Contains(el.ClassName(), "product") || strings.Contains(el.ID(), "product")
}

// ResolveProductData describes the product container nearest to el, or
// returns nil when el is not inside one. It does not consult the detected
// registry. newID is used when the container has no id.
func ResolveProductData(root, el *page.Element, newID func() string) *models.ProductData {
	container := el.Closest(isProductContainer)
	if container == nil {
		return nil
	}
	data := &models.ProductData{
		Title: textOf(container.QueryFirst(page.IsHeading)),
		Price: textOf(container.QueryFirst(func(e *page.Element) bool {
			return strings.Contains(e.ClassName(), "price")
		})),
		ID:       container.ID(),
		Category: detectCategory(root),
	}
	if data.ID == "" {
		data.ID = newID()
	}
	return data
}

// detectCategory takes the last breadcrumb link other than "Home".
func detectCategory(root *page.Element) *string {
	if root == nil {
		return nil
	}
	trail := root
	if !isBreadcrumb(root) {
		trail = root.QueryFirst(isBreadcrumb)
	}
	if trail == nil {
		return nil
	}
	var category *string
	for _, a := range trail.QueryAll(func(e *page.Element) bool { return e.Tag == "a" }) {
		if text := a.TextContent(); text != "Home" {
			category = &text
		}
	}
	return category
}

func isBreadcrumb(el *page.Element) bool {
	return el.HasClass("breadcrumb") || el.HasClass("breadcrumbs")
}

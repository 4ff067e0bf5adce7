package app

import "github.com/microcosm-cc/bluemonday"

// FragmentPolicy returns a sanitising policy for handler fragments: the
// elements and attributes components render (ids, classes, hx-*) survive,
// scripts, styles and event handler attributes do not.
func FragmentPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"div", "span", "p", "h1", "h2", "h3", "h4", "h5", "h6",
		"button", "ul", "ol", "li", "strong", "em", "b", "i", "br", "hr",
		"table", "thead", "tbody", "tr", "th", "td", "section", "article",
	)
	p.AllowAttrs("id", "class", "title", "role", "aria-label", "aria-hidden").Globally()
	p.AllowAttrs("hx-get", "hx-post", "hx-swap", "hx-trigger", "hx-target", "hx-include").Globally()
	p.AllowDataAttributes()
	p.AllowStandardURLs()
	p.AllowAttrs("href").OnElements("a")
	p.AllowElements("a")
	p.AllowImages()
	return p
}

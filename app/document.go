package app

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/fluidframe/tags"
)

// Render returns the full HTML document with every top-level component
// rendered inside <div id="root">.
func (a *App) Render() string {
	return tags.Render(a.Document())
}

// Document builds the document node tree.
func (a *App) Document() *html.Node {
	head := tags.El(atom.Head, nil,
		tags.El(atom.Title, nil, tags.Text(a.title)),
		tags.El(atom.Meta, tags.Attrs("charset", "UTF-8")),
	)
	for _, src := range a.scripts {
		tags.Append(head, tags.El(atom.Script, tags.Attrs("src", src)))
	}
	if a.reload {
		tags.Append(head, tags.El(atom.Script, tags.Attrs("src", hotReloadPath)))
	}
	for _, href := range a.styles {
		tags.Append(head, tags.El(atom.Link, tags.Attrs("href", href, "rel", "stylesheet")))
	}

	root := tags.El(atom.Div, tags.Attrs("id", "root"))
	for _, c := range a.Children() {
		tags.Append(root, c.Node())
	}

	return tags.Document(
		tags.Doctype(),
		tags.El(atom.Html, tags.Attrs("lang", "en"),
			head,
			tags.El(atom.Body, tags.Attrs("class", BodyClass), root),
		),
	)
}

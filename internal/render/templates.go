package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/gadgethost/bridge/internal/rewrite"
	"github.com/gadgethost/bridge/internal/template"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// TemplateRewriter expands custom namespaced tags in gadget markup using
// the handlers registered by the loaded template libraries. Tags with no
// registered handler are left in place untouched.
type TemplateRewriter struct {
	store *template.Store
}

// NewTemplateRewriter creates the stage over the given library store.
func NewTemplateRewriter(store *template.Store) *TemplateRewriter {
	return &TemplateRewriter{store: store}
}

func (r *TemplateRewriter) Name() string {
	return "templates"
}

// Rewrite walks the document, replacing each resolvable prefix:local element
// with its handler's expansion. Expansion output is parsed as a markup
// fragment and spliced in where the tag stood.
func (r *TemplateRewriter) Rewrite(ctx context.Context, content *rewrite.MarkupContent) (*rewrite.MarkupContent, error) {
	// collect first, replace after: splicing invalidates the walk
	var matches []*html.Node
	walk(content.Doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		if _, _, ok := qualifiedName(n.Data); ok {
			matches = append(matches, n)
		}
	})

	for _, n := range matches {
		prefix, local, _ := qualifiedName(n.Data)

		handler, ok := r.store.HandlerFor(prefix, local)
		if !ok {
			log.Debug().
				Str("tag", n.Data).
				Str("gadget", content.GadgetURL).
				Msg("no handler for custom tag; left as-is")
			continue
		}

		if err := replaceWithFragment(n, handler.Expand()); err != nil {
			return nil, fmt.Errorf("expanding tag %s: %w", n.Data, err)
		}
	}

	return content, nil
}

// qualifiedName splits a prefix:local element name. Names with no colon, or
// with more than one, are not custom tag references.
func qualifiedName(name string) (prefix, local string, ok bool) {
	parts := strings.Split(name, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// replaceWithFragment parses markup as a fragment and substitutes the
// resulting nodes for n in its parent.
func replaceWithFragment(n *html.Node, markup string) error {
	parent := n.Parent
	if parent == nil {
		return fmt.Errorf("tag has no parent element")
	}

	fragmentContext := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(markup), fragmentContext)
	if err != nil {
		return fmt.Errorf("parsing expansion: %w", err)
	}

	for _, replacement := range nodes {
		parent.InsertBefore(replacement, n)
	}
	parent.RemoveChild(n)
	return nil
}

func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walk(child, visit)
	}
}

var _ rewrite.GadgetRewriter = (*TemplateRewriter)(nil)

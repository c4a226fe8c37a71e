package render

import (
	"context"
	"sort"
	"strings"

	"github.com/gadgethost/bridge/internal/rewrite"
	"github.com/gadgethost/bridge/internal/template"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// StyleScriptRewriter injects the style and script resources declared by the
// loaded template libraries into the document head, so expanded tags render
// with the assets their library ships.
type StyleScriptRewriter struct {
	store *template.Store
}

// NewStyleScriptRewriter creates the stage over the given library store.
func NewStyleScriptRewriter(store *template.Store) *StyleScriptRewriter {
	return &StyleScriptRewriter{store: store}
}

func (r *StyleScriptRewriter) Name() string {
	return "style-script"
}

func (r *StyleScriptRewriter) Rewrite(ctx context.Context, content *rewrite.MarkupContent) (*rewrite.MarkupContent, error) {
	libs := r.store.Libraries()
	// store snapshots come from a map; order by URI for stable output
	sort.Slice(libs, func(i, j int) bool { return libs[i].URI() < libs[j].URI() })

	var styles, scripts []string
	for _, lib := range libs {
		if s := lib.Style(); s != "" {
			styles = append(styles, s)
		}
		if js := lib.JavaScript(); js != "" {
			scripts = append(scripts, js)
		}
	}

	if len(styles) == 0 && len(scripts) == 0 {
		return content, nil
	}

	head := findElement(content.Doc, atom.Head)
	if head == nil {
		return content, nil
	}

	if len(styles) > 0 {
		head.AppendChild(textElement(atom.Style, strings.Join(styles, "\n")))
	}
	if len(scripts) > 0 {
		head.AppendChild(textElement(atom.Script, strings.Join(scripts, "\n")))
	}

	return content, nil
}

func textElement(a atom.Atom, text string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: a.String(), DataAtom: a}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return n
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findElement(child, a); found != nil {
			return found
		}
	}
	return nil
}

var _ rewrite.GadgetRewriter = (*StyleScriptRewriter)(nil)

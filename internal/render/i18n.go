package render

import (
	"context"

	"github.com/gadgethost/bridge/internal/rewrite"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/language"
)

// rightToLeft holds the base languages rendered right-to-left.
var rightToLeft = map[language.Base]bool{}

func init() {
	for _, code := range []string{"ar", "he", "fa", "ur", "ps", "sd", "dv", "yi"} {
		base, err := language.ParseBase(code)
		if err != nil {
			continue
		}
		rightToLeft[base] = true
	}
}

// LocaleRewriter annotates the document root with the viewer's locale:
// the lang attribute is set to the best supported match for the requested
// tag, and dir="rtl" is added for right-to-left languages.
type LocaleRewriter struct {
	matcher   language.Matcher
	supported []language.Tag
}

// NewLocaleRewriter creates the stage for the given supported locales. The
// first tag is the fallback for unrecognized or absent viewer locales.
func NewLocaleRewriter(supported []language.Tag) *LocaleRewriter {
	if len(supported) == 0 {
		supported = []language.Tag{language.English}
	}
	return &LocaleRewriter{
		matcher:   language.NewMatcher(supported),
		supported: supported,
	}
}

func (r *LocaleRewriter) Name() string {
	return "i18n"
}

func (r *LocaleRewriter) Rewrite(ctx context.Context, content *rewrite.MarkupContent) (*rewrite.MarkupContent, error) {
	root := findElement(content.Doc, atom.Html)
	if root == nil {
		return content, nil
	}

	tag := r.match(content.Locale)
	setAttr(root, "lang", tag.String())

	if base, conf := tag.Base(); conf != language.No && rightToLeft[base] {
		setAttr(root, "dir", "rtl")
	}

	return content, nil
}

// match resolves the requested locale to the closest supported tag. Matcher
// results carry extensions from the request; strip back to the supported
// tag's canonical form.
func (r *LocaleRewriter) match(locale string) language.Tag {
	if locale == "" {
		return r.supported[0]
	}

	requested, err := language.Parse(locale)
	if err != nil {
		return r.supported[0]
	}

	_, index, _ := r.matcher.Match(requested)
	return r.supported[index]
}

func setAttr(n *html.Node, key, value string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

var _ rewrite.GadgetRewriter = (*LocaleRewriter)(nil)

package template

import "strings"

// TagName is the fully-qualified identity of a custom tag: the resolved
// namespace URI plus the local element name. Lookups are by qualified name;
// registration order is irrelevant.
type TagName struct {
	URI   string
	Local string
}

// TagHandler expands a custom namespaced markup tag into template output.
// Handlers reference, but do not own, the template fragment node: the
// fragment belongs to the library's document tree, which outlives any use
// of the registry.
type TagHandler interface {
	// TagName returns the qualified name the handler is registered under.
	TagName() TagName

	// Expand returns the markup output replacing one occurrence of the tag.
	Expand() string
}

// Registry is an immutable mapping from qualified tag names to handlers,
// built once per loaded library. Safe for unsynchronized concurrent reads.
type Registry struct {
	handlers map[TagName]TagHandler
}

// NewRegistry builds a registry from a finished handler set.
func NewRegistry(handlers []TagHandler) *Registry {
	m := make(map[TagName]TagHandler, len(handlers))
	for _, h := range handlers {
		m[normalize(h.TagName())] = h
	}
	return &Registry{handlers: m}
}

// Handler returns the handler registered for the qualified name. The local
// name is matched case-insensitively: HTML parsing lowercases element
// names, while library documents declare tags in their original case.
func (r *Registry) Handler(name TagName) (TagHandler, bool) {
	h, ok := r.handlers[normalize(name)]
	return h, ok
}

func normalize(name TagName) TagName {
	return TagName{URI: name.URI, Local: strings.ToLower(name.Local)}
}

// Len returns the number of registered tags.
func (r *Registry) Len() int {
	return len(r.handlers)
}

// templateTagHandler binds a qualified tag name to the template fragment
// that implements it.
type templateTagHandler struct {
	template *Node
	name     TagName
}

func newTemplateTagHandler(template *Node, namespaceURI, localName string) *templateTagHandler {
	return &templateTagHandler{
		template: template,
		name:     TagName{URI: namespaceURI, Local: localName},
	}
}

func (h *templateTagHandler) TagName() TagName {
	return h.name
}

// Expand serializes the template fragment's content. Data binding inside
// the fragment is the renderer's concern; the handler supplies the markup.
func (h *templateTagHandler) Expand() string {
	return h.template.Markup()
}

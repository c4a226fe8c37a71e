package template

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Element and attribute names recognized in a library document. Unknown
// top-level elements are ignored.
const (
	tagAttribute   = "tag"
	namespaceTag   = "Namespace"
	templateTag    = "Template"
	styleTag       = "Style"
	javaScriptTag  = "JavaScript"
	templateDefTag = "TemplateDef"
)

// ParseError reports a structural violation in a library document. Any
// parse error aborts the whole load: a library either contributes its
// entire tag set or none of it.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string {
	return "template library: " + e.Message
}

func parseErrorf(format string, args ...any) *ParseError {
	return &ParseError{Message: fmt.Sprintf(format, args...)}
}

// Library is a loaded set of custom tags plus the style and script shared
// by the tags. Immutable after construction; the registry's handlers hold
// references into the document tree the library owns.
type Library struct {
	uri      string
	nsPrefix string
	nsURI    string
	style    string
	script   string
	registry *Registry
}

// LoadLibrary parses and validates a library document read from r. uri
// identifies where the document was loaded from; it is not the namespace of
// the library's tags.
func LoadLibrary(uri string, r io.Reader) (*Library, error) {
	root, err := ParseDocument(r)
	if err != nil {
		return nil, err
	}
	return ParseLibrary(uri, root)
}

// LoadLibraryFile loads a library document from a file path.
func LoadLibraryFile(path string) (*Library, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening template library: %w", err)
	}
	defer f.Close()

	return LoadLibrary(path, f)
}

// ParseLibrary builds a Library from an already-parsed document tree.
func ParseLibrary(uri string, root *Node) (*Library, error) {
	// parse state is local to this call: a failed parse leaves nothing
	// behind, and concurrent loads cannot interfere
	p := libraryParser{lib: &Library{uri: uri}}

	handlers, err := p.parseDocument(root)
	if err != nil {
		return nil, err
	}

	p.lib.registry = NewRegistry(handlers)
	return p.lib, nil
}

// URI returns the location the library was loaded from.
func (l *Library) URI() string {
	return l.uri
}

// Namespace returns the declared tag namespace prefix and URI.
func (l *Library) Namespace() (prefix, uri string) {
	return l.nsPrefix, l.nsURI
}

// Style returns the concatenated contents of the library's Style elements.
func (l *Library) Style() string {
	return l.style
}

// JavaScript returns the concatenated contents of the library's JavaScript
// elements.
func (l *Library) JavaScript() string {
	return l.script
}

// Registry returns the library's tag registry.
func (l *Library) Registry() *Registry {
	return l.registry
}

type libraryParser struct {
	lib *Library
}

func (p *libraryParser) parseDocument(root *Node) ([]TagHandler, error) {
	var handlers []TagHandler

	for _, element := range root.ChildElements() {
		var err error

		switch element.Local {
		case namespaceTag:
			err = p.processNamespace(element)
		case styleTag:
			appendFragment(&p.lib.style, element.TextContent())
		case javaScriptTag:
			appendFragment(&p.lib.script, element.TextContent())
		case templateTag:
			handlers, err = p.processTemplate(handlers, element)
		case templateDefTag:
			handlers, err = p.processTemplateDef(handlers, element)
		}

		if err != nil {
			return nil, err
		}
	}

	return handlers, nil
}

func (p *libraryParser) processNamespace(element *Node) error {
	if p.lib.nsPrefix != "" || p.lib.nsURI != "" {
		return parseErrorf("duplicate Namespace elements")
	}

	prefix, _ := element.Attr("prefix")
	if prefix == "" {
		return parseErrorf("missing prefix attribute on Namespace")
	}

	uri, _ := element.Attr("url")
	if uri == "" {
		return parseErrorf("missing url attribute on Namespace")
	}

	p.lib.nsPrefix = prefix
	p.lib.nsURI = uri
	return nil
}

func (p *libraryParser) processTemplate(handlers []TagHandler, element *Node) ([]TagHandler, error) {
	tagName, ok := element.Attr(tagAttribute)
	if !ok {
		return nil, parseErrorf("missing tag attribute on Template")
	}

	handler, err := p.createHandler(tagName, element)
	if err != nil {
		return nil, err
	}
	if handler != nil {
		handlers = append(handlers, handler)
	}
	return handlers, nil
}

func (p *libraryParser) processTemplateDef(handlers []TagHandler, defElement *Node) ([]TagHandler, error) {
	tagName, ok := defElement.Attr(tagAttribute)
	if !ok {
		return nil, parseErrorf("missing tag attribute on TemplateDef")
	}

	templateElement := defElement.FirstChildNamed(templateTag)
	handler, err := p.createHandler(tagName, templateElement)
	if err != nil {
		return nil, err
	}
	if handler != nil {
		handlers = append(handlers, handler)
	}
	return handlers, nil
}

// createHandler validates the qualified tag name against the library's
// declared namespace and constructs the handler. Tag names without a single
// prefix:local form are not supported and are silently skipped.
func (p *libraryParser) createHandler(tagName string, template *Node) (TagHandler, error) {
	nameParts := strings.Split(tagName, ":")
	if len(nameParts) != 2 || nameParts[0] == "" || nameParts[1] == "" {
		return nil, nil
	}

	var namespaceURI string
	if template != nil {
		namespaceURI, _ = template.LookupNamespaceURI(nameParts[0])
	}
	if p.lib.nsPrefix != nameParts[0] || p.lib.nsURI != namespaceURI {
		return nil, parseErrorf("cannot create tags in undeclared namespace: %s", nameParts[0])
	}

	return newTemplateTagHandler(template, namespaceURI, nameParts[1]), nil
}

// appendFragment accumulates style/script fragments, joining multiple
// elements with a single newline in document order.
func appendFragment(accumulator *string, text string) {
	if *accumulator == "" {
		*accumulator = text
		return
	}
	*accumulator = *accumulator + "\n" + text
}

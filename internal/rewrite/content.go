package rewrite

import (
	"bytes"
	"fmt"
	"net/http"

	"golang.org/x/net/html"
)

// Content is the capability required of anything flowing through a chain:
// the runner clones the artifact before each stage so a failing stage cannot
// corrupt the content handed to the next one.
type Content[C any] interface {
	Clone() C
}

// ResponseContent is the mutable working copy of a fetched HTTP response as
// it moves through a response chain.
type ResponseContent struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewResponseContent builds a working copy from raw response parts. The
// parts are copied; the caller's values remain untouched by the chain.
func NewResponseContent(status int, header http.Header, body []byte) *ResponseContent {
	c := &ResponseContent{StatusCode: status, Header: header, Body: body}
	return c.Clone()
}

// Clone deep-copies the content.
func (c *ResponseContent) Clone() *ResponseContent {
	header := make(http.Header, len(c.Header))
	for k, vs := range c.Header {
		header[k] = append([]string(nil), vs...)
	}

	body := make([]byte, len(c.Body))
	copy(body, c.Body)

	return &ResponseContent{
		StatusCode: c.StatusCode,
		Header:     header,
		Body:       body,
	}
}

// MarkupContent is the parsed document form of gadget markup flowing
// through the gadget chain. Stages mutate the tree in place on their own
// working copy; the runner owns cloning.
type MarkupContent struct {
	// GadgetURL is the source location of the gadget being rendered.
	GadgetURL string

	// Locale is the viewer locale requested for this render, as a BCP 47
	// tag ("en-AU"). May be empty.
	Locale string

	Doc *html.Node
}

// ParseMarkup parses gadget markup into a document tree ready for the
// gadget chain.
func ParseMarkup(gadgetURL, locale string, markup []byte) (*MarkupContent, error) {
	doc, err := html.Parse(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parsing gadget markup: %w", err)
	}

	return &MarkupContent{
		GadgetURL: gadgetURL,
		Locale:    locale,
		Doc:       doc,
	}, nil
}

// Clone deep-copies the document tree.
func (m *MarkupContent) Clone() *MarkupContent {
	return &MarkupContent{
		GadgetURL: m.GadgetURL,
		Locale:    m.Locale,
		Doc:       cloneNode(m.Doc),
	}
}

// Render serializes the document tree back to markup bytes.
func (m *MarkupContent) Render() ([]byte, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, m.Doc); err != nil {
		return nil, fmt.Errorf("rendering gadget markup: %w", err)
	}
	return buf.Bytes(), nil
}

func cloneNode(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}

	clone := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		clone.AppendChild(cloneNode(child))
	}

	return clone
}

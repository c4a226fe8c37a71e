package template

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// NodeKind distinguishes the node types carried by the tree.
type NodeKind int

const (
	ElementNode NodeKind = iota
	TextNode
)

// NodeAttr is an attribute on an element, with its raw (unresolved) prefix.
type NodeAttr struct {
	Prefix string
	Local  string
	Value  string
}

// Node is one node of a parsed library document. The tree keeps namespace
// declarations as plain attributes and resolves prefixes on demand, walking
// ancestors the way standard namespace lookup does. The tree is owned by
// the Library constructed from it and is never mutated after parsing.
type Node struct {
	Kind   NodeKind
	Prefix string
	Local  string
	Attrs  []NodeAttr
	Text   string

	Parent   *Node
	Children []*Node
}

// ParseDocument parses an XML document into a tree, returning the root
// element. Comments, processing instructions and directives are dropped.
func ParseDocument(r io.Reader) (*Node, error) {
	decoder := xml.NewDecoder(r)

	var root *Node
	var current *Node

	for {
		// RawToken keeps prefixes intact instead of resolving them, which is
		// what namespace validation needs.
		tok, err := decoder.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing document: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := &Node{
				Kind:   ElementNode,
				Prefix: t.Name.Space,
				Local:  t.Name.Local,
				Parent: current,
			}
			for _, a := range t.Attr {
				node.Attrs = append(node.Attrs, NodeAttr{
					Prefix: a.Name.Space,
					Local:  a.Name.Local,
					Value:  a.Value,
				})
			}

			if current == nil {
				if root != nil {
					return nil, fmt.Errorf("parsing document: multiple root elements")
				}
				root = node
			} else {
				current.Children = append(current.Children, node)
			}
			current = node

		case xml.EndElement:
			if current == nil {
				return nil, fmt.Errorf("parsing document: unexpected end element </%s>", t.Name.Local)
			}
			current = current.Parent

		case xml.CharData:
			if current != nil {
				current.Children = append(current.Children, &Node{
					Kind:   TextNode,
					Text:   string(t),
					Parent: current,
				})
			}
		}
	}

	if current != nil {
		return nil, fmt.Errorf("parsing document: unclosed element <%s>", current.Local)
	}
	if root == nil {
		return nil, fmt.Errorf("parsing document: no root element")
	}

	return root, nil
}

// Attr returns the value of the first non-namespaced attribute with the
// given local name.
func (n *Node) Attr(local string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Prefix == "" && a.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// ChildElements returns the element children in document order.
func (n *Node) ChildElements() []*Node {
	var elements []*Node
	for _, c := range n.Children {
		if c.Kind == ElementNode {
			elements = append(elements, c)
		}
	}
	return elements
}

// FirstChildNamed returns the first child element with the given local
// name, or nil.
func (n *Node) FirstChildNamed(local string) *Node {
	for _, c := range n.Children {
		if c.Kind == ElementNode && c.Local == local {
			return c
		}
	}
	return nil
}

// TextContent returns the concatenated text of the node and its
// descendants, in document order.
func (n *Node) TextContent() string {
	var sb strings.Builder
	n.appendText(&sb)
	return sb.String()
}

func (n *Node) appendText(sb *strings.Builder) {
	if n.Kind == TextNode {
		sb.WriteString(n.Text)
		return
	}
	for _, c := range n.Children {
		c.appendText(sb)
	}
}

// LookupNamespaceURI resolves a namespace prefix in the scope of this node,
// walking ancestors for the nearest xmlns declaration.
func (n *Node) LookupNamespaceURI(prefix string) (string, bool) {
	for node := n; node != nil; node = node.Parent {
		for _, a := range node.Attrs {
			if prefix == "" {
				if a.Prefix == "" && a.Local == "xmlns" {
					return a.Value, true
				}
			} else if a.Prefix == "xmlns" && a.Local == prefix {
				return a.Value, true
			}
		}
	}
	return "", false
}

// Markup serializes the node's children back to markup text. Used to expand
// a template fragment into the output document.
func (n *Node) Markup() string {
	var sb strings.Builder
	for _, c := range n.Children {
		c.writeMarkup(&sb)
	}
	return sb.String()
}

func (n *Node) writeMarkup(sb *strings.Builder) {
	if n.Kind == TextNode {
		sb.WriteString(n.Text)
		return
	}

	name := n.Local
	if n.Prefix != "" {
		name = n.Prefix + ":" + n.Local
	}

	sb.WriteByte('<')
	sb.WriteString(name)
	for _, a := range n.Attrs {
		sb.WriteByte(' ')
		if a.Prefix != "" {
			sb.WriteString(a.Prefix)
			sb.WriteByte(':')
		}
		sb.WriteString(a.Local)
		sb.WriteString(`="`)
		sb.WriteString(escapeAttr(a.Value))
		sb.WriteByte('"')
	}

	if len(n.Children) == 0 {
		sb.WriteString("/>")
		return
	}

	sb.WriteByte('>')
	for _, c := range n.Children {
		c.writeMarkup(sb)
	}
	sb.WriteString("</")
	sb.WriteString(name)
	sb.WriteByte('>')
}

var attrEscaper = strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `"`, "&quot;")

func escapeAttr(v string) string {
	return attrEscaper.Replace(v)
}

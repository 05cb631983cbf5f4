package parser

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// maxPartBytes bounds how much of one zip member is inflated.
const maxPartBytes = 32 << 20

// xnode is a minimal namespace-agnostic element tree. OOXML parts are small
// enough that building a tree is simpler than streaming.
type xnode struct {
	name     string
	attrs    []xml.Attr
	children []*xnode
	text     strings.Builder
}

func parseXML(r io.Reader) (*xnode, error) {
	dec := xml.NewDecoder(r)
	var root *xnode
	var stack []*xnode
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &xnode{name: t.Name.Local, attrs: append([]xml.Attr(nil), t.Attr...)}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("empty xml document")
	}
	return root, nil
}

// attr returns the value of an attribute by local name. An attribute in the
// relationships namespace (r:id) is only matched when rel is true.
func (n *xnode) attr(local string, rel bool) string {
	for _, a := range n.attrs {
		if a.Name.Local != local {
			continue
		}
		isRel := strings.HasSuffix(a.Name.Space, "relationships")
		if isRel == rel {
			return a.Value
		}
	}
	return ""
}

func (n *xnode) child(name string) *xnode {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (n *xnode) childrenNamed(name string) []*xnode {
	var out []*xnode
	for _, c := range n.children {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

// find returns the first descendant (depth-first) with the given name.
func (n *xnode) find(name string) *xnode {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
		if f := c.find(name); f != nil {
			return f
		}
	}
	return nil
}

// findAll returns every descendant with the given name in document order.
func (n *xnode) findAll(name string) []*xnode {
	var out []*xnode
	for _, c := range n.children {
		if c.name == name {
			out = append(out, c)
		}
		out = append(out, c.findAll(name)...)
	}
	return out
}

// path walks nested children by name.
func (n *xnode) path(names ...string) *xnode {
	cur := n
	for _, name := range names {
		if cur == nil {
			return nil
		}
		cur = cur.child(name)
	}
	return cur
}

// pkg wraps an opened OOXML zip container.
type pkg struct {
	files map[string]*zip.File
}

func openPackage(r io.ReaderAt, size int64) (*pkg, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	p := &pkg{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		p.files[strings.TrimPrefix(f.Name, "/")] = f
	}
	return p, nil
}

func (p *pkg) has(name string) bool {
	_, ok := p.files[name]
	return ok
}

func (p *pkg) readXML(name string) (*xnode, error) {
	f, ok := p.files[name]
	if !ok {
		return nil, fmt.Errorf("missing part %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open part %s: %w", name, err)
	}
	defer rc.Close()
	root, err := parseXML(io.LimitReader(rc, maxPartBytes))
	if err != nil {
		return nil, fmt.Errorf("parse part %s: %w", name, err)
	}
	return root, nil
}

type relationship struct {
	Type   string
	Target string // resolved package path
}

// relsFor reads the relationships of a part, keyed by relationship id.
// A missing .rels part yields an empty map.
func (p *pkg) relsFor(part string) (map[string]relationship, error) {
	relsPath := path.Join(path.Dir(part), "_rels", path.Base(part)+".rels")
	out := map[string]relationship{}
	if !p.has(relsPath) {
		return out, nil
	}
	root, err := p.readXML(relsPath)
	if err != nil {
		return nil, err
	}
	for _, rel := range root.childrenNamed("Relationship") {
		if rel.attr("TargetMode", false) == "External" {
			continue
		}
		out[rel.attr("Id", false)] = relationship{
			Type:   rel.attr("Type", false),
			Target: resolveTarget(part, rel.attr("Target", false)),
		}
	}
	return out, nil
}

func resolveTarget(source, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Join(path.Dir(source), target)
}

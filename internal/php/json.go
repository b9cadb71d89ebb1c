package php

import (
	"github.com/tidwall/sjson"
)

// TypeJSON renders a type tree as a JSON document:
//
//	{"kind":"generic","type":"Box<int>","name":"Box","children":[{"kind":"int","type":"int"}]}
func TypeJSON(t Type) ([]byte, error) {
	if t == nil {
		return []byte("null"), nil
	}
	return nodeJSON(EncodeType(t), t)
}

func nodeJSON(n *TypeNode, t Type) ([]byte, error) {
	doc := []byte(`{}`)
	var err error

	set := func(path string, value any) {
		if err == nil {
			doc, err = sjson.SetBytes(doc, path, value)
		}
	}

	set("kind", n.Kind)
	set("type", t.String())
	if n.Name != "" {
		set("name", n.Name)
	}
	if n.Text != "" {
		if n.Kind == kindUnknown {
			set("comment", n.Text)
		} else {
			set("callee", n.Text)
		}
	}
	if len(n.Keys) > 0 {
		set("keys", n.Keys)
	}
	if ref, ok := t.(Reference); ok {
		for _, dep := range ref.Dependencies() {
			set("dependencies.-1", dep.String())
		}
	}
	for key, value := range n.Attrs {
		set("attributes."+escapePath(key), value)
	}
	if err != nil {
		return nil, err
	}

	nodes := t.Nodes()
	// a template renders its bound, which is not a child node
	if tmpl, ok := t.(*TemplateType); ok && tmpl.Is != nil {
		nodes = []Type{tmpl.Is}
	}

	for i, child := range n.Children {
		if i >= len(nodes) {
			break
		}
		raw, err := nodeJSON(child, nodes[i])
		if err != nil {
			return nil, err
		}
		if doc, err = sjson.SetRawBytes(doc, "children.-1", raw); err != nil {
			return nil, err
		}
	}

	return doc, nil
}

// escapePath escapes the characters sjson treats as path syntax.
func escapePath(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '.', '*', '?', '|', '#', '@', '\\':
			out = append(out, '\\')
		}
		out = append(out, key[i])
	}
	return string(out)
}

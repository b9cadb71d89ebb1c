package php

import "strings"

type docTemplate struct {
	Name  string
	Bound string
}

// docBlock holds the typing tags of a /** */ comment. Tool-prefixed tags
// (@phpstan-, @psalm-) take precedence over plain ones.
type docBlock struct {
	Templates []docTemplate
	Params    map[string]string
	Return    string
	Var       string
}

func parseDocBlock(text string) docBlock {
	doc := docBlock{Params: map[string]string{}}
	if text == "" {
		return doc
	}

	prefixed := map[string]bool{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "/**")
		line = strings.TrimSuffix(line, "*/")
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "*"))
		if !strings.HasPrefix(line, "@") {
			continue
		}

		tag, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		tool := strings.HasPrefix(tag, "@phpstan-") || strings.HasPrefix(tag, "@psalm-")
		tag = strings.TrimPrefix(strings.TrimPrefix(tag, "@phpstan-"), "@psalm-")
		tag = strings.TrimPrefix(tag, "@")

		switch tag {
		case "template", "template-covariant", "template-contravariant":
			name, bound, _ := strings.Cut(rest, " ")
			bound = strings.TrimSpace(bound)
			if b, ok := strings.CutPrefix(bound, "of "); ok {
				bound = b
			} else if b, ok := strings.CutPrefix(bound, "as "); ok {
				bound = b
			} else {
				bound = ""
			}
			bound, _ = splitTypeToken(bound)
			if name != "" && !doc.hasTemplate(name) {
				doc.Templates = append(doc.Templates, docTemplate{Name: name, Bound: bound})
			}
		case "param":
			typ, remainder := splitTypeToken(rest)
			name, _, _ := strings.Cut(strings.TrimSpace(remainder), " ")
			name = strings.TrimPrefix(strings.TrimPrefix(name, "..."), "$")
			if typ == "" || name == "" {
				continue
			}
			key := "param:" + name
			if _, set := doc.Params[name]; set && prefixed[key] && !tool {
				continue
			}
			doc.Params[name] = typ
			prefixed[key] = tool
		case "return":
			typ, _ := splitTypeToken(rest)
			if typ != "" && (doc.Return == "" || tool || !prefixed["return"]) {
				doc.Return = typ
				prefixed["return"] = tool
			}
		case "var":
			typ, _ := splitTypeToken(rest)
			if typ != "" && (doc.Var == "" || tool || !prefixed["var"]) {
				doc.Var = typ
				prefixed["var"] = tool
			}
		}
	}

	return doc
}

func (d docBlock) hasTemplate(name string) bool {
	for _, t := range d.Templates {
		if t.Name == name {
			return true
		}
	}
	return false
}

// splitTypeToken reads one type expression from the start of s; spaces
// inside brackets belong to the type.
func splitTypeToken(s string) (string, string) {
	s = strings.TrimSpace(s)
	depth := 0
	for i, r := range s {
		switch r {
		case '<', '{', '(', '[':
			depth++
		case '>', '}', ')', ']':
			depth--
		case ' ', '\t':
			if depth > 0 {
				continue
			}
			// "callable(T): R" and "int | null" are single tokens
			before := strings.TrimRight(s[:i], " \t")
			after := strings.TrimLeft(s[i:], " \t")
			if strings.HasSuffix(before, ":") || strings.HasPrefix(after, ":") || strings.HasPrefix(after, "|") || strings.HasSuffix(before, "|") {
				continue
			}
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}

package php

// MergeTypes combines types into one: nested unions are flattened, members
// with the same notation collapse into the first occurrence, and a single
// remaining member is returned on its own. No types at all merge into void.
func MergeTypes(types ...Type) Type {
	flat := make([]Type, 0, len(types))
	flat = flattenUnion(flat, types)

	seen := make(map[string]bool, len(flat))
	unique := make([]Type, 0, len(flat))
	for _, t := range flat {
		s := t.String()
		if seen[s] {
			continue
		}
		seen[s] = true
		unique = append(unique, t)
	}

	switch len(unique) {
	case 0:
		return NewVoidType()
	case 1:
		return unique[0]
	}

	return NewUnion(unique...)
}

func flattenUnion(into []Type, types []Type) []Type {
	for _, t := range types {
		if t == nil {
			continue
		}
		if u, ok := t.(*Union); ok {
			into = flattenUnion(into, u.Types)
			continue
		}
		into = append(into, t)
	}
	return into
}

// NormalizeUnions rewrites every union of the tree with MergeTypes. Members
// are normalized before their union is merged, and a merged union keeps the
// attributes of the original node.
func NormalizeUnions(t Type) Type {
	return Replace(t, func(node Type) Type {
		u, ok := node.(*Union)
		if !ok {
			return nil
		}

		members := make([]Type, len(u.Types))
		for i, member := range u.Types {
			members[i] = NormalizeUnions(member)
		}
		return MergeTypes(members...)
	})
}

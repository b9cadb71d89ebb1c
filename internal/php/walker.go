package php

// First returns the first node of the tree, in pre-order, for which match
// returns true, or nil. Shared nodes are visited once.
func First(t Type, match func(Type) bool) Type {
	if t == nil {
		return nil
	}
	return first(t, match, make(map[Type]struct{}))
}

func first(t Type, match func(Type) bool, visited map[Type]struct{}) Type {
	if _, seen := visited[t]; seen {
		return nil
	}
	visited[t] = struct{}{}

	if match(t) {
		return t
	}

	for _, node := range t.Nodes() {
		if node == nil {
			continue
		}
		if found := first(node, match, visited); found != nil {
			return found
		}
	}

	return nil
}

// Replace rewrites the tree in pre-order. When replace returns a non-nil
// type for a node, that type takes the node's place as is (its children are
// not visited) and inherits the node's attributes; returning the node itself
// keeps it unvisited. Otherwise the children are rewritten and the node is
// copied only if one of them changed.
func Replace(t Type, replace func(Type) Type) Type {
	if t == nil {
		return nil
	}
	return replaceNode(t, replace, make(map[Type]struct{}))
}

func replaceNode(t Type, replace func(Type) Type, path map[Type]struct{}) Type {
	// a node that contains itself is left alone the second time around
	if _, onPath := path[t]; onPath {
		return t
	}

	if replacement := replace(t); replacement == t {
		return t
	} else if replacement != nil {
		return MergeAttributes(replacement, t.Attributes())
	}

	nodes := t.Nodes()
	if len(nodes) == 0 {
		return t
	}

	path[t] = struct{}{}
	defer delete(path, t)

	changed := false
	rewritten := make([]Type, len(nodes))
	for i, node := range nodes {
		if node == nil {
			continue
		}
		rewritten[i] = replaceNode(node, replace, path)
		if rewritten[i] != node {
			changed = true
		}
	}

	if !changed {
		return t
	}
	return t.withNodes(rewritten)
}

// HasReferences reports whether any node of the tree is a deferred reference.
func HasReferences(t Type) bool {
	return First(t, IsReference) != nil
}

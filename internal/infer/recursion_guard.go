package infer

import "github.com/shopware/php-infer/internal/php"

// maxGuardDepth bounds nesting even when every frame has a distinct key,
// which happens when a rewrite keeps producing fresh copies of a reference.
const maxGuardDepth = 128

// RecursionGuard detects re-entrant resolution of the same node. A guard
// belongs to one top-level resolution and must not be shared between
// concurrent ones.
type RecursionGuard struct {
	inProgress map[php.Type]int
	depth      int
}

func NewRecursionGuard() *RecursionGuard {
	return &RecursionGuard{inProgress: map[php.Type]int{}}
}

// Run calls fn unless key is already being resolved further up the stack
// or the depth limit is reached. onCycle provides the result then, limited
// is true for the depth limit.
func (g *RecursionGuard) Run(key php.Type, fn func() php.Type, onCycle func(limited bool) php.Type) php.Type {
	if g.inProgress[key] > 0 {
		return onCycle(false)
	}
	if g.depth >= maxGuardDepth {
		return onCycle(true)
	}

	g.inProgress[key]++
	g.depth++
	defer func() {
		g.depth--
		if g.inProgress[key]--; g.inProgress[key] == 0 {
			delete(g.inProgress, key)
		}
	}()

	return fn()
}

// Depth returns the number of resolutions in progress.
func (g *RecursionGuard) Depth() int {
	return g.depth
}

// Package tree implements the weighted action tree used to choose the
// next interaction from a property specification's action generators.
//
// A Tree[T] is either a Leaf holding a value or a Branch of weighted
// children. Pick draws a leaf by cumulative weight; Prune removes
// empty branches so a spent generator doesn't bias selection toward
// dead weight.
package tree

import "math/rand"

// Tree is a weighted tree over values of type T.
type Tree[T any] struct {
	leaf     *T
	children []WeightedChild[T]
}

// WeightedChild pairs a non-negative integer weight with a subtree.
type WeightedChild[T any] struct {
	Weight uint16
	Child  Tree[T]
}

// Leaf builds a single-value leaf node.
func Leaf[T any](v T) Tree[T] {
	return Tree[T]{leaf: &v}
}

// Branch builds an interior node from weighted children.
func Branch[T any](children []WeightedChild[T]) Tree[T] {
	return Tree[T]{children: children}
}

// IsLeaf reports whether t is a leaf.
func (t Tree[T]) IsLeaf() bool { return t.leaf != nil }

// IsEmpty reports whether t is an empty branch (no children, not a leaf).
func (t Tree[T]) IsEmpty() bool { return t.leaf == nil && len(t.children) == 0 }

// totalWeight sums the weights of a branch's children.
func (t Tree[T]) totalWeight() int {
	total := 0
	for _, c := range t.children {
		total += int(c.Weight)
	}
	return total
}

// Pick draws a leaf value by weighted random walk. It returns false
// iff the tree has no leaves at all (spec.md §8 property 1).
func (t Tree[T]) Pick(rng *rand.Rand) (T, bool) {
	var zero T
	if t.leaf != nil {
		return *t.leaf, true
	}
	if len(t.children) == 0 {
		return zero, false
	}

	total := t.totalWeight()
	if total <= 0 {
		// All children are zero-weight or empty; fall back to a uniform
		// scan so a leaf is still reachable if one exists.
		for _, c := range t.children {
			if v, ok := c.Child.Pick(rng); ok {
				return v, true
			}
		}
		return zero, false
	}

	draw := rng.Intn(total)
	cum := 0
	for _, c := range t.children {
		cum += int(c.Weight)
		if draw < cum {
			if v, ok := c.Child.Pick(rng); ok {
				return v, true
			}
			// This child turned out empty despite having weight (all its
			// leaves pruned away some other way); keep walking the rest.
			continue
		}
	}
	// Weight accounting missed everything (shouldn't happen); scan linearly.
	for _, c := range t.children {
		if v, ok := c.Child.Pick(rng); ok {
			return v, true
		}
	}
	return zero, false
}

// Prune recursively drops empty Branch children. The result contains
// no empty Branch nodes. A Branch whose children are all empty
// collapses to an empty Branch([]) itself, reported via IsEmpty.
// Prune is idempotent: Prune(Prune(t)) == Prune(t) (spec.md §8 property 2).
func (t Tree[T]) Prune() Tree[T] {
	if t.leaf != nil {
		return t
	}
	kept := make([]WeightedChild[T], 0, len(t.children))
	for _, c := range t.children {
		pruned := c.Child.Prune()
		if pruned.IsEmpty() {
			continue
		}
		kept = append(kept, WeightedChild[T]{Weight: c.Weight, Child: pruned})
	}
	return Tree[T]{children: kept}
}

// Map rebuilds t with every leaf value passed through f, preserving
// branch shape and weights. Used by the runner to rewrite every
// dispatchable action to Back when the page has navigated outside the
// configured origin (spec.md §8 property 8).
func Map[T any](t Tree[T], f func(T) T) Tree[T] {
	if t.leaf != nil {
		v := f(*t.leaf)
		return Leaf(v)
	}
	children := make([]WeightedChild[T], 0, len(t.children))
	for _, c := range t.children {
		children = append(children, WeightedChild[T]{Weight: c.Weight, Child: Map(c.Child, f)})
	}
	return Branch(children)
}

// Merge combines several trees into one top-level Branch, each given
// equal weight. Used by the runner/verifier to fuse one generator's
// output per-registered-generator into a single pick (spec.md §4.5).
func Merge[T any](trees []Tree[T], weight uint16) Tree[T] {
	children := make([]WeightedChild[T], 0, len(trees))
	for _, t := range trees {
		children = append(children, WeightedChild[T]{Weight: weight, Child: t})
	}
	return Branch(children)
}

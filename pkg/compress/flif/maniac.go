package flif

import (
	"fmt"
	"log/slog"
)

// Bounds of the split delay carried by every inner node.
const (
	treeMinCount = 0
	treeMaxCount = 512
)

// propRange is the closed interval a context property can take.
type propRange struct {
	Min, Max int
}

// treeNode is one node of a MANIAC tree, stored in an arena and addressed by
// index. Children are allocated in pairs: child holds the branch taken when
// the property exceeds splitVal, child+1 the other one.
type treeNode struct {
	property int // -1 for a leaf
	splitVal int
	count    int // visits left before the node splits, -1 once split
	child    int
	leaf     int // chance set used while the node acts as a leaf
}

// ContextTree is a decoded MANIAC tree together with the adaptive chances of
// its leaves. The structure is fixed after decoding; counts and chances keep
// changing on every lookup.
type ContextTree struct {
	nodes  []treeNode
	leaves []symbolChances
}

// Size returns the number of nodes
func (t *ContextTree) Size() int {
	return len(t.nodes)
}

// Leaves returns the number of chance sets currently in use
func (t *ContextTree) Leaves() int {
	return len(t.leaves)
}

// treeMeta holds the three meta contexts a tree is coded with.
type treeMeta struct {
	property symbolChances
	count    symbolChances
	split    symbolChances
}

func newTreeMeta() *treeMeta {
	return &treeMeta{
		property: newSymbolChances(),
		count:    newSymbolChances(),
		split:    newSymbolChances(),
	}
}

type treeFrame struct {
	pos    int
	depth  int
	ranges []propRange
}

// decodeTree reads a tree in pre-order. The walk uses an explicit stack so a
// hostile stream cannot exhaust the goroutine stack; depth and size are
// bounded by maxDepth and maxNodes.
func decodeTree(sd *symbolDecoder, ranges []propRange, maxDepth, maxNodes int) (*ContextTree, error) {
	meta := newTreeMeta()
	t := &ContextTree{nodes: []treeNode{{}}}
	stack := []treeFrame{{pos: 0, depth: 0, ranges: ranges}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.depth > maxDepth {
			return nil, fmt.Errorf("%w: depth exceeds %d", ErrCorruptTree, maxDepth)
		}

		p, err := sd.decodeInt(&meta.property, 0, len(ranges))
		if err != nil {
			return nil, err
		}
		prop := p - 1
		t.nodes[f.pos].property = prop
		if prop < 0 {
			continue
		}

		count, err := sd.decodeInt(&meta.count, treeMinCount, treeMaxCount)
		if err != nil {
			return nil, err
		}
		r := f.ranges[prop]
		if r.Min >= r.Max {
			return nil, fmt.Errorf("%w: property %d cannot split range [%d, %d]", ErrCorruptTree, prop, r.Min, r.Max)
		}
		split, err := sd.decodeInt(&meta.split, r.Min, r.Max-1)
		if err != nil {
			return nil, err
		}
		if len(t.nodes)+2 > maxNodes {
			return nil, fmt.Errorf("%w: more than %d nodes", ErrCorruptTree, maxNodes)
		}
		child := len(t.nodes)
		t.nodes[f.pos].count = count
		t.nodes[f.pos].splitVal = split
		t.nodes[f.pos].child = child
		t.nodes = append(t.nodes, treeNode{}, treeNode{})

		above := append([]propRange(nil), f.ranges...)
		above[prop].Min = split + 1
		below := append([]propRange(nil), f.ranges...)
		below[prop].Max = split
		// the first child is read first, so it goes on top
		stack = append(stack,
			treeFrame{pos: child + 1, depth: f.depth + 1, ranges: below},
			treeFrame{pos: child, depth: f.depth + 1, ranges: above},
		)
	}
	t.leaves = []symbolChances{newSymbolChances()}
	slog.Debug("flif: tree decoded", slog.Int("nodes", len(t.nodes)), slog.Int("properties", len(ranges)))
	return t, nil
}

// leafFor walks the tree with the given property values and returns the
// chances to code the next symbol with. A node whose split delay runs out
// hands a copy of its chances to its second child and keeps the original for
// the first one.
func (t *ContextTree) leafFor(props []int) *symbolChances {
	pos := 0
	for t.nodes[pos].property >= 0 {
		n := &t.nodes[pos]
		switch {
		case n.count < 0:
			if props[n.property] > n.splitVal {
				pos = n.child
			} else {
				pos = n.child + 1
			}
		case n.count > 0:
			n.count--
			return &t.leaves[n.leaf]
		default:
			n.count = -1
			t.leaves = append(t.leaves, t.leaves[n.leaf])
			kept, copied := n.leaf, len(t.leaves)-1
			t.nodes[n.child].leaf = kept
			t.nodes[n.child+1].leaf = copied
			if props[n.property] > n.splitVal {
				return &t.leaves[kept]
			}
			return &t.leaves[copied]
		}
	}
	return &t.leaves[t.nodes[pos].leaf]
}

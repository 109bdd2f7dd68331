package ir

import "slices"

// Control-flow analysis over a function's blocks. None of these mutate the
// graph; they read the successor and predecessor sets cached when
// terminators are placed.

// Reachable returns the set of blocks reachable from the entry of fn
func (c *Context) Reachable(fn *Function) map[BlockID]bool {
	reachable := make(map[BlockID]bool)
	if fn == nil || fn.Entry == NoBlock {
		return reachable
	}
	c.markReachable(fn.Entry, reachable)
	return reachable
}

// markReachable recursively marks all blocks reachable from the given block
func (c *Context) markReachable(id BlockID, reachable map[BlockID]bool) {
	if reachable[id] {
		return
	}
	reachable[id] = true
	for _, s := range c.blocks[id].succs {
		c.markReachable(s, reachable)
	}
}

// UnreachableBlocks lists the blocks of fn that no path from the entry
// reaches, in creation order.
func (c *Context) UnreachableBlocks(fn *Function) []BlockID {
	reachable := c.Reachable(fn)
	var out []BlockID
	for _, id := range fn.Blocks {
		if !reachable[id] {
			out = append(out, id)
		}
	}
	return out
}

// ReversePostorder returns the reachable blocks of fn in reverse postorder
// of a depth-first walk from the entry. Successors are visited in
// terminator order, so the result is deterministic.
func (c *Context) ReversePostorder(fn *Function) []BlockID {
	if fn == nil || fn.Entry == NoBlock {
		return nil
	}

	seen := make(map[BlockID]bool)
	var post []BlockID
	var dfs func(id BlockID)
	dfs = func(id BlockID) {
		if seen[id] {
			return
		}
		seen[id] = true
		for _, s := range c.blocks[id].succs {
			dfs(s)
		}
		post = append(post, id)
	}
	dfs(fn.Entry)

	slices.Reverse(post)
	return post
}

// DomTree is the dominator tree of a function's reachable blocks
type DomTree struct {
	entry BlockID
	idom  map[BlockID]BlockID
	order map[BlockID]int // reverse postorder index
}

// Dominators computes the dominator tree of fn with the iterative
// Cooper-Harvey-Kennedy algorithm over reverse postorder.
func (c *Context) Dominators(fn *Function) *DomTree {
	rpo := c.ReversePostorder(fn)
	dt := &DomTree{
		entry: NoBlock,
		idom:  make(map[BlockID]BlockID, len(rpo)),
		order: make(map[BlockID]int, len(rpo)),
	}
	if len(rpo) == 0 {
		return dt
	}
	for i, id := range rpo {
		dt.order[id] = i
	}
	dt.entry = rpo[0]
	dt.idom[dt.entry] = dt.entry

	for changed := true; changed; {
		changed = false
		for _, id := range rpo[1:] {
			newIdom := NoBlock
			for _, p := range c.blocks[id].preds {
				if _, done := dt.idom[p]; !done {
					continue
				}
				if newIdom == NoBlock {
					newIdom = p
				} else {
					newIdom = dt.intersect(p, newIdom)
				}
			}
			if cur, ok := dt.idom[id]; !ok || cur != newIdom {
				dt.idom[id] = newIdom
				changed = true
			}
		}
	}
	return dt
}

func (dt *DomTree) intersect(a, b BlockID) BlockID {
	for a != b {
		for dt.order[a] > dt.order[b] {
			a = dt.idom[a]
		}
		for dt.order[b] > dt.order[a] {
			b = dt.idom[b]
		}
	}
	return a
}

// Reachable reports whether id is in the tree
func (dt *DomTree) Reachable(id BlockID) bool {
	_, ok := dt.idom[id]
	return ok
}

// Idom returns the immediate dominator of id, or NoBlock for the entry and
// for unreachable blocks.
func (dt *DomTree) Idom(id BlockID) BlockID {
	if id == dt.entry {
		return NoBlock
	}
	if d, ok := dt.idom[id]; ok {
		return d
	}
	return NoBlock
}

// Dominates reports whether every path from the entry to b passes through
// a. A block dominates itself. Unreachable blocks dominate nothing and are
// dominated by nothing.
func (dt *DomTree) Dominates(a, b BlockID) bool {
	if !dt.Reachable(a) || !dt.Reachable(b) {
		return false
	}
	for {
		if a == b {
			return true
		}
		if b == dt.entry {
			return false
		}
		b = dt.idom[b]
	}
}

// StrictlyDominates is Dominates for a != b
func (dt *DomTree) StrictlyDominates(a, b BlockID) bool {
	return a != b && dt.Dominates(a, b)
}

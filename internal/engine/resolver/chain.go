package resolver

import (
	"github.com/bits-and-blooms/bitset"

	"crossmod/internal/engine/module"
)

// Chain is the importation chain of one detector invocation: the stack of
// modules whose import check is in progress. A module is at most once on it.
type Chain struct {
	path []module.ModuleID
	in   *bitset.BitSet

	cycle     []module.ModuleID
	cycleEdge *module.ImportEdge
}

// NewChain starts a chain rooted at root.
func NewChain(root module.ModuleID) *Chain {
	c := &Chain{in: bitset.New(uint(max(root, 0)) + 1)}
	c.Add(root)
	return c
}

// Add pushes id. It returns false, leaving the chain unchanged, when id is
// already on it.
func (c *Chain) Add(id module.ModuleID) bool {
	if !id.Valid() || c.in.Test(uint(id)) {
		return false
	}
	c.in.Set(uint(id))
	c.path = append(c.path, id)
	return true
}

// MarkState returns a mark to restore the chain to with PreviousState.
func (c *Chain) MarkState() int {
	return len(c.path)
}

// PreviousState pops everything pushed after mark.
func (c *Chain) PreviousState(mark int) {
	if mark < 0 {
		mark = 0
	}
	for len(c.path) > mark {
		last := c.path[len(c.path)-1]
		c.in.Clear(uint(last))
		c.path = c.path[:len(c.path)-1]
	}
}

func (c *Chain) Contains(id module.ModuleID) bool {
	return id.Valid() && c.in.Test(uint(id))
}

// Path returns a copy of the chain, root first.
func (c *Chain) Path() []module.ModuleID {
	return append([]module.ModuleID(nil), c.path...)
}

func (c *Chain) Len() int { return len(c.path) }

// recordCycle keeps the first re-entry seen: the chain segment from id to the
// top, closed by id again, and the edge that closed it.
func (c *Chain) recordCycle(id module.ModuleID, edge *module.ImportEdge) {
	if c.cycle != nil {
		return
	}
	for i, p := range c.path {
		if p == id {
			c.cycle = append(append([]module.ModuleID(nil), c.path[i:]...), id)
			c.cycleEdge = edge
			return
		}
	}
}

// Cycle returns the first cycle recorded during the invocation.
func (c *Chain) Cycle() ([]module.ModuleID, *module.ImportEdge, bool) {
	if c.cycle == nil {
		return nil, nil, false
	}
	return append([]module.ModuleID(nil), c.cycle...), c.cycleEdge, true
}

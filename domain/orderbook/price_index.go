package orderbook

import "github.com/google/btree"

// priceIndex is an ordered price→PriceLevel map giving O(log N)
// best-price access. It replaces the reference's repeated full sort
// of the price-key set (§9 design note: "Pattern: sorted price
// iteration") and the teacher's hand-rolled red-black tree, whose
// insert balancing was never implemented (an empty stub left to be
// "pasted in"). A single ordering (ascending by price) backs both
// sides: asks walk it ascending for best-price-first, bids walk it
// descending.
type priceIndex struct {
	tree *btree.BTreeG[*PriceLevel]
}

func newPriceIndex() *priceIndex {
	return &priceIndex{
		tree: btree.NewG[*PriceLevel](32, func(a, b *PriceLevel) bool {
			return a.Price < b.Price
		}),
	}
}

// GetOrCreate returns the level at price, creating an empty one if absent.
func (x *priceIndex) GetOrCreate(price int64) *PriceLevel {
	if lvl, ok := x.tree.Get(&PriceLevel{Price: price}); ok {
		return lvl
	}
	lvl := &PriceLevel{Price: price}
	x.tree.ReplaceOrInsert(lvl)
	return lvl
}

// Find returns the level at price, or nil if no order rests there.
func (x *priceIndex) Find(price int64) *PriceLevel {
	lvl, ok := x.tree.Get(&PriceLevel{Price: price})
	if !ok {
		return nil
	}
	return lvl
}

// Remove deletes the level at price. Invariant §3.1: a level is
// removed as soon as it becomes empty, never left dangling.
func (x *priceIndex) Remove(price int64) {
	x.tree.Delete(&PriceLevel{Price: price})
}

// Min returns the lowest-priced level (best ask), or nil if empty.
func (x *priceIndex) Min() *PriceLevel {
	lvl, ok := x.tree.Min()
	if !ok {
		return nil
	}
	return lvl
}

// Max returns the highest-priced level (best bid), or nil if empty.
func (x *priceIndex) Max() *PriceLevel {
	lvl, ok := x.tree.Max()
	if !ok {
		return nil
	}
	return lvl
}

// AscendWalk visits levels from lowest to highest price until fn
// returns false.
func (x *priceIndex) AscendWalk(fn func(*PriceLevel) bool) {
	x.tree.Ascend(func(lvl *PriceLevel) bool { return fn(lvl) })
}

// DescendWalk visits levels from highest to lowest price until fn
// returns false.
func (x *priceIndex) DescendWalk(fn func(*PriceLevel) bool) {
	x.tree.Descend(func(lvl *PriceLevel) bool { return fn(lvl) })
}

// Len returns the number of distinct price levels.
func (x *priceIndex) Len() int {
	return x.tree.Len()
}

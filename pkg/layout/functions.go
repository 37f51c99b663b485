package layout

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/matzehuels/imfgraph/pkg/imf"
)

// Function is one fulfilled function of a product, before placement.
type Function struct {
	ID          string       // FunctionID(owner, index)
	Label       string       // display label assigned by the assembler
	Description string       // the fulfills phrase
	Owner       string       // owning product tagID
	OwnerPos    imf.Position // owning product position
	Index       int          // position in the owner's fulfills list
}

// PlacedFunction is a function with its layer position.
type PlacedFunction struct {
	Function
	Position imf.Position
}

// FunctionID returns the node id of the index-th function of a product.
func FunctionID(ownerTagID string, index int) string {
	return fmt.Sprintf("%s_func_%d", ownerTagID, index)
}

// PlaceFunctions orders functions by owner x, owner y and index, then walks
// them left to right. The next slot starts at 0 and advances by FunctionGap;
// a slot left of the owner's x is first moved up to it. No two functions
// share a slot and each sits at or right of its owner.
//
// The input slice is not modified.
func PlaceFunctions(funcs []Function, opts Options) []PlacedFunction {
	sorted := slices.Clone(funcs)
	slices.SortStableFunc(sorted, func(a, b Function) int {
		return cmp.Or(
			cmp.Compare(a.OwnerPos.X, b.OwnerPos.X),
			cmp.Compare(a.OwnerPos.Y, b.OwnerPos.Y),
			cmp.Compare(a.Index, b.Index),
		)
	})

	out := make([]PlacedFunction, 0, len(sorted))
	var slot float64
	for _, fn := range sorted {
		slot = max(slot, fn.OwnerPos.X)
		out = append(out, PlacedFunction{
			Function: fn,
			Position: imf.Position{X: slot, Y: opts.FunctionY},
		})
		slot += opts.FunctionGap
	}
	return out
}

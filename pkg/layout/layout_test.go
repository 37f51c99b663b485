package layout

import (
	"fmt"
	"math/rand"
	"reflect"
	"slices"
	"testing"

	"github.com/matzehuels/imfgraph/pkg/hierarchy"
	"github.com/matzehuels/imfgraph/pkg/imf"
)

func comp(name, parent string) imf.Component {
	c := imf.Component{Name: name, TagID: name}
	if parent != "" {
		c.PartOf = imf.StringList{parent}
	}
	return c
}

func build(t *testing.T, comps ...imf.Component) (*hierarchy.Forest, *Result) {
	t.Helper()
	f, issues := hierarchy.Build(comps)
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	return f, Compute(f, DefaultOptions())
}

// randomForest builds n components whose parents always precede them, with
// roughly one root in five.
func randomForest(rng *rand.Rand, n int) []imf.Component {
	comps := make([]imf.Component, n)
	for i := range comps {
		parent := ""
		if i > 0 && rng.Intn(5) != 0 {
			parent = fmt.Sprintf("n%d", rng.Intn(i))
		}
		comps[i] = comp(fmt.Sprintf("n%d", i), parent)
	}
	rng.Shuffle(len(comps), func(i, j int) { comps[i], comps[j] = comps[j], comps[i] })
	return comps
}

func TestComputePositions(t *testing.T) {
	tests := []struct {
		name  string
		comps []imf.Component
		want  map[string]imf.Position
		width map[string]float64
	}{
		{
			name:  "SingleNode",
			comps: []imf.Component{comp("a", "")},
			want:  map[string]imf.Position{"a": {X: 0, Y: 0}},
			width: map[string]float64{"a": 250},
		},
		{
			name:  "ParentWithOneChild",
			comps: []imf.Component{comp("A001", ""), comp("B22", "A001")},
			want: map[string]imf.Position{
				"A001": {X: 0, Y: 0},
				"B22":  {X: 0, Y: 150},
			},
			width: map[string]float64{"A001": 250, "B22": 250},
		},
		{
			name: "ParentCenteredOverChildren",
			comps: []imf.Component{
				comp("p", ""), comp("c1", "p"), comp("c2", "p"), comp("c3", "p"),
			},
			want: map[string]imf.Position{
				"p":  {X: 250, Y: 0},
				"c1": {X: 0, Y: 150},
				"c2": {X: 250, Y: 150},
				"c3": {X: 500, Y: 150},
			},
			width: map[string]float64{"p": 750, "c1": 250},
		},
		{
			name:  "RootsAdvanceByWidthPlusGap",
			comps: []imf.Component{comp("r1", ""), comp("r2", ""), comp("r3", "")},
			want: map[string]imf.Position{
				"r1": {X: 0, Y: 0},
				"r2": {X: 500, Y: 0},
				"r3": {X: 1000, Y: 0},
			},
		},
		{
			name: "UnevenSubtrees",
			comps: []imf.Component{
				comp("r", ""),
				comp("a", "r"),
				comp("b", "r"),
				comp("a1", "a"),
				comp("a2", "a"),
				comp("s", ""),
			},
			want: map[string]imf.Position{
				"r":  {X: 250, Y: 0},
				"a":  {X: 125, Y: 150},
				"a1": {X: 0, Y: 300},
				"a2": {X: 250, Y: 300},
				"b":  {X: 500, Y: 150},
				"s":  {X: 1000, Y: 0},
			},
			width: map[string]float64{"r": 750, "a": 500, "b": 250, "s": 250},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, r := build(t, tt.comps...)
			for name, want := range tt.want {
				if got := r.Position(name); got != want {
					t.Errorf("position(%s) = %+v, want %+v", name, got, want)
				}
			}
			for name, want := range tt.width {
				if got := r.Width(name); got != want {
					t.Errorf("width(%s) = %v, want %v", name, got, want)
				}
			}
		})
	}
}

func TestSubtreeWidthInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	opts := DefaultOptions()

	for iter := 0; iter < 100; iter++ {
		f, _ := hierarchy.Build(randomForest(rng, 1+rng.Intn(60)))
		r := Compute(f, opts)

		for _, name := range f.Names() {
			var sum float64
			for _, k := range f.Children(name) {
				sum += r.Width(k)
			}
			if want := max(opts.XGap, sum); r.Width(name) != want {
				t.Fatalf("iter %d: width(%s) = %v, want %v", iter, name, r.Width(name), want)
			}
		}
	}
}

func TestNoOverlapWithinRow(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	opts := DefaultOptions()

	for iter := 0; iter < 100; iter++ {
		f, _ := hierarchy.Build(randomForest(rng, 1+rng.Intn(60)))
		r := Compute(f, opts)

		rows := make(map[float64][]float64)
		for _, name := range f.Names() {
			p := r.Position(name)
			rows[p.Y] = append(rows[p.Y], p.X)
		}
		for y, xs := range rows {
			slices.Sort(xs)
			for i := 1; i < len(xs); i++ {
				if xs[i]-xs[i-1] < opts.XGap {
					t.Fatalf("iter %d: row y=%v has nodes %v apart", iter, y, xs[i]-xs[i-1])
				}
			}
		}

		for _, name := range f.Names() {
			p, ok := f.Parent(name)
			if !ok {
				continue
			}
			if dy := r.Position(name).Y - r.Position(p).Y; dy != opts.YGap {
				t.Fatalf("iter %d: %s is %v below its parent", iter, name, dy)
			}
		}
	}
}

func TestComputeDeterministic(t *testing.T) {
	comps := randomForest(rand.New(rand.NewSource(1)), 200)
	f1, _ := hierarchy.Build(comps)
	f2, _ := hierarchy.Build(comps)
	r1 := Compute(f1, DefaultOptions())
	r2 := Compute(f2, DefaultOptions())
	if !reflect.DeepEqual(r1, r2) {
		t.Error("two layouts of the same input differ")
	}
}

func TestComputeDeepChain(t *testing.T) {
	const depth = 50000
	comps := make([]imf.Component, depth)
	for i := range comps {
		parent := ""
		if i > 0 {
			parent = fmt.Sprintf("n%d", i-1)
		}
		comps[i] = comp(fmt.Sprintf("n%d", i), parent)
	}
	f, _ := hierarchy.Build(comps)
	r := Compute(f, DefaultOptions())

	last := r.Position(fmt.Sprintf("n%d", depth-1))
	if last.X != 0 || last.Y != float64(depth-1)*DefaultYGap {
		t.Errorf("deepest node at %+v", last)
	}
}

func TestPlaceFunctions(t *testing.T) {
	funcs := []Function{
		{ID: "C_func_0", Owner: "C", OwnerPos: imf.Position{X: 500, Y: 150}, Index: 0},
		{ID: "A_func_1", Owner: "A", OwnerPos: imf.Position{X: 0, Y: 0}, Index: 1},
		{ID: "B_func_0", Owner: "B", OwnerPos: imf.Position{X: 100, Y: 150}, Index: 0},
		{ID: "A_func_0", Owner: "A", OwnerPos: imf.Position{X: 0, Y: 0}, Index: 0},
		{ID: "D_func_0", Owner: "D", OwnerPos: imf.Position{X: 0, Y: 300}, Index: 0},
	}

	placed := PlaceFunctions(funcs, DefaultOptions())

	var ids []string
	for _, p := range placed {
		ids = append(ids, p.ID)
	}
	if want := []string{"A_func_0", "A_func_1", "D_func_0", "B_func_0", "C_func_0"}; !slices.Equal(ids, want) {
		t.Errorf("order = %v, want %v", ids, want)
	}

	wantX := []float64{0, 150, 300, 450, 600}
	for i, p := range placed {
		if p.Position.X != wantX[i] || p.Position.Y != DefaultFunctionY {
			t.Errorf("%s at %+v, want x=%v y=%v", p.ID, p.Position, wantX[i], DefaultFunctionY)
		}
		if p.Position.X < p.OwnerPos.X {
			t.Errorf("%s placed left of its owner", p.ID)
		}
	}

	if funcs[0].ID != "C_func_0" {
		t.Error("input slice was reordered")
	}
}

func TestPlaceFunctionsFloorsAtOwner(t *testing.T) {
	placed := PlaceFunctions([]Function{
		{ID: "a", OwnerPos: imf.Position{X: 0}},
		{ID: "b", OwnerPos: imf.Position{X: 1000}},
		{ID: "c", OwnerPos: imf.Position{X: 1000}, Index: 1},
	}, DefaultOptions())

	want := []float64{0, 1000, 1150}
	for i, p := range placed {
		if p.Position.X != want[i] {
			t.Errorf("%s x = %v, want %v", p.ID, p.Position.X, want[i])
		}
	}
}

func TestOptionsValidate(t *testing.T) {
	if err := DefaultOptions().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	bad := DefaultOptions()
	bad.XGap = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero x_gap")
	}
}

func TestFunctionID(t *testing.T) {
	if got := FunctionID("A001", 2); got != "A001_func_2" {
		t.Errorf("FunctionID = %q", got)
	}
}

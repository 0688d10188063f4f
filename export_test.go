package pdegrid_test

import (
	"math"
	"testing"

	pdegrid "github.com/pdegrid/pdegrid"
)

// ============================================================
// Index mappings
// ============================================================

func TestExport_FlatMultiRoundTrip(t *testing.T) {
	u := pdegrid.NewField("u", "x", "y")
	sys := &pdegrid.System{
		Domains: []pdegrid.Domain{{Var: "x", Lo: 0, Hi: 1}, {Var: "y", Lo: 0, Hi: 1}},
		Fields:  []*pdegrid.Field{u},
		Equations: []*pdegrid.Equation{
			pdegrid.Eq(pdegrid.LaplacianOf(u.Ref(), "x", "y"), pdegrid.C(0)),
		},
		Conditions: []*pdegrid.Equation{
			pdegrid.Eq(u.At(pdegrid.C(0), pdegrid.S("y")), pdegrid.C(0)),
			pdegrid.Eq(u.At(pdegrid.C(1), pdegrid.S("y")), pdegrid.C(0)),
			pdegrid.Eq(u.At(pdegrid.S("x"), pdegrid.C(0)), pdegrid.C(0)),
			pdegrid.Eq(u.At(pdegrid.S("x"), pdegrid.C(1)), pdegrid.C(0)),
		},
	}
	ds, err := pdegrid.Discretize(sys, pdegrid.Config{
		StepSizes: map[string]float64{"x": 0.25, "y": 0.25},
	})
	if err != nil {
		t.Fatalf("Discretize: %v", err)
	}
	for flat := range ds.Unknowns {
		f, idx, err := ds.MultiIndex(flat)
		if err != nil {
			t.Fatalf("MultiIndex(%d): %v", flat, err)
		}
		back, err := ds.FlatIndex(f, idx)
		if err != nil {
			t.Fatalf("FlatIndex(%v): %v", idx, err)
		}
		if back != flat {
			t.Errorf("round trip %d -> %v -> %d", flat, idx, back)
		}
	}
}

func TestExport_FlatIndexBounds(t *testing.T) {
	sys, u := poisson1D(0, 1)
	ds, err := pdegrid.Discretize(sys, pdegrid.Config{
		StepSizes: map[string]float64{"x": 0.25},
	})
	if err != nil {
		t.Fatalf("Discretize: %v", err)
	}
	if _, err := ds.FlatIndex(u, []int{5}); err == nil {
		t.Errorf("expected error for out-of-range index")
	}
	if _, err := ds.FlatIndex(u, []int{0, 0}); err == nil {
		t.Errorf("expected error for wrong index arity")
	}
	if _, _, err := ds.MultiIndex(len(ds.Unknowns)); err == nil {
		t.Errorf("expected error for out-of-range flat index")
	}
}

// ============================================================
// Reconstruction
// ============================================================

func TestExport_ReconstructPeriodicFanOut(t *testing.T) {
	sys, u := heat1D()
	sys.Conditions = []*pdegrid.Equation{
		pdegrid.Eq(u.At(pdegrid.S("t"), pdegrid.C(0)), u.At(pdegrid.S("t"), pdegrid.C(1))),
	}
	ds, err := pdegrid.Discretize(sys, heatConfig())
	if err != nil {
		t.Fatalf("Discretize: %v", err)
	}
	solution := []float64{10, 20, 30, 40}
	fields, err := ds.Reconstruct(solution)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	arr, ok := fields["u"]
	if !ok {
		t.Fatalf("missing field u in reconstruction")
	}
	if len(arr) != 5 {
		t.Fatalf("want 5 grid values, got %d", len(arr))
	}
	if arr[4] != arr[0] {
		t.Errorf("periodic fan-out: want arr[4] == arr[0], got %g vs %g", arr[4], arr[0])
	}
	for i, want := range []float64{10, 20, 30, 40, 10} {
		if arr[i] != want {
			t.Errorf("value %d: want %g, got %g", i, want, arr[i])
		}
	}
}

func TestExport_ReconstructLengthMismatch(t *testing.T) {
	sys, _ := poisson1D(0, 1)
	ds, err := pdegrid.Discretize(sys, pdegrid.Config{
		StepSizes: map[string]float64{"x": 0.25},
	})
	if err != nil {
		t.Fatalf("Discretize: %v", err)
	}
	if _, err := ds.Reconstruct([]float64{1, 2}); err == nil {
		t.Errorf("expected error for short solution vector")
	}
}

// ============================================================
// Solver handoff
// ============================================================

func TestExport_RHSFuncLengthMismatch(t *testing.T) {
	sys, _ := heatDirichlet()
	ds, err := pdegrid.Discretize(sys, heatConfig())
	if err != nil {
		t.Fatalf("Discretize: %v", err)
	}
	if err := ds.RHSFunc()(0, []float64{1}, make([]float64, len(ds.Unknowns))); err == nil {
		t.Errorf("expected error for short state vector")
	}
}

func TestExport_UnboundParameterFailsEvaluation(t *testing.T) {
	sys, u := heat1D()
	// A named parameter survives discretization symbolically and must be
	// substituted before the numeric handoff.
	sys.Equations = []*pdegrid.Equation{
		pdegrid.Eq(pdegrid.DOf("t", u.Ref()),
			pdegrid.MulOf(pdegrid.S("k"), pdegrid.DnOf("x", 2, u.Ref()))),
	}
	sys.Conditions = []*pdegrid.Equation{
		pdegrid.Eq(u.At(pdegrid.S("t"), pdegrid.C(0)), pdegrid.C(0)),
		pdegrid.Eq(u.At(pdegrid.S("t"), pdegrid.C(1)), pdegrid.C(0)),
	}
	ds, err := pdegrid.Discretize(sys, heatConfig())
	if err != nil {
		t.Fatalf("Discretize: %v", err)
	}
	n := len(ds.Unknowns)
	if err := ds.RHSFunc()(0, make([]float64, n), make([]float64, n)); err == nil {
		t.Errorf("expected error for unbound parameter k")
	}
}

func TestExport_TimeVariableBindsInRHS(t *testing.T) {
	sys, u := heat1D()
	// Time-dependent forcing on the boundary row.
	sys.Conditions = []*pdegrid.Equation{
		pdegrid.Eq(u.At(pdegrid.S("t"), pdegrid.C(0)), pdegrid.S("t")),
		pdegrid.Eq(u.At(pdegrid.S("t"), pdegrid.C(1)), pdegrid.C(0)),
	}
	ds, err := pdegrid.Discretize(sys, heatConfig())
	if err != nil {
		t.Fatalf("Discretize: %v", err)
	}
	n := len(ds.Unknowns)
	y := make([]float64, n)
	dy := make([]float64, n)
	if err := ds.RHSFunc()(0.75, y, dy); err != nil {
		t.Fatalf("RHSFunc: %v", err)
	}
	lo, _ := ds.FlatIndex(u, []int{0})
	// Residual of u(t,0) - t at zero state is -0.75.
	if math.Abs(dy[lo]+0.75) > 1e-12 {
		t.Errorf("boundary residual: want -0.75, got %g", dy[lo])
	}
}

func TestExport_InitialValuesAlgebraicSystem(t *testing.T) {
	sys, _ := poisson1D(0, 1)
	ds, err := pdegrid.Discretize(sys, pdegrid.Config{
		StepSizes: map[string]float64{"x": 0.25},
	})
	if err != nil {
		t.Fatalf("Discretize: %v", err)
	}
	if _, err := ds.InitialValues(); err == nil {
		t.Errorf("expected error for algebraic system")
	}
}

func TestExport_ShapeAndAxes(t *testing.T) {
	sys, u := heatDirichlet()
	ds, err := pdegrid.Discretize(sys, heatConfig())
	if err != nil {
		t.Fatalf("Discretize: %v", err)
	}
	shape, err := ds.Shape(u)
	if err != nil {
		t.Fatalf("Shape: %v", err)
	}
	if len(shape) != 1 || shape[0] != 5 {
		t.Errorf("want shape [5], got %v", shape)
	}
	if ds.TimeVar != "t" {
		t.Errorf("want time variable t, got %s", ds.TimeVar)
	}
	if ds.Size() != 5 {
		t.Errorf("want size 5, got %d", ds.Size())
	}
	if _, err := ds.Shape(pdegrid.NewField("v", "x")); err == nil {
		t.Errorf("expected error for undeclared field")
	}
}

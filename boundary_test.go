package pdegrid_test

import (
	"errors"
	"math"
	"testing"

	pdegrid "github.com/pdegrid/pdegrid"
)

// heat1D builds u_t = u_xx on t in [0,1], x in [0,1] with no conditions;
// tests attach their own.
func heat1D() (*pdegrid.System, *pdegrid.Field) {
	u := pdegrid.NewField("u", "t", "x")
	sys := &pdegrid.System{
		Domains: []pdegrid.Domain{{Var: "t", Lo: 0, Hi: 1}, {Var: "x", Lo: 0, Hi: 1}},
		Fields:  []*pdegrid.Field{u},
		Equations: []*pdegrid.Equation{
			pdegrid.Eq(pdegrid.DOf("t", u.Ref()), pdegrid.DnOf("x", 2, u.Ref())),
		},
	}
	return sys, u
}

func heatConfig() pdegrid.Config {
	return pdegrid.Config{
		StepSizes: map[string]float64{"x": 0.25},
		TimeVar:   "t",
	}
}

// ============================================================
// Shape rejections
// ============================================================

func TestBC_TransverseDerivativeRejected(t *testing.T) {
	u := pdegrid.NewField("u", "x", "y")
	sys := &pdegrid.System{
		Domains: []pdegrid.Domain{{Var: "x", Lo: 0, Hi: 1}, {Var: "y", Lo: 0, Hi: 1}},
		Fields:  []*pdegrid.Field{u},
		Equations: []*pdegrid.Equation{
			pdegrid.Eq(pdegrid.LaplacianOf(u.Ref(), "x", "y"), pdegrid.C(0)),
		},
		Conditions: []*pdegrid.Equation{
			// d/dy on the x face differentiates along the boundary surface.
			pdegrid.Eq(pdegrid.DOf("y", u.At(pdegrid.C(0), pdegrid.S("y"))), pdegrid.C(0)),
		},
	}
	_, err := pdegrid.Discretize(sys, pdegrid.Config{
		StepSizes: map[string]float64{"x": 0.25, "y": 0.25},
	})
	if !errors.Is(err, pdegrid.ErrUnsupportedBCShape) {
		t.Errorf("want ErrUnsupportedBCShape, got %v", err)
	}
}

func TestBC_PinAwayFromEnds(t *testing.T) {
	sys, u := heat1D()
	sys.Conditions = []*pdegrid.Equation{
		pdegrid.Eq(u.At(pdegrid.S("t"), pdegrid.C(0.5)), pdegrid.C(0)),
	}
	_, err := pdegrid.Discretize(sys, heatConfig())
	if !errors.Is(err, pdegrid.ErrUnsupportedBCShape) {
		t.Errorf("interior pin: want ErrUnsupportedBCShape, got %v", err)
	}
}

func TestBC_DuplicateFace(t *testing.T) {
	sys, u := heat1D()
	sys.Conditions = []*pdegrid.Equation{
		pdegrid.Eq(u.At(pdegrid.S("t"), pdegrid.C(0)), pdegrid.C(0)),
		pdegrid.Eq(u.At(pdegrid.S("t"), pdegrid.C(0)), pdegrid.C(1)),
		pdegrid.Eq(u.At(pdegrid.S("t"), pdegrid.C(1)), pdegrid.C(0)),
	}
	_, err := pdegrid.Discretize(sys, heatConfig())
	if !errors.Is(err, pdegrid.ErrUnsupportedBCShape) {
		t.Errorf("duplicate face: want ErrUnsupportedBCShape, got %v", err)
	}
}

func TestBC_InitialWithTimeDerivative(t *testing.T) {
	sys, u := heat1D()
	sys.Conditions = []*pdegrid.Equation{
		pdegrid.Eq(u.At(pdegrid.S("t"), pdegrid.C(0)), pdegrid.C(0)),
		pdegrid.Eq(u.At(pdegrid.S("t"), pdegrid.C(1)), pdegrid.C(0)),
		pdegrid.Eq(pdegrid.DOf("t", u.At(pdegrid.C(0), pdegrid.S("x"))), pdegrid.C(0)),
	}
	_, err := pdegrid.Discretize(sys, heatConfig())
	if !errors.Is(err, pdegrid.ErrUnsupportedBCShape) {
		t.Errorf("time derivative in IC: want ErrUnsupportedBCShape, got %v", err)
	}
}

func TestBC_FinalTimePinRejected(t *testing.T) {
	sys, u := heat1D()
	sys.Conditions = []*pdegrid.Equation{
		pdegrid.Eq(u.At(pdegrid.C(1), pdegrid.S("x")), pdegrid.C(0)),
	}
	_, err := pdegrid.Discretize(sys, heatConfig())
	if !errors.Is(err, pdegrid.ErrUnsupportedBCShape) {
		t.Errorf("final-time pin: want ErrUnsupportedBCShape, got %v", err)
	}
}

func TestBC_InitialReferencingField(t *testing.T) {
	sys, u := heat1D()
	sys.Conditions = []*pdegrid.Equation{
		pdegrid.Eq(u.At(pdegrid.S("t"), pdegrid.C(0)), pdegrid.C(0)),
		pdegrid.Eq(u.At(pdegrid.S("t"), pdegrid.C(1)), pdegrid.C(0)),
		pdegrid.Eq(u.At(pdegrid.C(0), pdegrid.S("x")), u.At(pdegrid.C(0), pdegrid.S("x"))),
	}
	_, err := pdegrid.Discretize(sys, heatConfig())
	if !errors.Is(err, pdegrid.ErrUnsupportedBCShape) {
		t.Errorf("implicit IC: want ErrUnsupportedBCShape, got %v", err)
	}
}

// ============================================================
// Kind classification
// ============================================================

func sourceAt(ds *pdegrid.DiscreteSystem, u *pdegrid.Field, index []int) (string, error) {
	flat, err := ds.FlatIndex(u, index)
	if err != nil {
		return "", err
	}
	return ds.Equations[flat].Source, nil
}

func TestBC_DirichletKind(t *testing.T) {
	sys, u := heat1D()
	sys.Conditions = []*pdegrid.Equation{
		pdegrid.Eq(u.At(pdegrid.S("t"), pdegrid.C(0)), pdegrid.C(0)),
		pdegrid.Eq(u.At(pdegrid.S("t"), pdegrid.C(1)), pdegrid.C(0)),
	}
	ds, err := pdegrid.Discretize(sys, heatConfig())
	if err != nil {
		t.Fatalf("Discretize: %v", err)
	}
	src, err := sourceAt(ds, u, []int{0})
	if err != nil {
		t.Fatalf("FlatIndex: %v", err)
	}
	if src != "Dirichlet" {
		t.Errorf("want Dirichlet row, got %s", src)
	}
}

func TestBC_NeumannKind(t *testing.T) {
	sys, u := heat1D()
	sys.Conditions = []*pdegrid.Equation{
		pdegrid.Eq(pdegrid.DOf("x", u.At(pdegrid.S("t"), pdegrid.C(0))), pdegrid.C(0)),
		pdegrid.Eq(u.At(pdegrid.S("t"), pdegrid.C(1)), pdegrid.C(0)),
	}
	ds, err := pdegrid.Discretize(sys, heatConfig())
	if err != nil {
		t.Fatalf("Discretize: %v", err)
	}
	src, err := sourceAt(ds, u, []int{0})
	if err != nil {
		t.Fatalf("FlatIndex: %v", err)
	}
	if src != "Neumann" {
		t.Errorf("want Neumann row, got %s", src)
	}
}

func TestBC_RobinKind(t *testing.T) {
	sys, u := heat1D()
	wallRef := u.At(pdegrid.S("t"), pdegrid.C(0))
	sys.Conditions = []*pdegrid.Equation{
		pdegrid.Eq(pdegrid.AddOf(wallRef, pdegrid.DOf("x", wallRef)), pdegrid.C(2)),
		pdegrid.Eq(u.At(pdegrid.S("t"), pdegrid.C(1)), pdegrid.C(0)),
	}
	ds, err := pdegrid.Discretize(sys, heatConfig())
	if err != nil {
		t.Fatalf("Discretize: %v", err)
	}
	src, err := sourceAt(ds, u, []int{0})
	if err != nil {
		t.Fatalf("FlatIndex: %v", err)
	}
	if src != "Robin" {
		t.Errorf("want Robin row, got %s", src)
	}
}

// ============================================================
// Periodic identification
// ============================================================

func TestBC_PeriodicAliasesFaces(t *testing.T) {
	sys, u := heat1D()
	sys.Conditions = []*pdegrid.Equation{
		pdegrid.Eq(u.At(pdegrid.S("t"), pdegrid.C(0)), u.At(pdegrid.S("t"), pdegrid.C(1))),
	}
	ds, err := pdegrid.Discretize(sys, heatConfig())
	if err != nil {
		t.Fatalf("Discretize: %v", err)
	}
	// 5 grid points, the two x faces share one unknown.
	if len(ds.Unknowns) != 4 {
		t.Fatalf("want 4 unknowns, got %d", len(ds.Unknowns))
	}
	lo, err := ds.FlatIndex(u, []int{0})
	if err != nil {
		t.Fatalf("FlatIndex lo: %v", err)
	}
	hi, err := ds.FlatIndex(u, []int{4})
	if err != nil {
		t.Fatalf("FlatIndex hi: %v", err)
	}
	if lo != hi {
		t.Errorf("periodic faces should share an unknown: %d vs %d", lo, hi)
	}
}

func TestBC_PeriodicEdgeAlignedAliasing(t *testing.T) {
	sys, u := heat1D()
	sys.Conditions = []*pdegrid.Equation{
		pdegrid.Eq(u.At(pdegrid.S("t"), pdegrid.C(0)), u.At(pdegrid.S("t"), pdegrid.C(1))),
	}
	cfg := heatConfig()
	cfg.GridAlign = pdegrid.AlignEdge
	ds, err := pdegrid.Discretize(sys, cfg)
	if err != nil {
		t.Fatalf("Discretize: %v", err)
	}
	// 6 grid points at -0.125 .. 1.125: both half-step points beyond the
	// upper wall repeat the points one period (1.0) below, leaving 4
	// unknowns.
	if len(ds.Unknowns) != 4 {
		t.Fatalf("want 4 unknowns, got %d", len(ds.Unknowns))
	}
	for _, pair := range [][2]int{{4, 0}, {5, 1}} {
		a, err := ds.FlatIndex(u, []int{pair[0]})
		if err != nil {
			t.Fatalf("FlatIndex %d: %v", pair[0], err)
		}
		b, err := ds.FlatIndex(u, []int{pair[1]})
		if err != nil {
			t.Fatalf("FlatIndex %d: %v", pair[1], err)
		}
		if a != b {
			t.Errorf("indices %d and %d sit one period apart and should share an unknown: %d vs %d",
				pair[0], pair[1], a, b)
		}
	}
	// The two alias pairs stay distinct from each other.
	a, _ := ds.FlatIndex(u, []int{0})
	b, _ := ds.FlatIndex(u, []int{1})
	if a == b {
		t.Errorf("adjacent points should not collapse: both map to %d", a)
	}
}

func TestBC_PeriodicWrapsStencil(t *testing.T) {
	sys, u := heat1D()
	sys.Conditions = []*pdegrid.Equation{
		pdegrid.Eq(u.At(pdegrid.S("t"), pdegrid.C(0)), u.At(pdegrid.S("t"), pdegrid.C(1))),
	}
	ds, err := pdegrid.Discretize(sys, heatConfig())
	if err != nil {
		t.Fatalf("Discretize: %v", err)
	}
	// A constant state has zero discrete laplacian everywhere, including
	// at the wrapped points.
	y := []float64{3, 3, 3, 3}
	dy := make([]float64, 4)
	if err := ds.RHSFunc()(0, y, dy); err != nil {
		t.Fatalf("RHSFunc: %v", err)
	}
	for i, v := range dy {
		if math.Abs(v) > 1e-9 {
			t.Errorf("row %d: want 0 for constant state, got %g", i, v)
		}
	}
}

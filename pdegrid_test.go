package pdegrid_test

import (
	"encoding/json"
	"math"
	"testing"

	pdegrid "github.com/pdegrid/pdegrid"
)

// ============================================================
// Constant and symbol tests
// ============================================================

func TestNum_String(t *testing.T) {
	n := pdegrid.C(42)
	if n.String() != "42" {
		t.Errorf("want 42, got %s", n.String())
	}
}

func TestNum_Eval(t *testing.T) {
	v, ok := pdegrid.C(7.5).Eval()
	if !ok || v != 7.5 {
		t.Errorf("want 7.5, got %v (ok=%v)", v, ok)
	}
}

func TestSym_Sub_Match(t *testing.T) {
	x := pdegrid.S("x")
	result := x.Sub("x", pdegrid.C(3))
	if result.String() != "3" {
		t.Errorf("want 3, got %s", result.String())
	}
}

func TestSym_Sub_NoMatch(t *testing.T) {
	x := pdegrid.S("x")
	result := x.Sub("y", pdegrid.C(3))
	if result.String() != "x" {
		t.Errorf("want x, got %s", result.String())
	}
}

// ============================================================
// Add / Mul / Pow simplification tests
// ============================================================

func TestAdd_CollapseConstants(t *testing.T) {
	e := pdegrid.AddOf(pdegrid.C(1), pdegrid.C(-1))
	if e.String() != "0" {
		t.Errorf("want 0, got %s", e.String())
	}
}

func TestAdd_Flattens(t *testing.T) {
	x, y := pdegrid.S("x"), pdegrid.S("y")
	e := pdegrid.AddOf(x, pdegrid.AddOf(y, pdegrid.C(2)))
	if e.String() != "x + y + 2" {
		t.Errorf("want 'x + y + 2', got %s", e.String())
	}
}

func TestMul_ZeroAnnihilates(t *testing.T) {
	e := pdegrid.MulOf(pdegrid.C(0), pdegrid.S("x"))
	if e.String() != "0" {
		t.Errorf("want 0, got %s", e.String())
	}
}

func TestMul_ConstantFolding(t *testing.T) {
	e := pdegrid.MulOf(pdegrid.C(2), pdegrid.C(3), pdegrid.S("x"))
	if e.String() != "6*x" {
		t.Errorf("want '6*x', got %s", e.String())
	}
}

func TestPow_Identities(t *testing.T) {
	x := pdegrid.S("x")
	if e := pdegrid.PowOf(x, pdegrid.C(1)); e.String() != "x" {
		t.Errorf("x^1: want x, got %s", e.String())
	}
	if e := pdegrid.PowOf(x, pdegrid.C(0)); e.String() != "1" {
		t.Errorf("x^0: want 1, got %s", e.String())
	}
	if e := pdegrid.PowOf(pdegrid.C(2), pdegrid.C(3)); e.String() != "8" {
		t.Errorf("2^3: want 8, got %s", e.String())
	}
}

func TestFunc_ConstantFolding(t *testing.T) {
	e := pdegrid.SinOf(pdegrid.C(0))
	if e.String() != "0" {
		t.Errorf("sin(0): want 0, got %s", e.String())
	}
	v, ok := pdegrid.ExpOf(pdegrid.C(1)).Eval()
	if !ok || math.Abs(v-math.E) > 1e-12 {
		t.Errorf("exp(1): want e, got %v", v)
	}
}

// ============================================================
// Field and derivative tests
// ============================================================

func TestField_Ref_FullSignature(t *testing.T) {
	u := pdegrid.NewField("u", "t", "x")
	if u.Ref().String() != "u(t,x)" {
		t.Errorf("want u(t,x), got %s", u.Ref().String())
	}
}

func TestField_At_PinnedSlice(t *testing.T) {
	u := pdegrid.NewField("u", "t", "x")
	r := u.At(pdegrid.S("t"), pdegrid.C(0))
	if r.String() != "u(t,0)" {
		t.Errorf("want u(t,0), got %s", r.String())
	}
}

func TestD_NestingCollapses(t *testing.T) {
	u := pdegrid.NewField("u", "x")
	d := pdegrid.DOf("x", pdegrid.DOf("x", u.Ref()))
	if d.Order() != 2 {
		t.Errorf("want order 2, got %d", d.Order())
	}
	if _, isD := d.Arg().(*pdegrid.D); isD {
		t.Errorf("nested same-axis derivative should collapse, got %s", d.String())
	}
}

func TestD_String(t *testing.T) {
	u := pdegrid.NewField("u", "x")
	d := pdegrid.DnOf("x", 2, u.Ref())
	if d.String() != "D[x,2](u(x))" {
		t.Errorf("want D[x,2](u(x)), got %s", d.String())
	}
}

func TestEquation_Residual(t *testing.T) {
	eq := pdegrid.Eq(pdegrid.C(5), pdegrid.C(3))
	v, ok := eq.Residual().Eval()
	if !ok || v != 2 {
		t.Errorf("want 2, got %v", v)
	}
}

func TestFreeVars_IncludesRefArgs(t *testing.T) {
	u := pdegrid.NewField("u", "t", "x")
	vars := pdegrid.FreeVars(pdegrid.MulOf(pdegrid.S("k"), pdegrid.DOf("x", u.Ref())))
	for _, want := range []string{"k", "t", "x"} {
		if _, ok := vars[want]; !ok {
			t.Errorf("free vars should contain %s, got %v", want, vars)
		}
	}
}

// ============================================================
// Composite operator tests
// ============================================================

func TestLaplacianOf_SumsAxes(t *testing.T) {
	u := pdegrid.NewField("u", "x", "y")
	e := pdegrid.LaplacianOf(u.Ref(), "x", "y")
	if e.String() != "D[x,2](u(x,y)) + D[y,2](u(x,y))" {
		t.Errorf("unexpected laplacian form: %s", e.String())
	}
}

func TestSphericalLaplacianOf_FluxForm(t *testing.T) {
	u := pdegrid.NewField("u", "r")
	e := pdegrid.SphericalLaplacianOf(u.Ref(), "r")
	if e.String() != "r^-2*D[r](r^2*D[r](u(r)))" {
		t.Errorf("unexpected spherical laplacian form: %s", e.String())
	}
}

// ============================================================
// JSON interchange tests
// ============================================================

func TestJSON_RoundTrip(t *testing.T) {
	u := pdegrid.NewField("u", "t", "x")
	orig := pdegrid.AddOf(
		pdegrid.MulOf(pdegrid.C(2), pdegrid.DnOf("x", 2, u.Ref())),
		pdegrid.SinOf(pdegrid.S("x")),
	)
	s, err := pdegrid.ToJSON(orig)
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	back, err := pdegrid.FromJSON(m, []*pdegrid.Field{u})
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if !orig.Equal(back) {
		t.Errorf("round trip changed expression: %s vs %s", orig.String(), back.String())
	}
}

func TestJSON_UndeclaredField(t *testing.T) {
	u := pdegrid.NewField("u", "x")
	s, err := pdegrid.ToJSON(u.Ref())
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, err := pdegrid.FromJSON(m, nil); err == nil {
		t.Errorf("expected error for undeclared field")
	}
}

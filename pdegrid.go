// Package pdegrid discretizes symbolic PDE systems on structured grids.
//
// Design goals:
//   - Closed symbolic AST: every expression is one of a fixed variant set
//   - Deterministic output: identical input yields bit-identical ordering
//   - Method of lines: space is discretized, time (if present) stays continuous
//   - Hard usage contract: unsupported forms fail the whole pass, loudly
//
// The package consumes a System built by an external symbolic front end and
// produces a DiscreteSystem suitable for a general-purpose ODE or nonlinear
// solver. Equation authoring, time integration, and plotting live elsewhere.
package pdegrid

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ============================================================
// Core Interface
// ============================================================

// Expr is the closed expression variant set. The only implementations are
// Num, Sym, FieldRef, D, Add, Mul, Pow, Func, and URef; the classifier
// pattern-matches over exactly this set.
type Expr interface {
	String() string
	Simplify() Expr
	Sub(varName string, value Expr) Expr
	Eval() (float64, bool)
	Equal(other Expr) bool
	exprType() string
	toJSON() map[string]interface{}
}

// ============================================================
// Num — floating-point constant
// ============================================================

type Num struct{ val float64 }

func C(v float64) *Num { return &Num{val: v} }

func (n *Num) Simplify() Expr        { return n }
func (n *Num) Sub(string, Expr) Expr { return n }
func (n *Num) Eval() (float64, bool) { return n.val, true }
func (n *Num) Equal(other Expr) bool { o, ok := other.(*Num); return ok && n.val == o.val }
func (n *Num) exprType() string      { return "num" }
func (n *Num) Value() float64        { return n.val }
func (n *Num) IsZero() bool          { return n.val == 0 }
func (n *Num) IsOne() bool           { return n.val == 1 }

func (n *Num) String() string {
	return strconv.FormatFloat(n.val, 'g', -1, 64)
}

func (n *Num) toJSON() map[string]interface{} {
	return map[string]interface{}{"type": "num", "value": n.val}
}

// ============================================================
// Sym — independent variable or named parameter
// ============================================================

type Sym struct{ name string }

func S(name string) *Sym { return &Sym{name: name} }

func (s *Sym) Simplify() Expr        { return s }
func (s *Sym) String() string        { return s.name }
func (s *Sym) Eval() (float64, bool) { return 0, false }
func (s *Sym) Equal(other Expr) bool { o, ok := other.(*Sym); return ok && s.name == o.name }
func (s *Sym) exprType() string      { return "sym" }
func (s *Sym) Name() string          { return s.name }
func (s *Sym) toJSON() map[string]interface{} {
	return map[string]interface{}{"type": "sym", "name": s.name}
}
func (s *Sym) Sub(varName string, value Expr) Expr {
	if s.name == varName {
		return value
	}
	return s
}

// ============================================================
// Field and FieldRef — dependent variables
// ============================================================

// Field declares one dependent variable over an ordered domain signature,
// e.g. u(t, x, y). Declaration order of fields fixes output ordering.
type Field struct {
	name string
	vars []string
}

func NewField(name string, vars ...string) *Field {
	return &Field{name: name, vars: append([]string(nil), vars...)}
}

func (f *Field) Name() string   { return f.name }
func (f *Field) Vars() []string { return append([]string(nil), f.vars...) }

func (f *Field) DependsOn(varName string) bool {
	for _, v := range f.vars {
		if v == varName {
			return true
		}
	}
	return false
}

// Ref returns the full-signature reference u(t, x, ...), the form the
// classifier accepts inside derivatives.
func (f *Field) Ref() *FieldRef {
	args := make([]Expr, len(f.vars))
	for i, v := range f.vars {
		args[i] = S(v)
	}
	return &FieldRef{field: f, args: args}
}

// At returns a reference with explicit arguments, used to pin boundary or
// initial slices: u.At(S("t"), C(0)).
func (f *Field) At(args ...Expr) *FieldRef {
	if len(args) != len(f.vars) {
		panic(fmt.Sprintf("pdegrid: %s takes %d arguments, got %d", f.name, len(f.vars), len(args)))
	}
	return &FieldRef{field: f, args: append([]Expr(nil), args...)}
}

type FieldRef struct {
	field *Field
	args  []Expr
}

func (r *FieldRef) Simplify() Expr        { return r }
func (r *FieldRef) Eval() (float64, bool) { return 0, false }
func (r *FieldRef) exprType() string      { return "fieldref" }
func (r *FieldRef) Field() *Field         { return r.field }
func (r *FieldRef) Args() []Expr          { return append([]Expr(nil), r.args...) }

func (r *FieldRef) String() string {
	parts := make([]string, len(r.args))
	for i, a := range r.args {
		parts[i] = a.String()
	}
	return r.field.name + "(" + strings.Join(parts, ",") + ")"
}

func (r *FieldRef) Sub(varName string, value Expr) Expr {
	newArgs := make([]Expr, len(r.args))
	for i, a := range r.args {
		newArgs[i] = a.Sub(varName, value)
	}
	return &FieldRef{field: r.field, args: newArgs}
}

func (r *FieldRef) Equal(other Expr) bool {
	o, ok := other.(*FieldRef)
	if !ok || r.field.name != o.field.name || len(r.args) != len(o.args) {
		return false
	}
	for i := range r.args {
		if !r.args[i].Equal(o.args[i]) {
			return false
		}
	}
	return true
}

func (r *FieldRef) toJSON() map[string]interface{} {
	args := make([]map[string]interface{}, len(r.args))
	for i, a := range r.args {
		args[i] = a.toJSON()
	}
	return map[string]interface{}{"type": "fieldref", "field": r.field.name, "args": args}
}

// isFull reports whether the reference carries the plain full signature,
// every argument the matching Sym.
func (r *FieldRef) isFull() bool {
	for i, a := range r.args {
		s, ok := a.(*Sym)
		if !ok || s.name != r.field.vars[i] {
			return false
		}
	}
	return true
}

// argFor returns the argument bound to the named domain variable.
func (r *FieldRef) argFor(varName string) (Expr, bool) {
	for i, v := range r.field.vars {
		if v == varName {
			return r.args[i], true
		}
	}
	return nil, false
}

// ============================================================
// D — derivative node
// ============================================================

// D is differentiation data, not an operation: D{order, wrt, arg} stands for
// the order-th partial derivative of arg with respect to wrt. The engine
// replaces supported D nodes with stencil expansions; it never differentiates.
type D struct {
	order int
	wrt   string
	arg   Expr
}

func DOf(wrt string, arg Expr) *D { return DnOf(wrt, 1, arg) }

func DnOf(wrt string, order int, arg Expr) *D {
	if order < 1 {
		panic("pdegrid: derivative order must be >= 1")
	}
	// Same-axis nesting collapses to one node of summed order.
	if inner, ok := arg.(*D); ok && inner.wrt == wrt {
		return &D{order: order + inner.order, wrt: wrt, arg: inner.arg}
	}
	return &D{order: order, wrt: wrt, arg: arg}
}

func (d *D) Simplify() Expr        { return DnOf(d.wrt, d.order, d.arg.Simplify()) }
func (d *D) Eval() (float64, bool) { return 0, false }
func (d *D) exprType() string      { return "d" }
func (d *D) Order() int            { return d.order }
func (d *D) Wrt() string           { return d.wrt }
func (d *D) Arg() Expr             { return d.arg }

func (d *D) String() string {
	if d.order == 1 {
		return "D[" + d.wrt + "](" + d.arg.String() + ")"
	}
	return fmt.Sprintf("D[%s,%d](%s)", d.wrt, d.order, d.arg.String())
}

func (d *D) Sub(varName string, value Expr) Expr {
	return &D{order: d.order, wrt: d.wrt, arg: d.arg.Sub(varName, value)}
}

func (d *D) Equal(other Expr) bool {
	o, ok := other.(*D)
	return ok && d.order == o.order && d.wrt == o.wrt && d.arg.Equal(o.arg)
}

func (d *D) toJSON() map[string]interface{} {
	return map[string]interface{}{"type": "d", "wrt": d.wrt, "order": d.order, "arg": d.arg.toJSON()}
}

// ============================================================
// Add — sum of terms
// ============================================================

type Add struct{ terms []Expr }

func AddOf(terms ...Expr) Expr { return (&Add{terms: terms}).Simplify() }

func (a *Add) Simplify() Expr {
	flat := make([]Expr, 0, len(a.terms))
	acc := 0.0
	for _, t := range a.terms {
		s := t.Simplify()
		switch v := s.(type) {
		case *Add:
			flat = append(flat, v.terms...)
		case *Num:
			acc += v.val
		default:
			flat = append(flat, s)
		}
	}
	if acc != 0 {
		flat = append(flat, C(acc))
	}
	if len(flat) == 0 {
		return C(0)
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return &Add{terms: flat}
}

func (a *Add) String() string {
	parts := make([]string, len(a.terms))
	for i, t := range a.terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, " + ")
}

func (a *Add) Sub(varName string, value Expr) Expr {
	newTerms := make([]Expr, len(a.terms))
	for i, t := range a.terms {
		newTerms[i] = t.Sub(varName, value)
	}
	return AddOf(newTerms...)
}

func (a *Add) Eval() (float64, bool) {
	acc := 0.0
	for _, t := range a.terms {
		v, ok := t.Eval()
		if !ok {
			return 0, false
		}
		acc += v
	}
	return acc, true
}

func (a *Add) Equal(other Expr) bool {
	o, ok := other.(*Add)
	if !ok || len(a.terms) != len(o.terms) {
		return false
	}
	for i := range a.terms {
		if !a.terms[i].Equal(o.terms[i]) {
			return false
		}
	}
	return true
}

func (a *Add) exprType() string { return "add" }
func (a *Add) Terms() []Expr    { return append([]Expr(nil), a.terms...) }
func (a *Add) toJSON() map[string]interface{} {
	ts := make([]map[string]interface{}, len(a.terms))
	for i, t := range a.terms {
		ts[i] = t.toJSON()
	}
	return map[string]interface{}{"type": "add", "terms": ts}
}

// ============================================================
// Mul — product of factors
// ============================================================

type Mul struct{ factors []Expr }

func MulOf(factors ...Expr) Expr { return (&Mul{factors: factors}).Simplify() }

func (m *Mul) Simplify() Expr {
	flat := make([]Expr, 0, len(m.factors))
	coeff := 1.0
	for _, f := range m.factors {
		s := f.Simplify()
		switch v := s.(type) {
		case *Mul:
			flat = append(flat, v.factors...)
		case *Num:
			coeff *= v.val
		default:
			flat = append(flat, s)
		}
	}
	if coeff == 0 {
		return C(0)
	}
	if len(flat) == 0 {
		return C(coeff)
	}
	if coeff != 1 {
		flat = append([]Expr{C(coeff)}, flat...)
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return &Mul{factors: flat}
}

func (m *Mul) String() string {
	parts := make([]string, len(m.factors))
	for i, f := range m.factors {
		if _, isAdd := f.(*Add); isAdd {
			parts[i] = "(" + f.String() + ")"
		} else {
			parts[i] = f.String()
		}
	}
	return strings.Join(parts, "*")
}

func (m *Mul) Sub(varName string, value Expr) Expr {
	newFactors := make([]Expr, len(m.factors))
	for i, f := range m.factors {
		newFactors[i] = f.Sub(varName, value)
	}
	return MulOf(newFactors...)
}

func (m *Mul) Eval() (float64, bool) {
	acc := 1.0
	for _, f := range m.factors {
		v, ok := f.Eval()
		if !ok {
			return 0, false
		}
		acc *= v
	}
	return acc, true
}

func (m *Mul) Equal(other Expr) bool {
	o, ok := other.(*Mul)
	if !ok || len(m.factors) != len(o.factors) {
		return false
	}
	for i := range m.factors {
		if !m.factors[i].Equal(o.factors[i]) {
			return false
		}
	}
	return true
}

func (m *Mul) exprType() string { return "mul" }
func (m *Mul) Factors() []Expr  { return append([]Expr(nil), m.factors...) }
func (m *Mul) toJSON() map[string]interface{} {
	fs := make([]map[string]interface{}, len(m.factors))
	for i, f := range m.factors {
		fs[i] = f.toJSON()
	}
	return map[string]interface{}{"type": "mul", "factors": fs}
}

// ============================================================
// Pow — base^exponent
// ============================================================

type Pow struct{ base, exp Expr }

func PowOf(base, exp Expr) Expr { return (&Pow{base: base, exp: exp}).Simplify() }

func (p *Pow) Simplify() Expr {
	base := p.base.Simplify()
	exp := p.exp.Simplify()
	if en, ok := exp.(*Num); ok {
		if en.IsZero() {
			return C(1)
		}
		if en.IsOne() {
			return base
		}
		if bn, ok2 := base.(*Num); ok2 {
			return C(math.Pow(bn.val, en.val))
		}
	}
	return &Pow{base: base, exp: exp}
}

func (p *Pow) String() string {
	baseStr := p.base.String()
	switch p.base.(type) {
	case *Add, *Mul:
		baseStr = "(" + baseStr + ")"
	}
	return baseStr + "^" + p.exp.String()
}

func (p *Pow) Sub(varName string, value Expr) Expr {
	return PowOf(p.base.Sub(varName, value), p.exp.Sub(varName, value))
}

func (p *Pow) Eval() (float64, bool) {
	b, ok1 := p.base.Eval()
	e, ok2 := p.exp.Eval()
	if !ok1 || !ok2 {
		return 0, false
	}
	v := math.Pow(b, e)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func (p *Pow) Equal(other Expr) bool {
	o, ok := other.(*Pow)
	return ok && p.base.Equal(o.base) && p.exp.Equal(o.exp)
}

func (p *Pow) exprType() string { return "pow" }
func (p *Pow) Base() Expr       { return p.base }
func (p *Pow) Exp() Expr        { return p.exp }
func (p *Pow) toJSON() map[string]interface{} {
	return map[string]interface{}{"type": "pow", "base": p.base.toJSON(), "exp": p.exp.toJSON()}
}

// ============================================================
// Func — named unary function applications
// ============================================================

type Func struct {
	name string
	arg  Expr
}

func funcOf(name string, arg Expr) *Func { return &Func{name: name, arg: arg} }

func SinOf(arg Expr) Expr  { return funcOf("sin", arg).Simplify() }
func CosOf(arg Expr) Expr  { return funcOf("cos", arg).Simplify() }
func TanOf(arg Expr) Expr  { return funcOf("tan", arg).Simplify() }
func ExpOf(arg Expr) Expr  { return funcOf("exp", arg).Simplify() }
func LnOf(arg Expr) Expr   { return funcOf("ln", arg).Simplify() }
func SqrtOf(arg Expr) Expr { return funcOf("sqrt", arg).Simplify() }
func AbsOf(arg Expr) Expr  { return funcOf("abs", arg).Simplify() }
func TanhOf(arg Expr) Expr { return funcOf("tanh", arg).Simplify() }

func applyFunc(name string, v float64) (float64, bool) {
	switch name {
	case "sin":
		return math.Sin(v), true
	case "cos":
		return math.Cos(v), true
	case "tan":
		return math.Tan(v), true
	case "exp":
		return math.Exp(v), true
	case "ln":
		if v <= 0 {
			return 0, false
		}
		return math.Log(v), true
	case "sqrt":
		if v < 0 {
			return 0, false
		}
		return math.Sqrt(v), true
	case "abs":
		return math.Abs(v), true
	case "tanh":
		return math.Tanh(v), true
	}
	return 0, false
}

func (f *Func) Simplify() Expr {
	arg := f.arg.Simplify()
	if n, ok := arg.(*Num); ok {
		if v, ok2 := applyFunc(f.name, n.val); ok2 {
			return C(v)
		}
	}
	return &Func{name: f.name, arg: arg}
}

func (f *Func) String() string { return f.name + "(" + f.arg.String() + ")" }

func (f *Func) Sub(varName string, value Expr) Expr {
	return funcOf(f.name, f.arg.Sub(varName, value)).Simplify()
}

func (f *Func) Eval() (float64, bool) {
	v, ok := f.arg.Eval()
	if !ok {
		return 0, false
	}
	return applyFunc(f.name, v)
}

func (f *Func) Equal(other Expr) bool {
	o, ok := other.(*Func)
	return ok && f.name == o.name && f.arg.Equal(o.arg)
}

func (f *Func) exprType() string { return "func" }
func (f *Func) FuncName() string { return f.name }
func (f *Func) Arg() Expr        { return f.arg }
func (f *Func) toJSON() map[string]interface{} {
	return map[string]interface{}{"type": "func", "name": f.name, "arg": f.arg.toJSON()}
}

// ============================================================
// Composite constructors
// ============================================================

// LaplacianOf builds the isotropic Laplacian sum over the given axes.
func LaplacianOf(ref *FieldRef, axes ...string) Expr {
	terms := make([]Expr, len(axes))
	for i, ax := range axes {
		terms[i] = DnOf(ax, 2, ref)
	}
	return AddOf(terms...)
}

// SphericalLaplacianOf builds the radially symmetric Laplacian
// r^-2 * D_r(r^2 * D_r(u)) in its conserved flux form, which the
// classifier recognizes as a weighted Laplacian.
func SphericalLaplacianOf(ref *FieldRef, radial string) Expr {
	r := S(radial)
	flux := MulOf(PowOf(r, C(2)), DOf(radial, ref))
	return MulOf(PowOf(r, C(-2)), DOf(radial, flux))
}

// NonlinearLaplacianOf builds D_v(g * D_v(u)) where g is an expression of
// the field only, e.g. the porous-medium operator with g = u.
func NonlinearLaplacianOf(g Expr, ref *FieldRef, axis string) Expr {
	return DOf(axis, MulOf(g, DOf(axis, ref)))
}

// ============================================================
// Equation
// ============================================================

type Equation struct{ LHS, RHS Expr }

func Eq(lhs, rhs Expr) *Equation { return &Equation{LHS: lhs, RHS: rhs} }

func (e *Equation) String() string { return e.LHS.String() + " = " + e.RHS.String() }

// Residual returns LHS - RHS.
func (e *Equation) Residual() Expr {
	return AddOf(e.LHS, MulOf(C(-1), e.RHS))
}

// ============================================================
// Free variables
// ============================================================

// FreeVars returns every Sym name reachable in the expression, including
// those appearing inside field-reference arguments.
func FreeVars(e Expr) map[string]struct{} {
	result := map[string]struct{}{}
	collectVars(e, result)
	return result
}

func collectVars(e Expr, out map[string]struct{}) {
	switch v := e.(type) {
	case *Sym:
		out[v.name] = struct{}{}
	case *FieldRef:
		for _, a := range v.args {
			collectVars(a, out)
		}
	case *D:
		collectVars(v.arg, out)
	case *Add:
		for _, t := range v.terms {
			collectVars(t, out)
		}
	case *Mul:
		for _, f := range v.factors {
			collectVars(f, out)
		}
	case *Pow:
		collectVars(v.base, out)
		collectVars(v.exp, out)
	case *Func:
		collectVars(v.arg, out)
	}
}

// containsD reports whether any derivative node is reachable in e,
// optionally restricted to one differentiation variable.
func containsD(e Expr, wrt string) bool {
	found := false
	walkD(e, func(d *D) {
		if wrt == "" || d.wrt == wrt {
			found = true
		}
	})
	return found
}

func walkD(e Expr, visit func(*D)) {
	switch v := e.(type) {
	case *D:
		visit(v)
		walkD(v.arg, visit)
	case *Add:
		for _, t := range v.terms {
			walkD(t, visit)
		}
	case *Mul:
		for _, f := range v.factors {
			walkD(f, visit)
		}
	case *Pow:
		walkD(v.base, visit)
		walkD(v.exp, visit)
	case *Func:
		walkD(v.arg, visit)
	}
}

// walkRefs visits every FieldRef in e, including those nested inside
// derivative arguments.
func walkRefs(e Expr, visit func(*FieldRef)) {
	switch v := e.(type) {
	case *FieldRef:
		visit(v)
	case *D:
		walkRefs(v.arg, visit)
	case *Add:
		for _, t := range v.terms {
			walkRefs(t, visit)
		}
	case *Mul:
		for _, f := range v.factors {
			walkRefs(f, visit)
		}
	case *Pow:
		walkRefs(v.base, visit)
		walkRefs(v.exp, visit)
	case *Func:
		walkRefs(v.arg, visit)
	}
}

// ============================================================
// JSON Serialization
// ============================================================

// ToJSON renders an expression as the interchange JSON the external
// symbolic builder can produce without linking this package.
func ToJSON(e Expr) (string, error) {
	b, err := json.Marshal(e.toJSON())
	return string(b), err
}

// FromJSON rebuilds an expression from interchange JSON. Field references
// are resolved against the supplied declarations by name.
func FromJSON(data map[string]interface{}, fields []*Field) (Expr, error) {
	if data == nil {
		return nil, fmt.Errorf("expression must be an object")
	}
	typAny, ok := data["type"]
	if !ok {
		return nil, fmt.Errorf("missing 'type' field")
	}
	typ, ok := typAny.(string)
	if !ok || typ == "" {
		return nil, fmt.Errorf("field 'type' must be a non-empty string")
	}

	subObj := func(field string) (map[string]interface{}, error) {
		v, ok := data[field]
		if !ok {
			return nil, fmt.Errorf("%s: missing %q", typ, field)
		}
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%s: %q must be an object", typ, field)
		}
		return m, nil
	}

	subExprs := func(field string) ([]Expr, error) {
		v, ok := data[field]
		if !ok {
			return nil, fmt.Errorf("%s: missing %q", typ, field)
		}
		raw, ok := v.([]interface{})
		if !ok {
			return nil, fmt.Errorf("%s: %q must be an array", typ, field)
		}
		out := make([]Expr, len(raw))
		for i, it := range raw {
			m, ok := it.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%s: %q[%d] must be an object", typ, field, i)
			}
			e, err := FromJSON(m, fields)
			if err != nil {
				return nil, fmt.Errorf("%s: %q[%d]: %w", typ, field, i, err)
			}
			out[i] = e
		}
		return out, nil
	}

	subString := func(field string) (string, error) {
		v, ok := data[field]
		if !ok {
			return "", fmt.Errorf("%s: missing %q", typ, field)
		}
		s, ok := v.(string)
		if !ok || s == "" {
			return "", fmt.Errorf("%s: %q must be a non-empty string", typ, field)
		}
		return s, nil
	}

	switch typ {
	case "num":
		v, ok := data["value"].(float64)
		if !ok {
			return nil, fmt.Errorf("num: 'value' must be a number")
		}
		return C(v), nil

	case "sym":
		name, err := subString("name")
		if err != nil {
			return nil, err
		}
		return S(name), nil

	case "fieldref":
		name, err := subString("field")
		if err != nil {
			return nil, err
		}
		var decl *Field
		for _, f := range fields {
			if f.name == name {
				decl = f
				break
			}
		}
		if decl == nil {
			return nil, fmt.Errorf("fieldref: undeclared field %q", name)
		}
		args, err := subExprs("args")
		if err != nil {
			return nil, err
		}
		return decl.At(args...), nil

	case "d":
		wrt, err := subString("wrt")
		if err != nil {
			return nil, err
		}
		order, ok := data["order"].(float64)
		if !ok || order < 1 {
			return nil, fmt.Errorf("d: 'order' must be a positive number")
		}
		argM, err := subObj("arg")
		if err != nil {
			return nil, err
		}
		arg, err := FromJSON(argM, fields)
		if err != nil {
			return nil, fmt.Errorf("d: arg: %w", err)
		}
		return DnOf(wrt, int(order), arg), nil

	case "add":
		terms, err := subExprs("terms")
		if err != nil {
			return nil, err
		}
		return AddOf(terms...), nil

	case "mul":
		factors, err := subExprs("factors")
		if err != nil {
			return nil, err
		}
		return MulOf(factors...), nil

	case "pow":
		baseM, err := subObj("base")
		if err != nil {
			return nil, err
		}
		expM, err := subObj("exp")
		if err != nil {
			return nil, err
		}
		base, err := FromJSON(baseM, fields)
		if err != nil {
			return nil, fmt.Errorf("pow: base: %w", err)
		}
		exp, err := FromJSON(expM, fields)
		if err != nil {
			return nil, fmt.Errorf("pow: exp: %w", err)
		}
		return PowOf(base, exp), nil

	case "func":
		name, err := subString("name")
		if err != nil {
			return nil, err
		}
		argM, err := subObj("arg")
		if err != nil {
			return nil, err
		}
		arg, err := FromJSON(argM, fields)
		if err != nil {
			return nil, fmt.Errorf("func: arg: %w", err)
		}
		return funcOf(name, arg).Simplify(), nil
	}
	return nil, fmt.Errorf("unknown expression type: %s", typ)
}

package pdegrid

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
)

// ============================================================
// System and configuration
// ============================================================

// System is the symbolic input handed over by the external equation
// builder: domains, dependent variables, governing equations, and
// boundary/initial conditions. Read-only during the pass.
type System struct {
	Domains    []Domain
	Fields     []*Field
	Equations  []*Equation
	Conditions []*Equation
}

// Config carries the recognized discretization options. The zero value of
// each optional field selects its documented default.
type Config struct {
	// StepSizes maps each spatial variable to its requested grid step.
	StepSizes map[string]float64

	// TimeVar designates the time variable for method-of-lines
	// discretization. Empty means a fully algebraic system.
	TimeVar string

	// ApproxOrder is the truncation order of interior stencils.
	// Must be >= 2; 0 selects the default of 2.
	ApproxOrder int

	// UpwindOrder is the order of windward stencils when Upwind is set.
	// Guaranteed only at 1; higher values surface an InstabilityWarning.
	// 0 selects the default of 1.
	UpwindOrder int

	// Upwind enables windward stencil selection for first-derivative
	// terms whose coefficient is numerically evaluable at each point.
	Upwind bool

	// GridAlign selects center or edge point placement.
	GridAlign Alignment
}

func (c Config) withDefaults() Config {
	if c.ApproxOrder == 0 {
		c.ApproxOrder = 2
	}
	if c.UpwindOrder == 0 {
		c.UpwindOrder = 1
	}
	return c
}

// ============================================================
// Discrete unknowns
// ============================================================

// Unknown is one degree of freedom: a field sampled at one grid point.
// Periodic aliasing can make several grid points share one Unknown.
type Unknown struct {
	Field         *Field
	Index         []int
	Coords        []float64
	TimeDependent bool
	flat          int
}

// Flat returns the unknown's position in the exported ordering.
func (u *Unknown) Flat() int { return u.flat }

func (u *Unknown) String() string {
	s := u.Field.name + "["
	for i, ix := range u.Index {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%d", ix)
	}
	return s + "]"
}

// URef is the discrete counterpart of FieldRef: a reference to one unknown
// inside an assembled equation.
type URef struct{ u *Unknown }

func (r *URef) Unknown() *Unknown      { return r.u }
func (r *URef) Simplify() Expr         { return r }
func (r *URef) String() string         { return r.u.String() }
func (r *URef) Sub(string, Expr) Expr  { return r }
func (r *URef) Eval() (float64, bool)  { return 0, false }
func (r *URef) exprType() string       { return "uref" }
func (r *URef) Equal(other Expr) bool {
	o, ok := other.(*URef)
	return ok && o.u == r.u
}
func (r *URef) toJSON() map[string]interface{} {
	idx := make([]interface{}, len(r.u.Index))
	for i, ix := range r.u.Index {
		idx[i] = ix
	}
	return map[string]interface{}{"type": "uref", "field": r.u.Field.name, "index": idx}
}

// DiscreteEquation is the single equation owned by one (point, field)
// pair: d(Unknown)/dt = RHS when Differential, 0 = RHS otherwise.
type DiscreteEquation struct {
	Unknown      *Unknown
	Differential bool
	RHS          Expr
	Source       string // "interior" or the boundary condition kind
}

func (e *DiscreteEquation) String() string {
	if e.Differential {
		return "d" + e.Unknown.String() + "/dt = " + e.RHS.String()
	}
	return "0 = " + e.RHS.String()
}

// ============================================================
// Builder internals
// ============================================================

type fieldInfo struct {
	field        *Field
	axes         []*GridAxis
	pos          map[string]int // axis var -> position in axes/Index
	dims         []int
	timeDep      bool
	gov          *Equation
	differential bool
	unknowns     map[int]*Unknown // raw row-major index -> unknown (canonical only)
}

type builder struct {
	sys     *System
	cfg     Config
	g       *grid
	lib     *StencilLibrary
	bcs     *bcTable
	infos   map[string]*fieldInfo
	ordered []*fieldInfo
}

// Discretize runs the full pass: grid generation, condition classification,
// unknown enumeration, equation assembly, and export packaging. Any
// classifier or processor error aborts the pass with no partial result.
func Discretize(sys *System, cfg Config) (*DiscreteSystem, error) {
	cfg = cfg.withDefaults()
	if cfg.ApproxOrder < 2 {
		return nil, fmt.Errorf("pdegrid: approximation order %d must be >= 2", cfg.ApproxOrder)
	}
	if cfg.UpwindOrder < 1 {
		return nil, fmt.Errorf("pdegrid: upwind order %d must be >= 1", cfg.UpwindOrder)
	}
	if len(sys.Fields) == 0 {
		return nil, fmt.Errorf("pdegrid: system declares no dependent variables")
	}

	g, err := buildGrid(sys.Domains, &cfg)
	if err != nil {
		return nil, err
	}

	b := &builder{
		sys:   sys,
		cfg:   cfg,
		g:     g,
		lib:   NewStencilLibrary(),
		bcs:   newBCTable(),
		infos: map[string]*fieldInfo{},
	}

	if err := b.matchGoverning(); err != nil {
		return nil, err
	}
	for _, eq := range sys.Conditions {
		if err := classifyBC(eq, g, &cfg, b.bcs); err != nil {
			return nil, err
		}
	}

	var warnings []Warning
	if cfg.Upwind && cfg.UpwindOrder > 1 {
		warnings = append(warnings, Warning{
			Code:   WarnInstability,
			Detail: fmt.Sprintf("upwind order %d is not accuracy-guaranteed; only order 1 is", cfg.UpwindOrder),
		})
	}

	unknowns := b.enumerateUnknowns()
	equations, err := b.assemble(unknowns)
	if err != nil {
		return nil, err
	}

	sys2 := &DiscreteSystem{
		Unknowns:     unknowns,
		Equations:    equations,
		Warnings:     warnings,
		SemiDiscrete: cfg.TimeVar != "" && g.timeDom != nil,
		TimeVar:      cfg.TimeVar,
		grid:         g,
		infos:        b.infos,
		ordered:      b.ordered,
		initials:     b.bcs.initials,
	}
	return sys2, nil
}

// matchGoverning pairs each field with its governing equation. With a time
// variable designated, equations whose LHS is the field's first time
// derivative claim that field; remaining equations are assigned in
// declaration order.
func (b *builder) matchGoverning() error {
	for _, f := range b.sys.Fields {
		if _, dup := b.infos[f.name]; dup {
			return fmt.Errorf("pdegrid: field %q declared twice", f.name)
		}
		axes := b.g.axesFor(f)
		for _, v := range f.vars {
			if v == b.cfg.TimeVar {
				continue
			}
			if _, ok := b.g.axis(v); !ok {
				return &DomainShapeError{Var: v, Detail: "field " + f.name + " spans an undeclared domain"}
			}
		}
		info := &fieldInfo{
			field:    f,
			axes:     axes,
			pos:      map[string]int{},
			dims:     make([]int, len(axes)),
			timeDep:  b.cfg.TimeVar != "" && f.DependsOn(b.cfg.TimeVar),
			unknowns: map[int]*Unknown{},
		}
		for i, ax := range axes {
			info.pos[ax.Var] = i
			info.dims[i] = ax.Len()
		}
		b.infos[f.name] = info
		b.ordered = append(b.ordered, info)
	}

	var unclaimed []*Equation
	for _, eq := range b.sys.Equations {
		claimed := false
		if b.cfg.TimeVar != "" {
			if d, ok := eq.LHS.(*D); ok && d.wrt == b.cfg.TimeVar && d.order == 1 {
				ref, ok2 := d.arg.(*FieldRef)
				if ok2 && ref.isFull() {
					info, declared := b.infos[ref.field.name]
					if !declared {
						return fmt.Errorf("pdegrid: governing equation for undeclared field %q", ref.field.name)
					}
					if info.gov != nil {
						return &UnderspecifiedSystemError{Field: ref.field.name, Detail: "field has more than one governing equation"}
					}
					info.gov = eq
					info.differential = true
					claimed = true
				}
			}
		}
		if !claimed {
			unclaimed = append(unclaimed, eq)
		}
	}
	for _, info := range b.ordered {
		if info.gov != nil {
			continue
		}
		if len(unclaimed) == 0 {
			return &UnderspecifiedSystemError{Field: info.field.name, Detail: "field has no governing equation"}
		}
		info.gov = unclaimed[0]
		unclaimed = unclaimed[1:]
	}
	if len(unclaimed) > 0 {
		return fmt.Errorf("pdegrid: %d governing equations have no field to govern", len(unclaimed))
	}

	for _, info := range b.ordered {
		if err := validateTerms(info.gov.LHS); err != nil {
			return err
		}
		if err := validateTerms(info.gov.RHS); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================
// Unknown enumeration and periodic aliasing
// ============================================================

func rawFlat(dims, idx []int) int {
	f := 0
	for i, d := range dims {
		f = f*d + idx[i]
	}
	return f
}

// aliasDepth is the number of trailing indices a periodic axis aliases one
// period down: one on a center-aligned axis (the hi point repeats lo), two
// on an edge-aligned axis (hi-dx/2 and hi+dx/2 repeat lo-dx/2 and lo+dx/2).
func aliasDepth(ax *GridAxis) int {
	if ax.Align == AlignEdge {
		return 2
	}
	return 1
}

// wrapPeriod returns the index period of a periodic axis, the count of
// distinct points before coordinates repeat, or 0 when the axis is not
// periodic.
func (b *builder) wrapPeriod(info *fieldInfo, ax *GridAxis, p int) int {
	if !b.bcs.isPeriodic(info.field, ax.Var) {
		return 0
	}
	return info.dims[p] - aliasDepth(ax)
}

// canonicalIndex rewrites aliased trailing indices of periodic axes to
// their partners one period below. Applying the rewrite on every periodic
// axis at once closes the aliasing relation: a corner shared by several
// periodic pairs collapses to the lexicographically smallest multi-index
// of its orbit.
func (b *builder) canonicalIndex(info *fieldInfo, idx []int) []int {
	out := append([]int(nil), idx...)
	for i, ax := range info.axes {
		if period := b.wrapPeriod(info, ax, i); period > 0 && out[i] >= period {
			out[i] -= period
		}
	}
	return out
}

func (b *builder) isCanonical(info *fieldInfo, idx []int) bool {
	for i, ax := range info.axes {
		if period := b.wrapPeriod(info, ax, i); period > 0 && idx[i] >= period {
			return false
		}
	}
	return true
}

// enumerateUnknowns walks every field's multi-index space in lexicographic
// (row-major) order, skipping aliased points, and assigns flat indices.
// Field declaration order leads the ordering, which makes the output
// deterministic and repeatable bit-for-bit.
func (b *builder) enumerateUnknowns() []*Unknown {
	var all []*Unknown
	for _, info := range b.ordered {
		forEachIndex(info.dims, func(idx []int) {
			if !b.isCanonical(info, idx) {
				return
			}
			coords := make([]float64, len(idx))
			for i, ax := range info.axes {
				coords[i] = ax.Coords[idx[i]]
			}
			u := &Unknown{
				Field:         info.field,
				Index:         append([]int(nil), idx...),
				Coords:        coords,
				TimeDependent: info.timeDep,
				flat:          len(all),
			}
			info.unknowns[rawFlat(info.dims, idx)] = u
			all = append(all, u)
		})
	}
	return all
}

// forEachIndex visits the multi-index space row-major (last axis fastest).
// Zero axes means one scalar point.
func forEachIndex(dims []int, visit func(idx []int)) {
	idx := make([]int, len(dims))
	for {
		visit(idx)
		k := len(dims) - 1
		for ; k >= 0; k-- {
			idx[k]++
			if idx[k] < dims[k] {
				break
			}
			idx[k] = 0
		}
		if k < 0 {
			return
		}
	}
}

// lookupUnknown resolves a (possibly aliased) multi-index to its unknown.
func (b *builder) lookupUnknown(info *fieldInfo, idx []int) (*Unknown, error) {
	for i, ix := range idx {
		if ix < 0 || ix >= info.dims[i] {
			return nil, &UnderspecifiedSystemError{
				Field:  info.field.name,
				Index:  append([]int(nil), idx...),
				Detail: "index outside the enumerated grid",
			}
		}
	}
	c := b.canonicalIndex(info, idx)
	u, ok := info.unknowns[rawFlat(info.dims, c)]
	if !ok {
		return nil, &UnderspecifiedSystemError{Field: info.field.name, Index: idx, Detail: "index outside the enumerated grid"}
	}
	return u, nil
}

// ============================================================
// Assembly
// ============================================================

type task struct {
	info *fieldInfo
	idx  []int
	slot int
}

// assemble builds one equation per canonical (field, point). Construction
// is independent across points, so it runs on a bounded parallel-for
// writing disjoint slots; ordering is fixed by the slot layout, not by
// scheduling.
func (b *builder) assemble(unknowns []*Unknown) ([]*DiscreteEquation, error) {
	tasks := make([]task, len(unknowns))
	for _, u := range unknowns {
		tasks[u.flat] = task{info: b.infos[u.Field.name], idx: u.Index, slot: u.flat}
	}

	eqs := make([]*DiscreteEquation, len(unknowns))
	var (
		next     atomic.Int64
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	workers := runtime.NumCPU()
	if workers > len(tasks) {
		workers = len(tasks)
	}
	if workers < 1 {
		workers = 1
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1)) - 1
				if i >= len(tasks) {
					return
				}
				errMu.Lock()
				stop := firstErr != nil
				errMu.Unlock()
				if stop {
					return
				}
				eq, err := b.buildEquation(tasks[i])
				if err != nil {
					errMu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					errMu.Unlock()
					return
				}
				eqs[tasks[i].slot] = eq
			}
		}()
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	for i, eq := range eqs {
		if eq == nil {
			u := unknowns[i]
			return nil, &UnderspecifiedSystemError{Field: u.Field.name, Index: u.Index, Detail: "no equation assigned"}
		}
	}
	return eqs, nil
}

// buildEquation emits the single equation for one (field, point): the
// boundary-condition row when a condition covers the point (BC priority),
// the interior stencil substitution otherwise. When several faces claim a
// corner, the earliest-declared axis wins.
func (b *builder) buildEquation(t task) (*DiscreteEquation, error) {
	u, err := b.lookupUnknown(t.info, t.idx)
	if err != nil {
		return nil, err
	}

	for i, ax := range t.info.axes {
		if b.bcs.isPeriodic(t.info.field, ax.Var) {
			continue
		}
		var face BoundaryFace
		switch {
		case t.idx[i] == 0:
			face = BoundaryFace{Axis: ax.Var, Side: FaceLower}
		case t.idx[i] == t.info.dims[i]-1:
			face = BoundaryFace{Axis: ax.Var, Side: FaceUpper}
		default:
			continue
		}
		cond, ok := b.bcs.cond(t.info.field, face)
		if !ok {
			continue
		}
		return b.buildBoundaryEquation(t, u, cond)
	}
	return b.buildInteriorEquation(t, u)
}

func (b *builder) buildInteriorEquation(t task, u *Unknown) (*DiscreteEquation, error) {
	ctx := &ptCtx{b: b, info: t.info, idx: t.idx}
	if t.info.differential {
		rhs, err := ctx.disc(t.info.gov.RHS)
		if err != nil {
			return nil, err
		}
		return &DiscreteEquation{Unknown: u, Differential: true, RHS: rhs, Source: "interior"}, nil
	}
	res, err := ctx.disc(t.info.gov.Residual())
	if err != nil {
		return nil, err
	}
	return &DiscreteEquation{Unknown: u, RHS: res, Source: "interior"}, nil
}

func (b *builder) buildBoundaryEquation(t task, u *Unknown, cond *boundaryCond) (*DiscreteEquation, error) {
	ctx := &ptCtx{b: b, info: t.info, idx: t.idx, bc: cond}
	if cond.timeDiff {
		d := cond.eq.LHS.(*D)
		lhsRef, _ := d.arg.(*FieldRef)
		if lhsRef == nil || lhsRef.field.name != t.info.field.name {
			return nil, &UnsupportedBCShapeError{Condition: cond.eq.String(), Detail: "differential boundary row must govern the conditioned field"}
		}
		rhs, err := ctx.disc(cond.eq.RHS)
		if err != nil {
			return nil, err
		}
		return &DiscreteEquation{Unknown: u, Differential: true, RHS: rhs, Source: cond.kind.String()}, nil
	}
	res, err := ctx.disc(cond.eq.Residual())
	if err != nil {
		return nil, err
	}
	return &DiscreteEquation{Unknown: u, RHS: res, Source: cond.kind.String()}, nil
}

// ============================================================
// Pointwise discretization
// ============================================================

// ptCtx carries one (field, point) while an expression is rewritten over
// discrete unknowns.
type ptCtx struct {
	b    *builder
	info *fieldInfo
	idx  []int
	bc   *boundaryCond
}

func (c *ptCtx) axisOf(varName string) (*GridAxis, int, bool) {
	p, ok := c.info.pos[varName]
	if !ok {
		return nil, 0, false
	}
	return c.info.axes[p], p, true
}

func (c *ptCtx) disc(e Expr) (Expr, error) {
	switch v := e.(type) {
	case *Num, *URef:
		return e, nil

	case *Sym:
		if ax, p, ok := c.axisOf(v.name); ok {
			return C(ax.Coords[c.idx[p]]), nil
		}
		// Time variable and free parameters stay symbolic.
		return v, nil

	case *FieldRef:
		return c.discRef(v)

	case *D:
		return c.discDeriv(v, nil)

	case *Add:
		terms := make([]Expr, len(v.terms))
		for i, t := range v.terms {
			d, err := c.disc(t)
			if err != nil {
				return nil, err
			}
			terms[i] = d
		}
		return AddOf(terms...), nil

	case *Mul:
		return c.discMul(v)

	case *Pow:
		base, err := c.disc(v.base)
		if err != nil {
			return nil, err
		}
		exp, err := c.disc(v.exp)
		if err != nil {
			return nil, err
		}
		return PowOf(base, exp), nil

	case *Func:
		arg, err := c.disc(v.arg)
		if err != nil {
			return nil, err
		}
		return funcOf(v.name, arg).Simplify(), nil
	}
	return nil, &UnsupportedDerivativeFormError{Subexpr: e.String(), Detail: "expression variant cannot be discretized"}
}

// discMul handles products, including windward stencil selection for
// first-derivative advection terms when upwinding is enabled.
func (c *ptCtx) discMul(m *Mul) (Expr, error) {
	var advect *D
	advectAt := -1
	if c.b.cfg.Upwind && c.bc == nil {
		for i, f := range m.factors {
			d, ok := f.(*D)
			if !ok || d.order != 1 {
				continue
			}
			if _, isRef := d.arg.(*FieldRef); !isRef {
				continue
			}
			if _, _, spatial := c.axisOf(d.wrt); !spatial {
				continue
			}
			if advect != nil {
				advect = nil
				advectAt = -1
				break
			}
			advect = d
			advectAt = i
		}
	}

	out := make([]Expr, 0, len(m.factors))
	for i, f := range m.factors {
		if i == advectAt {
			continue
		}
		d, err := c.disc(f)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}

	if advect != nil {
		coeff, evaluable := MulOf(out...).Eval()
		var forced *StencilWeights
		if evaluable {
			w, err := c.b.lib.Upwind(c.b.cfg.UpwindOrder, coeff)
			if err != nil {
				return nil, err
			}
			forced = w
		}
		dExpr, err := c.discDeriv(advect, forced)
		if err != nil {
			return nil, err
		}
		out = append(out, dExpr)
	}
	return MulOf(out...), nil
}

// discDeriv substitutes one derivative node with its stencil expansion at
// the context point. forced, when non-nil, overrides stencil selection
// (upwinding).
func (c *ptCtx) discDeriv(d *D, forced *StencilWeights) (Expr, error) {
	if c.b.cfg.TimeVar != "" && d.wrt == c.b.cfg.TimeVar {
		return nil, &UnsupportedDerivativeFormError{
			Subexpr: d.String(),
			Detail:  "time derivative may only appear isolated as a governing or boundary left-hand side",
		}
	}
	term, err := classifyDeriv(d)
	if err != nil {
		return nil, err
	}
	switch term.kind {
	case TermFluxLaplacian:
		return c.discFluxLaplacian(term)
	default:
		return c.discSimpleDeriv(term, forced)
	}
}

// discSimpleDeriv expands D_v^k(u) at the point. Boundary rows use the
// one-sided table facing the interior; interior points near an uncovered
// boundary shift to the fitting one-sided table; periodic axes wrap.
func (c *ptCtx) discSimpleDeriv(term *derivTerm, forced *StencilWeights) (Expr, error) {
	target := c.b.infos[term.ref.field.name]
	ax, p, ok := targetAxis(target, term.axis)
	if !ok {
		return nil, &UnsupportedDerivativeFormError{
			Subexpr: term.ref.String(),
			Detail:  "field " + term.ref.field.name + " has no grid axis " + term.axis,
		}
	}
	baseIdx, err := c.refIndex(term.ref, target)
	if err != nil {
		return nil, err
	}
	period := c.b.wrapPeriod(target, ax, p)

	// Boundary rows on edge-aligned axes evaluate the normal derivative at
	// the wall itself, over half-offset points.
	if c.bc != nil && c.bc.face.Axis == term.axis && ax.Align == AlignEdge {
		return c.discWallDeriv(term, target, ax, p, baseIdx)
	}

	var w *StencilWeights
	switch {
	case forced != nil:
		w = forced
	case c.bc != nil && c.bc.face.Axis == term.axis:
		side := SideLeft
		if c.bc.face.Side == FaceUpper {
			side = SideRight
		}
		w, err = c.b.lib.Weights(term.order, c.b.cfg.ApproxOrder, side)
	default:
		w, err = c.b.lib.Weights(term.order, c.b.cfg.ApproxOrder, SideCentered)
	}
	if err != nil {
		return nil, err
	}

	if period == 0 {
		w, err = c.fitStencil(w, term, target, p, baseIdx[p])
		if err != nil {
			return nil, err
		}
	}

	scale := 1.0 / math.Pow(ax.Dx, float64(term.order))
	terms := make([]Expr, len(w.Offsets))
	for j, o := range w.Offsets {
		nb := append([]int(nil), baseIdx...)
		nb[p] = shiftIndex(baseIdx[p], o, period)
		u, err := c.b.lookupUnknown(target, nb)
		if err != nil {
			return nil, err
		}
		terms[j] = MulOf(C(w.Coeffs[j]*scale), &URef{u: u})
	}
	return AddOf(terms...), nil
}

// fitStencil keeps the centered table when it fits at the point and
// otherwise shifts to the one-sided table pointing into the grid.
func (c *ptCtx) fitStencil(w *StencilWeights, term *derivTerm, target *fieldInfo, p, at int) (*StencilWeights, error) {
	down := at
	up := target.dims[p] - 1 - at
	lo, hi := offsetRange(w.Offsets)
	if -lo <= down && hi <= up {
		return w, nil
	}
	var side Side
	if down < -lo {
		side = SideLeft
	} else {
		side = SideRight
	}
	shifted, err := c.b.lib.Weights(term.order, c.b.cfg.ApproxOrder, side)
	if err != nil {
		return nil, err
	}
	lo, hi = offsetRange(shifted.Offsets)
	if -lo <= down && hi <= up {
		return shifted, nil
	}
	return nil, &UnderspecifiedSystemError{
		Field:  target.field.name,
		Index:  append([]int(nil), c.idx...),
		Detail: fmt.Sprintf("axis %s is too small for a width-%d stencil", term.axis, shifted.Width()),
	}
}

func offsetRange(offsets []int) (lo, hi int) {
	for _, o := range offsets {
		if o < lo {
			lo = o
		}
		if o > hi {
			hi = o
		}
	}
	return lo, hi
}

// shiftIndex moves an index by a stencil offset, wrapping over the given
// period; period 0 means the axis is not periodic.
func shiftIndex(at, offset, period int) int {
	j := at + offset
	if period == 0 {
		return j
	}
	j = j % period
	if j < 0 {
		j += period
	}
	return j
}

func targetAxis(info *fieldInfo, varName string) (*GridAxis, int, bool) {
	p, ok := info.pos[varName]
	if !ok {
		return nil, 0, false
	}
	return info.axes[p], p, true
}

// discWallDeriv builds a normal-derivative row at the physical wall of an
// edge-aligned axis: the grid points sit at half-step distances from the
// wall, so the weights come from the general moment solve.
func (c *ptCtx) discWallDeriv(term *derivTerm, target *fieldInfo, ax *GridAxis, p int, baseIdx []int) (Expr, error) {
	width := term.order + c.b.cfg.ApproxOrder
	if width > target.dims[p] {
		width = target.dims[p]
	}
	if width < term.order+1 {
		return nil, &UnderspecifiedSystemError{
			Field:  target.field.name,
			Index:  append([]int(nil), c.idx...),
			Detail: "axis " + term.axis + " is too small for a wall derivative",
		}
	}
	dir := 1
	if c.bc.face.Side == FaceUpper {
		dir = -1
	}
	offsets := make([]float64, width)
	for j := range offsets {
		offsets[j] = float64(j) - 0.5
	}
	coeffs, err := c.b.lib.WeightsAt(term.order, offsets)
	if err != nil {
		return nil, err
	}
	scale := 1.0 / math.Pow(ax.Dx, float64(term.order))
	// Odd derivative orders flip sign when measured inward from the
	// upper wall.
	if dir < 0 && term.order%2 == 1 {
		scale = -scale
	}
	terms := make([]Expr, width)
	for j := 0; j < width; j++ {
		nb := append([]int(nil), baseIdx...)
		nb[p] = baseIdx[p] + dir*j
		u, err := c.b.lookupUnknown(target, nb)
		if err != nil {
			return nil, err
		}
		terms[j] = MulOf(C(coeffs[j]*scale), &URef{u: u})
	}
	return AddOf(terms...), nil
}

// discRef resolves a field reference to the unknown at the context point
// (or at the pinned boundary slice). On a boundary row of an edge-aligned
// axis the reference is interpolated to the wall.
func (c *ptCtx) discRef(r *FieldRef) (Expr, error) {
	if err := checkRefArgs(r); err != nil {
		return nil, err
	}
	target, ok := c.b.infos[r.field.name]
	if !ok {
		return nil, &UnsupportedDerivativeFormError{Subexpr: r.String(), Detail: "undeclared field"}
	}
	baseIdx, err := c.refIndex(r, target)
	if err != nil {
		return nil, err
	}
	if c.bc != nil {
		if ax, p, ok := targetAxis(target, c.bc.face.Axis); ok && ax.Align == AlignEdge {
			return c.wallValue(target, p, baseIdx)
		}
	}
	u, err := c.b.lookupUnknown(target, baseIdx)
	if err != nil {
		return nil, err
	}
	return &URef{u: u}, nil
}

// wallValue interpolates a field value onto the physical wall of an
// edge-aligned axis, to the configured approximation order.
func (c *ptCtx) wallValue(target *fieldInfo, p int, baseIdx []int) (Expr, error) {
	width := c.b.cfg.ApproxOrder
	if width > target.dims[p] {
		width = target.dims[p]
	}
	dir := 1
	if c.bc.face.Side == FaceUpper {
		dir = -1
	}
	offsets := make([]float64, width)
	for j := range offsets {
		offsets[j] = float64(j) - 0.5
	}
	coeffs, err := c.b.lib.WeightsAt(0, offsets)
	if err != nil {
		return nil, err
	}
	terms := make([]Expr, width)
	for j := 0; j < width; j++ {
		nb := append([]int(nil), baseIdx...)
		nb[p] = baseIdx[p] + dir*j
		u, err := c.b.lookupUnknown(target, nb)
		if err != nil {
			return nil, err
		}
		terms[j] = MulOf(C(coeffs[j]), &URef{u: u})
	}
	return AddOf(terms...), nil
}

// refIndex maps a reference's arguments onto the target field's grid: the
// context index for full-signature arguments, the matched face index for
// constant pins.
func (c *ptCtx) refIndex(r *FieldRef, target *fieldInfo) ([]int, error) {
	idx := make([]int, len(target.axes))
	for k, ax := range target.axes {
		arg, ok := r.argFor(ax.Var)
		if !ok {
			return nil, &UnsupportedDerivativeFormError{
				Subexpr: r.String(),
				Detail:  "reference does not bind domain variable " + ax.Var,
			}
		}
		switch a := arg.(type) {
		case *Sym:
			p, ok := c.info.pos[ax.Var]
			if !ok {
				return nil, &UnsupportedDerivativeFormError{
					Subexpr: r.String(),
					Detail:  "axis " + ax.Var + " is not part of the governing field's grid",
				}
			}
			idx[k] = c.idx[p]
		case *Num:
			side, hit := matchEnd(a.val, ax.Domain.Lo, ax.Domain.Hi)
			if !hit {
				return nil, &UnsupportedBCShapeError{
					Condition: r.String(),
					Detail:    "constant argument pins " + ax.Var + " away from its domain ends",
				}
			}
			if side == FaceLower {
				idx[k] = 0
			} else {
				idx[k] = target.dims[k] - 1
			}
		default:
			return nil, &UnsupportedDerivativeFormError{
				Subexpr: r.String(),
				Detail:  "field arguments must be domain variables or constants",
			}
		}
	}
	return idx, nil
}

// discFluxLaplacian expands D_v(w * D_v(u)) in its conserved form over the
// two half-step fluxes around the point:
//
//	( w_{i+1/2} (u_{i+1} - u_i) - w_{i-1/2} (u_i - u_{i-1}) ) / dx^2
//
// Coordinate symbols inside w are evaluated at the half points; references
// to the field inside w become the arithmetic mean of the flanking
// unknowns.
func (c *ptCtx) discFluxLaplacian(term *derivTerm) (Expr, error) {
	target := c.b.infos[term.ref.field.name]
	ax, p, ok := targetAxis(target, term.axis)
	if !ok {
		return nil, &UnsupportedDerivativeFormError{
			Subexpr: term.ref.String(),
			Detail:  "field " + term.ref.field.name + " has no grid axis " + term.axis,
		}
	}
	baseIdx, err := c.refIndex(term.ref, target)
	if err != nil {
		return nil, err
	}
	period := c.b.wrapPeriod(target, ax, p)
	at := baseIdx[p]
	if period == 0 && (at == 0 || at == target.dims[p]-1) {
		return nil, &UnderspecifiedSystemError{
			Field:  target.field.name,
			Index:  append([]int(nil), c.idx...),
			Detail: "flux form needs an interior point or a boundary condition on axis " + term.axis,
		}
	}

	uAt := func(shift int) (*URef, float64, error) {
		nb := append([]int(nil), baseIdx...)
		nb[p] = shiftIndex(at, shift, period)
		u, err := c.b.lookupUnknown(target, nb)
		if err != nil {
			return nil, 0, err
		}
		coord := ax.Coords[at] + float64(shift)*ax.Dx
		return &URef{u: u}, coord, nil
	}
	u0, x0, err := uAt(0)
	if err != nil {
		return nil, err
	}
	uP, xP, err := uAt(+1)
	if err != nil {
		return nil, err
	}
	uM, xM, err := uAt(-1)
	if err != nil {
		return nil, err
	}

	wPlus, err := c.discHalfWeight(term, u0, uP, (x0+xP)/2)
	if err != nil {
		return nil, err
	}
	wMinus, err := c.discHalfWeight(term, uM, u0, (x0+xM)/2)
	if err != nil {
		return nil, err
	}

	inv := 1.0 / (ax.Dx * ax.Dx)
	fluxPlus := MulOf(wPlus, AddOf(uP, MulOf(C(-1), u0)))
	fluxMinus := MulOf(wMinus, AddOf(u0, MulOf(C(-1), uM)))
	return MulOf(C(inv), AddOf(fluxPlus, MulOf(C(-1), fluxMinus))), nil
}

// discHalfWeight evaluates a flux weight at a half point between two
// unknowns.
func (c *ptCtx) discHalfWeight(term *derivTerm, lo, hi Expr, mid float64) (Expr, error) {
	avg := AddOf(MulOf(C(0.5), lo), MulOf(C(0.5), hi))
	w := substRefs(term.weight, term.ref.field.name, avg)
	w = w.Sub(term.axis, C(mid))
	return c.disc(w)
}

// substRefs replaces every reference to the named field with a
// replacement expression.
func substRefs(e Expr, fieldName string, repl Expr) Expr {
	switch v := e.(type) {
	case *FieldRef:
		if v.field.name == fieldName {
			return repl
		}
		return v
	case *Add:
		terms := make([]Expr, len(v.terms))
		for i, t := range v.terms {
			terms[i] = substRefs(t, fieldName, repl)
		}
		return AddOf(terms...)
	case *Mul:
		factors := make([]Expr, len(v.factors))
		for i, f := range v.factors {
			factors[i] = substRefs(f, fieldName, repl)
		}
		return MulOf(factors...)
	case *Pow:
		return PowOf(substRefs(v.base, fieldName, repl), substRefs(v.exp, fieldName, repl))
	case *Func:
		return funcOf(v.name, substRefs(v.arg, fieldName, repl)).Simplify()
	}
	return e
}

package pdegrid

import (
	"fmt"
	"math"
)

// ============================================================
// Discrete system export
// ============================================================

// DiscreteSystem is the assembled output handed to the downstream solver:
// the ordered unknowns, one equation per unknown in matching order, the
// index mappings, and any non-fatal warnings raised during the pass.
type DiscreteSystem struct {
	Unknowns  []*Unknown
	Equations []*DiscreteEquation
	Warnings  []Warning

	// SemiDiscrete is true when a time variable was designated: the
	// differential rows form ODEs in the remaining time variable.
	SemiDiscrete bool
	TimeVar      string

	grid     *grid
	infos    map[string]*fieldInfo
	ordered  []*fieldInfo
	initials map[string]*Equation
}

// Size returns the number of unknowns (and equations).
func (s *DiscreteSystem) Size() int { return len(s.Unknowns) }

// Axes returns a field's spatial grid axes in assembly order.
func (s *DiscreteSystem) Axes(field *Field) ([]*GridAxis, error) {
	info, ok := s.infos[field.name]
	if !ok {
		return nil, fmt.Errorf("pdegrid: unknown field %q", field.name)
	}
	return append([]*GridAxis(nil), info.axes...), nil
}

// Shape returns a field's grid point counts per axis, including aliased
// periodic points.
func (s *DiscreteSystem) Shape(field *Field) ([]int, error) {
	info, ok := s.infos[field.name]
	if !ok {
		return nil, fmt.Errorf("pdegrid: unknown field %q", field.name)
	}
	return append([]int(nil), info.dims...), nil
}

// FlatIndex maps a field multi-index to its flat unknown position.
// Periodic aliases resolve to their canonical unknown, so both ends of an
// identified axis return the same flat index.
func (s *DiscreteSystem) FlatIndex(field *Field, index []int) (int, error) {
	info, ok := s.infos[field.name]
	if !ok {
		return 0, fmt.Errorf("pdegrid: unknown field %q", field.name)
	}
	if len(index) != len(info.dims) {
		return 0, fmt.Errorf("pdegrid: field %q expects %d indices, got %d", field.name, len(info.dims), len(index))
	}
	for i, ix := range index {
		if ix < 0 || ix >= info.dims[i] {
			return 0, fmt.Errorf("pdegrid: index %d out of range [0, %d) on axis %s", ix, info.dims[i], info.axes[i].Var)
		}
	}
	c := append([]int(nil), index...)
	for i, ax := range info.axes {
		if !s.isPeriodic(info, ax.Var) {
			continue
		}
		if period := info.dims[i] - aliasDepth(ax); c[i] >= period {
			c[i] -= period
		}
	}
	u, ok := info.unknowns[rawFlat(info.dims, c)]
	if !ok {
		return 0, fmt.Errorf("pdegrid: no unknown at %v for field %q", index, field.name)
	}
	return u.flat, nil
}

// A periodic axis is recognizable from its missing upper-face unknowns:
// the canonical map never stores them.
func (s *DiscreteSystem) isPeriodic(info *fieldInfo, axis string) bool {
	p := info.pos[axis]
	probe := make([]int, len(info.dims))
	probe[p] = info.dims[p] - 1
	_, present := info.unknowns[rawFlat(info.dims, probe)]
	return !present
}

// MultiIndex is the reverse mapping: flat position to (field, multi-index).
func (s *DiscreteSystem) MultiIndex(flat int) (*Field, []int, error) {
	if flat < 0 || flat >= len(s.Unknowns) {
		return nil, nil, fmt.Errorf("pdegrid: flat index %d out of range [0, %d)", flat, len(s.Unknowns))
	}
	u := s.Unknowns[flat]
	return u.Field, append([]int(nil), u.Index...), nil
}

// Reconstruct expands a flat solution vector into one row-major array per
// field, covering every grid point; aliased periodic points fan out from
// their shared unknown.
func (s *DiscreteSystem) Reconstruct(solution []float64) (map[string][]float64, error) {
	if len(solution) != len(s.Unknowns) {
		return nil, fmt.Errorf("pdegrid: solution length %d does not match %d unknowns", len(solution), len(s.Unknowns))
	}
	out := map[string][]float64{}
	for _, info := range s.ordered {
		n := 1
		for _, d := range info.dims {
			n *= d
		}
		arr := make([]float64, n)
		i := 0
		var fail error
		forEachIndex(info.dims, func(idx []int) {
			if fail != nil {
				i++
				return
			}
			flat, err := s.FlatIndex(info.field, idx)
			if err != nil {
				fail = err
				i++
				return
			}
			arr[i] = solution[flat]
			i++
		})
		if fail != nil {
			return nil, fail
		}
		out[info.field.name] = arr
	}
	return out, nil
}

// ============================================================
// Numerical evaluation handoff
// ============================================================

// RHSFunc returns the method-of-lines right-hand side in the shape an ODE
// integrator consumes: dy[i] holds the time derivative for differential
// rows and the algebraic residual for boundary-pinned rows (a mass-matrix
// zero row). Free parameters must have been substituted before assembly.
func (s *DiscreteSystem) RHSFunc() func(t float64, y, dy []float64) error {
	return func(t float64, y, dy []float64) error {
		if len(y) != len(s.Unknowns) || len(dy) != len(s.Unknowns) {
			return fmt.Errorf("pdegrid: state length %d/%d does not match %d unknowns", len(y), len(dy), len(s.Unknowns))
		}
		for i, eq := range s.Equations {
			v, err := s.evalDiscrete(eq.RHS, t, y)
			if err != nil {
				return err
			}
			dy[i] = v
		}
		return nil
	}
}

// MassDiagonal returns the diagonal mass vector for DAE-aware solvers:
// 1 for differential rows, 0 for algebraic rows.
func (s *DiscreteSystem) MassDiagonal() []float64 {
	m := make([]float64, len(s.Equations))
	for i, eq := range s.Equations {
		if eq.Differential {
			m[i] = 1
		}
	}
	return m
}

// Residuals evaluates every equation as a residual at the given state:
// dy_i - rhs_i for differential rows given candidate derivatives, plain
// rhs_i for algebraic rows.
func (s *DiscreteSystem) Residuals(t float64, y, dyCandidate []float64, out []float64) error {
	if len(out) != len(s.Equations) {
		return fmt.Errorf("pdegrid: residual length %d does not match %d equations", len(out), len(s.Equations))
	}
	for i, eq := range s.Equations {
		v, err := s.evalDiscrete(eq.RHS, t, y)
		if err != nil {
			return err
		}
		if eq.Differential {
			out[i] = dyCandidate[i] - v
		} else {
			out[i] = v
		}
	}
	return nil
}

func (s *DiscreteSystem) evalDiscrete(e Expr, t float64, y []float64) (float64, error) {
	switch v := e.(type) {
	case *Num:
		return v.val, nil
	case *URef:
		return y[v.u.flat], nil
	case *Sym:
		if v.name == s.TimeVar && s.TimeVar != "" {
			return t, nil
		}
		return 0, fmt.Errorf("pdegrid: unbound parameter %q in discrete equation", v.name)
	case *Add:
		acc := 0.0
		for _, term := range v.terms {
			x, err := s.evalDiscrete(term, t, y)
			if err != nil {
				return 0, err
			}
			acc += x
		}
		return acc, nil
	case *Mul:
		acc := 1.0
		for _, f := range v.factors {
			x, err := s.evalDiscrete(f, t, y)
			if err != nil {
				return 0, err
			}
			acc *= x
		}
		return acc, nil
	case *Pow:
		b, err := s.evalDiscrete(v.base, t, y)
		if err != nil {
			return 0, err
		}
		p, err := s.evalDiscrete(v.exp, t, y)
		if err != nil {
			return 0, err
		}
		r := math.Pow(b, p)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return 0, fmt.Errorf("pdegrid: %g^%g is not finite", b, p)
		}
		return r, nil
	case *Func:
		x, err := s.evalDiscrete(v.arg, t, y)
		if err != nil {
			return 0, err
		}
		r, ok := applyFunc(v.name, x)
		if !ok {
			return 0, fmt.Errorf("pdegrid: cannot evaluate %s(%g)", v.name, x)
		}
		return r, nil
	}
	return 0, fmt.Errorf("pdegrid: non-numeric node %s in discrete equation", e.String())
}

// InitialValues evaluates the classified initial conditions into a flat
// state vector for the ODE solve. Every time-dependent unknown needs an
// initial condition; purely algebraic unknowns start at zero and are left
// to the solver's consistency pass.
func (s *DiscreteSystem) InitialValues() ([]float64, error) {
	if !s.SemiDiscrete {
		return nil, fmt.Errorf("pdegrid: initial values only apply to semi-discrete systems")
	}
	y0 := make([]float64, len(s.Unknowns))
	for _, info := range s.ordered {
		if !info.timeDep {
			continue
		}
		ic, ok := s.initials[info.field.name]
		if !ok {
			return nil, &UnderspecifiedSystemError{
				Field:  info.field.name,
				Detail: "time-dependent field has no initial condition",
			}
		}
		for _, u := range info.unknowns {
			rhs := ic.RHS
			for i, ax := range info.axes {
				rhs = rhs.Sub(ax.Var, C(u.Coords[i]))
			}
			if s.grid.timeDom != nil {
				rhs = rhs.Sub(s.TimeVar, C(s.grid.timeDom.Lo))
			}
			v, ok := rhs.Simplify().Eval()
			if !ok {
				return nil, fmt.Errorf("pdegrid: initial condition %s is not numeric at %v", ic.String(), u.Index)
			}
			y0[u.flat] = v
		}
	}
	return y0, nil
}

package pdegrid

import (
	"math"
)

// ============================================================
// Boundary condition classification
// ============================================================

// BCKind represents the boundary condition families the processor accepts.
type BCKind uint8

const (
	BCDirichlet BCKind = iota // boundary value pinned to an expression
	BCNeumann                 // normal derivative pinned
	BCRobin                   // value and normal derivative related
	BCPeriodic                // opposite faces identified
	BCInitial                 // Dirichlet along the time axis
)

func (k BCKind) String() string {
	switch k {
	case BCDirichlet:
		return "Dirichlet"
	case BCNeumann:
		return "Neumann"
	case BCRobin:
		return "Robin"
	case BCPeriodic:
		return "Periodic"
	case BCInitial:
		return "Initial"
	}
	return "Unknown"
}

// FaceSide distinguishes the two ends of a domain interval.
type FaceSide uint8

const (
	FaceLower FaceSide = iota
	FaceUpper
)

func (s FaceSide) String() string {
	if s == FaceLower {
		return "lower"
	}
	return "upper"
}

// BoundaryFace is one (axis, side) pair of a field's grid.
type BoundaryFace struct {
	Axis string
	Side FaceSide
}

// boundaryCond is one classified boundary condition, pinned to a face.
type boundaryCond struct {
	kind  BCKind
	face  BoundaryFace
	field *Field
	eq    *Equation
	// timeDiff marks a condition whose LHS is the first time derivative of
	// the boundary reference, producing a differential boundary row.
	timeDiff bool
}

// bcTable indexes classified conditions for the assembler.
type bcTable struct {
	// byFace[field][face] -> condition covering that face
	byFace map[string]map[BoundaryFace]*boundaryCond
	// periodicAxes[field][axis] -> true when the axis faces are identified
	periodicAxes map[string]map[string]bool
	// initials[field] -> initial-slice condition
	initials map[string]*Equation
}

func newBCTable() *bcTable {
	return &bcTable{
		byFace:       map[string]map[BoundaryFace]*boundaryCond{},
		periodicAxes: map[string]map[string]bool{},
		initials:     map[string]*Equation{},
	}
}

func (t *bcTable) cond(field *Field, face BoundaryFace) (*boundaryCond, bool) {
	m, ok := t.byFace[field.name]
	if !ok {
		return nil, false
	}
	c, ok := m[face]
	return c, ok
}

func (t *bcTable) isPeriodic(field *Field, axis string) bool {
	return t.periodicAxes[field.name][axis]
}

func (t *bcTable) add(c *boundaryCond) error {
	m, ok := t.byFace[c.field.name]
	if !ok {
		m = map[BoundaryFace]*boundaryCond{}
		t.byFace[c.field.name] = m
	}
	if _, dup := m[c.face]; dup {
		return &UnsupportedBCShapeError{
			Condition: c.eq.String(),
			Detail:    "face " + c.face.Axis + "/" + c.face.Side.String() + " already has a condition for field " + c.field.name,
		}
	}
	m[c.face] = c
	return nil
}

// facePin is one field reference argument matched against a domain end.
type facePin struct {
	field *Field
	face  BoundaryFace
}

const boundaryTol = 1e-9

func matchEnd(v, lo, hi float64) (FaceSide, bool) {
	scale := math.Max(1, math.Abs(hi-lo))
	if math.Abs(v-lo) <= boundaryTol*scale {
		return FaceLower, true
	}
	if math.Abs(v-hi) <= boundaryTol*scale {
		return FaceUpper, true
	}
	return 0, false
}

// classifyBC matches one boundary/initial equation against the supported
// shapes and pins it to a face (or the initial time slice).
func classifyBC(eq *Equation, g *grid, cfg *Config, table *bcTable) error {
	pins, timePinned, pinnedField, err := collectPins(eq, g, cfg)
	if err != nil {
		return err
	}

	// Initial slice: Dirichlet along the time axis.
	if timePinned {
		return classifyInitial(eq, pinnedField, cfg, table)
	}

	if len(pins) == 0 {
		return &UnsupportedBCShapeError{
			Condition: eq.String(),
			Detail:    "no field reference pins a domain boundary",
		}
	}

	// Periodic: plain lo-face reference equated to the matching hi-face
	// reference of the same field along the same axis.
	if c, ok := matchPeriodic(eq, g); ok {
		if err := table.add(c); err != nil {
			return err
		}
		// The opposite face is covered by the same identification.
		other := c.face
		other.Side = FaceUpper
		if c.face.Side == FaceUpper {
			other.Side = FaceLower
		}
		if err := table.add(&boundaryCond{kind: BCPeriodic, face: other, field: c.field, eq: eq}); err != nil {
			return err
		}
		axes, ok := table.periodicAxes[c.field.name]
		if !ok {
			axes = map[string]bool{}
			table.periodicAxes[c.field.name] = axes
		}
		axes[c.face.Axis] = true
		return nil
	}

	// A non-periodic condition must address exactly one face.
	face := pins[0].face
	field := pins[0].field
	for _, p := range pins[1:] {
		if p.face != face {
			return &UnsupportedBCShapeError{
				Condition: eq.String(),
				Detail:    "condition references more than one boundary face",
			}
		}
	}

	kind, timeDiff, err := classifyFaceDerivs(eq, face, field, cfg)
	if err != nil {
		return err
	}
	return table.add(&boundaryCond{kind: kind, face: face, field: field, eq: eq, timeDiff: timeDiff})
}

// collectPins scans every field reference for constant arguments matching a
// domain end. Constant arguments that hit neither end are rejected.
func collectPins(eq *Equation, g *grid, cfg *Config) (pins []facePin, timePinned bool, pinnedField *Field, err error) {
	scan := func(e Expr) {
		walkRefs(e, func(r *FieldRef) {
			if err != nil {
				return
			}
			for i, a := range r.args {
				n, ok := a.(*Num)
				if !ok {
					continue
				}
				v := r.field.vars[i]
				if v == cfg.TimeVar && g.timeDom != nil {
					side, hit := matchEnd(n.val, g.timeDom.Lo, g.timeDom.Hi)
					if hit && side == FaceLower {
						timePinned = true
						if pinnedField == nil {
							pinnedField = r.field
						}
						continue
					}
					err = &UnsupportedBCShapeError{
						Condition: eq.String(),
						Detail:    "time may only be pinned at the initial instant",
					}
					return
				}
				ax, ok := g.axis(v)
				if !ok {
					continue
				}
				side, hit := matchEnd(n.val, ax.Domain.Lo, ax.Domain.Hi)
				if !hit {
					err = &UnsupportedBCShapeError{
						Condition: eq.String(),
						Detail:    r.String() + " pins " + v + " away from its domain ends",
					}
					return
				}
				pins = append(pins, facePin{field: r.field, face: BoundaryFace{Axis: v, Side: side}})
			}
		})
	}
	scan(eq.LHS)
	scan(eq.RHS)
	return pins, timePinned, pinnedField, err
}

// classifyInitial validates an initial-slice condition: Dirichlet shape, no
// derivative of any kind, single field on the LHS.
func classifyInitial(eq *Equation, field *Field, cfg *Config, table *bcTable) error {
	if field == nil {
		return &UnsupportedBCShapeError{Condition: eq.String(), Detail: "initial condition pins no field"}
	}
	if containsD(eq.LHS, "") || containsD(eq.RHS, "") {
		if containsD(eq.LHS, cfg.TimeVar) || containsD(eq.RHS, cfg.TimeVar) {
			return &UnsupportedBCShapeError{
				Condition: eq.String(),
				Detail:    "initial condition must not reference the initial time derivative",
			}
		}
		return &UnsupportedBCShapeError{
			Condition: eq.String(),
			Detail:    "initial condition must be derivative-free",
		}
	}
	lhs, ok := eq.LHS.(*FieldRef)
	if !ok || lhs.field.name != field.name {
		return &UnsupportedBCShapeError{
			Condition: eq.String(),
			Detail:    "initial condition LHS must be the pinned field reference",
		}
	}
	refInRHS := false
	walkRefs(eq.RHS, func(*FieldRef) { refInRHS = true })
	if refInRHS {
		return &UnsupportedBCShapeError{
			Condition: eq.String(),
			Detail:    "initial values must be explicit expressions of the coordinates",
		}
	}
	if _, dup := table.initials[field.name]; dup {
		return &UnsupportedBCShapeError{
			Condition: eq.String(),
			Detail:    "field " + field.name + " already has an initial condition",
		}
	}
	table.initials[field.name] = eq
	return nil
}

// matchPeriodic recognizes field(..., lo, ...) ~ field(..., hi, ...) or its
// reverse: both sides plain references to the same field, pinned at
// opposite ends of one axis, every other argument identical.
func matchPeriodic(eq *Equation, g *grid) (*boundaryCond, bool) {
	l, ok1 := eq.LHS.(*FieldRef)
	r, ok2 := eq.RHS.(*FieldRef)
	if !ok1 || !ok2 || l.field.name != r.field.name {
		return nil, false
	}
	axis := ""
	for i := range l.args {
		ln, lNum := l.args[i].(*Num)
		rn, rNum := r.args[i].(*Num)
		if lNum != rNum {
			return nil, false
		}
		if !lNum {
			if !l.args[i].Equal(r.args[i]) {
				return nil, false
			}
			continue
		}
		v := l.field.vars[i]
		ax, ok := g.axis(v)
		if !ok {
			return nil, false
		}
		ls, lHit := matchEnd(ln.val, ax.Domain.Lo, ax.Domain.Hi)
		rs, rHit := matchEnd(rn.val, ax.Domain.Lo, ax.Domain.Hi)
		if !lHit || !rHit || ls == rs || axis != "" {
			return nil, false
		}
		axis = v
	}
	if axis == "" {
		return nil, false
	}
	return &boundaryCond{
		kind:  BCPeriodic,
		face:  BoundaryFace{Axis: axis, Side: FaceLower},
		field: l.field,
		eq:    eq,
	}, true
}

// classifyFaceDerivs inspects the derivative structure of a face condition.
// Normal derivatives select the Neumann/Robin path; a derivative transverse
// to the face (other than along time) is a documented assumption violation.
func classifyFaceDerivs(eq *Equation, face BoundaryFace, field *Field, cfg *Config) (BCKind, bool, error) {
	hasNormal := false
	var transverse *D
	check := func(e Expr) {
		walkD(e, func(d *D) {
			switch d.wrt {
			case face.Axis:
				hasNormal = true
			case cfg.TimeVar:
				// allowed
			default:
				if transverse == nil {
					transverse = d
				}
			}
		})
	}
	check(eq.LHS)
	check(eq.RHS)
	if transverse != nil {
		return 0, false, &UnsupportedBCShapeError{
			Condition: eq.String(),
			Detail:    transverse.String() + " differentiates transverse to the " + face.Axis + " face",
		}
	}

	timeDiff := false
	if cfg.TimeVar != "" {
		if d, ok := eq.LHS.(*D); ok && d.wrt == cfg.TimeVar {
			if d.order != 1 {
				return 0, false, &UnsupportedBCShapeError{
					Condition: eq.String(),
					Detail:    "boundary time derivative must be first order",
				}
			}
			if _, ok := d.arg.(*FieldRef); !ok {
				return 0, false, &UnsupportedBCShapeError{
					Condition: eq.String(),
					Detail:    "boundary time derivative must act on the boundary reference",
				}
			}
			timeDiff = true
		} else if containsD(eq.LHS, cfg.TimeVar) || containsD(eq.RHS, cfg.TimeVar) {
			return 0, false, &UnsupportedBCShapeError{
				Condition: eq.String(),
				Detail:    "time derivative in a boundary condition must be the whole left-hand side",
			}
		}
	}

	if !hasNormal {
		return BCDirichlet, timeDiff, nil
	}
	// Value and normal derivative together make a Robin condition.
	if hasPlainRef(eq.LHS, field) || hasPlainRef(eq.RHS, field) {
		return BCRobin, timeDiff, nil
	}
	return BCNeumann, timeDiff, nil
}

// hasPlainRef reports whether the field is referenced outside any
// derivative node.
func hasPlainRef(e Expr, field *Field) bool {
	switch v := e.(type) {
	case *FieldRef:
		return v.field.name == field.name
	case *D:
		return false
	case *Add:
		for _, t := range v.terms {
			if hasPlainRef(t, field) {
				return true
			}
		}
	case *Mul:
		for _, f := range v.factors {
			if hasPlainRef(f, field) {
				return true
			}
		}
	case *Pow:
		return hasPlainRef(v.base, field) || hasPlainRef(v.exp, field)
	case *Func:
		return hasPlainRef(v.arg, field)
	}
	return false
}

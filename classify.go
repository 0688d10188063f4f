package pdegrid

// ============================================================
// Term classification
// ============================================================

// TermKind partitions the derivative patterns the engine can turn into
// stencils. Everything else is a usage error, by contract.
type TermKind uint8

const (
	// TermValue is a plain, non-differentiated field reference: a direct
	// grid-value lookup.
	TermValue TermKind = iota
	// TermDerivative is D_v^k applied directly to a field reference.
	// Isotropic Laplacians arrive as sums of these.
	TermDerivative
	// TermFluxLaplacian is the conserved form D_v(w * D_v(u)). With w an
	// expression of the coordinates this covers the spherical Laplacian;
	// with w an expression of the field it is the restricted nonlinear
	// Laplacian.
	TermFluxLaplacian
)

func (k TermKind) String() string {
	switch k {
	case TermValue:
		return "value"
	case TermDerivative:
		return "derivative"
	case TermFluxLaplacian:
		return "flux-laplacian"
	}
	return "unknown"
}

// derivTerm is one classified derivative pattern.
type derivTerm struct {
	kind   TermKind
	axis   string
	order  int
	ref    *FieldRef
	weight Expr // TermFluxLaplacian only
}

// classifyDeriv matches one D node against the recognized shapes. The
// accepted inner arguments are a field reference, or w * D_v(u) under a
// first-order outer derivative along the same axis. Chain- and
// product-rule pre-expansion of every other nonlinear combination is the
// caller's responsibility.
func classifyDeriv(d *D) (*derivTerm, error) {
	switch inner := d.arg.(type) {
	case *FieldRef:
		if err := checkRefArgs(inner); err != nil {
			return nil, err
		}
		if !inner.field.DependsOn(d.wrt) {
			return nil, &UnsupportedDerivativeFormError{
				Subexpr: d.String(),
				Detail:  "field " + inner.field.name + " does not depend on " + d.wrt,
			}
		}
		return &derivTerm{kind: TermDerivative, axis: d.wrt, order: d.order, ref: inner}, nil

	case *Mul:
		if term, ok := matchFluxLaplacian(d, inner); ok {
			return term, nil
		}
		return nil, &UnsupportedDerivativeFormError{
			Subexpr: d.String(),
			Detail:  "derivative of a product; only D_v(g * D_v(u)) is recognized, pre-expand everything else",
		}

	case *Add:
		return nil, &UnsupportedDerivativeFormError{
			Subexpr: d.String(),
			Detail:  "derivative of a sum; distribute the derivative over its terms before discretization",
		}

	case *D:
		return nil, &UnsupportedDerivativeFormError{
			Subexpr: d.String(),
			Detail:  "mixed partial derivative across axes is not supported",
		}

	default:
		return nil, &UnsupportedDerivativeFormError{
			Subexpr: d.String(),
			Detail:  "derivative argument must be a dependent-variable reference",
		}
	}
}

// matchFluxLaplacian recognizes D_v(w * D_v(u)): outer order 1, exactly one
// inner first-order derivative along the same axis, weight free of
// derivatives and of other fields.
func matchFluxLaplacian(outer *D, inner *Mul) (*derivTerm, bool) {
	if outer.order != 1 {
		return nil, false
	}
	var innerD *D
	weightFactors := make([]Expr, 0, len(inner.factors)-1)
	for _, f := range inner.factors {
		if dn, ok := f.(*D); ok && dn.wrt == outer.wrt && dn.order == 1 {
			if innerD != nil {
				return nil, false
			}
			innerD = dn
			continue
		}
		weightFactors = append(weightFactors, f)
	}
	if innerD == nil || len(weightFactors) == 0 {
		return nil, false
	}
	ref, ok := innerD.arg.(*FieldRef)
	if !ok || checkRefArgs(ref) != nil || !ref.field.DependsOn(outer.wrt) {
		return nil, false
	}

	var weight Expr
	if len(weightFactors) == 1 {
		weight = weightFactors[0]
	} else {
		weight = &Mul{factors: weightFactors}
	}
	if containsD(weight, "") {
		return nil, false
	}
	foreign := false
	walkRefs(weight, func(r *FieldRef) {
		if r.field.name != ref.field.name || checkRefArgs(r) != nil {
			foreign = true
		}
	})
	if foreign {
		return nil, false
	}
	return &derivTerm{kind: TermFluxLaplacian, axis: outer.wrt, order: 2, ref: ref, weight: weight}, true
}

// checkRefArgs enforces the reference shape the stencil substitution can
// handle: each argument is either the matching domain variable or a
// constant pinning a boundary/initial slice.
func checkRefArgs(r *FieldRef) error {
	for i, a := range r.args {
		switch v := a.(type) {
		case *Sym:
			if v.name != r.field.vars[i] {
				return &UnsupportedDerivativeFormError{
					Subexpr: r.String(),
					Detail:  "argument " + v.name + " does not match domain variable " + r.field.vars[i],
				}
			}
		case *Num:
			// boundary or initial slice pin
		default:
			return &UnsupportedDerivativeFormError{
				Subexpr: r.String(),
				Detail:  "field arguments must be domain variables or constants",
			}
		}
	}
	return nil
}

// validateTerms walks an expression and classifies every derivative node,
// failing on the first unsupported shape. Nested derivatives inside a
// recognized flux form are not re-visited.
func validateTerms(e Expr) error {
	switch v := e.(type) {
	case *D:
		term, err := classifyDeriv(v)
		if err != nil {
			return err
		}
		if term.kind == TermFluxLaplacian {
			return validateTerms(term.weight)
		}
		return nil
	case *FieldRef:
		return checkRefArgs(v)
	case *Add:
		for _, t := range v.terms {
			if err := validateTerms(t); err != nil {
				return err
			}
		}
	case *Mul:
		for _, f := range v.factors {
			if err := validateTerms(f); err != nil {
				return err
			}
		}
	case *Pow:
		if err := validateTerms(v.base); err != nil {
			return err
		}
		return validateTerms(v.exp)
	case *Func:
		return validateTerms(v.arg)
	}
	return nil
}

package pdegrid

import (
	"errors"
	"fmt"
)

// Build-time error kinds. Every one aborts the whole discretization pass;
// no partial discrete system is ever returned.
var (
	// ErrDomainShape indicates a domain that is not a single closed
	// Cartesian interval, or a step size the interval cannot hold.
	ErrDomainShape = errors.New("pdegrid: domain is not a usable Cartesian interval")

	// ErrUnsupportedDerivativeForm indicates a derivative applied to an
	// inner expression outside the recognized shapes.
	ErrUnsupportedDerivativeForm = errors.New("pdegrid: unsupported derivative form")

	// ErrUnsupportedBCShape indicates a boundary or initial condition the
	// processor cannot classify (transverse derivative, unmatched face).
	ErrUnsupportedBCShape = errors.New("pdegrid: unsupported boundary condition shape")

	// ErrUnderspecifiedSystem indicates a grid point left without exactly
	// one equation after assembly.
	ErrUnderspecifiedSystem = errors.New("pdegrid: underspecified system")
)

// DomainShapeError reports which domain failed interval validation.
type DomainShapeError struct {
	Var    string
	Detail string
}

func (e *DomainShapeError) Error() string {
	return fmt.Sprintf("pdegrid: domain %q: %s", e.Var, e.Detail)
}

func (e *DomainShapeError) Unwrap() error { return ErrDomainShape }

// UnsupportedDerivativeFormError names the offending subexpression. This is
// a usage contract: callers must pre-linearize every form outside the
// recognized set before handing the system over.
type UnsupportedDerivativeFormError struct {
	Subexpr string
	Detail  string
}

func (e *UnsupportedDerivativeFormError) Error() string {
	return fmt.Sprintf("pdegrid: cannot discretize %s: %s", e.Subexpr, e.Detail)
}

func (e *UnsupportedDerivativeFormError) Unwrap() error { return ErrUnsupportedDerivativeForm }

// UnsupportedBCShapeError names the offending condition.
type UnsupportedBCShapeError struct {
	Condition string
	Detail    string
}

func (e *UnsupportedBCShapeError) Error() string {
	return fmt.Sprintf("pdegrid: boundary condition %s: %s", e.Condition, e.Detail)
}

func (e *UnsupportedBCShapeError) Unwrap() error { return ErrUnsupportedBCShape }

// UnderspecifiedSystemError reports the first grid point found with zero or
// duplicate equations.
type UnderspecifiedSystemError struct {
	Field  string
	Index  []int
	Detail string
}

func (e *UnderspecifiedSystemError) Error() string {
	return fmt.Sprintf("pdegrid: field %q at %v: %s", e.Field, e.Index, e.Detail)
}

func (e *UnderspecifiedSystemError) Unwrap() error { return ErrUnderspecifiedSystem }

// Warning is a non-fatal diagnostic surfaced on the DiscreteSystem. The
// pass proceeds but the caller must see it.
type Warning struct {
	Code   string
	Detail string
}

func (w Warning) String() string { return w.Code + ": " + w.Detail }

// WarnInstability flags an upwind approximation order above the guaranteed
// one; results are produced but their stability is not contract-covered.
const WarnInstability = "InstabilityWarning"

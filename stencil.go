package pdegrid

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// ============================================================
// Finite-difference stencil synthesis
// ============================================================

// Side selects where a stencil is anchored relative to its point.
type Side uint8

const (
	// SideCentered is the symmetric interior stencil.
	SideCentered Side = iota
	// SideLeft anchors at a lower boundary; every offset is >= 0.
	SideLeft
	// SideRight anchors at an upper boundary; every offset is <= 0.
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideCentered:
		return "centered"
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	}
	return "unknown"
}

// StencilWeights approximates the DerivOrder-th derivative at a point as
// sum(Coeffs[j] * f(x + Offsets[j]*dx)) / dx^DerivOrder, accurate to
// ApproxOrder on a uniform grid.
type StencilWeights struct {
	Offsets     []int
	Coeffs      []float64
	DerivOrder  int
	ApproxOrder int
	Side        Side
}

// Width returns the number of points the stencil touches.
func (w *StencilWeights) Width() int { return len(w.Offsets) }

// Reach returns the largest absolute offset.
func (w *StencilWeights) Reach() int {
	r := 0
	for _, o := range w.Offsets {
		if o > r {
			r = o
		}
		if -o > r {
			r = -o
		}
	}
	return r
}

type stencilKey struct {
	d    int
	p    int
	side Side
}

// StencilLibrary synthesizes and memoizes stencil weight tables. One
// instance is owned by each discretization pass; lookups are safe for
// concurrent use with at-most-once computation per key.
type StencilLibrary struct {
	mu    sync.Mutex
	cache map[stencilKey]*StencilWeights
}

func NewStencilLibrary() *StencilLibrary {
	return &StencilLibrary{cache: map[stencilKey]*StencilWeights{}}
}

// Weights returns the table for the given derivative order, approximation
// order, and side. Centered widths use the minimal odd superset of
// d + p - 1; one-sided widths use d + p points to keep the requested order
// despite truncation at a boundary.
func (l *StencilLibrary) Weights(derivOrder, approxOrder int, side Side) (*StencilWeights, error) {
	if derivOrder < 1 {
		return nil, fmt.Errorf("pdegrid: derivative order %d must be >= 1", derivOrder)
	}
	if approxOrder < 1 {
		return nil, fmt.Errorf("pdegrid: approximation order %d must be >= 1", approxOrder)
	}
	key := stencilKey{d: derivOrder, p: approxOrder, side: side}
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.cache[key]; ok {
		return w, nil
	}

	var offsets []int
	switch side {
	case SideCentered:
		width := derivOrder + approxOrder - 1
		if width < derivOrder+1 {
			width = derivOrder + 1
		}
		if width%2 == 0 {
			width++
		}
		half := width / 2
		offsets = make([]int, width)
		for i := range offsets {
			offsets[i] = i - half
		}
	case SideLeft:
		width := derivOrder + approxOrder
		offsets = make([]int, width)
		for i := range offsets {
			offsets[i] = i
		}
	case SideRight:
		width := derivOrder + approxOrder
		offsets = make([]int, width)
		for i := range offsets {
			offsets[i] = i - (width - 1)
		}
	default:
		return nil, fmt.Errorf("pdegrid: unknown stencil side %d", side)
	}

	pts := make([]float64, len(offsets))
	for i, o := range offsets {
		pts[i] = float64(o)
	}
	coeffs, err := solveMoments(derivOrder, pts)
	if err != nil {
		return nil, err
	}
	w := &StencilWeights{
		Offsets:     offsets,
		Coeffs:      coeffs,
		DerivOrder:  derivOrder,
		ApproxOrder: approxOrder,
		Side:        side,
	}
	l.cache[key] = w
	return w, nil
}

// Upwind returns the windward first-derivative table for the coefficient
// of a coeff * D_v(u) term. The transport speed is -coeff, so a negative
// coefficient moves information rightward and the stencil trails it with
// offsets <= 0. A zero coefficient falls back to the centered table.
func (l *StencilLibrary) Upwind(approxOrder int, coeff float64) (*StencilWeights, error) {
	switch {
	case coeff < 0:
		return l.Weights(1, approxOrder, SideRight)
	case coeff > 0:
		return l.Weights(1, approxOrder, SideLeft)
	default:
		return l.Weights(1, approxOrder, SideCentered)
	}
}

// WeightsAt solves the moment system over arbitrary (possibly half-integer)
// offsets, measured in units of dx. Used for boundary rows on edge-aligned
// grids where points straddle the wall at half-step distances. Not cached.
func (l *StencilLibrary) WeightsAt(derivOrder int, offsets []float64) ([]float64, error) {
	if derivOrder < 0 {
		return nil, fmt.Errorf("pdegrid: derivative order %d must be >= 0", derivOrder)
	}
	if len(offsets) < derivOrder+1 {
		return nil, fmt.Errorf("pdegrid: %d offsets cannot resolve derivative order %d", len(offsets), derivOrder)
	}
	return solveMoments(derivOrder, offsets)
}

// solveMoments solves the Taylor matching system
// sum_j c_j * o_j^k = d! * delta(k, d) for k = 0 .. len(offsets)-1.
func solveMoments(derivOrder int, offsets []float64) ([]float64, error) {
	n := len(offsets)
	a := mat.NewDense(n, n, nil)
	b := mat.NewVecDense(n, nil)
	for k := 0; k < n; k++ {
		for j, o := range offsets {
			a.Set(k, j, intPow(o, k))
		}
	}
	b.SetVec(derivOrder, factorial(derivOrder))

	var c mat.VecDense
	if err := c.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("pdegrid: singular stencil moment system over %v: %w", offsets, err)
	}
	out := make([]float64, n)
	for j := range out {
		out[j] = c.AtVec(j)
	}
	return out, nil
}

func intPow(x float64, k int) float64 {
	v := 1.0
	for i := 0; i < k; i++ {
		v *= x
	}
	return v
}

func factorial(n int) float64 {
	v := 1.0
	for i := 2; i <= n; i++ {
		v *= float64(i)
	}
	return v
}

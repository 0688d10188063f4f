package pdegrid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ============================================================
// Domains and grid axes
// ============================================================

// Domain is one independent variable over a closed interval. Immutable
// once the system is constructed.
type Domain struct {
	Var string
	Lo  float64
	Hi  float64
}

// Alignment selects where grid points sit relative to the domain ends.
type Alignment uint8

const (
	// AlignCenter places the first point on lo and the last on hi.
	AlignCenter Alignment = iota
	// AlignEdge shifts points by dx/2 and adds synthetic points just
	// outside each end, which symmetrizes truncation error at Neumann
	// boundaries.
	AlignEdge
)

func (a Alignment) String() string {
	switch a {
	case AlignCenter:
		return "center"
	case AlignEdge:
		return "edge"
	}
	return "unknown"
}

// GridAxis is the discretized form of one spatial Domain: strictly
// increasing coordinates with uniform spacing except possibly at the two
// synthetic edge points.
type GridAxis struct {
	Var    string
	Domain Domain
	Coords []float64
	Dx     float64
	Align  Alignment
}

func (ax *GridAxis) Len() int { return len(ax.Coords) }

// buildAxis generates coordinates for one spatial domain.
func buildAxis(dom Domain, dx float64, align Alignment) (*GridAxis, error) {
	if math.IsNaN(dom.Lo) || math.IsNaN(dom.Hi) || math.IsInf(dom.Lo, 0) || math.IsInf(dom.Hi, 0) {
		return nil, &DomainShapeError{Var: dom.Var, Detail: "interval bounds must be finite"}
	}
	if dom.Hi <= dom.Lo {
		return nil, &DomainShapeError{Var: dom.Var, Detail: fmt.Sprintf("interval [%g, %g] is empty or reversed", dom.Lo, dom.Hi)}
	}
	if dx <= 0 {
		return nil, &DomainShapeError{Var: dom.Var, Detail: fmt.Sprintf("step size %g must be positive", dx)}
	}
	if dx > dom.Hi-dom.Lo {
		return nil, &DomainShapeError{Var: dom.Var, Detail: fmt.Sprintf("step size %g exceeds interval width %g", dx, dom.Hi-dom.Lo)}
	}

	var coords []float64
	switch align {
	case AlignCenter:
		// N = floor((hi-lo)/dx) + 1, first = lo, last = hi when divisible.
		n := int(math.Floor((dom.Hi-dom.Lo)/dx+1e-9)) + 1
		coords = make([]float64, n)
		floats.Span(coords, dom.Lo, dom.Lo+float64(n-1)*dx)
	case AlignEdge:
		// Center points shifted by -dx/2, plus the synthetic points at
		// lo-dx/2 and hi+dx/2.
		n := int(math.Floor((dom.Hi-dom.Lo)/dx+1e-9)) + 1
		coords = make([]float64, n+1)
		floats.Span(coords[:n], dom.Lo-dx/2, dom.Lo-dx/2+float64(n-1)*dx)
		coords[n] = dom.Hi + dx/2
	default:
		return nil, &DomainShapeError{Var: dom.Var, Detail: fmt.Sprintf("unknown alignment %d", align)}
	}

	for i := 1; i < len(coords); i++ {
		if coords[i] <= coords[i-1] {
			return nil, &DomainShapeError{Var: dom.Var, Detail: "generated coordinates are not strictly increasing"}
		}
	}
	return &GridAxis{Var: dom.Var, Domain: dom, Coords: coords, Dx: dx, Align: align}, nil
}

// grid holds the ordered spatial axes plus the pass-through time domain.
type grid struct {
	axes    []*GridAxis
	byVar   map[string]int
	timeDom *Domain
}

// buildGrid resolves every spatial domain into an axis, in declaration
// order, and passes the designated time domain through unresolved.
// Pure function of its inputs.
func buildGrid(domains []Domain, cfg *Config) (*grid, error) {
	g := &grid{byVar: map[string]int{}}
	for i := range domains {
		dom := domains[i]
		if dom.Var == "" {
			return nil, &DomainShapeError{Var: dom.Var, Detail: "domain variable name is empty"}
		}
		if _, dup := g.byVar[dom.Var]; dup {
			return nil, &DomainShapeError{Var: dom.Var, Detail: "duplicate domain"}
		}
		if dom.Var == cfg.TimeVar {
			d := dom
			g.timeDom = &d
			continue
		}
		dx, ok := cfg.StepSizes[dom.Var]
		if !ok {
			return nil, &DomainShapeError{Var: dom.Var, Detail: "no step size configured"}
		}
		ax, err := buildAxis(dom, dx, cfg.GridAlign)
		if err != nil {
			return nil, err
		}
		g.byVar[dom.Var] = len(g.axes)
		g.axes = append(g.axes, ax)
	}
	if cfg.TimeVar != "" && g.timeDom == nil {
		return nil, &DomainShapeError{Var: cfg.TimeVar, Detail: "designated time variable has no domain"}
	}
	return g, nil
}

func (g *grid) axis(varName string) (*GridAxis, bool) {
	i, ok := g.byVar[varName]
	if !ok {
		return nil, false
	}
	return g.axes[i], true
}

// axesFor returns the spatial axes a field spans, in grid declaration order.
func (g *grid) axesFor(f *Field) []*GridAxis {
	var out []*GridAxis
	for _, ax := range g.axes {
		if f.DependsOn(ax.Var) {
			out = append(out, ax)
		}
	}
	return out
}

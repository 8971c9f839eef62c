// Package locate finds element locations for points against a coordinate
// field: the search behind embedding data coordinates into a fitted scaffold.
// Candidate elements are seeded from an HNSW index over element centroids,
// then refined with damped Gauss-Newton iteration on the element local
// coordinates.
package locate

import (
	"errors"
	"fmt"
	"math"

	"github.com/coder/hnsw"
	"gonum.org/v1/gonum/mat"

	"github.com/scaffoldtools/dataembedder/scaffold"
)

// Mode selects how strictly a location must match the target point.
type Mode int

const (
	// ModeNearest returns the best location found even if the point lies
	// outside the mesh; local coordinates stay clamped to the element.
	ModeNearest Mode = iota
	// ModeExact errors when no location matches within the tolerance.
	ModeExact
)

// ErrNoLocation is returned in ModeExact when no element contains the point
// within the configured tolerance.
var ErrNoLocation = errors.New("locate: no mesh location within tolerance")

// Tuning carries the numeric parameters of the search.
type Tuning struct {
	// Tolerance is the residual norm below which a location is exact.
	Tolerance float64
	// MaxIterations bounds the Gauss-Newton iterations per element.
	MaxIterations int
	// SeedCandidates is how many centroid neighbours to refine.
	SeedCandidates int
	// Damping scales the fallback gradient step when the normal equations
	// are singular.
	Damping float64
}

// DefaultTuning returns the search parameters used when none are supplied.
func DefaultTuning() Tuning {
	return Tuning{
		Tolerance:      1e-6,
		MaxIterations:  50,
		SeedCandidates: 4,
		Damping:        0.5,
	}
}

// Location is a found mesh location: an element of the searched mesh, local
// coordinates within it, and the distance from the evaluated field value to
// the target point.
type Location struct {
	ElementID int
	Xi        []float64
	Residual  float64
}

// Locator searches one mesh/field pair. Build one per fitted coordinates
// field and reuse it across points.
type Locator struct {
	mesh   *scaffold.Mesh
	field  *scaffold.Field
	mode   Mode
	tuning Tuning
	index  *hnsw.Graph[int]
}

// New builds a locator over the highest-dimension mesh of the field's
// region, indexing element centroids for candidate seeding.
func New(field *scaffold.Field, mode Mode, tuning Tuning) (*Locator, error) {
	if field == nil || !field.IsFiniteElement() {
		return nil, fmt.Errorf("locate: coordinates field must be a finite element field")
	}
	mesh := field.Region().HighestDimensionMesh()
	if mesh == nil {
		return nil, fmt.Errorf("locate: region has no elements to search")
	}
	if tuning.Tolerance <= 0 || tuning.MaxIterations <= 0 || tuning.SeedCandidates <= 0 {
		return nil, fmt.Errorf("locate: invalid tuning %+v", tuning)
	}

	l := &Locator{mesh: mesh, field: field, mode: mode, tuning: tuning}
	l.index = hnsw.NewGraph[int]()
	l.index.Distance = hnsw.EuclideanDistance

	centre := make([]float64, mesh.Dimension())
	for i := range centre {
		centre[i] = 0.5
	}
	nodes := make([]hnsw.Node[int], 0, mesh.Size())
	for _, e := range mesh.Elements() {
		centroid, err := field.EvaluateElement(e, centre)
		if err != nil {
			return nil, fmt.Errorf("locate: element %d centroid: %w", e.ID(), err)
		}
		vec := make([]float32, len(centroid))
		for i, v := range centroid {
			vec[i] = float32(v)
		}
		nodes = append(nodes, hnsw.MakeNode(e.ID(), vec))
	}
	l.index.Add(nodes...)
	return l, nil
}

// Mesh returns the mesh the locator searches.
func (l *Locator) Mesh() *scaffold.Mesh { return l.mesh }

// FindLocation returns the mesh location whose field value is closest to the
// point. In ModeExact the residual must be within the tolerance.
func (l *Locator) FindLocation(point []float64) (Location, error) {
	if len(point) != l.field.ComponentCount() {
		return Location{}, fmt.Errorf("locate: point has %d components, field %q has %d",
			len(point), l.field.Name(), l.field.ComponentCount())
	}

	best := Location{ElementID: -1, Residual: math.Inf(1)}
	for _, e := range l.candidates(point) {
		xi, residual, err := l.solveElement(e, point)
		if err != nil {
			continue
		}
		if residual < best.Residual {
			best = Location{ElementID: e.ID(), Xi: xi, Residual: residual}
			if residual <= l.tuning.Tolerance {
				break
			}
		}
	}
	if best.ElementID < 0 {
		return Location{}, fmt.Errorf("locate: no usable element for point %v", point)
	}
	if l.mode == ModeExact && best.Residual > l.tuning.Tolerance {
		return Location{}, fmt.Errorf("%w: best residual %g in element %d",
			ErrNoLocation, best.Residual, best.ElementID)
	}
	return best, nil
}

// candidates returns the elements to refine for the point: the nearest
// centroids from the index, falling back to a full scan if the index
// returns nothing.
func (l *Locator) candidates(point []float64) []*scaffold.Element {
	vec := make([]float32, len(point))
	for i, v := range point {
		vec[i] = float32(v)
	}
	neighbours := l.index.Search(vec, l.tuning.SeedCandidates)
	if len(neighbours) == 0 {
		return l.mesh.Elements()
	}
	out := make([]*scaffold.Element, 0, len(neighbours))
	for _, n := range neighbours {
		if e := l.mesh.Find(n.Key); e != nil {
			out = append(out, e)
		}
	}
	return out
}

// solveElement runs damped Gauss-Newton on the element local coordinates,
// minimising |field(xi) - point|. Local coordinates are clamped to [0,1] so
// exterior points resolve to the nearest element boundary.
func (l *Locator) solveElement(e *scaffold.Element, point []float64) ([]float64, float64, error) {
	dim := e.Dimension()
	nc := l.field.ComponentCount()
	xi := make([]float64, dim)
	for i := range xi {
		xi[i] = 0.5
	}

	residual := math.Inf(1)
	for iter := 0; iter < l.tuning.MaxIterations; iter++ {
		value, err := l.field.EvaluateElement(e, xi)
		if err != nil {
			return nil, 0, err
		}
		rData := make([]float64, nc)
		residual = 0
		for c := 0; c < nc; c++ {
			rData[c] = value[c] - point[c]
			residual += rData[c] * rData[c]
		}
		residual = math.Sqrt(residual)
		if residual <= l.tuning.Tolerance {
			break
		}

		jac, err := l.field.EvaluateElementDerivatives(e, xi)
		if err != nil {
			return nil, 0, err
		}
		jData := make([]float64, nc*dim)
		for c := 0; c < nc; c++ {
			copy(jData[c*dim:], jac[c])
		}
		J := mat.NewDense(nc, dim, jData)
		r := mat.NewVecDense(nc, rData)

		var jtj mat.Dense
		jtj.Mul(J.T(), J)
		var jtr mat.VecDense
		jtr.MulVec(J.T(), r)

		step := make([]float64, dim)
		var dx mat.VecDense
		if err := dx.SolveVec(&jtj, &jtr); err == nil {
			for k := 0; k < dim; k++ {
				step[k] = -dx.AtVec(k)
			}
		} else {
			// Singular normal equations: take a damped gradient step.
			for k := 0; k < dim; k++ {
				step[k] = -l.tuning.Damping * jtr.AtVec(k)
			}
		}

		moved := 0.0
		for k := 0; k < dim; k++ {
			next := clamp01(xi[k] + step[k])
			moved += math.Abs(next - xi[k])
			xi[k] = next
		}
		if moved < 1e-14 {
			break
		}
	}

	// Recompute the residual at the final (clamped) coordinates.
	value, err := l.field.EvaluateElement(e, xi)
	if err != nil {
		return nil, 0, err
	}
	residual = 0
	for c := 0; c < nc; c++ {
		d := value[c] - point[c]
		residual += d * d
	}
	return xi, math.Sqrt(residual), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

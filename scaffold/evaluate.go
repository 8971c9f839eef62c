package scaffold

import "fmt"

// BasisWeights returns the linear Lagrange weights for each local node of an
// element of the given dimension at local coordinates xi in [0,1]^dimension.
// Local node i is high in xi(k+1) exactly when bit k of i is set, so weights
// are products of xi[k] or (1-xi[k]) per axis.
func BasisWeights(dimension int, xi []float64) ([]float64, error) {
	if dimension < 1 || dimension > 3 {
		return nil, fmt.Errorf("basis: invalid dimension %d", dimension)
	}
	if len(xi) != dimension {
		return nil, fmt.Errorf("basis: need %d local coordinates, got %d", dimension, len(xi))
	}
	n := 1 << dimension
	weights := make([]float64, n)
	for i := 0; i < n; i++ {
		w := 1.0
		for k := 0; k < dimension; k++ {
			if i&(1<<k) != 0 {
				w *= xi[k]
			} else {
				w *= 1.0 - xi[k]
			}
		}
		weights[i] = w
	}
	return weights, nil
}

// BasisDerivatives returns d(weight_i)/d(xi_k) for each local node i and
// axis k, as derivs[i][k].
func BasisDerivatives(dimension int, xi []float64) ([][]float64, error) {
	if dimension < 1 || dimension > 3 {
		return nil, fmt.Errorf("basis: invalid dimension %d", dimension)
	}
	if len(xi) != dimension {
		return nil, fmt.Errorf("basis: need %d local coordinates, got %d", dimension, len(xi))
	}
	n := 1 << dimension
	derivs := make([][]float64, n)
	for i := 0; i < n; i++ {
		derivs[i] = make([]float64, dimension)
		for k := 0; k < dimension; k++ {
			d := 1.0
			for a := 0; a < dimension; a++ {
				if a == k {
					if i&(1<<a) != 0 {
						d *= 1.0
					} else {
						d *= -1.0
					}
					continue
				}
				if i&(1<<a) != 0 {
					d *= xi[a]
				} else {
					d *= 1.0 - xi[a]
				}
			}
			derivs[i][k] = d
		}
	}
	return derivs, nil
}

// EvaluateElement interpolates the field at local coordinates xi within the
// element, returning one value per component.
func (f *Field) EvaluateElement(e *Element, xi []float64) ([]float64, error) {
	nodeValues, err := f.elementNodeValues(e)
	if err != nil {
		return nil, err
	}
	weights, err := BasisWeights(e.dimension, xi)
	if err != nil {
		return nil, err
	}
	nc := f.ComponentCount()
	out := make([]float64, nc)
	for i, values := range nodeValues {
		for c := 0; c < nc; c++ {
			out[c] += weights[i] * values[c]
		}
	}
	return out, nil
}

// EvaluateElementDerivatives returns the Jacobian of the field with respect
// to the element's local coordinates at xi, as jac[component][axis].
func (f *Field) EvaluateElementDerivatives(e *Element, xi []float64) ([][]float64, error) {
	nodeValues, err := f.elementNodeValues(e)
	if err != nil {
		return nil, err
	}
	derivs, err := BasisDerivatives(e.dimension, xi)
	if err != nil {
		return nil, err
	}
	nc := f.ComponentCount()
	jac := make([][]float64, nc)
	for c := 0; c < nc; c++ {
		jac[c] = make([]float64, e.dimension)
	}
	for i, values := range nodeValues {
		for c := 0; c < nc; c++ {
			for k := 0; k < e.dimension; k++ {
				jac[c][k] += derivs[i][k] * values[c]
			}
		}
	}
	return jac, nil
}

// elementNodeValues gathers the field values at each of the element's local
// nodes, erroring if the field is undefined at any of them.
func (f *Field) elementNodeValues(e *Element) ([][]float64, error) {
	if !f.IsFiniteElement() {
		return nil, fmt.Errorf("field %q: not a finite element field", f.name)
	}
	nodes := f.region.Nodes()
	out := make([][]float64, len(e.nodeIDs))
	for i, nid := range e.nodeIDs {
		n := nodes.Find(nid)
		if n == nil {
			return nil, fmt.Errorf("field %q: element %d references unknown node %d", f.name, e.id, nid)
		}
		values, ok := n.Values(f)
		if !ok {
			return nil, fmt.Errorf("field %q: not defined at node %d of element %d", f.name, nid, e.id)
		}
		out[i] = values
	}
	return out, nil
}

package scaffold

import "fmt"

// FieldType distinguishes the two kinds of field a region can hold:
// node-interpolated finite element fields and per-point stored strings.
type FieldType int

const (
	// FieldFiniteElement is a real-valued field interpolated from node
	// parameters using the element basis.
	FieldFiniteElement FieldType = iota
	// FieldStoredString holds one string per node or datapoint, used for
	// marker names and similar annotations.
	FieldStoredString
)

// Field is a named field defined over a region. Component values live on the
// nodes themselves (see Node.SetValues); the Field carries the definition:
// name, component labels and whether the field is coordinate-type.
type Field struct {
	region     *Region
	name       string
	typ        FieldType
	components []string
	coordinate bool
}

// Name returns the field name, unique within its region.
func (f *Field) Name() string { return f.name }

// Region returns the region the field is defined on.
func (f *Field) Region() *Region { return f.region }

// Type returns the field type.
func (f *Field) Type() FieldType { return f.typ }

// IsFiniteElement reports whether the field interpolates real components.
func (f *Field) IsFiniteElement() bool { return f.typ == FieldFiniteElement }

// IsStoredString reports whether the field stores one string per point.
func (f *Field) IsStoredString() bool { return f.typ == FieldStoredString }

// IsCoordinate reports whether the field is coordinate-type, i.e. a candidate
// for geometric, fitted or material coordinates.
func (f *Field) IsCoordinate() bool { return f.coordinate }

// ComponentCount returns the number of real components (0 for string fields).
func (f *Field) ComponentCount() int { return len(f.components) }

// ComponentNames returns a copy of the component labels.
func (f *Field) ComponentNames() []string {
	out := make([]string, len(f.components))
	copy(out, f.components)
	return out
}

// EvaluateNode returns the field component values stored on the node.
func (f *Field) EvaluateNode(n *Node) ([]float64, error) {
	if !f.IsFiniteElement() {
		return nil, fmt.Errorf("field %q: not a finite element field", f.name)
	}
	values, ok := n.Values(f)
	if !ok {
		return nil, fmt.Errorf("field %q: not defined at node %d", f.name, n.ID())
	}
	return values, nil
}

package scaffold

import "fmt"

// Domain identifies which point set of a region an object belongs to.
type Domain string

const (
	// DomainNodes is the set of nodes that elements interpolate between.
	DomainNodes Domain = "nodes"
	// DomainDatapoints is the set of free data points (markers, samples).
	DomainDatapoints Domain = "datapoints"
)

// Node is a point in a nodeset carrying per-field parameters: real component
// values for finite element fields, strings for stored string fields.
type Node struct {
	id      int
	values  map[*Field][]float64
	strings map[*Field]string
}

// ID returns the node identifier, unique within its nodeset.
func (n *Node) ID() int { return n.id }

// SetValues stores real component values for a finite element field.
func (n *Node) SetValues(field *Field, values []float64) error {
	if !field.IsFiniteElement() {
		return fmt.Errorf("node %d: field %q is not a finite element field", n.id, field.Name())
	}
	if len(values) != field.ComponentCount() {
		return fmt.Errorf("node %d: field %q expects %d components, got %d",
			n.id, field.Name(), field.ComponentCount(), len(values))
	}
	stored := make([]float64, len(values))
	copy(stored, values)
	n.values[field] = stored
	return nil
}

// Values returns the real component values stored for the field, if any.
func (n *Node) Values(field *Field) ([]float64, bool) {
	v, ok := n.values[field]
	return v, ok
}

// SetString stores the string value for a stored string field.
func (n *Node) SetString(field *Field, s string) error {
	if !field.IsStoredString() {
		return fmt.Errorf("node %d: field %q is not a stored string field", n.id, field.Name())
	}
	n.strings[field] = s
	return nil
}

// String returns the string stored for the field, if any.
func (n *Node) String(field *Field) (string, bool) {
	s, ok := n.strings[field]
	return s, ok
}

// HasField reports whether the field is defined at this node.
func (n *Node) HasField(field *Field) bool {
	if field.IsStoredString() {
		_, ok := n.strings[field]
		return ok
	}
	_, ok := n.values[field]
	return ok
}

// Nodeset is an ordered collection of nodes or datapoints.
type Nodeset struct {
	domain Domain
	byID   map[int]*Node
	order  []int
}

func newNodeset(domain Domain) *Nodeset {
	return &Nodeset{domain: domain, byID: make(map[int]*Node)}
}

// Domain returns which point set this is.
func (s *Nodeset) Domain() Domain { return s.domain }

// Size returns the number of nodes in the set.
func (s *Nodeset) Size() int { return len(s.order) }

// Find returns the node with the given id, or nil.
func (s *Nodeset) Find(id int) *Node { return s.byID[id] }

// Create adds a new node with the given id.
func (s *Nodeset) Create(id int) (*Node, error) {
	if _, exists := s.byID[id]; exists {
		return nil, fmt.Errorf("%s: node %d already exists", s.domain, id)
	}
	n := &Node{
		id:      id,
		values:  make(map[*Field][]float64),
		strings: make(map[*Field]string),
	}
	s.byID[id] = n
	s.order = append(s.order, id)
	return n, nil
}

// FindOrCreate returns the node with the given id, creating it if absent.
func (s *Nodeset) FindOrCreate(id int) *Node {
	if n := s.byID[id]; n != nil {
		return n
	}
	n, _ := s.Create(id)
	return n
}

// IDs returns the node ids in creation order.
func (s *Nodeset) IDs() []int {
	out := make([]int, len(s.order))
	copy(out, s.order)
	return out
}

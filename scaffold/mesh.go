package scaffold

import "fmt"

// Element is a linear Lagrange element: a 2-node line, 4-node square or
// 8-node cube. Local nodes are ordered with xi1 varying fastest, so local
// node i is high in xi(k+1) exactly when bit k of i is set.
type Element struct {
	id        int
	dimension int
	nodeIDs   []int
}

// ID returns the element identifier, unique within its mesh.
func (e *Element) ID() int { return e.id }

// Dimension returns the element dimension (1..3).
func (e *Element) Dimension() int { return e.dimension }

// NodeIDs returns the element's node ids in local order.
func (e *Element) NodeIDs() []int {
	out := make([]int, len(e.nodeIDs))
	copy(out, e.nodeIDs)
	return out
}

// Mesh is the ordered set of elements of one dimension in a region.
// Element ids are unique per dimension, so a 2d and a 3d element may
// share an id.
type Mesh struct {
	region    *Region
	dimension int
	byID      map[int]*Element
	order     []int
}

func newMesh(region *Region, dimension int) *Mesh {
	return &Mesh{region: region, dimension: dimension, byID: make(map[int]*Element)}
}

// Dimension returns the mesh dimension (1..3).
func (m *Mesh) Dimension() int { return m.dimension }

// Size returns the number of elements.
func (m *Mesh) Size() int { return len(m.order) }

// Find returns the element with the given id, or nil.
func (m *Mesh) Find(id int) *Element { return m.byID[id] }

// Create adds an element with the given id and local node ids. The node
// count must match the linear Lagrange shape for the mesh dimension.
func (m *Mesh) Create(id int, nodeIDs []int) (*Element, error) {
	if _, exists := m.byID[id]; exists {
		return nil, fmt.Errorf("mesh %dd: element %d already exists", m.dimension, id)
	}
	want := 1 << m.dimension
	if len(nodeIDs) != want {
		return nil, fmt.Errorf("mesh %dd: element %d needs %d nodes, got %d",
			m.dimension, id, want, len(nodeIDs))
	}
	for _, nid := range nodeIDs {
		if m.region.Nodes().Find(nid) == nil {
			return nil, fmt.Errorf("mesh %dd: element %d references unknown node %d",
				m.dimension, id, nid)
		}
	}
	e := &Element{id: id, dimension: m.dimension, nodeIDs: append([]int(nil), nodeIDs...)}
	m.byID[id] = e
	m.order = append(m.order, id)
	return e, nil
}

// Elements returns the elements in creation order.
func (m *Mesh) Elements() []*Element {
	out := make([]*Element, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	return out
}

package scaffold

import "fmt"

// Group is a named annotated subset of a region's elements, nodes and
// datapoints. Membership is caller-defined; groups carry no field values.
type Group struct {
	region       *Region
	name         string
	elements     [4]map[int]struct{} // indexed by dimension 1..3
	elementOrder [4][]int
	nodes        map[int]struct{}
	nodeOrder    []int
	datapoints   map[int]struct{}
	dpOrder      []int
}

func newGroup(region *Region, name string) *Group {
	g := &Group{
		region:     region,
		name:       name,
		nodes:      make(map[int]struct{}),
		datapoints: make(map[int]struct{}),
	}
	for d := 1; d <= 3; d++ {
		g.elements[d] = make(map[int]struct{})
	}
	return g
}

// Name returns the group name, unique within its region.
func (g *Group) Name() string { return g.name }

// Region returns the region the group belongs to.
func (g *Group) Region() *Region { return g.region }

// AddElement adds an element of the region's mesh to the group.
func (g *Group) AddElement(dimension, id int) error {
	if dimension < 1 || dimension > 3 {
		return fmt.Errorf("group %q: invalid element dimension %d", g.name, dimension)
	}
	if g.region.Mesh(dimension).Find(id) == nil {
		return fmt.Errorf("group %q: no %dd element %d in region", g.name, dimension, id)
	}
	if _, ok := g.elements[dimension][id]; ok {
		return nil
	}
	g.elements[dimension][id] = struct{}{}
	g.elementOrder[dimension] = append(g.elementOrder[dimension], id)
	return nil
}

// AddNode adds a node to the group.
func (g *Group) AddNode(id int) error {
	if g.region.Nodes().Find(id) == nil {
		return fmt.Errorf("group %q: no node %d in region", g.name, id)
	}
	if _, ok := g.nodes[id]; ok {
		return nil
	}
	g.nodes[id] = struct{}{}
	g.nodeOrder = append(g.nodeOrder, id)
	return nil
}

// AddDatapoint adds a datapoint to the group.
func (g *Group) AddDatapoint(id int) error {
	if g.region.Datapoints().Find(id) == nil {
		return fmt.Errorf("group %q: no datapoint %d in region", g.name, id)
	}
	if _, ok := g.datapoints[id]; ok {
		return nil
	}
	g.datapoints[id] = struct{}{}
	g.dpOrder = append(g.dpOrder, id)
	return nil
}

// ElementIDs returns the group's element ids of the given dimension in
// insertion order.
func (g *Group) ElementIDs(dimension int) []int {
	if dimension < 1 || dimension > 3 {
		return nil
	}
	out := make([]int, len(g.elementOrder[dimension]))
	copy(out, g.elementOrder[dimension])
	return out
}

// ElementCount returns the number of group elements of the given dimension.
func (g *Group) ElementCount(dimension int) int {
	if dimension < 1 || dimension > 3 {
		return 0
	}
	return len(g.elementOrder[dimension])
}

// NodeIDs returns the group's node ids in insertion order.
func (g *Group) NodeIDs() []int {
	out := make([]int, len(g.nodeOrder))
	copy(out, g.nodeOrder)
	return out
}

// DatapointIDs returns the group's datapoint ids in insertion order.
func (g *Group) DatapointIDs() []int {
	out := make([]int, len(g.dpOrder))
	copy(out, g.dpOrder)
	return out
}

// DatapointCount returns the number of datapoints in the group.
func (g *Group) DatapointCount() int { return len(g.dpOrder) }

// ContainsDatapoint reports whether the datapoint is a group member.
func (g *Group) ContainsDatapoint(id int) bool {
	_, ok := g.datapoints[id]
	return ok
}

// HighestElementDimension returns the highest dimension for which the group
// has elements, or 0 if it has none.
func (g *Group) HighestElementDimension() int {
	for d := 3; d >= 1; d-- {
		if len(g.elementOrder[d]) > 0 {
			return d
		}
	}
	return 0
}

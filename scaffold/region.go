// Package scaffold models regions of nodes, linear Lagrange elements and
// fields: the minimal field-computation surface the embedder needs to load a
// scaffold with fitted geometry, interpolate coordinate fields over it, and
// build embedded output.
package scaffold

import "fmt"

// Region is a named node in the region tree. Each region owns its fields,
// groups, node and datapoint sets, and one mesh per dimension 1..3.
type Region struct {
	name         string
	parent       *Region
	children     []*Region
	fields       []*Field
	fieldsByName map[string]*Field
	groups       []*Group
	groupsByName map[string]*Group
	nodes        *Nodeset
	datapoints   *Nodeset
	meshes       [4]*Mesh
}

// NewRegion creates a root region.
func NewRegion(name string) *Region {
	r := &Region{
		name:         name,
		fieldsByName: make(map[string]*Field),
		groupsByName: make(map[string]*Group),
	}
	r.nodes = newNodeset(DomainNodes)
	r.datapoints = newNodeset(DomainDatapoints)
	for d := 1; d <= 3; d++ {
		r.meshes[d] = newMesh(r, d)
	}
	return r
}

// Name returns the region name.
func (r *Region) Name() string { return r.name }

// Parent returns the parent region, or nil for the root.
func (r *Region) Parent() *Region { return r.parent }

// CreateChild creates a child region with the given name.
func (r *Region) CreateChild(name string) (*Region, error) {
	if r.FindChild(name) != nil {
		return nil, fmt.Errorf("region %q: child %q already exists", r.name, name)
	}
	child := NewRegion(name)
	child.parent = r
	r.children = append(r.children, child)
	return child, nil
}

// FindChild returns the child region with the given name, or nil.
func (r *Region) FindChild(name string) *Region {
	for _, c := range r.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// RemoveChild detaches the named child region, reporting whether it existed.
func (r *Region) RemoveChild(name string) bool {
	for i, c := range r.children {
		if c.name == name {
			c.parent = nil
			r.children = append(r.children[:i], r.children[i+1:]...)
			return true
		}
	}
	return false
}

// Nodes returns the region's node set.
func (r *Region) Nodes() *Nodeset { return r.nodes }

// Datapoints returns the region's datapoint set.
func (r *Region) Datapoints() *Nodeset { return r.datapoints }

// Nodeset returns the point set for the given domain.
func (r *Region) Nodeset(domain Domain) *Nodeset {
	if domain == DomainDatapoints {
		return r.datapoints
	}
	return r.nodes
}

// Mesh returns the mesh of the given dimension, or nil if out of range.
func (r *Region) Mesh(dimension int) *Mesh {
	if dimension < 1 || dimension > 3 {
		return nil
	}
	return r.meshes[dimension]
}

// HighestDimensionMesh returns the highest-dimension mesh containing
// elements, or nil if the region has no elements.
func (r *Region) HighestDimensionMesh() *Mesh {
	for d := 3; d >= 1; d-- {
		if r.meshes[d].Size() > 0 {
			return r.meshes[d]
		}
	}
	return nil
}

// Fields returns the region's fields in definition order.
func (r *Region) Fields() []*Field {
	out := make([]*Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// FindField returns the field with the given name, or nil.
func (r *Region) FindField(name string) *Field { return r.fieldsByName[name] }

// CreateFiniteElementField defines a real-valued field with the given
// component labels. coordinate marks the field as coordinate-type.
func (r *Region) CreateFiniteElementField(name string, components []string, coordinate bool) (*Field, error) {
	if name == "" {
		return nil, fmt.Errorf("region %q: field name must not be empty", r.name)
	}
	if len(components) == 0 {
		return nil, fmt.Errorf("region %q: field %q needs at least one component", r.name, name)
	}
	if _, exists := r.fieldsByName[name]; exists {
		return nil, fmt.Errorf("region %q: field %q already exists", r.name, name)
	}
	f := &Field{
		region:     r,
		name:       name,
		typ:        FieldFiniteElement,
		components: append([]string(nil), components...),
		coordinate: coordinate,
	}
	r.fields = append(r.fields, f)
	r.fieldsByName[name] = f
	return f, nil
}

// CreateStoredStringField defines a field holding one string per point.
func (r *Region) CreateStoredStringField(name string) (*Field, error) {
	if name == "" {
		return nil, fmt.Errorf("region %q: field name must not be empty", r.name)
	}
	if _, exists := r.fieldsByName[name]; exists {
		return nil, fmt.Errorf("region %q: field %q already exists", r.name, name)
	}
	f := &Field{region: r, name: name, typ: FieldStoredString}
	r.fields = append(r.fields, f)
	r.fieldsByName[name] = f
	return f, nil
}

// RenameField changes a field's name, keeping node values attached.
func (r *Region) RenameField(field *Field, newName string) error {
	if field.region != r {
		return fmt.Errorf("region %q: field %q belongs to another region", r.name, field.name)
	}
	if newName == "" {
		return fmt.Errorf("region %q: field name must not be empty", r.name)
	}
	if newName == field.name {
		return nil
	}
	if _, exists := r.fieldsByName[newName]; exists {
		return fmt.Errorf("region %q: field %q already exists", r.name, newName)
	}
	delete(r.fieldsByName, field.name)
	field.name = newName
	r.fieldsByName[newName] = field
	return nil
}

// Groups returns the region's groups in definition order.
func (r *Region) Groups() []*Group {
	out := make([]*Group, len(r.groups))
	copy(out, r.groups)
	return out
}

// FindGroup returns the group with the given name, or nil.
func (r *Region) FindGroup(name string) *Group { return r.groupsByName[name] }

// CreateGroup defines an empty group with the given name.
func (r *Region) CreateGroup(name string) (*Group, error) {
	if name == "" {
		return nil, fmt.Errorf("region %q: group name must not be empty", r.name)
	}
	if _, exists := r.groupsByName[name]; exists {
		return nil, fmt.Errorf("region %q: group %q already exists", r.name, name)
	}
	g := newGroup(r, name)
	r.groups = append(r.groups, g)
	r.groupsByName[name] = g
	return g, nil
}

// FindOrCreateGroup returns the named group, creating it if absent.
func (r *Region) FindOrCreateGroup(name string) (*Group, error) {
	if g := r.groupsByName[name]; g != nil {
		return g, nil
	}
	return r.CreateGroup(name)
}

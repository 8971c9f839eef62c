package modelio

import "github.com/scaffoldtools/dataembedder/scaffold"

// FromRegion captures a region's fields, points, elements and groups as a
// document, in definition order, ready for WriteFile.
func FromRegion(region *scaffold.Region) *Document {
	doc := &Document{}
	fields := region.Fields()
	for _, f := range fields {
		doc.Fields = append(doc.Fields, FieldSpec{
			Name:       f.Name(),
			Components: f.ComponentNames(),
			Coordinate: f.IsCoordinate(),
			String:     f.IsStoredString(),
		})
	}
	doc.Nodes = nodeSpecs(region.Nodes(), fields)
	doc.Datapoints = nodeSpecs(region.Datapoints(), fields)
	for d := 1; d <= 3; d++ {
		for _, e := range region.Mesh(d).Elements() {
			doc.Elements = append(doc.Elements, ElementSpec{
				ID:        e.ID(),
				Dimension: d,
				Nodes:     e.NodeIDs(),
			})
		}
	}
	for _, g := range region.Groups() {
		gs := GroupSpec{Name: g.Name()}
		for d := 1; d <= 3; d++ {
			if ids := g.ElementIDs(d); len(ids) > 0 {
				gs.Elements = append(gs.Elements, GroupElements{Dimension: d, IDs: ids})
			}
		}
		gs.Nodes = g.NodeIDs()
		gs.Datapoints = g.DatapointIDs()
		doc.Groups = append(doc.Groups, gs)
	}
	return doc
}

func nodeSpecs(nodeset *scaffold.Nodeset, fields []*scaffold.Field) []NodeSpec {
	var specs []NodeSpec
	for _, id := range nodeset.IDs() {
		node := nodeset.Find(id)
		ns := NodeSpec{ID: id}
		for _, f := range fields {
			if f.IsStoredString() {
				if s, ok := node.String(f); ok {
					if ns.Strings == nil {
						ns.Strings = make(map[string]string)
					}
					ns.Strings[f.Name()] = s
				}
				continue
			}
			if values, ok := node.Values(f); ok {
				if ns.Values == nil {
					ns.Values = make(map[string][]float64)
				}
				stored := make([]float64, len(values))
				copy(stored, values)
				ns.Values[f.Name()] = stored
			}
		}
		specs = append(specs, ns)
	}
	return specs
}

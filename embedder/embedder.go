// Package embedder derives material coordinates for annotated data groups
// against a scaffold's fitted coordinates field and assembles the embedded
// output region.
package embedder

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/scaffoldtools/dataembedder/locate"
	"github.com/scaffoldtools/dataembedder/scaffold"
)

// OutputRegionName is the name of the child region the output is built in.
const OutputRegionName = "output"

// GroupRequest selects one annotated group for embedding.
type GroupRequest struct {
	Name string
	// Dimension is the group's data dimension (0 for point groups).
	Dimension int
	// FromMarker marks groups derived from marker names rather than
	// defined data groups.
	FromMarker bool
	// Term is an optional anatomical term id carried into the result.
	Term string
}

// Request carries everything GenerateOutput needs.
type Request struct {
	// Host is the root region holding the scaffold with both the fitted
	// and material coordinate fields.
	Host *scaffold.Region
	// Data is the region holding the points and sub-models to embed.
	Data *scaffold.Region

	FittedCoordinates   *scaffold.Field
	MaterialCoordinates *scaffold.Field
	DataCoordinates     *scaffold.Field

	Groups []GroupRequest

	// MarkerGroup and its discovered fields; required only when a group
	// request has FromMarker set.
	MarkerGroup            *scaffold.Group
	MarkerNameField        *scaffold.Field
	MarkerCoordinatesField *scaffold.Field

	Mode   locate.Mode
	Tuning locate.Tuning

	// Store, when set, makes assigned coordinates permanent across runs
	// with the same fitted geometry fingerprint.
	Store             CoordinateStore
	FittedFingerprint string
}

// GroupResult reports one embedded group.
type GroupResult struct {
	Name      string
	Dimension int
	Term      string
	Size      int
	// Residuals are the per-point distances between each data coordinate
	// and the fitted field value at its assigned location, in embedding
	// order.
	Residuals   []float64
	ResidualRMS float64
	MeanError   float64
	MaxError    float64
}

type embedder struct {
	req     *Request
	locator *locate.Locator
	out     *scaffold.Region

	outDataCoordinates     *scaffold.Field
	outMaterialCoordinates *scaffold.Field
	outMarkerName          *scaffold.Field

	// located caches assignments per point so a node shared by two
	// embedded groups resolves once.
	located map[pointKey]*StoredLocation
}

type pointKey struct {
	domain scaffold.Domain
	id     int
}

// GenerateOutput embeds every requested group and returns the output region
// (a child of the host region) along with per-group results.
func GenerateOutput(req *Request) (*scaffold.Region, []GroupResult, error) {
	if req.Host == nil || req.Data == nil {
		return nil, nil, fmt.Errorf("embed: host and data regions are required")
	}
	if req.FittedCoordinates == nil || req.MaterialCoordinates == nil || req.DataCoordinates == nil {
		return nil, nil, fmt.Errorf("embed: fitted, material and data coordinate fields are required")
	}

	locator, err := locate.New(req.FittedCoordinates, req.Mode, req.Tuning)
	if err != nil {
		return nil, nil, err
	}

	req.Host.RemoveChild(OutputRegionName)
	out, err := req.Host.CreateChild(OutputRegionName)
	if err != nil {
		return nil, nil, err
	}

	em := &embedder{
		req:     req,
		locator: locator,
		out:     out,
		located: make(map[pointKey]*StoredLocation),
	}
	if err := em.defineOutputFields(); err != nil {
		return nil, nil, err
	}

	results := make([]GroupResult, 0, len(req.Groups))
	for _, gr := range req.Groups {
		var result GroupResult
		var err error
		if gr.FromMarker {
			result, err = em.embedMarkerGroup(gr)
		} else {
			result, err = em.embedDataGroup(gr)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("embed group %q: %w", gr.Name, err)
		}
		results = append(results, result)
	}
	return out, results, nil
}

func (em *embedder) defineOutputFields() error {
	req := em.req
	var err error
	em.outDataCoordinates, err = em.out.CreateFiniteElementField(
		req.DataCoordinates.Name(), req.DataCoordinates.ComponentNames(), true)
	if err != nil {
		return err
	}
	em.outMaterialCoordinates, err = em.out.CreateFiniteElementField(
		req.MaterialCoordinates.Name(), req.MaterialCoordinates.ComponentNames(), true)
	if err != nil {
		return err
	}
	for _, gr := range req.Groups {
		if gr.FromMarker {
			if req.MarkerNameField == nil {
				return fmt.Errorf("marker group requested but no marker name field discovered")
			}
			em.outMarkerName, err = em.out.CreateStoredStringField(req.MarkerNameField.Name())
			if err != nil {
				return err
			}
			break
		}
	}
	return nil
}

// embedDataGroup embeds a defined data group: the nodes of its elements of
// every dimension, any directly grouped nodes, and any grouped datapoints.
// Sub-model elements are carried into the output with their topology.
func (em *embedder) embedDataGroup(gr GroupRequest) (GroupResult, error) {
	group := em.req.Data.FindGroup(gr.Name)
	if group == nil {
		return GroupResult{}, fmt.Errorf("no such group in data region")
	}
	outGroup, err := em.out.FindOrCreateGroup(gr.Name)
	if err != nil {
		return GroupResult{}, err
	}

	var residuals []float64
	embedNode := func(id int) error {
		loc, fresh, err := em.embedPoint(gr.Name, scaffold.DomainNodes, id, em.req.DataCoordinates)
		if err != nil {
			return err
		}
		if fresh {
			residuals = append(residuals, loc.Residual)
		}
		return em.writeNode(scaffold.DomainNodes, id, em.req.DataCoordinates, loc)
	}

	for dim := 3; dim >= 1; dim-- {
		for _, eid := range group.ElementIDs(dim) {
			element := em.req.Data.Mesh(dim).Find(eid)
			for _, nid := range element.NodeIDs() {
				if err := embedNode(nid); err != nil {
					return GroupResult{}, err
				}
				if err := outGroup.AddNode(nid); err != nil {
					return GroupResult{}, err
				}
			}
			if err := em.copyElement(element); err != nil {
				return GroupResult{}, err
			}
			if err := outGroup.AddElement(dim, eid); err != nil {
				return GroupResult{}, err
			}
		}
	}
	for _, nid := range group.NodeIDs() {
		if err := embedNode(nid); err != nil {
			return GroupResult{}, err
		}
		if err := outGroup.AddNode(nid); err != nil {
			return GroupResult{}, err
		}
	}

	for _, dpid := range group.DatapointIDs() {
		loc, fresh, err := em.embedPoint(gr.Name, scaffold.DomainDatapoints, dpid, em.req.DataCoordinates)
		if err != nil {
			return GroupResult{}, err
		}
		if fresh {
			residuals = append(residuals, loc.Residual)
		}
		if err := em.writeDatapoint(dpid, em.req.DataCoordinates, loc, ""); err != nil {
			return GroupResult{}, err
		}
		if err := outGroup.AddDatapoint(dpid); err != nil {
			return GroupResult{}, err
		}
	}

	size := len(outGroup.NodeIDs()) + outGroup.DatapointCount()
	return groupResult(gr, size, residuals), nil
}

// embedMarkerGroup embeds the marker datapoints whose marker name matches
// the group name.
func (em *embedder) embedMarkerGroup(gr GroupRequest) (GroupResult, error) {
	req := em.req
	if req.MarkerGroup == nil || req.MarkerNameField == nil {
		return GroupResult{}, fmt.Errorf("no marker group discovered")
	}
	coordinates := req.MarkerCoordinatesField
	if coordinates == nil {
		coordinates = req.DataCoordinates
	}
	outGroup, err := em.out.FindOrCreateGroup(gr.Name)
	if err != nil {
		return GroupResult{}, err
	}

	var residuals []float64
	datapoints := req.Data.Datapoints()
	for _, dpid := range req.MarkerGroup.DatapointIDs() {
		dp := datapoints.Find(dpid)
		name, ok := dp.String(req.MarkerNameField)
		if !ok || name != gr.Name {
			continue
		}
		loc, fresh, err := em.embedPoint(gr.Name, scaffold.DomainDatapoints, dpid, coordinates)
		if err != nil {
			return GroupResult{}, err
		}
		if fresh {
			residuals = append(residuals, loc.Residual)
		}
		if err := em.writeDatapoint(dpid, coordinates, loc, name); err != nil {
			return GroupResult{}, err
		}
		if err := outGroup.AddDatapoint(dpid); err != nil {
			return GroupResult{}, err
		}
	}

	return groupResult(gr, outGroup.DatapointCount(), residuals), nil
}

// embedPoint resolves one point to a stored location, consulting the
// coordinate store first so previously assigned material coordinates are
// reused verbatim. fresh reports whether the location was derived (and
// cached) during this call rather than served from the point cache.
func (em *embedder) embedPoint(group string, domain scaffold.Domain, id int, coordinates *scaffold.Field) (*StoredLocation, bool, error) {
	key := pointKey{domain: domain, id: id}
	if loc, ok := em.located[key]; ok {
		return loc, false, nil
	}

	if em.req.Store != nil {
		loc, ok, err := em.req.Store.LookupCoordinate(em.req.FittedFingerprint, group, domain, id)
		if err != nil {
			return nil, false, fmt.Errorf("coordinate store lookup: %w", err)
		}
		if ok {
			em.located[key] = loc
			return loc, true, nil
		}
	}

	point := em.req.Data.Nodeset(domain).Find(id)
	if point == nil {
		return nil, false, fmt.Errorf("no %s %d in data region", domain, id)
	}
	values, ok := point.Values(coordinates)
	if !ok {
		return nil, false, fmt.Errorf("field %q not defined at %s %d", coordinates.Name(), domain, id)
	}

	found, err := em.locator.FindLocation(values)
	if err != nil {
		return nil, false, err
	}
	element := em.locator.Mesh().Find(found.ElementID)
	material, err := em.req.MaterialCoordinates.EvaluateElement(element, found.Xi)
	if err != nil {
		return nil, false, err
	}
	loc := &StoredLocation{
		ElementID: found.ElementID,
		Xi:        found.Xi,
		Material:  material,
		Residual:  found.Residual,
	}

	if em.req.Store != nil {
		if err := em.req.Store.SaveCoordinate(em.req.FittedFingerprint, group, domain, id, loc); err != nil {
			return nil, false, fmt.Errorf("coordinate store save: %w", err)
		}
	}
	em.located[key] = loc
	return loc, true, nil
}

// writeNode copies a data node into the output region with its data
// coordinates and assigned material coordinates.
func (em *embedder) writeNode(domain scaffold.Domain, id int, coordinates *scaffold.Field, loc *StoredLocation) error {
	source := em.req.Data.Nodeset(domain).Find(id)
	values, _ := source.Values(coordinates)
	node := em.out.Nodes().FindOrCreate(id)
	if err := node.SetValues(em.outDataCoordinates, values); err != nil {
		return err
	}
	return node.SetValues(em.outMaterialCoordinates, loc.Material)
}

// writeDatapoint copies a datapoint into the output region, carrying the
// marker name when present.
func (em *embedder) writeDatapoint(id int, coordinates *scaffold.Field, loc *StoredLocation, markerName string) error {
	source := em.req.Data.Datapoints().Find(id)
	values, _ := source.Values(coordinates)
	dp := em.out.Datapoints().FindOrCreate(id)
	if err := dp.SetValues(em.outDataCoordinates, values); err != nil {
		return err
	}
	if err := dp.SetValues(em.outMaterialCoordinates, loc.Material); err != nil {
		return err
	}
	if markerName != "" && em.outMarkerName != nil {
		return dp.SetString(em.outMarkerName, markerName)
	}
	return nil
}

// copyElement recreates a data element in the output region.
func (em *embedder) copyElement(e *scaffold.Element) error {
	mesh := em.out.Mesh(e.Dimension())
	if mesh.Find(e.ID()) != nil {
		return nil
	}
	_, err := mesh.Create(e.ID(), e.NodeIDs())
	return err
}

func groupResult(gr GroupRequest, size int, residuals []float64) GroupResult {
	result := GroupResult{
		Name:      gr.Name,
		Dimension: gr.Dimension,
		Term:      gr.Term,
		Size:      size,
		Residuals: residuals,
	}
	if len(residuals) == 0 {
		return result
	}
	sumSquares := 0.0
	for _, r := range residuals {
		sumSquares += r * r
		if r > result.MaxError {
			result.MaxError = r
		}
	}
	result.ResidualRMS = math.Sqrt(sumSquares / float64(len(residuals)))
	result.MeanError = stat.Mean(residuals, nil)
	return result
}

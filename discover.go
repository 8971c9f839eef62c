package dataembedder

import (
	"fmt"
	"strings"

	"github.com/scaffoldtools/dataembedder/internal/diag"
	"github.com/scaffoldtools/dataembedder/scaffold"
)

// findCoordinatesField finds a coordinate-type finite element field with at
// most 3 components. With an empty fieldName the first such field wins.
// When namePrefix is supplied, field names missing the prefix are compared
// with it prepended, and the chosen field is renamed to carry the prefix;
// this is how the fitted geometry's "coordinates" becomes
// "fitted coordinates" without colliding with the scaffold's own field.
// Falls back to the first coordinate field when the requested name is
// absent.
func findCoordinatesField(region *scaffold.Region, fieldName, namePrefix string) *scaffold.Field {
	var coordinatesField *scaffold.Field
	for _, field := range region.Fields() {
		if !field.IsFiniteElement() || field.ComponentCount() > 3 || !field.IsCoordinate() {
			continue
		}
		if fieldName == "" {
			coordinatesField = field
			break
		}
		thisName := field.Name()
		if namePrefix != "" && !strings.HasPrefix(thisName, namePrefix) {
			thisName = namePrefix + " " + thisName
		}
		if thisName == fieldName {
			coordinatesField = field
			break
		}
		if coordinatesField == nil {
			coordinatesField = field
		}
	}

	chosenName := ""
	if coordinatesField != nil {
		chosenName = coordinatesField.Name()
		if namePrefix != "" && !strings.HasPrefix(chosenName, namePrefix) {
			newName := namePrefix + " " + chosenName
			if err := region.RenameField(coordinatesField, newName); err != nil {
				diag.Errorf("could not rename coordinates field %q: %v", chosenName, err)
			} else {
				chosenName = newName
			}
		}
	}
	if fieldName != "" && chosenName != fieldName {
		diag.Errorf("did not find coordinates field of name %q", fieldName)
	}
	return coordinatesField
}

// guessMaterialCoordinatesFieldName finds the likely material coordinates
// field name: the largest group of the highest-dimension mesh plus
// " coordinates" (the material coordinate naming convention), provided a
// field of that name exists.
func guessMaterialCoordinatesFieldName(region *scaffold.Region) string {
	mesh := region.HighestDimensionMesh()
	if mesh == nil {
		return ""
	}
	largestGroupName := ""
	largestSize := 0
	for _, group := range region.Groups() {
		if size := group.ElementCount(mesh.Dimension()); size > largestSize {
			largestGroupName = group.Name()
			largestSize = size
		}
	}
	if largestGroupName == "" {
		return ""
	}
	fieldName := largestGroupName + materialFieldSuffix
	if region.FindField(fieldName) == nil {
		return ""
	}
	return fieldName
}

// discoverDataMarkerGroup looks for the marker group in the data region by
// its configured name, defaulting to "marker".
func (d *DataEmbedder) discoverDataMarkerGroup() {
	name := d.markerGroupName
	if name == "" {
		name = defaultMarkerGroupName
	}
	// SetDataMarkerGroup tolerates nil when no such group exists.
	_ = d.SetDataMarkerGroup(d.data.FindGroup(name))
}

// DataMarkerGroup returns the marker group discovered in the data region,
// or nil.
func (d *DataEmbedder) DataMarkerGroup() *scaffold.Group { return d.markerGroup }

// SetDataMarkerGroup sets the marker group from which point data is
// extracted via its name field. The name field and coordinates field are
// discovered from the fields defined at the group's datapoints: both
// fiducial markers and embedded point data live in this group, with a
// stored string field giving each point's group name.
func (d *DataEmbedder) SetDataMarkerGroup(markerGroup *scaffold.Group) error {
	d.markerGroup = nil
	d.markerGroupName = ""
	d.markerCoordinates = nil
	d.markerNameField = nil
	if markerGroup == nil {
		return nil
	}
	if markerGroup.Region() != d.data {
		return fmt.Errorf("marker group %q is not in the data region", markerGroup.Name())
	}

	d.markerGroup = markerGroup
	d.markerGroupName = markerGroup.Name()

	datapoints := d.data.Datapoints()
	if ids := markerGroup.DatapointIDs(); len(ids) > 0 {
		first := datapoints.Find(ids[0])
		// The marker coordinates are likely the same field as for other
		// data.
		if d.dataCoordinates != nil && first.HasField(d.dataCoordinates) {
			d.markerCoordinates = d.dataCoordinates
		}
		for _, field := range d.data.Fields() {
			if !first.HasField(field) {
				continue
			}
			if d.markerCoordinates == nil && field.IsFiniteElement() {
				d.markerCoordinates = field
			} else if d.markerNameField == nil && field.IsStoredString() {
				d.markerNameField = field
			}
		}
	}
	if d.markerCoordinates == nil || d.markerNameField == nil {
		diag.Infof("data marker group %q is empty or has no coordinates or name field", d.markerGroupName)
	}
	return nil
}

// buildGroupData scans the data region and rebuilds the annotated group
// table: marker-name-derived point groups first, then defined data groups.
// Embed flags carried in from settings or a previous build survive the
// rebuild.
func (d *DataEmbedder) buildGroupData() {
	newGroups := make(map[string]*groupInfo)
	var newOrder []string

	// Marker points sharing a marker name form a group each.
	if d.markerGroup != nil && d.markerNameField != nil {
		datapoints := d.data.Datapoints()
		for _, dpid := range d.markerGroup.DatapointIDs() {
			name, ok := datapoints.Find(dpid).String(d.markerNameField)
			if !ok || name == "" {
				continue
			}
			gi := newGroups[name]
			if gi == nil {
				groupIsInRoot := d.root.FindGroup(name) != nil
				gi = &groupInfo{
					embed:      !(groupIsInRoot || name == d.markerGroupName),
					fromMarker: true,
				}
				newGroups[name] = gi
				newOrder = append(newOrder, name)
			}
			gi.size++
		}
	}

	maxDimension := 0
	if mesh := d.data.HighestDimensionMesh(); mesh != nil {
		maxDimension = mesh.Dimension()
	}
	for _, group := range d.data.Groups() {
		name := group.Name()
		// Groups also present in the root region are likely fitting
		// contours or fiducial markers, not data to embed.
		groupIsInRoot := d.root.FindGroup(name) != nil
		size := 0
		dimension := 0
		for dim := maxDimension; dim >= 1; dim-- {
			if count := group.ElementCount(dim); count > 0 {
				size = count
				dimension = dim
				break
			}
		}
		if size == 0 {
			size = group.DatapointCount()
		}
		embed := !(groupIsInRoot || size == 0 || group == d.markerGroup)

		if gi := newGroups[name]; gi != nil {
			// A defined data group outranks a marker-derived one of
			// the same name.
			gi.embed = embed
			gi.dimension = dimension
			gi.size = size
			gi.fromMarker = false
			continue
		}
		newGroups[name] = &groupInfo{embed: embed, dimension: dimension, size: size}
		newOrder = append(newOrder, name)
	}

	// Transfer embed flags and terms chosen before the rebuild.
	for name, gi := range newGroups {
		if old, ok := d.groups[name]; ok {
			gi.embed = old.embed
			if old.term != "" {
				gi.term = old.term
			}
		}
	}
	d.groups = newGroups
	d.groupOrder = newOrder
}

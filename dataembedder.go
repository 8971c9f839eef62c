// Package dataembedder assigns permanent material coordinates to data
// points and sub-models embedded in a geometric scaffold, using a geometric
// field fitted over that scaffold. Callers load a scaffold document, a
// fitted geometry document and a data document, choose which annotated
// groups to embed, and generate output joining the original data with the
// computed material coordinates.
package dataembedder

import (
	"fmt"

	"github.com/scaffoldtools/dataembedder/config"
	"github.com/scaffoldtools/dataembedder/embedder"
	"github.com/scaffoldtools/dataembedder/internal/diag"
	"github.com/scaffoldtools/dataembedder/locate"
	"github.com/scaffoldtools/dataembedder/modelio"
	"github.com/scaffoldtools/dataembedder/report"
	"github.com/scaffoldtools/dataembedder/scaffold"
	"github.com/scaffoldtools/dataembedder/store"
)

const (
	defaultMarkerGroupName = "marker"
	fittedFieldPrefix      = "fitted"
	// materialFieldSuffix is the material coordinate field name
	// convention: "<group name> coordinates".
	materialFieldSuffix = " coordinates"
)

// groupInfo tracks one annotated group discovered in the data.
type groupInfo struct {
	embed      bool
	dimension  int
	size       int
	term       string
	fromMarker bool
}

// DataEmbedder finds material coordinates for annotated groups of data
// points and sub-models against a scaffold with fitted geometry.
//
// Call order: New, optionally DecodeSettingsJSON, then Load; adjust group
// embed flags; then GenerateOutput. Load may be called again to reset if
// the inputs change.
type DataEmbedder struct {
	scaffoldPath string
	fittedPath   string
	dataPath     string

	root   *scaffold.Region
	data   *scaffold.Region
	output *scaffold.Region

	dataCoordinates         *scaffold.Field
	dataCoordinatesName     string
	fittedCoordinates       *scaffold.Field
	fittedCoordinatesName   string
	materialCoordinates     *scaffold.Field
	materialCoordinatesName string

	markerGroup       *scaffold.Group
	markerGroupName   string
	markerCoordinates *scaffold.Field
	markerNameField   *scaffold.Field

	diagnosticLevel int
	groups          map[string]*groupInfo
	groupOrder      []string

	tuning          *config.Tuning
	coordinateStore embedder.CoordinateStore

	scaffoldSHA string
	fittedSHA   string
	dataSHA     string

	results []embedder.GroupResult
}

// New creates a DataEmbedder over the three model documents:
// scaffoldPath supplies the full scaffold to embed in, fittedPath the
// fitted geometric state the data was measured against, and dataPath the
// data points and sub-models to embed.
func New(scaffoldPath, fittedPath, dataPath string) *DataEmbedder {
	return &DataEmbedder{
		scaffoldPath: scaffoldPath,
		fittedPath:   fittedPath,
		dataPath:     dataPath,
		tuning:       config.EmptyTuning(),
		groups:       make(map[string]*groupInfo),
	}
}

// SetTuning replaces the mesh location search tuning. Passing nil restores
// the defaults. Takes effect on the next GenerateOutput.
func (d *DataEmbedder) SetTuning(t *config.Tuning) {
	if t == nil {
		t = config.EmptyTuning()
	}
	d.tuning = t
}

// SetCoordinateStore attaches a store of assigned material coordinates.
// With a store attached, coordinates assigned by an earlier run against the
// same fitted geometry are reused verbatim, keeping them permanent.
func (d *DataEmbedder) SetCoordinateStore(cs embedder.CoordinateStore) {
	d.coordinateStore = cs
}

func (d *DataEmbedder) clearFields() {
	d.dataCoordinates = nil
	d.fittedCoordinates = nil
	d.materialCoordinates = nil
	d.markerGroup = nil
	d.markerCoordinates = nil
	d.markerNameField = nil
	d.output = nil
	d.results = nil
}

// Load reads the model documents and discovers fields and groups. The
// fitted geometry and scaffold documents merge into the root region; the
// data document loads into a child region. Can be called again to reset if
// the inputs change.
func (d *DataEmbedder) Load() error {
	d.clearFields()
	d.root = scaffold.NewRegion("root")
	var err error
	d.data, err = d.root.CreateChild("data")
	if err != nil {
		return err
	}

	fittedDoc, err := modelio.ReadFile(d.fittedPath)
	if err != nil {
		return fmt.Errorf("load fitted geometry file %s: %w", d.fittedPath, err)
	}
	if err := fittedDoc.Apply(d.root); err != nil {
		return fmt.Errorf("load fitted geometry file %s: %w", d.fittedPath, err)
	}
	d.fittedCoordinates = findCoordinatesField(d.root, d.fittedCoordinatesName, fittedFieldPrefix)
	if d.fittedCoordinates != nil {
		d.fittedCoordinatesName = d.fittedCoordinates.Name()
	}

	scaffoldDoc, err := modelio.ReadFile(d.scaffoldPath)
	if err != nil {
		return fmt.Errorf("load scaffold file %s: %w", d.scaffoldPath, err)
	}
	if err := scaffoldDoc.Apply(d.root); err != nil {
		return fmt.Errorf("load scaffold file %s: %w", d.scaffoldPath, err)
	}
	if d.materialCoordinatesName == "" {
		d.materialCoordinatesName = guessMaterialCoordinatesFieldName(d.root)
	}
	d.materialCoordinates = findCoordinatesField(d.root, d.materialCoordinatesName, "")
	if d.materialCoordinates != nil {
		d.materialCoordinatesName = d.materialCoordinates.Name()
	}

	dataDoc, err := modelio.ReadFile(d.dataPath)
	if err != nil {
		return fmt.Errorf("load data file %s: %w", d.dataPath, err)
	}
	if err := dataDoc.Apply(d.data); err != nil {
		return fmt.Errorf("load data file %s: %w", d.dataPath, err)
	}
	d.dataCoordinates = findCoordinatesField(d.data, d.dataCoordinatesName, "")
	if d.dataCoordinates != nil {
		d.dataCoordinatesName = d.dataCoordinates.Name()
	}

	d.discoverDataMarkerGroup()
	d.buildGroupData()

	if d.scaffoldSHA, err = store.FileSHA256(d.scaffoldPath); err != nil {
		return err
	}
	if d.fittedSHA, err = store.FileSHA256(d.fittedPath); err != nil {
		return err
	}
	if d.dataSHA, err = store.FileSHA256(d.dataPath); err != nil {
		return err
	}
	return nil
}

// RootRegion returns the root region where the host scaffold is loaded.
func (d *DataEmbedder) RootRegion() *scaffold.Region { return d.root }

// DataRegion returns the child region where the data to embed is loaded.
func (d *DataEmbedder) DataRegion() *scaffold.Region { return d.data }

// OutputRegion returns the region where the embedded output was created,
// or nil before GenerateOutput has run.
func (d *DataEmbedder) OutputRegion() *scaffold.Region { return d.output }

// DataCoordinatesField returns the field on the data region giving the
// coordinates to find embedded locations from.
func (d *DataEmbedder) DataCoordinatesField() *scaffold.Field { return d.dataCoordinates }

// SetDataCoordinatesField sets the field on the data region giving the
// coordinates to find embedded locations from.
func (d *DataEmbedder) SetDataCoordinatesField(field *scaffold.Field) error {
	if field == d.dataCoordinates {
		return nil
	}
	if err := validateCoordinatesField(field, d.data); err != nil {
		return fmt.Errorf("data coordinates: %w", err)
	}
	d.dataCoordinates = field
	d.dataCoordinatesName = field.Name()
	return nil
}

// FittedCoordinatesField returns the field on the root region giving the
// fitted coordinates the data coordinates are relative to.
func (d *DataEmbedder) FittedCoordinatesField() *scaffold.Field { return d.fittedCoordinates }

// SetFittedCoordinatesField sets the field on the root region giving the
// fitted coordinates the data coordinates are relative to.
func (d *DataEmbedder) SetFittedCoordinatesField(field *scaffold.Field) error {
	if field == d.fittedCoordinates {
		return nil
	}
	if err := validateCoordinatesField(field, d.root); err != nil {
		return fmt.Errorf("fitted coordinates: %w", err)
	}
	d.fittedCoordinates = field
	d.fittedCoordinatesName = field.Name()
	return nil
}

// MaterialCoordinatesField returns the field on the root region giving the
// material coordinates embedded locations need to supply.
func (d *DataEmbedder) MaterialCoordinatesField() *scaffold.Field { return d.materialCoordinates }

// SetMaterialCoordinatesField sets the field on the root region giving the
// material coordinates embedded locations need to supply.
func (d *DataEmbedder) SetMaterialCoordinatesField(field *scaffold.Field) error {
	if field == d.materialCoordinates {
		return nil
	}
	if err := validateCoordinatesField(field, d.root); err != nil {
		return fmt.Errorf("material coordinates: %w", err)
	}
	d.materialCoordinates = field
	d.materialCoordinatesName = field.Name()
	return nil
}

// DiagnosticLevel returns the current diagnostic level.
func (d *DataEmbedder) DiagnosticLevel() int { return d.diagnosticLevel }

// SetDiagnosticLevel sets message verbosity: 0 = no diagnostic messages,
// 1+ = information and warning messages.
func (d *DataEmbedder) SetDiagnosticLevel(level int) error {
	if level < 0 {
		return fmt.Errorf("diagnostic level must be non-negative, got %d", level)
	}
	d.diagnosticLevel = level
	diag.SetLevel(level)
	return nil
}

// GroupNames returns the names of the annotated groups found in the data,
// marker-derived groups first.
func (d *DataEmbedder) GroupNames() []string {
	out := make([]string, len(d.groupOrder))
	copy(out, d.groupOrder)
	return out
}

// GroupExists reports whether a group of the given name exists in the data.
func (d *DataEmbedder) GroupExists(groupName string) bool {
	_, ok := d.groups[groupName]
	return ok
}

// GroupIsEmbed reports whether data will be embedded for the group. Unknown
// groups report false.
func (d *DataEmbedder) GroupIsEmbed(groupName string) bool {
	gi, ok := d.groups[groupName]
	if !ok {
		diag.Errorf("GroupIsEmbed: no group of name %q", groupName)
		return false
	}
	return gi.embed
}

// GroupSetEmbed sets whether to embed data for the group.
func (d *DataEmbedder) GroupSetEmbed(groupName string, embed bool) error {
	gi, ok := d.groups[groupName]
	if !ok {
		return fmt.Errorf("no group of name %q", groupName)
	}
	gi.embed = embed
	return nil
}

// GroupDimension returns the dimension of the group's data: 1-3 for
// sub-models with elements, 0 for point groups.
func (d *DataEmbedder) GroupDimension(groupName string) int {
	if gi, ok := d.groups[groupName]; ok {
		return gi.dimension
	}
	return 0
}

// GroupSize returns the number of elements (dimension 1-3) or points
// (dimension 0) in the group.
func (d *DataEmbedder) GroupSize(groupName string) int {
	if gi, ok := d.groups[groupName]; ok {
		return gi.size
	}
	return 0
}

// GroupTerm returns the group's anatomical term id, if one has been set.
func (d *DataEmbedder) GroupTerm(groupName string) string {
	if gi, ok := d.groups[groupName]; ok {
		return gi.term
	}
	return ""
}

// GroupSetTerm records an anatomical term id for the group, carried through
// the settings serialisation.
func (d *DataEmbedder) GroupSetTerm(groupName, term string) error {
	gi, ok := d.groups[groupName]
	if !ok {
		return fmt.Errorf("no group of name %q", groupName)
	}
	gi.term = term
	return nil
}

// GenerateOutput embeds data from the groups with their embed flag set and
// returns the output region holding the embedded data.
func (d *DataEmbedder) GenerateOutput() (*scaffold.Region, error) {
	if d.root == nil {
		return nil, fmt.Errorf("generate output: Load must be called first")
	}
	if d.fittedCoordinates == nil || d.materialCoordinates == nil || d.dataCoordinates == nil {
		return nil, fmt.Errorf("generate output: fitted, material and data coordinate fields must be set")
	}

	var groups []embedder.GroupRequest
	for _, name := range d.groupOrder {
		gi := d.groups[name]
		if !gi.embed {
			continue
		}
		groups = append(groups, embedder.GroupRequest{
			Name:       name,
			Dimension:  gi.dimension,
			FromMarker: gi.fromMarker,
			Term:       gi.term,
		})
	}

	mode := locate.ModeNearest
	if d.tuning.GetExactLocation() {
		mode = locate.ModeExact
	}
	req := &embedder.Request{
		Host:                   d.root,
		Data:                   d.data,
		FittedCoordinates:      d.fittedCoordinates,
		MaterialCoordinates:    d.materialCoordinates,
		DataCoordinates:        d.dataCoordinates,
		Groups:                 groups,
		MarkerGroup:            d.markerGroup,
		MarkerNameField:        d.markerNameField,
		MarkerCoordinatesField: d.markerCoordinates,
		Mode:                   mode,
		Tuning: locate.Tuning{
			Tolerance:      d.tuning.GetFindTolerance(),
			MaxIterations:  d.tuning.GetMaxIterations(),
			SeedCandidates: d.tuning.GetSeedCandidates(),
			Damping:        d.tuning.GetDampingFactor(),
		},
		Store:             d.coordinateStore,
		FittedFingerprint: d.fittedSHA,
	}

	out, results, err := embedder.GenerateOutput(req)
	if err != nil {
		return nil, err
	}
	d.output = out
	d.results = results
	for _, r := range results {
		diag.Infof("embedded group %q: %d points, residual RMS %.3g", r.Name, r.Size, r.ResidualRMS)
	}
	return out, nil
}

// GroupResults returns the per-group results of the last GenerateOutput.
func (d *DataEmbedder) GroupResults() []embedder.GroupResult {
	out := make([]embedder.GroupResult, len(d.results))
	copy(out, d.results)
	return out
}

// InputFingerprints returns the SHA-256 fingerprints of the scaffold,
// fitted geometry and data documents read by the last Load.
func (d *DataEmbedder) InputFingerprints() (scaffoldSHA, fittedSHA, dataSHA string) {
	return d.scaffoldSHA, d.fittedSHA, d.dataSHA
}

// WriteOutput writes the embedded output region as a model document. Must
// be called after GenerateOutput.
func (d *DataEmbedder) WriteOutput(path string) error {
	if d.output == nil {
		return fmt.Errorf("write output: GenerateOutput must be called first")
	}
	return modelio.WriteFile(path, modelio.FromRegion(d.output))
}

// WriteReport writes an HTML report of the last GenerateOutput's per-group
// embedding residuals.
func (d *DataEmbedder) WriteReport(path string) error {
	if len(d.results) == 0 {
		return fmt.Errorf("write report: GenerateOutput must be called first")
	}
	return report.WriteHTML(path, d.results)
}

// validateCoordinatesField checks a coordinates field candidate belongs to
// the expected region, interpolates real components, and has at most 3 of
// them.
func validateCoordinatesField(field *scaffold.Field, region *scaffold.Region) error {
	if field == nil {
		return fmt.Errorf("field is nil")
	}
	if field.Region() != region {
		return fmt.Errorf("field %q is defined on another region", field.Name())
	}
	if !field.IsFiniteElement() {
		return fmt.Errorf("field %q is not a finite element field", field.Name())
	}
	if field.ComponentCount() > 3 {
		return fmt.Errorf("field %q has more than 3 components", field.Name())
	}
	return nil
}

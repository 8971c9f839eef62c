package dataembedder

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaffoldtools/dataembedder/embedder"
	"github.com/scaffoldtools/dataembedder/modelio"
	"github.com/scaffoldtools/dataembedder/scaffold"
	"github.com/scaffoldtools/dataembedder/store"
)

const (
	scaffoldFile = "testdata/body_two_cubes_scaffold.json"
	fittedFile   = "testdata/body_two_cubes_fitted0.json"
	dataFile     = "testdata/data_cube_square_line.json"
)

func newLoadedEmbedder(t *testing.T) *DataEmbedder {
	t.Helper()
	d := New(scaffoldFile, fittedFile, dataFile)
	require.NoError(t, d.Load())
	return d
}

func assertVec(t *testing.T, want, got []float64, tol float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], tol)
	}
}

func TestLoadDiscoversFieldsAndGroups(t *testing.T) {
	d := newLoadedEmbedder(t)

	require.NotNil(t, d.DataCoordinatesField())
	assert.Equal(t, "coordinates", d.DataCoordinatesField().Name())
	require.NotNil(t, d.FittedCoordinatesField())
	assert.Equal(t, "fitted coordinates", d.FittedCoordinatesField().Name())
	require.NotNil(t, d.MaterialCoordinatesField())
	assert.Equal(t, "body coordinates", d.MaterialCoordinatesField().Name())
	require.NotNil(t, d.DataMarkerGroup())
	assert.Equal(t, "marker", d.DataMarkerGroup().Name())

	// The scaffold's own geometric coordinates survive the fitted field
	// rename.
	assert.NotNil(t, d.RootRegion().FindField("coordinates"))

	// Marker-name-derived groups come first, then defined data groups.
	assert.Equal(t, []string{"ICN", "tip 2", "cube", "square", "line", "bottom", "marker"},
		d.GroupNames())

	for name, embed := range map[string]bool{
		"cube":   true,
		"square": true,
		"line":   true,
		"ICN":    true,
		"bottom": false,
		"marker": false,
		"tip 2":  false,
	} {
		assert.Equal(t, embed, d.GroupIsEmbed(name), "group %q embed", name)
	}
	assert.False(t, d.GroupExists("tip 1"))
	assert.True(t, d.GroupExists("tip 2"))

	assert.Equal(t, 3, d.GroupDimension("cube"))
	assert.Equal(t, 1, d.GroupSize("cube"))
	assert.Equal(t, 2, d.GroupDimension("square"))
	assert.Equal(t, 1, d.GroupDimension("line"))
	assert.Equal(t, 0, d.GroupDimension("ICN"))
	assert.Equal(t, 3, d.GroupSize("ICN"))
	assert.Equal(t, 0, d.GroupDimension("marker"))
	assert.Equal(t, 4, d.GroupSize("marker"))
	assert.Equal(t, 1, d.GroupSize("tip 2"))

	scaffoldSHA, fittedSHA, dataSHA := d.InputFingerprints()
	assert.NotEmpty(t, scaffoldSHA)
	assert.NotEmpty(t, fittedSHA)
	assert.NotEmpty(t, dataSHA)
	assert.NotEqual(t, fittedSHA, scaffoldSHA)
}

func TestLoadMissingFile(t *testing.T) {
	d := New(scaffoldFile, fittedFile, "testdata/no_such_file.json")
	assert.Error(t, d.Load())
}

func TestGroupFlags(t *testing.T) {
	d := newLoadedEmbedder(t)

	require.NoError(t, d.GroupSetEmbed("bottom", true))
	assert.True(t, d.GroupIsEmbed("bottom"))
	require.NoError(t, d.GroupSetEmbed("bottom", false))

	assert.Error(t, d.GroupSetEmbed("tip 1", true))
	assert.False(t, d.GroupIsEmbed("tip 1"))

	require.NoError(t, d.GroupSetTerm("ICN", "UBERON:0009050"))
	assert.Equal(t, "UBERON:0009050", d.GroupTerm("ICN"))
	assert.Error(t, d.GroupSetTerm("tip 1", "x"))

	assert.Error(t, d.SetDiagnosticLevel(-1))
	require.NoError(t, d.SetDiagnosticLevel(1))
	assert.Equal(t, 1, d.DiagnosticLevel())
	require.NoError(t, d.SetDiagnosticLevel(0))
}

func TestSetCoordinatesFieldValidation(t *testing.T) {
	d := newLoadedEmbedder(t)

	// A field from the wrong region is rejected.
	err := d.SetFittedCoordinatesField(d.DataCoordinatesField())
	assert.Error(t, err)
	err = d.SetDataCoordinatesField(d.MaterialCoordinatesField())
	assert.Error(t, err)

	// Swapping material to the geometric coordinates is allowed: both live
	// on the root region.
	geometric := d.RootRegion().FindField("coordinates")
	require.NotNil(t, geometric)
	require.NoError(t, d.SetMaterialCoordinatesField(geometric))
	assert.Same(t, geometric, d.MaterialCoordinatesField())
}

func TestGenerateOutputEmbedsGroups(t *testing.T) {
	d := newLoadedEmbedder(t)
	out, err := d.GenerateOutput()
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Same(t, out, d.OutputRegion())
	assert.Same(t, out, d.RootRegion().FindChild("output"))

	material := out.FindField("body coordinates")
	require.NotNil(t, material)
	coords := out.FindField("coordinates")
	require.NotNil(t, coords)
	markerName := out.FindField("marker_name")
	require.NotNil(t, markerName)

	// Material coordinates are fitted coordinates with x unstretched.
	wantNodes := map[int][]float64{
		1:  {0.2, 0.2, 0.2},
		8:  {0.6, 0.8, 0.8},
		9:  {1.2, 0.25, 0.5},
		12: {1.6, 0.75, 0.5},
		13: {0.5, 0.5, 0.1},
		14: {1.5, 0.5, 0.9},
	}
	for id, want := range wantNodes {
		node := out.Nodes().Find(id)
		require.NotNil(t, node, "output node %d", id)
		got, ok := node.Values(material)
		require.True(t, ok, "material at node %d", id)
		assertVec(t, want, got, 1e-6)
	}

	// The sub-model elements are carried over.
	require.NotNil(t, out.Mesh(3).Find(1))
	require.NotNil(t, out.Mesh(2).Find(1))
	require.NotNil(t, out.Mesh(1).Find(1))
	// The un-embedded bottom group's element is not.
	assert.Nil(t, out.Mesh(2).Find(2))
	assert.Nil(t, out.FindGroup("bottom"))
	assert.Nil(t, out.FindGroup("marker"))

	// Marker points named ICN become embedded datapoints; "tip 2" is
	// excluded by its embed default.
	wantMarkers := map[int][]float64{
		1: {0.3, 0.5, 0.5},
		2: {0.7, 0.5, 0.5},
		3: {1.4, 0.3, 0.7},
	}
	icn := out.FindGroup("ICN")
	require.NotNil(t, icn)
	assert.Equal(t, []int{1, 2, 3}, icn.DatapointIDs())
	for id, want := range wantMarkers {
		dp := out.Datapoints().Find(id)
		require.NotNil(t, dp, "output datapoint %d", id)
		got, ok := dp.Values(material)
		require.True(t, ok)
		assertVec(t, want, got, 1e-6)
		name, ok := dp.String(markerName)
		require.True(t, ok)
		assert.Equal(t, "ICN", name)
	}
	assert.Nil(t, out.Datapoints().Find(4), "tip 2 marker must not be embedded")

	results := d.GroupResults()
	require.Len(t, results, 4)
	byName := make(map[string]embedder.GroupResult, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.Equal(t, 8, byName["cube"].Size)
	assert.Equal(t, 4, byName["square"].Size)
	assert.Equal(t, 2, byName["line"].Size)
	assert.Equal(t, 3, byName["ICN"].Size)
	for name, r := range byName {
		assert.Less(t, r.ResidualRMS, 1e-6, "group %q residual RMS", name)
	}
}

func TestGenerateOutputRequiresLoad(t *testing.T) {
	d := New(scaffoldFile, fittedFile, dataFile)
	_, err := d.GenerateOutput()
	assert.Error(t, err)
}

func TestSettingsRoundTrip(t *testing.T) {
	d := newLoadedEmbedder(t)
	require.NoError(t, d.GroupSetEmbed("cube", false))
	require.NoError(t, d.GroupSetEmbed("bottom", true))
	require.NoError(t, d.GroupSetTerm("ICN", "UBERON:0009050"))
	require.NoError(t, d.SetDiagnosticLevel(1))
	defer d.SetDiagnosticLevel(0)

	data, err := d.EncodeSettingsJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"dataMarkerGroup": "marker"`)
	assert.Contains(t, string(data), `"materialCoordinatesField": "body coordinates"`)

	restored := New(scaffoldFile, fittedFile, dataFile)
	require.NoError(t, restored.DecodeSettingsJSON(data))
	require.NoError(t, restored.Load())
	defer restored.SetDiagnosticLevel(0)

	assert.Equal(t, "coordinates", restored.DataCoordinatesField().Name())
	assert.Equal(t, "fitted coordinates", restored.FittedCoordinatesField().Name())
	assert.Equal(t, "body coordinates", restored.MaterialCoordinatesField().Name())
	assert.Equal(t, 1, restored.DiagnosticLevel())

	// Flags chosen before the save survive the group rebuild on Load.
	assert.False(t, restored.GroupIsEmbed("cube"))
	assert.True(t, restored.GroupIsEmbed("bottom"))
	assert.True(t, restored.GroupIsEmbed("line"))
	assert.Equal(t, "UBERON:0009050", restored.GroupTerm("ICN"))
}

func TestDecodeSettingsJSONRejectsBadInput(t *testing.T) {
	d := New(scaffoldFile, fittedFile, dataFile)
	assert.Error(t, d.DecodeSettingsJSON([]byte("not json")))
	assert.Error(t, d.DecodeSettingsJSON([]byte(`{"diagnosticLevel": -1}`)))
}

func TestCoordinateStoreKeepsAssignmentsPermanent(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "embed.db"))
	require.NoError(t, err)
	defer s.Close()

	d := newLoadedEmbedder(t)
	d.SetCoordinateStore(s)
	_, fittedSHA, _ := d.InputFingerprints()

	// Pin cube node 1 to a deliberately offset material coordinate before
	// the first run: the store assignment must win over the derivation.
	pinned := &embedder.StoredLocation{
		ElementID: 1,
		Xi:        []float64{0.25, 0.25, 0.25},
		Material:  []float64{0.25, 0.25, 0.25},
		Residual:  0.02,
	}
	require.NoError(t, s.SaveCoordinate(fittedSHA, "cube", scaffold.DomainNodes, 1, pinned))

	out, err := d.GenerateOutput()
	require.NoError(t, err)
	material := out.FindField("body coordinates")
	got, ok := out.Nodes().Find(1).Values(material)
	require.True(t, ok)
	assertVec(t, pinned.Material, got, 0)

	// Derived assignments from this run were persisted.
	stored, ok, err := s.LookupCoordinate(fittedSHA, "cube", scaffold.DomainNodes, 2)
	require.NoError(t, err)
	require.True(t, ok)
	node2, ok := out.Nodes().Find(2).Values(material)
	require.True(t, ok)
	assertVec(t, stored.Material, node2, 0)

	// A second run against the same fitted geometry reuses them verbatim.
	out, err = d.GenerateOutput()
	require.NoError(t, err)
	got, ok = out.Nodes().Find(1).Values(material)
	require.True(t, ok)
	assertVec(t, pinned.Material, got, 0)
}

func TestWriteOutputAndReport(t *testing.T) {
	d := newLoadedEmbedder(t)
	dir := t.TempDir()

	outPath := filepath.Join(dir, "embedded.json")
	reportPath := filepath.Join(dir, "report.html")
	assert.Error(t, d.WriteOutput(outPath), "before GenerateOutput")
	assert.Error(t, d.WriteReport(reportPath), "before GenerateOutput")

	_, err := d.GenerateOutput()
	require.NoError(t, err)
	require.NoError(t, d.WriteOutput(outPath))
	require.NoError(t, d.WriteReport(reportPath))

	doc, err := modelio.ReadFile(outPath)
	require.NoError(t, err)
	fieldNames := make([]string, 0, len(doc.Fields))
	for _, f := range doc.Fields {
		fieldNames = append(fieldNames, f.Name)
	}
	assert.ElementsMatch(t, []string{"coordinates", "body coordinates", "marker_name"}, fieldNames)
	assert.Len(t, doc.Datapoints, 3)
	assert.NotEmpty(t, doc.Elements)

	// The written document loads back into a region cleanly.
	region := scaffold.NewRegion("check")
	require.NoError(t, doc.Apply(region))
	assert.Equal(t, 14, region.Nodes().Size())
}

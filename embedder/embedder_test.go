package embedder

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaffoldtools/dataembedder/locate"
	"github.com/scaffoldtools/dataembedder/scaffold"
)

// testScene builds a host region with one unit cube whose fitted coordinates
// stretch x by 2, a material field matching the geometric coordinates, and a
// data region with a line sub-model, a loose datapoint and a marker group.
type testScene struct {
	host, data                   *scaffold.Region
	fitted, material, dataCoords *scaffold.Field
	markerGroup                  *scaffold.Group
	markerName                   *scaffold.Field
}

func newTestScene(t *testing.T) *testScene {
	t.Helper()
	s := &testScene{}
	s.host = scaffold.NewRegion("")

	var err error
	s.fitted, err = s.host.CreateFiniteElementField("fitted coordinates", []string{"x", "y", "z"}, true)
	require.NoError(t, err)
	s.material, err = s.host.CreateFiniteElementField("body coordinates", []string{"x", "y", "z"}, true)
	require.NoError(t, err)

	ids := make([]int, 0, 8)
	for i := 0; i < 8; i++ {
		id := i + 1
		n, err := s.host.Nodes().Create(id)
		require.NoError(t, err)
		x := float64(i & 1)
		y := float64((i >> 1) & 1)
		z := float64((i >> 2) & 1)
		require.NoError(t, n.SetValues(s.fitted, []float64{2 * x, y, z}))
		require.NoError(t, n.SetValues(s.material, []float64{x, y, z}))
		ids = append(ids, id)
	}
	_, err = s.host.Mesh(3).Create(1, ids)
	require.NoError(t, err)

	s.data, err = s.host.CreateChild("data")
	require.NoError(t, err)
	s.dataCoords, err = s.data.CreateFiniteElementField("coordinates", []string{"x", "y", "z"}, true)
	require.NoError(t, err)
	s.markerName, err = s.data.CreateStoredStringField("marker_name")
	require.NoError(t, err)

	// A 1d line sub-model in fitted space.
	for i, p := range [][]float64{{0.4, 0.5, 0.5}, {1.6, 0.5, 0.5}} {
		n, err := s.data.Nodes().Create(i + 1)
		require.NoError(t, err)
		require.NoError(t, n.SetValues(s.dataCoords, p))
	}
	_, err = s.data.Mesh(1).Create(1, []int{1, 2})
	require.NoError(t, err)
	line, err := s.data.CreateGroup("line")
	require.NoError(t, err)
	require.NoError(t, line.AddElement(1, 1))

	// A loose grouped node.
	n, err := s.data.Nodes().Create(3)
	require.NoError(t, err)
	require.NoError(t, n.SetValues(s.dataCoords, []float64{1.0, 0.25, 0.75}))
	require.NoError(t, line.AddNode(3))

	// Marker datapoints: two named "apex", one named "base".
	markers := []struct {
		coords []float64
		name   string
	}{
		{[]float64{0.2, 0.5, 0.5}, "apex"},
		{[]float64{1.8, 0.5, 0.5}, "apex"},
		{[]float64{1.0, 1.0, 0.0}, "base"},
	}
	s.markerGroup, err = s.data.CreateGroup("marker")
	require.NoError(t, err)
	for i, m := range markers {
		dp, err := s.data.Datapoints().Create(i + 1)
		require.NoError(t, err)
		require.NoError(t, dp.SetValues(s.dataCoords, m.coords))
		require.NoError(t, dp.SetString(s.markerName, m.name))
		require.NoError(t, s.markerGroup.AddDatapoint(i+1))
	}
	return s
}

func (s *testScene) request(groups ...GroupRequest) *Request {
	return &Request{
		Host:                   s.host,
		Data:                   s.data,
		FittedCoordinates:      s.fitted,
		MaterialCoordinates:    s.material,
		DataCoordinates:        s.dataCoords,
		Groups:                 groups,
		MarkerGroup:            s.markerGroup,
		MarkerNameField:        s.markerName,
		MarkerCoordinatesField: s.dataCoords,
		Mode:                   locate.ModeNearest,
		Tuning:                 locate.DefaultTuning(),
	}
}

func assertVec(t *testing.T, want, got []float64, tol float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], tol)
	}
}

func TestGenerateOutputDataGroup(t *testing.T) {
	s := newTestScene(t)
	out, results, err := GenerateOutput(s.request(GroupRequest{Name: "line", Dimension: 1}))
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "line", results[0].Name)
	assert.Equal(t, 3, results[0].Size)
	assert.Less(t, results[0].ResidualRMS, 1e-6)
	assert.Less(t, results[0].MaxError, 1e-6)

	assert.Same(t, out, s.host.FindChild(OutputRegionName))

	material := out.FindField("body coordinates")
	require.NotNil(t, material)
	coords := out.FindField("coordinates")
	require.NotNil(t, coords)

	// Material x is fitted x halved.
	wantMaterial := [][]float64{{0.2, 0.5, 0.5}, {0.8, 0.5, 0.5}, {0.5, 0.25, 0.75}}
	for i, want := range wantMaterial {
		node := out.Nodes().Find(i + 1)
		require.NotNil(t, node, "output node %d", i+1)
		got, ok := node.Values(material)
		require.True(t, ok)
		assertVec(t, want, got, 1e-6)
	}

	// The sub-model line element is carried over with its topology.
	element := out.Mesh(1).Find(1)
	require.NotNil(t, element)
	assert.Equal(t, []int{1, 2}, element.NodeIDs())

	outGroup := out.FindGroup("line")
	require.NotNil(t, outGroup)
	assert.Equal(t, []int{1, 2, 3}, outGroup.NodeIDs())
	assert.Equal(t, 1, outGroup.ElementCount(1))
}

func TestGenerateOutputMarkerGroup(t *testing.T) {
	s := newTestScene(t)
	out, results, err := GenerateOutput(s.request(
		GroupRequest{Name: "apex", FromMarker: true},
		GroupRequest{Name: "base", FromMarker: true},
	))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].Size)
	assert.Equal(t, 1, results[1].Size)

	material := out.FindField("body coordinates")
	markerName := out.FindField("marker_name")
	require.NotNil(t, material)
	require.NotNil(t, markerName)

	apex := out.FindGroup("apex")
	require.NotNil(t, apex)
	assert.Equal(t, []int{1, 2}, apex.DatapointIDs())

	dp := out.Datapoints().Find(1)
	require.NotNil(t, dp)
	got, ok := dp.Values(material)
	require.True(t, ok)
	assertVec(t, []float64{0.1, 0.5, 0.5}, got, 1e-6)
	name, ok := dp.String(markerName)
	require.True(t, ok)
	assert.Equal(t, "apex", name)

	// Datapoint 3 belongs to "base" only.
	base := out.FindGroup("base")
	require.NotNil(t, base)
	assert.Equal(t, []int{3}, base.DatapointIDs())
	assert.False(t, apex.ContainsDatapoint(3))
}

func TestGenerateOutputReplacesPreviousOutput(t *testing.T) {
	s := newTestScene(t)
	req := s.request(GroupRequest{Name: "line", Dimension: 1})
	first, _, err := GenerateOutput(req)
	require.NoError(t, err)
	second, _, err := GenerateOutput(req)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Same(t, second, s.host.FindChild(OutputRegionName))
}

func TestGenerateOutputValidation(t *testing.T) {
	s := newTestScene(t)

	req := s.request(GroupRequest{Name: "line"})
	req.MaterialCoordinates = nil
	_, _, err := GenerateOutput(req)
	assert.Error(t, err)

	req = s.request(GroupRequest{Name: "missing"})
	_, _, err = GenerateOutput(req)
	assert.ErrorContains(t, err, "missing")

	req = s.request(GroupRequest{Name: "apex", FromMarker: true})
	req.MarkerNameField = nil
	_, _, err = GenerateOutput(req)
	assert.Error(t, err)
}

// memStore is an in-memory CoordinateStore recording saves.
type memStore struct {
	entries map[string]*StoredLocation
	saves   int
}

func storeKey(fingerprint, group string, domain scaffold.Domain, id int) string {
	return fingerprint + "|" + group + "|" + string(domain) + "|" + string(rune('0'+id))
}

func (m *memStore) LookupCoordinate(fingerprint, group string, domain scaffold.Domain, id int) (*StoredLocation, bool, error) {
	loc, ok := m.entries[storeKey(fingerprint, group, domain, id)]
	return loc, ok, nil
}

func (m *memStore) SaveCoordinate(fingerprint, group string, domain scaffold.Domain, id int, loc *StoredLocation) error {
	key := storeKey(fingerprint, group, domain, id)
	if _, ok := m.entries[key]; !ok {
		m.entries[key] = loc
		m.saves++
	}
	return nil
}

func TestGenerateOutputReusesStoredCoordinates(t *testing.T) {
	s := newTestScene(t)
	store := &memStore{entries: make(map[string]*StoredLocation)}

	// Pre-assign node 1 a deliberately wrong material coordinate: the
	// stored value must win over a fresh derivation.
	pinned := &StoredLocation{
		ElementID: 1,
		Xi:        []float64{0.9, 0.9, 0.9},
		Material:  []float64{0.9, 0.9, 0.9},
		Residual:  0.01,
	}
	store.entries[storeKey("sha-a", "line", scaffold.DomainNodes, 1)] = pinned

	req := s.request(GroupRequest{Name: "line", Dimension: 1})
	req.Store = store
	req.FittedFingerprint = "sha-a"
	out, _, err := GenerateOutput(req)
	require.NoError(t, err)

	material := out.FindField("body coordinates")
	got, ok := out.Nodes().Find(1).Values(material)
	require.True(t, ok)
	assertVec(t, pinned.Material, got, 0)

	// The other two nodes were derived and saved.
	assert.Equal(t, 2, store.saves)

	// A refit changes the fingerprint, so the pinned assignment no longer
	// applies and node 1 resolves from the mesh again.
	req.FittedFingerprint = "sha-b"
	out, _, err = GenerateOutput(req)
	require.NoError(t, err)
	got, ok = out.Nodes().Find(1).Values(material)
	require.True(t, ok)
	assertVec(t, []float64{0.2, 0.5, 0.5}, got, 1e-6)
}

func TestGroupResultStatistics(t *testing.T) {
	residuals := []float64{3, 4}
	result := groupResult(GroupRequest{Name: "g", Term: "UBERON:0001"}, 2, residuals)
	assert.Equal(t, "UBERON:0001", result.Term)
	assert.InDelta(t, math.Sqrt(12.5), result.ResidualRMS, 1e-12)
	assert.InDelta(t, 3.5, result.MeanError, 1e-12)
	assert.InDelta(t, 4.0, result.MaxError, 1e-12)

	empty := groupResult(GroupRequest{Name: "g"}, 0, nil)
	assert.Zero(t, empty.ResidualRMS)
}

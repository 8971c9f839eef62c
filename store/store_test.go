package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scaffoldtools/dataembedder/embedder"
	"github.com/scaffoldtools/dataembedder/scaffold"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "embed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLookupCoordinate(t *testing.T) {
	s := openTestStore(t)

	loc := &embedder.StoredLocation{
		ElementID: 7,
		Xi:        []float64{0.25, 0.5, 0.75},
		Material:  []float64{1.1, 2.2, 3.3},
		Residual:  0.001,
	}
	require.NoError(t, s.SaveCoordinate("sha-a", "cube", scaffold.DomainNodes, 42, loc))

	got, ok, err := s.LookupCoordinate("sha-a", "cube", scaffold.DomainNodes, 42)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, loc, got)

	_, ok, err = s.LookupCoordinate("sha-a", "cube", scaffold.DomainDatapoints, 42)
	require.NoError(t, err)
	assert.False(t, ok, "domain is part of the key")

	_, ok, err = s.LookupCoordinate("sha-b", "cube", scaffold.DomainNodes, 42)
	require.NoError(t, err)
	assert.False(t, ok, "fingerprint is part of the key")
}

func TestSaveCoordinateKeepsFirstAssignment(t *testing.T) {
	s := openTestStore(t)

	first := &embedder.StoredLocation{ElementID: 1, Xi: []float64{0.1}, Material: []float64{0.1}, Residual: 0}
	second := &embedder.StoredLocation{ElementID: 2, Xi: []float64{0.9}, Material: []float64{0.9}, Residual: 0}

	require.NoError(t, s.SaveCoordinate("sha-a", "line", scaffold.DomainNodes, 1, first))
	require.NoError(t, s.SaveCoordinate("sha-a", "line", scaffold.DomainNodes, 1, second))

	got, ok, err := s.LookupCoordinate("sha-a", "line", scaffold.DomainNodes, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, got, "first assignment must stay permanent")
}

func TestPurgeFitted(t *testing.T) {
	s := openTestStore(t)
	loc := &embedder.StoredLocation{ElementID: 1, Xi: []float64{0.5}, Material: []float64{0.5}}
	require.NoError(t, s.SaveCoordinate("sha-a", "g", scaffold.DomainNodes, 1, loc))
	require.NoError(t, s.SaveCoordinate("sha-a", "g", scaffold.DomainNodes, 2, loc))
	require.NoError(t, s.SaveCoordinate("sha-b", "g", scaffold.DomainNodes, 1, loc))

	n, err := s.PurgeFitted("sha-a")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, ok, err := s.LookupCoordinate("sha-a", "g", scaffold.DomainNodes, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.LookupCoordinate("sha-b", "g", scaffold.DomainNodes, 1)
	require.NoError(t, err)
	assert.True(t, ok, "other fingerprints untouched")
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)

	run := &Run{ScaffoldSHA: "s", FittedSHA: "f", DataSHA: "d"}
	require.NoError(t, s.BeginRun(run))
	assert.NotEmpty(t, run.RunID, "run id generated")
	assert.NotZero(t, run.CreatedAtNs)

	require.NoError(t, s.FinishRun(run.RunID, 3, 120))

	runs, err := s.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.RunID, runs[0].RunID)
	assert.Equal(t, 3, runs[0].GroupCount)
	assert.Equal(t, 120, runs[0].PointCount)
	require.NotNil(t, runs[0].FinishedAtNs)

	assert.Error(t, s.FinishRun("no-such-run", 0, 0))
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	for i, ns := range []int64{100, 300, 200} {
		run := &Run{RunID: string(rune('a' + i)), CreatedAtNs: ns}
		require.NoError(t, s.BeginRun(run))
	}
	runs, err := s.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].RunID)
	assert.Equal(t, "c", runs[1].RunID)
}

func TestMigrateUpAndVersion(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.MigrateUp("migrations"))
	version, dirty, err := s.MigrateVersion("migrations")
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.EqualValues(t, 1, version)

	// Re-running is a no-op.
	require.NoError(t, s.MigrateUp("migrations"))
}

func TestFileSHA256(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))

	sum, err := FileSHA256(path)
	require.NoError(t, err)
	// SHA-256 of "{}".
	assert.Equal(t, "44136fa355b3678a1146ad16f7e8649e94fb4fc21fe77e8310c060f61caaff8a", sum)

	_, err = FileSHA256(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

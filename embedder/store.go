package embedder

import "github.com/scaffoldtools/dataembedder/scaffold"

// StoredLocation is an assigned embedded location: the host element and
// local coordinates a point resolved to, and the material coordinates
// evaluated there.
type StoredLocation struct {
	ElementID int
	Xi        []float64
	Material  []float64
	Residual  float64
}

// CoordinateStore persists assigned material coordinates. Once assigned, a
// material coordinate must remain stable under re-evaluation, so the
// embedder consults the store before deriving a coordinate and reuses any
// hit verbatim. Entries are keyed by the fitted geometry fingerprint: a
// refit changes the fingerprint and retires the old assignments.
type CoordinateStore interface {
	LookupCoordinate(fittedFingerprint, group string, domain scaffold.Domain, objectID int) (*StoredLocation, bool, error)
	SaveCoordinate(fittedFingerprint, group string, domain scaffold.Domain, objectID int, loc *StoredLocation) error
}

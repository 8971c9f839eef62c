// Package config holds the embedder's numeric tuning parameters. Fields are
// pointers so a partial JSON file overrides only what it names; the Get*
// accessors supply defaults for the rest.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Tuning controls the mesh location search behind embedding.
type Tuning struct {
	// FindTolerance is the residual norm below which a found location is
	// considered exact.
	FindTolerance *float64 `json:"find_tolerance,omitempty"`
	// MaxIterations bounds the Gauss-Newton iterations per candidate
	// element.
	MaxIterations *int `json:"max_iterations,omitempty"`
	// SeedCandidates is how many nearest element centroids to refine per
	// point.
	SeedCandidates *int `json:"seed_candidates,omitempty"`
	// DampingFactor scales the fallback gradient step used when the
	// normal equations are singular.
	DampingFactor *float64 `json:"damping_factor,omitempty"`
	// ExactLocation makes embedding fail for points that do not resolve
	// within the tolerance, instead of taking the nearest location.
	ExactLocation *bool `json:"exact_location,omitempty"`
}

// EmptyTuning returns a Tuning with all fields unset, so every accessor
// falls back to its default.
func EmptyTuning() *Tuning {
	return &Tuning{}
}

// LoadTuning loads a Tuning from a JSON file. The file must have a .json
// extension and stay under the max file size. Fields omitted from the file
// keep their defaults, so partial configs are safe.
func LoadTuning(path string) (*Tuning, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat tuning file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("tuning file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read tuning file: %w", err)
	}

	cfg := EmptyTuning()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse tuning JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}

	return cfg, nil
}

// Validate checks that the tuning values are usable.
func (t *Tuning) Validate() error {
	if t.FindTolerance != nil && *t.FindTolerance <= 0 {
		return fmt.Errorf("find_tolerance must be positive, got %g", *t.FindTolerance)
	}
	if t.MaxIterations != nil && *t.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", *t.MaxIterations)
	}
	if t.SeedCandidates != nil && *t.SeedCandidates <= 0 {
		return fmt.Errorf("seed_candidates must be positive, got %d", *t.SeedCandidates)
	}
	if t.DampingFactor != nil && (*t.DampingFactor <= 0 || *t.DampingFactor > 1) {
		return fmt.Errorf("damping_factor must be in (0, 1], got %g", *t.DampingFactor)
	}
	return nil
}

// GetFindTolerance returns the find_tolerance value or the default.
func (t *Tuning) GetFindTolerance() float64 {
	if t.FindTolerance == nil {
		return 1e-6
	}
	return *t.FindTolerance
}

// GetMaxIterations returns the max_iterations value or the default.
func (t *Tuning) GetMaxIterations() int {
	if t.MaxIterations == nil {
		return 50
	}
	return *t.MaxIterations
}

// GetSeedCandidates returns the seed_candidates value or the default.
func (t *Tuning) GetSeedCandidates() int {
	if t.SeedCandidates == nil {
		return 4
	}
	return *t.SeedCandidates
}

// GetDampingFactor returns the damping_factor value or the default.
func (t *Tuning) GetDampingFactor() float64 {
	if t.DampingFactor == nil {
		return 0.5
	}
	return *t.DampingFactor
}

// GetExactLocation returns the exact_location value or the default.
func (t *Tuning) GetExactLocation() bool {
	if t.ExactLocation == nil {
		return false
	}
	return *t.ExactLocation
}

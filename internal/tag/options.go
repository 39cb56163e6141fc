package tag

import (
	"github.com/keshon/snapver/internal/semrel"
	"github.com/keshon/snapver/internal/vererr"
)

// Options configures one tag operation. The CLI's loose flags resolve into
// this struct once, at the boundary; all validation happens before any
// storage is touched.
type Options struct {
	// ReleaseType selects the bump: major|minor|patch|premajor|preminor|
	// prepatch|prerelease. Empty defaults to patch unless Version is set.
	ReleaseType string

	// Version overrides the computed bump with an explicit version.
	// Mutually exclusive with ReleaseType.
	Version string

	// PreID is the prerelease identifier (e.g. "rc"); requires a
	// prerelease-capable release type.
	PreID string

	// IncrementBy bumps the selected field by more than one. Zero means 1.
	IncrementBy uint64

	// SkipAutoTag disables dependent expansion.
	SkipAutoTag bool

	// Soft stages the tag decision without creating a snap or tag.
	Soft bool

	// Persist finalizes previously staged tags instead of computing fresh
	// candidates. Mutually exclusive with Soft.
	Persist bool

	// Unmodified includes components with no working changes.
	Unmodified bool

	// RunPipeline runs the build/test pipeline per candidate before
	// persistence.
	RunPipeline bool

	// ForceDeploy persists a candidate even when its pipeline run failed,
	// degrading the failure to a warning.
	ForceDeploy bool

	// Lane overrides the active lane; empty consults the lane store.
	Lane string

	Message string
	Author  string
}

// resolved is the validated form of Options the engine works with.
type resolved struct {
	Options
	releaseType semrel.ReleaseType
	laneName    string
}

func (o Options) validate() (resolved, error) {
	r := resolved{Options: o}

	if o.Soft && o.Persist {
		return r, vererr.Validationf("soft and persist are mutually exclusive")
	}
	if o.Version != "" {
		if o.ReleaseType != "" {
			return r, vererr.Validationf("explicit version %q conflicts with release type %q", o.Version, o.ReleaseType)
		}
		if !semrel.Valid(o.Version) {
			return r, vererr.Validationf("invalid explicit version %q", o.Version)
		}
	}
	if o.Persist && (o.Version != "" || o.ReleaseType != "") {
		return r, vererr.Validationf("persist finalizes staged versions; bump flags are not allowed")
	}

	rt := o.ReleaseType
	if rt == "" {
		rt = string(semrel.Patch)
	}
	parsed, err := semrel.ParseReleaseType(rt)
	if err != nil {
		return r, err
	}
	if o.PreID != "" && !parsed.PreCapable() {
		return r, vererr.Validationf("prerelease identifier %q requires a prerelease release type, got %q", o.PreID, parsed)
	}
	r.releaseType = parsed
	return r, nil
}

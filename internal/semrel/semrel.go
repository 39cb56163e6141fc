// Package semrel computes semantic-version bumps for release operations.
package semrel

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/keshon/snapver/internal/vererr"
)

// ReleaseType selects which semver field a bump increments.
type ReleaseType string

const (
	Major      ReleaseType = "major"
	Minor      ReleaseType = "minor"
	Patch      ReleaseType = "patch"
	PreMajor   ReleaseType = "premajor"
	PreMinor   ReleaseType = "preminor"
	PrePatch   ReleaseType = "prepatch"
	Prerelease ReleaseType = "prerelease"
)

// ZeroVersion is the implied current version of a never-tagged component.
const ZeroVersion = "0.0.0"

// ParseReleaseType validates a release-type string.
func ParseReleaseType(s string) (ReleaseType, error) {
	switch rt := ReleaseType(s); rt {
	case Major, Minor, Patch, PreMajor, PreMinor, PrePatch, Prerelease:
		return rt, nil
	default:
		return "", vererr.Validationf("invalid release type %q", s)
	}
}

// PreCapable reports whether the release type may carry a prerelease
// identifier.
func (rt ReleaseType) PreCapable() bool {
	switch rt {
	case PreMajor, PreMinor, PrePatch, Prerelease:
		return true
	}
	return false
}

// Compare orders two versions by semver precedence.
func Compare(a, b string) (int, error) {
	va, err := semver.NewVersion(a)
	if err != nil {
		return 0, vererr.Validationf("invalid version %q: %v", a, err)
	}
	vb, err := semver.NewVersion(b)
	if err != nil {
		return 0, vererr.Validationf("invalid version %q: %v", b, err)
	}
	return va.Compare(vb), nil
}

// Valid reports whether s parses as a semver version.
func Valid(s string) bool {
	_, err := semver.NewVersion(s)
	return err == nil
}

// Next computes the version after current for the given release type.
// incrementBy applies to the selected numeric field (or the prerelease
// counter); lower-precedence fields reset to zero. preID names the
// prerelease identifier for pre* types ("rc" -> "-rc.0").
func Next(current string, rt ReleaseType, incrementBy uint64, preID string) (string, error) {
	if incrementBy == 0 {
		incrementBy = 1
	}
	if preID != "" && !rt.PreCapable() {
		return "", vererr.Validationf("prerelease identifier %q requires a prerelease release type, got %q", preID, rt)
	}

	cur, err := semver.NewVersion(current)
	if err != nil {
		return "", vererr.Validationf("invalid current version %q: %v", current, err)
	}

	switch rt {
	case Major:
		v := semver.New(cur.Major()+incrementBy, 0, 0, "", "")
		return v.String(), nil
	case Minor:
		v := semver.New(cur.Major(), cur.Minor()+incrementBy, 0, "", "")
		return v.String(), nil
	case Patch:
		v := semver.New(cur.Major(), cur.Minor(), cur.Patch()+incrementBy, "", "")
		return v.String(), nil
	case PreMajor:
		v := semver.New(cur.Major()+incrementBy, 0, 0, prefix(preID, 0), "")
		return v.String(), nil
	case PreMinor:
		v := semver.New(cur.Major(), cur.Minor()+incrementBy, 0, prefix(preID, 0), "")
		return v.String(), nil
	case PrePatch:
		v := semver.New(cur.Major(), cur.Minor(), cur.Patch()+incrementBy, prefix(preID, 0), "")
		return v.String(), nil
	case Prerelease:
		return nextPrerelease(cur, incrementBy, preID)
	default:
		return "", vererr.Validationf("invalid release type %q", rt)
	}
}

// nextPrerelease increments the prerelease counter when current already has
// one with the same identifier; otherwise it starts a fresh prerelease on
// the next patch version.
func nextPrerelease(cur *semver.Version, incrementBy uint64, preID string) (string, error) {
	pre := cur.Prerelease()
	if pre != "" {
		id, n, ok := splitPre(pre)
		if ok && (preID == "" || id == preID) {
			if preID == "" {
				preID = id
			}
			v, err := cur.SetPrerelease(prefix(preID, n+incrementBy))
			if err != nil {
				return "", fmt.Errorf("set prerelease: %w", err)
			}
			return v.String(), nil
		}
		// Different identifier: restart the counter on the same triple.
		v, err := cur.SetPrerelease(prefix(preID, 0))
		if err != nil {
			return "", fmt.Errorf("set prerelease: %w", err)
		}
		return v.String(), nil
	}

	v := semver.New(cur.Major(), cur.Minor(), cur.Patch()+1, prefix(preID, 0), "")
	return v.String(), nil
}

// prefix renders "id.n", or just "n" when no identifier is set.
func prefix(preID string, n uint64) string {
	if preID == "" {
		return strconv.FormatUint(n, 10)
	}
	return preID + "." + strconv.FormatUint(n, 10)
}

// splitPre splits "rc.3" into ("rc", 3, true). A bare numeric prerelease
// splits into ("", n, true).
func splitPre(pre string) (string, uint64, bool) {
	if n, err := strconv.ParseUint(pre, 10, 64); err == nil {
		return "", n, true
	}
	dot := strings.LastIndex(pre, ".")
	if dot < 0 {
		return pre, 0, false
	}
	n, err := strconv.ParseUint(pre[dot+1:], 10, 64)
	if err != nil {
		return pre, 0, false
	}
	return pre[:dot], n, true
}

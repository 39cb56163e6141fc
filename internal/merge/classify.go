package merge

import (
	"github.com/keshon/snapver/internal/vererr"
)

// Strategy selects how conflicting files are resolved.
type Strategy string

const (
	// StrategyManual leaves conflicting files for the caller to resolve.
	StrategyManual Strategy = "manual"
	// StrategyOurs resolves every conflict by keeping the local side.
	StrategyOurs Strategy = "ours"
	// StrategyTheirs resolves every conflict by taking the target side.
	StrategyTheirs Strategy = "theirs"
)

// ParseStrategy validates a strategy string; empty defaults to manual.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case "":
		return StrategyManual, nil
	case StrategyManual, StrategyOurs, StrategyTheirs:
		return st, nil
	default:
		return "", vererr.Validationf("invalid merge strategy %q", s)
	}
}

// FileStatus classifies one file's outcome in a merge result relative to
// the base.
type FileStatus string

const (
	StatusUnchanged FileStatus = "unchanged"
	StatusAdded     FileStatus = "added"
	StatusModified  FileStatus = "modified"
	StatusRemoved   FileStatus = "removed"
	// StatusManual marks a conflict: both sides changed the file to
	// different content and no forcing strategy picked a side.
	StatusManual FileStatus = "manual"
)

// State is the per-component merge state.
type State string

const (
	StateClean      State = "clean"
	StateComparing  State = "comparing"
	StateMerged     State = "merged"
	StateConflicted State = "conflicted"
	StateAborted    State = "aborted"
	StateResolved   State = "resolved"
)

// classify performs the three-way comparison over the union of paths in
// base, ours and theirs (each path -> content hash). It returns the
// per-file statuses and the merged manifest; conflicted paths keep the ours
// side in the manifest as placeholder.
func classify(base, ours, theirs map[string]string, strategy Strategy) (map[string]FileStatus, map[string]string) {
	statuses := map[string]FileStatus{}
	merged := map[string]string{}

	all := map[string]bool{}
	for p := range base {
		all[p] = true
	}
	for p := range ours {
		all[p] = true
	}
	for p := range theirs {
		all[p] = true
	}

	for p := range all {
		b, bok := base[p]
		o, ook := ours[p]
		t, tok := theirs[p]

		switch {
		// identical on both sides: take either
		case ook && tok && o == t:
			merged[p] = o
			statuses[p] = sideStatus(b, bok, o)

		// deleted on both sides
		case !ook && !tok:
			statuses[p] = StatusRemoved

		// ours unchanged since base: take theirs (add, modify or delete)
		case bok && ook && b == o:
			if tok {
				merged[p] = t
				statuses[p] = sideStatus(b, bok, t)
			} else {
				statuses[p] = StatusRemoved
			}

		// theirs unchanged since base: take ours
		case bok && tok && b == t:
			if ook {
				merged[p] = o
				statuses[p] = sideStatus(b, bok, o)
			} else {
				statuses[p] = StatusRemoved
			}

		// added only in ours
		case !bok && ook && !tok:
			merged[p] = o
			statuses[p] = StatusAdded

		// added only in theirs
		case !bok && tok && !ook:
			merged[p] = t
			statuses[p] = StatusAdded

		// both changed differently since base (including both-added with
		// different content and modify/delete)
		default:
			switch strategy {
			case StrategyOurs:
				if ook {
					merged[p] = o
					statuses[p] = sideStatus(b, bok, o)
				} else {
					statuses[p] = StatusRemoved
				}
			case StrategyTheirs:
				if tok {
					merged[p] = t
					statuses[p] = sideStatus(b, bok, t)
				} else {
					statuses[p] = StatusRemoved
				}
			default:
				statuses[p] = StatusManual
				if ook {
					merged[p] = o
				}
			}
		}
	}

	return statuses, merged
}

// sideStatus labels taken content relative to the base.
func sideStatus(b string, bok bool, content string) FileStatus {
	if !bok {
		return StatusAdded
	}
	if b == content {
		return StatusUnchanged
	}
	return StatusModified
}

// countManual reports how many files remain conflicted.
func countManual(statuses map[string]FileStatus) int {
	n := 0
	for _, st := range statuses {
		if st == StatusManual {
			n++
		}
	}
	return n
}

package tag

import "github.com/keshon/snapver/internal/component"

// Result is one successfully tagged (or staged) component.
type Result struct {
	Component component.ID
	Version   string
	Snap      string // empty for soft tags
	// TriggeredBy names the component whose tagging pulled this one in;
	// empty for explicitly requested components.
	TriggeredBy string
	Reason      string
}

// Failure is a per-component soft failure carried in the result payload.
// UnchangedLegitimately marks components that simply had nothing to do.
type Failure struct {
	Component             component.ID
	FailureMessage        string
	UnchangedLegitimately bool
}

// Results is the outcome of one tag operation. Partial success is the
// normal shape: callers inspect Failed and Warnings rather than relying on
// an overall error.
type Results struct {
	Tagged        []Result
	AutoTagged    []Result
	NewComponents []component.ID
	Failed        []Failure
	Warnings      []string
	IsSoftTag     bool
	// NothingToTag is set when no candidate had pending changes; this is a
	// distinct non-error outcome, not a failure.
	NothingToTag bool
}

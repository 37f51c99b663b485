package imf

import "fmt"

// IssueKind classifies a soft finding.
type IssueKind string

// Issue kinds.
const (
	// IssueUnresolvedReference: a partOf parent name is not a known component.
	IssueUnresolvedReference IssueKind = "unresolved_reference"
	// IssueCyclicReference: following partOf from a component leads back to it.
	IssueCyclicReference IssueKind = "cyclic_reference"
	// IssueUnresolvedConnection: a connectedTo target is not a known component.
	IssueUnresolvedConnection IssueKind = "unresolved_connection"
)

// Issue is a data-quality finding that did not abort the conversion.
type Issue struct {
	Kind      IssueKind `json:"kind"`
	Component string    `json:"component"`
	Reference string    `json:"reference,omitempty"`
}

// String implements fmt.Stringer.
func (i Issue) String() string {
	if i.Reference == "" {
		return fmt.Sprintf("%s: %q", i.Kind, i.Component)
	}
	return fmt.Sprintf("%s: %q -> %q", i.Kind, i.Component, i.Reference)
}

// CountIssues tallies issues by kind.
func CountIssues(issues []Issue) map[IssueKind]int {
	out := make(map[IssueKind]int)
	for _, i := range issues {
		out[i.Kind]++
	}
	return out
}

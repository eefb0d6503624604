package inventory

import "strings"

// Component is one of the hardware/software aspects whose changes can be tracked.
type Component string

const (
	ComponentProcessor    Component = "PROCESSOR"
	ComponentMemory       Component = "MEMORY"
	ComponentDisk         Component = "DISK"
	ComponentVideoAdapter Component = "VIDEO_ADAPTER"
	ComponentSoftware     Component = "SOFTWARE"
)

// AllComponents lists every trackable component in display order.
var AllComponents = []Component{
	ComponentProcessor,
	ComponentMemory,
	ComponentDisk,
	ComponentVideoAdapter,
	ComponentSoftware,
}

// ChangeKind classifies a detected difference.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "ADDED"
	ChangeRemoved  ChangeKind = "REMOVED"
	ChangeModified ChangeKind = "MODIFIED"
)

// ClassifyChange derives the change kind from trimmed old/new values.
// Callers must only call it when the values differ.
func ClassifyChange(oldValue, newValue string) ChangeKind {
	switch {
	case strings.TrimSpace(oldValue) == "":
		return ChangeAdded
	case strings.TrimSpace(newValue) == "":
		return ChangeRemoved
	default:
		return ChangeModified
	}
}

// ComponentSet is a set of tracked components.
type ComponentSet map[Component]struct{}

func NewComponentSet(cs ...Component) ComponentSet {
	out := make(ComponentSet, len(cs))
	for _, c := range cs {
		out[c] = struct{}{}
	}
	return out
}

func (s ComponentSet) Has(c Component) bool {
	_, ok := s[c]
	return ok
}

// Sorted returns the members in AllComponents order.
func (s ComponentSet) Sorted() []Component {
	out := make([]Component, 0, len(s))
	for _, c := range AllComponents {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// ParseComponents normalizes stored component names. Unknown and blank names are dropped.
func ParseComponents(raw []string) ComponentSet {
	out := make(ComponentSet, len(raw))
	for _, r := range raw {
		c := Component(strings.ToUpper(strings.TrimSpace(r)))
		if isKnownComponent(c) {
			out[c] = struct{}{}
		}
	}
	return out
}

func isKnownComponent(c Component) bool {
	for _, k := range AllComponents {
		if k == c {
			return true
		}
	}
	return false
}

// EffectiveTracked resolves which components are tracked for a host.
//
// A non-nil override wins, even when empty (an explicit "track nothing").
// Otherwise the union of all non-empty group sets is used, and when that is
// empty too every component is tracked.
func EffectiveTracked(override []string, groups [][]string) ComponentSet {
	if override != nil {
		return ParseComponents(override)
	}

	union := make(ComponentSet)
	for _, g := range groups {
		for c := range ParseComponents(g) {
			union[c] = struct{}{}
		}
	}
	if len(union) > 0 {
		return union
	}
	return NewComponentSet(AllComponents...)
}

// Strings renders the set for storage or display.
func (s ComponentSet) Strings() []string {
	out := make([]string, 0, len(s))
	for _, c := range s.Sorted() {
		out = append(out, string(c))
	}
	return out
}

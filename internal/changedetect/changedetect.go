// Package changedetect compares a freshly fetched inventory snapshot with the
// stored fingerprint of a host and reports component-level changes.
//
// It is pure: nothing here reads or writes storage. Tracking policy and
// exclusions only decide which differences are reported; callers always
// persist the fetched values regardless of what is reported.
package changedetect

import (
	"sort"
	"strings"

	"hostinventory/core-go/internal/inventory"
)

type Change struct {
	Component inventory.Component
	Kind      inventory.ChangeKind
	OldValue  string
	NewValue  string
}

// Input is the state needed to diff one host.
type Input struct {
	Stored         inventory.Fingerprint
	StoredSoftware []inventory.Software
	Fetched        inventory.Snapshot
	Tracked        inventory.ComponentSet
	Exclusions     Exclusions
}

type Result struct {
	// FirstSync is true when the stored fingerprint was never populated; nothing is reported then.
	FirstSync bool
	Changes   []Change
}

// Detect runs scalar comparison followed by software reconciliation.
func Detect(in Input) Result {
	res := Result{FirstSync: IsFirstSync(in.Stored)}
	if res.FirstSync {
		return res
	}

	res.Changes = append(res.Changes, CompareScalars(in.Stored, in.Fetched.Fingerprint, in.Tracked)...)
	if in.Tracked.Has(inventory.ComponentSoftware) {
		res.Changes = append(res.Changes, CompareSoftware(in.StoredSoftware, in.Fetched.Software, in.Exclusions)...)
	}
	return res
}

// IsFirstSync reports whether a host has never been populated by a real fetch.
// Only "no CPU model and no RAM" counts; one of the two being set is not a first sync.
func IsFirstSync(stored inventory.Fingerprint) bool {
	return stored.CPUModel == nil && stored.TotalRAMBytes == nil
}

// CompareScalars diffs the four tracked scalar components. Memory and disk are
// compared as one-decimal GB strings so sub-0.1 GB noise is ignored.
// The motherboard identity is stored but never reported.
func CompareScalars(stored, fetched inventory.Fingerprint, tracked inventory.ComponentSet) []Change {
	var out []Change

	add := func(c inventory.Component, oldValue, newValue string) {
		if !tracked.Has(c) {
			return
		}
		if ch, ok := compare(c, oldValue, newValue); ok {
			out = append(out, ch)
		}
	}

	add(inventory.ComponentProcessor, deref(stored.CPUModel), deref(fetched.CPUModel))
	add(inventory.ComponentMemory, inventory.FormatGB(stored.TotalRAMBytes), inventory.FormatGB(fetched.TotalRAMBytes))
	add(inventory.ComponentDisk, inventory.FormatGB(stored.TotalDiskBytes), inventory.FormatGB(fetched.TotalDiskBytes))
	add(inventory.ComponentVideoAdapter, deref(stored.VideoAdapter), deref(fetched.VideoAdapter))

	return out
}

func compare(c inventory.Component, oldValue, newValue string) (Change, bool) {
	oldValue = strings.TrimSpace(oldValue)
	newValue = strings.TrimSpace(newValue)
	if oldValue == newValue {
		return Change{}, false
	}
	return Change{
		Component: c,
		Kind:      inventory.ClassifyChange(oldValue, newValue),
		OldValue:  oldValue,
		NewValue:  newValue,
	}, true
}

// CompareSoftware reports software entries added or removed between two sets,
// keyed by name+version. Excluded names produce no change.
// Output is ordered: removals first, then additions, each sorted by key.
func CompareSoftware(stored, fetched []inventory.Software, excl Exclusions) []Change {
	oldByKey := indexSoftware(stored)
	newByKey := indexSoftware(fetched)

	var out []Change
	for _, key := range sortedKeys(oldByKey) {
		if _, ok := newByKey[key]; ok {
			continue
		}
		sw := oldByKey[key]
		if excl.Excludes(sw.Name) {
			continue
		}
		out = append(out, Change{
			Component: inventory.ComponentSoftware,
			Kind:      inventory.ChangeRemoved,
			OldValue:  sw.Label(),
		})
	}
	for _, key := range sortedKeys(newByKey) {
		if _, ok := oldByKey[key]; ok {
			continue
		}
		sw := newByKey[key]
		if excl.Excludes(sw.Name) {
			continue
		}
		out = append(out, Change{
			Component: inventory.ComponentSoftware,
			Kind:      inventory.ChangeAdded,
			NewValue:  sw.Label(),
		})
	}
	return out
}

// indexSoftware keeps the first entry for each duplicate key.
func indexSoftware(list []inventory.Software) map[string]inventory.Software {
	out := make(map[string]inventory.Software, len(list))
	for _, sw := range list {
		key := sw.Key()
		if _, ok := out[key]; ok {
			continue
		}
		out[key] = sw
	}
	return out
}

func sortedKeys(m map[string]inventory.Software) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Exclusions holds software names whose additions/removals are not reported.
type Exclusions struct {
	names map[string]struct{}
}

// NewExclusions merges global and host-specific exclusion names. Names are
// matched exactly after trimming surrounding whitespace.
func NewExclusions(global, host []string) Exclusions {
	names := make(map[string]struct{}, len(global)+len(host))
	for _, list := range [][]string{global, host} {
		for _, n := range list {
			if n = strings.TrimSpace(n); n != "" {
				names[n] = struct{}{}
			}
		}
	}
	return Exclusions{names: names}
}

func (e Exclusions) Excludes(name string) bool {
	_, ok := e.names[strings.TrimSpace(name)]
	return ok
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

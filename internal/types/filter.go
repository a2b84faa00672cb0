package types

import (
	"fmt"
	"sort"
	"strings"
)

// FilterFields are the cache columns a Filter may constrain.
var FilterFields = []string{"target", "milestone", "status", "importance", "assignee"}

// Filter maps a field name to the set of acceptable values. Fields are ANDed,
// values within a field are ORed. An empty value matches an unset field.
type Filter map[string][]string

// Validate rejects unknown field names and empty value sets.
func (f Filter) Validate() error {
	for name, values := range f {
		if !isFilterField(name) {
			return fmt.Errorf("unknown filter field %q (valid: %s)", name, strings.Join(FilterFields, ", "))
		}
		if len(values) == 0 {
			return fmt.Errorf("filter field %q has no values", name)
		}
	}
	return nil
}

// Fields returns the constrained field names in a stable order.
func (f Filter) Fields() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// With returns a copy of f with field constrained to values.
func (f Filter) With(field string, values ...string) Filter {
	out := make(Filter, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	out[field] = values
	return out
}

// MatchRow reports whether a cache row satisfies every constrained field.
func (f Filter) MatchRow(r CacheRow) bool {
	for name, values := range f {
		have := rowValue(r, name)
		ok := false
		for _, want := range values {
			if filterValueEqual(r.Project, name, have, want) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// MatchEntry applies the filter to a live entry.
func (f Filter) MatchEntry(e *Entry) bool {
	return f.MatchRow(RowFromEntry(e))
}

func (f Filter) String() string {
	parts := make([]string, 0, len(f))
	for _, name := range f.Fields() {
		parts = append(parts, name+"="+strings.Join(f[name], "|"))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func isFilterField(name string) bool {
	for _, known := range FilterFields {
		if name == known {
			return true
		}
	}
	return false
}

func rowValue(r CacheRow, field string) string {
	switch field {
	case "target":
		return r.Target
	case "milestone":
		return r.Milestone
	case "status":
		return r.Status
	case "importance":
		return r.Importance
	case "assignee":
		return r.Assignee
	}
	return ""
}

func filterValueEqual(project, field, have, want string) bool {
	switch field {
	case "target":
		if want == "" {
			return have == ""
		}
		p := Project{Name: project}
		return have == p.Qualify(want)
	case "milestone":
		return QualifyMilestone(project, have) == QualifyMilestone(project, want)
	case "assignee":
		return NormalizeAssignee(have) == NormalizeAssignee(want)
	}
	return have == want
}

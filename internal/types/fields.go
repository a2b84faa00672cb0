package types

import (
	"fmt"
	"sort"
	"strings"
)

// Field identifies one of the copy-fields of a tracking entry.
type Field int

// The copy-fields, in the order they are applied.
const (
	FieldMilestone Field = iota
	FieldStatus
	FieldImportance
	FieldAssignee

	numFields
)

// FieldDescriptor binds a Field to its configuration name and to accessors on
// Entry. CopyFields is the only place that knows how a field maps onto Entry.
type FieldDescriptor struct {
	Field Field
	Name  string
	Get   func(e *Entry) string
	Put   func(e *Entry, v string)
}

// CopyFields is the descriptor table for the four fields that are copied
// between entries.
var CopyFields = [numFields]FieldDescriptor{
	{
		Field: FieldMilestone,
		Name:  "milestone",
		Get:   func(e *Entry) string { return e.Milestone },
		Put:   func(e *Entry, v string) { e.Milestone = v },
	},
	{
		Field: FieldStatus,
		Name:  "status",
		Get:   func(e *Entry) string { return string(e.Status) },
		Put:   func(e *Entry, v string) { e.Status = Status(v) },
	},
	{
		Field: FieldImportance,
		Name:  "importance",
		Get:   func(e *Entry) string { return string(e.Importance) },
		Put:   func(e *Entry, v string) { e.Importance = Importance(v) },
	},
	{
		Field: FieldAssignee,
		Name:  "assignee",
		Get:   func(e *Entry) string { return e.Assignee },
		Put:   func(e *Entry, v string) { e.Assignee = NormalizeAssignee(v) },
	},
}

func (f Field) String() string {
	if f < 0 || f >= numFields {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return CopyFields[f].Name
}

// ParseField maps a configuration name onto a Field.
func ParseField(name string) (Field, bool) {
	for _, d := range CopyFields {
		if d.Name == name {
			return d.Field, true
		}
	}
	return 0, false
}

// FieldSet holds at most one optional value per copy-field. The zero value is
// an empty set.
type FieldSet struct {
	values [numFields]string
	set    [numFields]bool
}

// NewFieldSet builds a set from name/value pairs, rejecting unknown names.
func NewFieldSet(values map[string]string) (FieldSet, error) {
	var fs FieldSet
	for name, v := range values {
		f, ok := ParseField(name)
		if !ok {
			return FieldSet{}, fmt.Errorf("unknown field %q (valid: milestone, status, importance, assignee)", name)
		}
		fs.Set(f, v)
	}
	return fs, nil
}

// Set assigns a value to a field.
func (fs *FieldSet) Set(f Field, v string) {
	fs.values[f] = v
	fs.set[f] = true
}

// Get returns the field's value and whether it is set.
func (fs FieldSet) Get(f Field) (string, bool) {
	return fs.values[f], fs.set[f]
}

// Has reports whether the field is set.
func (fs FieldSet) Has(f Field) bool {
	return fs.set[f]
}

// Len returns the number of set fields.
func (fs FieldSet) Len() int {
	n := 0
	for _, ok := range fs.set {
		if ok {
			n++
		}
	}
	return n
}

// Merge returns base overridden by every set field of fs.
func (fs FieldSet) Merge(base FieldSet) FieldSet {
	out := base
	for _, d := range CopyFields {
		if v, ok := fs.Get(d.Field); ok {
			out.Set(d.Field, v)
		}
	}
	return out
}

// Matches reports whether every set field of fs equals the entry's value.
// Milestones compare by fully qualified name within the entry's project.
func (fs FieldSet) Matches(e *Entry) bool {
	for _, d := range CopyFields {
		want, ok := fs.Get(d.Field)
		if !ok {
			continue
		}
		have := d.Get(e)
		switch d.Field {
		case FieldMilestone:
			if QualifyMilestone(e.Project, have) != QualifyMilestone(e.Project, want) {
				return false
			}
		case FieldAssignee:
			if NormalizeAssignee(have) != NormalizeAssignee(want) {
				return false
			}
		default:
			if have != want {
				return false
			}
		}
	}
	return true
}

// Diff lists the names of fields whose values differ from the entry's.
func (fs FieldSet) Diff(e *Entry) []string {
	var names []string
	for _, d := range CopyFields {
		want, ok := fs.Get(d.Field)
		if !ok {
			continue
		}
		var single FieldSet
		single.Set(d.Field, want)
		if !single.Matches(e) {
			names = append(names, d.Name)
		}
	}
	return names
}

func (fs FieldSet) String() string {
	var parts []string
	for _, d := range CopyFields {
		if v, ok := fs.Get(d.Field); ok {
			if v == "" {
				v = "<none>"
			}
			parts = append(parts, d.Name+"="+v)
		}
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ", ") + "}"
}

// NormalizeAssignee strips the "~" person prefix used in remote links.
func NormalizeAssignee(v string) string {
	return strings.TrimPrefix(v, "~")
}

// TargetPolicy is the declared state of one target.
type TargetPolicy struct {
	Target string
	Fields FieldSet
}

// Policy is an ordered list of target policies.
type Policy []TargetPolicy

// Lookup returns the policy declared for target.
func (p Policy) Lookup(target string) (FieldSet, bool) {
	for _, tp := range p {
		if tp.Target == target {
			return tp.Fields, true
		}
	}
	return FieldSet{}, false
}

// Targets returns the policy's target names in order.
func (p Policy) Targets() []string {
	names := make([]string, len(p))
	for i, tp := range p {
		names[i] = tp.Target
	}
	return names
}

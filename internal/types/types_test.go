package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectQualify(t *testing.T) {
	p := &Project{Name: "fuel", Focus: "10.0"}

	tests := []struct {
		in   string
		want string
	}{
		{"fuel", "fuel"},
		{"fuel/9.0", "fuel/9.0"},
		{"9.0", "fuel/9.0"},
		{"fuel-plugins", "fuel/fuel-plugins"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Qualify(tt.in))
		})
	}
}

func TestProjectSameTarget(t *testing.T) {
	p := &Project{Name: "fuel", Focus: "10.0"}

	assert.True(t, p.SameTarget("fuel", "fuel"))
	assert.True(t, p.SameTarget("fuel", "fuel/10.0"))
	assert.True(t, p.SameTarget("fuel/10.0", "fuel"))
	assert.False(t, p.SameTarget("fuel", "fuel/9.0"))
	assert.False(t, p.SameTarget("fuel/9.0", "fuel/10.0"))
}

func TestQualifyMilestone(t *testing.T) {
	assert.Equal(t, "", QualifyMilestone("fuel", ""))
	assert.Equal(t, "fuel/+milestone/8.0", QualifyMilestone("fuel", "8.0"))
	assert.Equal(t, "fuel/+milestone/8.0", QualifyMilestone("fuel", "fuel/+milestone/8.0"))
}

func TestEntryFieldsRoundTrip(t *testing.T) {
	src := &Entry{
		Project:    "fuel",
		Target:     "fuel/9.0",
		Milestone:  "6.9",
		Status:     StatusTriaged,
		Importance: ImportanceHigh,
		Assignee:   "jdoe",
	}

	dst := &Entry{Project: "fuel", Target: "fuel/10.0"}
	dst.Apply(src.Fields())

	assert.Equal(t, src.Milestone, dst.Milestone)
	assert.Equal(t, src.Status, dst.Status)
	assert.Equal(t, src.Importance, dst.Importance)
	assert.Equal(t, src.Assignee, dst.Assignee)
	assert.Equal(t, "fuel/10.0", dst.Target, "Apply must not touch the target")
}

func TestFieldSetMergeAndMatch(t *testing.T) {
	e := &Entry{Project: "fuel", Milestone: "6.9", Status: StatusNew, Importance: ImportanceLow}

	var policy FieldSet
	policy.Set(FieldMilestone, "8.0")
	assert.Equal(t, 1, policy.Len())
	assert.False(t, policy.Matches(e))
	assert.Equal(t, []string{"milestone"}, policy.Diff(e))

	merged := policy.Merge(e.Fields())
	ms, ok := merged.Get(FieldMilestone)
	require.True(t, ok)
	assert.Equal(t, "8.0", ms)
	st, _ := merged.Get(FieldStatus)
	assert.Equal(t, "New", st)

	e.Apply(merged)
	assert.True(t, policy.Matches(e))
	assert.Empty(t, policy.Diff(e))
}

func TestFieldSetMatchesQualifiedMilestone(t *testing.T) {
	e := &Entry{Project: "fuel", Milestone: "8.0"}
	var fs FieldSet
	fs.Set(FieldMilestone, "fuel/+milestone/8.0")
	assert.True(t, fs.Matches(e))
}

func TestNewFieldSet(t *testing.T) {
	fs, err := NewFieldSet(map[string]string{"status": "Won't Fix", "assignee": "~jdoe"})
	require.NoError(t, err)
	assert.True(t, fs.Has(FieldStatus))
	assert.True(t, fs.Has(FieldAssignee))
	assert.False(t, fs.Has(FieldMilestone))
	assert.Equal(t, "{assignee=~jdoe, status=Won't Fix}", fs.String())

	_, err = NewFieldSet(map[string]string{"title": "x"})
	assert.Error(t, err)
}

func TestFilterMatchRow(t *testing.T) {
	row := CacheRow{
		Project:    "fuel",
		BugID:      100,
		Target:     "fuel/9.0",
		Milestone:  "6.9",
		Status:     "New",
		Importance: "High",
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", Filter{}, true},
		{"scalar match", Filter{"status": {"New"}}, true},
		{"set match", Filter{"status": {"Confirmed", "New"}}, true},
		{"set miss", Filter{"status": {"Confirmed", "Triaged"}}, false},
		{"unqualified target", Filter{"target": {"9.0"}}, true},
		{"qualified target", Filter{"target": {"fuel/9.0"}}, true},
		{"other target", Filter{"target": {"fuel"}}, false},
		{"fields are ANDed", Filter{"milestone": {"6.9"}, "importance": {"Low"}}, false},
		{"unset assignee", Filter{"assignee": {""}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.MatchRow(row))
		})
	}
}

func TestFilterValidate(t *testing.T) {
	assert.NoError(t, Filter{"milestone": {"6.9"}}.Validate())
	assert.Error(t, Filter{"title": {"x"}}.Validate())
	assert.Error(t, Filter{"status": {}}.Validate())
}

func TestStatusIsValid(t *testing.T) {
	assert.True(t, StatusWontFix.IsValid())
	assert.True(t, Status("Fix Released").IsValid())
	assert.False(t, Status("Closed").IsValid())
	assert.True(t, ImportanceWishlist.IsValid())
	assert.False(t, Importance("P1").IsValid())
}

func TestIssueHasTag(t *testing.T) {
	i := &Issue{ID: 1, Tags: []string{"ui", "wait-for-stable"}}
	assert.True(t, i.HasTag("wait-for-stable"))
	assert.False(t, i.HasTag("docs"))
}

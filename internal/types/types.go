// Package types defines the core data structures shared by the cache, the
// remote client and the reconciliation engine.
package types

import (
	"fmt"
	"strings"
)

// Issue is a tracked bug in the remote service. The engine never creates or
// deletes an Issue, only its entries.
type Issue struct {
	ID      int      `json:"id"`
	Title   string   `json:"title,omitempty"`
	WebLink string   `json:"web_link,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Entries []*Entry `json:"entries,omitempty"`
}

// HasTag reports whether the issue carries any of the given tags.
func (i *Issue) HasTag(tags ...string) bool {
	for _, have := range i.Tags {
		for _, want := range tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// ShortTitle truncates the title for log lines.
func (i *Issue) ShortTitle() string {
	const max = 80
	if len(i.Title) <= max {
		return i.Title
	}
	return i.Title[:max] + "..."
}

// Entry is one tracking entry ("bug task") of an issue: the state of the
// issue against a single target.
type Entry struct {
	// Link is the API location of the entry; empty for entries that only
	// exist in memory (dry-run).
	Link    string `json:"link,omitempty"`
	IssueID int    `json:"bug_id"`
	Project string `json:"project"`

	// Target is canonical: "project" or "project/series".
	Target string `json:"target"`

	Milestone  string     `json:"milestone,omitempty"`
	Status     Status     `json:"status"`
	Importance Importance `json:"importance"`
	Assignee   string     `json:"assignee,omitempty"`
}

// IsProjectLevel reports whether the entry targets the bare project.
func (e *Entry) IsProjectLevel() bool {
	return e.Target == e.Project
}

// Fields returns the entry's copy-field values with every field set.
func (e *Entry) Fields() FieldSet {
	var fs FieldSet
	for _, d := range CopyFields {
		fs.Set(d.Field, d.Get(e))
	}
	return fs
}

// Apply writes every set field of fs onto the entry.
func (e *Entry) Apply(fs FieldSet) {
	for _, d := range CopyFields {
		if v, ok := fs.Get(d.Field); ok {
			d.Put(e, v)
		}
	}
}

// Clone returns a copy of the entry.
func (e *Entry) Clone() *Entry {
	c := *e
	return &c
}

func (e *Entry) String() string {
	ms := e.Milestone
	if ms == "" {
		ms = "-"
	}
	return fmt.Sprintf("%s [%s %s %s]", e.Target, ms, e.Status, e.Importance)
}

// Project is a remote project with exactly one development focus series.
type Project struct {
	Name  string `json:"name"`
	Focus string `json:"development_focus"`
	Link  string `json:"link,omitempty"`
}

// FocusTarget returns the canonical target of the development focus series.
func (p *Project) FocusTarget() string {
	return SeriesTarget(p.Name, p.Focus)
}

// Qualify prefixes an unqualified target name with the project name.
// "fuel" and "fuel/9.0" are returned unchanged; "9.0" becomes "fuel/9.0".
func (p *Project) Qualify(target string) string {
	if target == p.Name || strings.HasPrefix(target, p.Name+"/") {
		return target
	}
	return SeriesTarget(p.Name, target)
}

// SameTarget reports whether two canonical targets denote the same logical
// target. The bare project and the focus series are aliases.
func (p *Project) SameTarget(a, b string) bool {
	if a == b {
		return true
	}
	focus := p.FocusTarget()
	return (a == p.Name && b == focus) || (a == focus && b == p.Name)
}

// SeriesTarget builds the canonical "project/series" target name.
func SeriesTarget(project, series string) string {
	return project + "/" + series
}

// Series is a named branch of a project.
type Series struct {
	Project string `json:"project"`
	Name    string `json:"name"`
	Status  string `json:"status,omitempty"`
	IsFocus bool   `json:"is_focus,omitempty"`
}

// Target returns the canonical target of the series.
func (s *Series) Target() string {
	return SeriesTarget(s.Project, s.Name)
}

// Milestone is a release point within a series.
type Milestone struct {
	Project  string `json:"project"`
	Name     string `json:"name"`
	Series   string `json:"series"`
	IsActive bool   `json:"is_active"`
	Link     string `json:"link,omitempty"`
}

// SeriesTarget returns the canonical target of the milestone's series.
func (m *Milestone) SeriesTarget() string {
	return SeriesTarget(m.Project, m.Series)
}

// QualifyMilestone returns the fully qualified name used to compare
// milestones across entries: "project/+milestone/name". Already qualified
// names are returned unchanged.
func QualifyMilestone(project, name string) string {
	if name == "" {
		return ""
	}
	if strings.Contains(name, "/+milestone/") {
		return name
	}
	return project + "/+milestone/" + name
}

// CacheRow is the denormalized snapshot of an entry stored in the cache.
// It is used for filtering only, never for mutation.
type CacheRow struct {
	Project    string
	BugID      int
	Target     string
	Milestone  string
	Status     string
	Importance string
	Assignee   string
}

// RowFromEntry projects an entry onto a cache row.
func RowFromEntry(e *Entry) CacheRow {
	return CacheRow{
		Project:    e.Project,
		BugID:      e.IssueID,
		Target:     e.Target,
		Milestone:  e.Milestone,
		Status:     string(e.Status),
		Importance: string(e.Importance),
		Assignee:   e.Assignee,
	}
}

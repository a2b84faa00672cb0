// Package trackertest provides an in-memory tracker.Remote for tests.
package trackertest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lp-tools/lpmigrate/internal/tracker"
	"github.com/lp-tools/lpmigrate/internal/types"
)

// Remote is an in-memory remote service. Issue returns deep copies, so an
// engine only changes remote state through AddEntry and SaveEntry.
type Remote struct {
	mu         sync.Mutex
	projects   map[string]*types.Project
	series     map[string]*types.Series
	milestones map[string]*types.Milestone
	issues     map[int]*types.Issue

	// Calls records mutating calls in order, e.g. "add 100 fuel/9.0" and
	// "save 100 fuel/9.0".
	Calls []string

	// SaveErr and AddErr fail mutations for the given target.
	SaveErr map[string]error
	AddErr  map[string]error
}

var _ tracker.Remote = (*Remote)(nil)

// New returns an empty remote.
func New() *Remote {
	return &Remote{
		projects:   make(map[string]*types.Project),
		series:     make(map[string]*types.Series),
		milestones: make(map[string]*types.Milestone),
		issues:     make(map[int]*types.Issue),
		SaveErr:    make(map[string]error),
		AddErr:     make(map[string]error),
	}
}

// AddProject registers a project with its focus series and further series.
func (r *Remote) AddProject(name, focus string, series ...string) *types.Project {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := &types.Project{Name: name, Focus: focus}
	r.projects[name] = p
	for _, s := range append([]string{focus}, series...) {
		r.series[name+"/"+s] = &types.Series{Project: name, Name: s, Status: "Active Development", IsFocus: s == focus}
	}
	return p
}

// AddMilestone registers a milestone of a series.
func (r *Remote) AddMilestone(project, series, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.milestones[types.QualifyMilestone(project, name)] = &types.Milestone{
		Project: project, Name: name, Series: series, IsActive: true,
	}
}

// AddIssue registers an issue. Entry links, issue ids and projects are
// filled in when empty.
func (r *Remote) AddIssue(issue *types.Issue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range issue.Entries {
		e.IssueID = issue.ID
		if e.Project == "" {
			e.Project, _, _ = strings.Cut(e.Target, "/")
		}
		if e.Link == "" {
			e.Link = entryLink(issue.ID, e.Target)
		}
	}
	r.issues[issue.ID] = issue
}

// Entry returns a copy of the stored entry of an issue for target.
func (r *Remote) Entry(id int, target string) (*types.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	issue, ok := r.issues[id]
	if !ok {
		return nil, false
	}
	for _, e := range issue.Entries {
		if e.Target == target {
			return e.Clone(), true
		}
	}
	return nil, false
}

// Mutations returns the number of recorded mutating calls.
func (r *Remote) Mutations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}

func (r *Remote) Project(_ context.Context, name string) (*types.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[name]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", name, tracker.ErrNotFound)
	}
	c := *p
	return &c, nil
}

func (r *Remote) Milestone(_ context.Context, project, name string) (*types.Milestone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.milestones[types.QualifyMilestone(project, name)]
	if !ok {
		return nil, fmt.Errorf("milestone %s: %w", name, tracker.ErrNotFound)
	}
	c := *m
	return &c, nil
}

func (r *Remote) Series(_ context.Context, project, name string) (*types.Series, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.series[project+"/"+name]
	if !ok {
		return nil, fmt.Errorf("series %s/%s: %w", project, name, tracker.ErrNotFound)
	}
	c := *s
	return &c, nil
}

func (r *Remote) Issue(_ context.Context, id int) (*types.Issue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	issue, ok := r.issues[id]
	if !ok {
		return nil, fmt.Errorf("issue %d: %w", id, tracker.ErrNotFound)
	}
	c := *issue
	c.Tags = append([]string(nil), issue.Tags...)
	c.Entries = make([]*types.Entry, len(issue.Entries))
	for i, e := range issue.Entries {
		c.Entries[i] = e.Clone()
	}
	return &c, nil
}

func (r *Remote) AddEntry(_ context.Context, issue *types.Issue, target string) (*types.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, fmt.Sprintf("add %d %s", issue.ID, target))
	if err := r.AddErr[target]; err != nil {
		return nil, err
	}
	stored, ok := r.issues[issue.ID]
	if !ok {
		return nil, fmt.Errorf("issue %d: %w", issue.ID, tracker.ErrNotFound)
	}
	for _, e := range stored.Entries {
		if e.Target == target {
			return nil, fmt.Errorf("issue %d already has an entry for %s", issue.ID, target)
		}
	}
	project, _, _ := strings.Cut(target, "/")
	e := &types.Entry{
		Link:       entryLink(issue.ID, target),
		IssueID:    issue.ID,
		Project:    project,
		Target:     target,
		Status:     types.StatusNew,
		Importance: types.ImportanceUndecided,
	}
	stored.Entries = append(stored.Entries, e)
	return e.Clone(), nil
}

func (r *Remote) SaveEntry(_ context.Context, entry *types.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, fmt.Sprintf("save %d %s", entry.IssueID, entry.Target))
	if err := r.SaveErr[entry.Target]; err != nil {
		return err
	}
	stored, ok := r.issues[entry.IssueID]
	if !ok {
		return fmt.Errorf("issue %d: %w", entry.IssueID, tracker.ErrNotFound)
	}
	for _, e := range stored.Entries {
		if e.Link == entry.Link {
			e.Apply(entry.Fields())
			return nil
		}
	}
	return fmt.Errorf("entry %s: %w", entry.Link, tracker.ErrNotFound)
}

func (r *Remote) SearchEntries(_ context.Context, project string, opts tracker.SearchOptions) ([]*types.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int, 0, len(r.issues))
	for id := range r.issues {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var out []*types.Entry
	for _, id := range ids {
		for _, e := range r.issues[id].Entries {
			if e.Project != project || !statusIn(e.Status, opts.Statuses) {
				continue
			}
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (r *Remote) WebLink(id int) string {
	return fmt.Sprintf("https://bugs.example.test/bugs/%d", id)
}

func statusIn(s types.Status, statuses []types.Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}

func entryLink(id int, target string) string {
	return fmt.Sprintf("mem://%s/+bug/%d", target, id)
}

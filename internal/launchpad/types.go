// Package launchpad provides a client for the Launchpad web service API
// implementing tracker.Remote.
package launchpad

import (
	"time"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the Launchpad web service root.
	DefaultAPIEndpoint = "https://api.launchpad.net/devel"

	// DefaultWebRoot is the root of human-facing bug pages.
	DefaultWebRoot = "https://bugs.launchpad.net"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxRetries is the maximum number of retries for idempotent requests.
	MaxRetries = 3

	// RetryDelay is the initial delay between retries (exponential backoff).
	RetryDelay = time.Second

	// MaxPageSize is the collection page size requested from the API.
	MaxPageSize = 75
)

// projectResource is a Launchpad project ("product").
type projectResource struct {
	Name                 string `json:"name"`
	SelfLink             string `json:"self_link"`
	DevelopmentFocusLink string `json:"development_focus_link"`
}

// seriesResource is a project series.
type seriesResource struct {
	Name     string `json:"name"`
	SelfLink string `json:"self_link"`
	Status   string `json:"status"`
	Active   bool   `json:"active"`
}

// milestoneResource is a project milestone.
type milestoneResource struct {
	Name             string `json:"name"`
	SelfLink         string `json:"self_link"`
	SeriesTargetLink string `json:"series_target_link"`
	IsActive         bool   `json:"is_active"`
}

// bugResource is a bug without its tasks.
type bugResource struct {
	ID                     int      `json:"id"`
	Title                  string   `json:"title"`
	WebLink                string   `json:"web_link"`
	Tags                   []string `json:"tags"`
	BugTasksCollectionLink string   `json:"bug_tasks_collection_link"`
}

// bugTaskResource is one tracking entry ("bug task") of a bug.
type bugTaskResource struct {
	SelfLink      string `json:"self_link"`
	BugLink       string `json:"bug_link"`
	TargetLink    string `json:"target_link"`
	MilestoneLink string `json:"milestone_link"`
	Status        string `json:"status"`
	Importance    string `json:"importance"`
	AssigneeLink  string `json:"assignee_link"`
}

// bugTaskPatch is the body of a bug task save. Nil links clear the field.
type bugTaskPatch struct {
	MilestoneLink *string `json:"milestone_link"`
	Status        string  `json:"status"`
	Importance    string  `json:"importance"`
	AssigneeLink  *string `json:"assignee_link"`
}

// collection is one page of a Launchpad collection.
type collection[T any] struct {
	TotalSize          int    `json:"total_size"`
	Start              int    `json:"start"`
	Entries            []T    `json:"entries"`
	NextCollectionLink string `json:"next_collection_link"`
}

package launchpad

import (
	"strconv"
	"strings"

	"github.com/lp-tools/lpmigrate/internal/types"
)

// relPath returns link relative to the API root: ".../devel/fuel/9.0"
// becomes "fuel/9.0". Links outside the API root are returned as-is.
func (c *Client) relPath(link string) string {
	base := strings.TrimSuffix(c.BaseURL, "/") + "/"
	return strings.TrimPrefix(link, base)
}

// link is the inverse of relPath.
func (c *Client) link(path string) string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

func lastSegment(link string) string {
	link = strings.TrimSuffix(link, "/")
	if i := strings.LastIndex(link, "/"); i >= 0 {
		return link[i+1:]
	}
	return link
}

// milestoneName extracts "8.0" from ".../fuel/+milestone/8.0".
func milestoneName(link string) string {
	if link == "" {
		return ""
	}
	if _, name, ok := strings.Cut(link, "/+milestone/"); ok {
		return name
	}
	return lastSegment(link)
}

// personName extracts "jdoe" from ".../~jdoe".
func personName(link string) string {
	if link == "" {
		return ""
	}
	return types.NormalizeAssignee(lastSegment(link))
}

// bugIDFromLink extracts 123 from ".../bugs/123" or ".../fuel/+bug/123".
func bugIDFromLink(link string) int {
	id, err := strconv.Atoi(lastSegment(link))
	if err != nil {
		return 0
	}
	return id
}

// toEntry converts a bug task. The canonical target is the target link
// relative to the API root; its first segment is the owning project.
func (c *Client) toEntry(bt *bugTaskResource) *types.Entry {
	target := c.relPath(bt.TargetLink)
	project, _, _ := strings.Cut(target, "/")
	return &types.Entry{
		Link:       bt.SelfLink,
		IssueID:    bugIDFromLink(bt.BugLink),
		Project:    project,
		Target:     target,
		Milestone:  milestoneName(bt.MilestoneLink),
		Status:     types.Status(bt.Status),
		Importance: types.Importance(bt.Importance),
		Assignee:   personName(bt.AssigneeLink),
	}
}

// toPatch converts the copy-fields of an entry to a save body.
func (c *Client) toPatch(e *types.Entry) bugTaskPatch {
	patch := bugTaskPatch{
		Status:     string(e.Status),
		Importance: string(e.Importance),
	}
	if e.Milestone != "" {
		l := c.link(e.Project + "/+milestone/" + strings.TrimPrefix(e.Milestone, e.Project+"/+milestone/"))
		patch.MilestoneLink = &l
	}
	if e.Assignee != "" {
		l := c.link("~" + types.NormalizeAssignee(e.Assignee))
		patch.AssigneeLink = &l
	}
	return patch
}

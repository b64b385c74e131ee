package models

import (
	"strconv"
	"strings"
)

// WorkItem is the capability set every work item variant exposes. The
// concrete shapes (Jira issue, Todoist task, GitHub issue, Azure DevOps work
// item) carry provider-native fields and project them onto this interface.
//
// Priorities are normalized so that a higher value means more urgent; nil
// means the provider reported no priority.
type WorkItem interface {
	ID() string
	Title() string
	Status() string
	Priority() *int
	URL() string
	Assignee() *string
	DueDate() *string
	IsOpen() bool
	DisplayKey() string
	DisplayStatus() string
	AdapterType() string
	AdapterIcon() string
}

// Adapter carries the provider tag and display hint every normalized value
// is stamped with. It doubles as the discriminator on the serialized form.
type Adapter struct {
	Type string `json:"adapter_type"`
	Icon string `json:"adapter_icon"`
}

// AdapterType returns the stable provider tag (e.g. "jira").
func (a Adapter) AdapterType() string { return a.Type }

// AdapterIcon returns the display hint for the provider.
func (a Adapter) AdapterIcon() string { return a.Icon }

// JiraIssue is a work item backed by a Jira issue.
type JiraIssue struct {
	Adapter
	Key           string  `json:"key"`
	Summary       string  `json:"summary"`
	State         string  `json:"status"`
	PriorityLevel *int    `json:"priority,omitempty"`
	AssigneeName  *string `json:"assignee,omitempty"`
	Link          string  `json:"url"`
	Due           *string `json:"due_date,omitempty"`
}

func (j JiraIssue) ID() string         { return j.Key }
func (j JiraIssue) Title() string      { return j.Summary }
func (j JiraIssue) Status() string     { return j.State }
func (j JiraIssue) Priority() *int     { return j.PriorityLevel }
func (j JiraIssue) URL() string        { return j.Link }
func (j JiraIssue) Assignee() *string  { return j.AssigneeName }
func (j JiraIssue) DueDate() *string   { return j.Due }
func (j JiraIssue) DisplayKey() string { return j.Key }

// DisplayStatus returns the Jira status upper-cased for display.
func (j JiraIssue) DisplayStatus() string { return strings.ToUpper(j.State) }

// IsOpen reports whether the issue has not reached a terminal Jira status.
func (j JiraIssue) IsOpen() bool {
	switch strings.ToLower(j.State) {
	case "done", "closed", "resolved", "cancelled":
		return false
	}
	return true
}

// TodoistTask is a work item backed by a Todoist task.
type TodoistTask struct {
	Adapter
	TaskID        string  `json:"id"`
	Content       string  `json:"content"`
	Completed     bool    `json:"completed"`
	PriorityLevel *int    `json:"priority,omitempty"`
	Link          string  `json:"url"`
	Due           *string `json:"due_date,omitempty"`
	ProjectName   string  `json:"project,omitempty"`
}

func (t TodoistTask) ID() string        { return t.TaskID }
func (t TodoistTask) Title() string     { return t.Content }
func (t TodoistTask) Priority() *int    { return t.PriorityLevel }
func (t TodoistTask) URL() string       { return t.Link }
func (t TodoistTask) Assignee() *string { return nil }
func (t TodoistTask) DueDate() *string  { return t.Due }
func (t TodoistTask) IsOpen() bool      { return !t.Completed }

// Status derives a status string from the completion flag; Todoist has no
// native status field.
func (t TodoistTask) Status() string {
	if t.Completed {
		return "done"
	}
	return "todo"
}

func (t TodoistTask) DisplayKey() string    { return t.TaskID }
func (t TodoistTask) DisplayStatus() string { return strings.ToUpper(t.Status()) }

// GitHubIssue is a work item backed by a GitHub issue.
type GitHubIssue struct {
	Adapter
	Number       int     `json:"number"`
	IssueTitle   string  `json:"title"`
	State        string  `json:"state"`
	AssigneeName *string `json:"assignee,omitempty"`
	Link         string  `json:"url"`
	Repository   string  `json:"repository,omitempty"`
}

func (g GitHubIssue) ID() string         { return g.Link }
func (g GitHubIssue) Title() string      { return g.IssueTitle }
func (g GitHubIssue) Status() string     { return g.State }
func (g GitHubIssue) Priority() *int     { return nil }
func (g GitHubIssue) URL() string        { return g.Link }
func (g GitHubIssue) Assignee() *string  { return g.AssigneeName }
func (g GitHubIssue) DueDate() *string   { return nil }
func (g GitHubIssue) IsOpen() bool       { return strings.EqualFold(g.State, "open") }
func (g GitHubIssue) DisplayStatus() string { return strings.ToUpper(g.State) }

// DisplayKey renders the issue number the way GitHub does.
func (g GitHubIssue) DisplayKey() string {
	return "#" + strconv.Itoa(g.Number)
}

// AzureWorkItem is a work item backed by an Azure DevOps work item.
type AzureWorkItem struct {
	Adapter
	WorkItemID    int     `json:"id"`
	ItemTitle     string  `json:"title"`
	State         string  `json:"state"`
	WorkItemType  string  `json:"work_item_type,omitempty"`
	PriorityLevel *int    `json:"priority,omitempty"`
	AssigneeName  *string `json:"assignee,omitempty"`
	Link          string  `json:"url"`
	Due           *string `json:"due_date,omitempty"`
}

func (a AzureWorkItem) ID() string           { return strconv.Itoa(a.WorkItemID) }
func (a AzureWorkItem) Title() string        { return a.ItemTitle }
func (a AzureWorkItem) Status() string       { return a.State }
func (a AzureWorkItem) Priority() *int       { return a.PriorityLevel }
func (a AzureWorkItem) URL() string          { return a.Link }
func (a AzureWorkItem) Assignee() *string    { return a.AssigneeName }
func (a AzureWorkItem) DueDate() *string     { return a.Due }
func (a AzureWorkItem) DisplayStatus() string { return strings.ToUpper(a.State) }

// DisplayKey renders the numeric work item id with the conventional prefix.
func (a AzureWorkItem) DisplayKey() string {
	return "#" + strconv.Itoa(a.WorkItemID)
}

// IsOpen reports whether the work item has not reached a terminal state.
func (a AzureWorkItem) IsOpen() bool {
	switch strings.ToLower(a.State) {
	case "closed", "done", "removed", "resolved", "completed":
		return false
	}
	return true
}


// Package jira provides the Jira work item source. It shells out to the
// acli CLI (jira workitem search with JQL) and parses the JSON output.
package jira

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/notaproblemdotdev/monodash/common"
	"github.com/notaproblemdotdev/monodash/models"
	"github.com/notaproblemdotdev/monodash/sources/cliutil"
)

const (
	sourceType = "jira"
	sourceIcon = "🔴"
	cliName    = "acli"

	assignedJQL = "assignee = currentUser() AND statusCategory != Done"
)

// Jira priority names, most urgent first. The normalized priority is the
// reversed index so that a higher number means more urgent.
var priorityLevels = map[string]int{
	"highest": 5,
	"high":    4,
	"medium":  3,
	"low":     2,
	"lowest":  1,
}

// workItem mirrors the acli JSON output for a Jira work item.
type workItem struct {
	Key      string `json:"key"`
	Summary  string `json:"summary"`
	Status   status `json:"status"`
	Priority name   `json:"priority"`
	Assignee name   `json:"assignee"`
	DueDate  string `json:"duedate"`
	Links    links  `json:"links"`
}

type status struct {
	Name string `json:"name"`
}

type name struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type links struct {
	Self string `json:"self"`
}

// Config contains the settings for a Jira source.
type Config struct {
	BaseURL string // Jira base URL, e.g. "https://company.atlassian.net"
}

// Source fetches Jira issues through the acli CLI.
type Source struct {
	config Config
}

// New creates a Jira source from the given configuration.
func New(config Config) *Source {
	return &Source{config: Config{BaseURL: strings.TrimRight(config.BaseURL, "/")}}
}

// SourceType returns the stable provider tag.
func (s *Source) SourceType() string { return sourceType }

// SourceIcon returns the display hint for the provider.
func (s *Source) SourceIcon() string { return sourceIcon }

// IsAvailable reports whether the acli CLI is installed.
func (s *Source) IsAvailable(_ context.Context) bool {
	return cliutil.IsInstalled(cliName)
}

// CheckAuth runs acli jira auth status with a short deadline.
func (s *Source) CheckAuth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, _, err := cliutil.Run(ctx, cliName, "jira", "auth", "status")
	if err != nil {
		common.WithSource(sourceType).Warn("Jira not authenticated")
		return false
	}
	return true
}

// FetchItems returns issues assigned to the current user that have not
// reached a done status category.
func (s *Source) FetchItems(ctx context.Context) ([]models.WorkItem, error) {
	var raw []workItem
	err := cliutil.FetchJSON(ctx, &raw, cliName,
		"jira", "workitem", "search",
		"--jql", assignedJQL,
		"--fields", "issuetype,key,assignee,priority,status,summary,duedate",
		"--json",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch jira work items: %w", err)
	}

	items := make([]models.WorkItem, 0, len(raw))
	for _, wi := range raw {
		items = append(items, s.convertWorkItem(wi))
	}
	return items, nil
}

func (s *Source) convertWorkItem(wi workItem) models.JiraIssue {
	issue := models.JiraIssue{
		Adapter: models.Adapter{
			Type: models.AdapterJira,
			Icon: sourceIcon,
		},
		Key:     wi.Key,
		Summary: wi.Summary,
		State:   wi.Status.Name,
		Link:    s.browseURL(wi),
	}

	if level, ok := priorityLevels[strings.ToLower(wi.Priority.Name)]; ok {
		issue.PriorityLevel = &level
	}
	if assignee := firstNonEmpty(wi.Assignee.DisplayName, wi.Assignee.Name); assignee != "" {
		issue.AssigneeName = &assignee
	}
	if wi.DueDate != "" {
		due := wi.DueDate
		issue.Due = &due
	}
	return issue
}

// browseURL prefers the human-facing issue URL derived from the configured
// base URL, falling back to the API self link.
func (s *Source) browseURL(wi workItem) string {
	if s.config.BaseURL != "" {
		return s.config.BaseURL + "/browse/" + wi.Key
	}
	return wi.Links.Self
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

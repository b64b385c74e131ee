// Package models provides the normalized data model shared by the source
// adapters, the cache, and the work store. Adapters convert provider-native
// payloads (GitLab MRs, GitHub PRs, Jira issues, Todoist tasks, Azure DevOps
// work items) into these shapes; the cache persists them as JSON arrays and
// the deserializer reconstructs them by adapter tag.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Code review states. Every adapter maps its provider-native state into this
// set before a CodeReview leaves the adapter boundary.
const (
	ReviewStateOpen   = "open"
	ReviewStateClosed = "closed"
	ReviewStateMerged = "merged"
)

// CodeReview is the normalized record of a merge request or pull request.
//
// The id is unique within an adapter type, the key is the human label the
// provider renders ("!123" for GitLab, "#456" for GitHub).
type CodeReview struct {
	ID           string     `json:"id"`
	Key          string     `json:"key"`
	Title        string     `json:"title"`
	State        string     `json:"state"`
	Author       string     `json:"author"`
	SourceBranch string     `json:"source_branch"`
	URL          string     `json:"url"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	Draft        bool       `json:"draft"`
	AdapterType  string     `json:"adapter_type"`
	AdapterIcon  string     `json:"adapter_icon"`
}

// Validate checks the CodeReview invariants: non-empty title and a state
// drawn from the enumerated set.
func (r CodeReview) Validate() error {
	if r.Title == "" {
		return fmt.Errorf("code review %s: title must not be empty", r.ID)
	}
	switch r.State {
	case ReviewStateOpen, ReviewStateClosed, ReviewStateMerged:
	default:
		return fmt.Errorf("code review %s: invalid state %q", r.ID, r.State)
	}
	return nil
}

// DisplayKey returns the formatted key for display.
func (r CodeReview) DisplayKey() string {
	return r.Key
}

// DisplayStatus returns the normalized status string for display.
func (r CodeReview) DisplayStatus() string {
	return strings.ToUpper(r.State)
}

// IsOpen reports whether the code review is still open.
func (r CodeReview) IsOpen() bool {
	return r.State == ReviewStateOpen
}

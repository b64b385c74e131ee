package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }

// TestCodeReview_Validate tests the CodeReview invariants
func TestCodeReview_Validate(t *testing.T) {
	valid := CodeReview{
		ID:          "1",
		Key:         "!1",
		Title:       "Fix login flow",
		State:       ReviewStateOpen,
		Author:      "alice",
		URL:         "https://example.com/mr/1",
		AdapterType: AdapterGitLab,
		AdapterIcon: "🦊",
	}

	t.Run("valid review", func(t *testing.T) {
		assert.NoError(t, valid.Validate())
	})

	t.Run("empty title rejected", func(t *testing.T) {
		review := valid
		review.Title = ""
		assert.Error(t, review.Validate())
	})

	t.Run("state outside the enumerated set rejected", func(t *testing.T) {
		review := valid
		review.State = "locked"
		assert.Error(t, review.Validate())
	})

	t.Run("all enumerated states accepted", func(t *testing.T) {
		for _, state := range []string{ReviewStateOpen, ReviewStateClosed, ReviewStateMerged} {
			review := valid
			review.State = state
			assert.NoError(t, review.Validate(), state)
		}
	})
}

// TestCodeReview_Display tests the display helpers
func TestCodeReview_Display(t *testing.T) {
	review := CodeReview{Key: "#42", State: ReviewStateMerged, Title: "t"}
	assert.Equal(t, "#42", review.DisplayKey())
	assert.Equal(t, "MERGED", review.DisplayStatus())
	assert.False(t, review.IsOpen())

	review.State = ReviewStateOpen
	assert.True(t, review.IsOpen())
}

// TestCodeReviews_RoundTrip tests serialize/deserialize symmetry
func TestCodeReviews_RoundTrip(t *testing.T) {
	createdAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	reviews := []CodeReview{
		{
			ID:           "gitlab-1",
			Key:          "!1",
			Title:        "Fix",
			State:        ReviewStateOpen,
			Author:       "alice",
			SourceBranch: "fix/login",
			URL:          "u1",
			CreatedAt:    &createdAt,
			Draft:        true,
			AdapterType:  AdapterGitLab,
			AdapterIcon:  "🦊",
		},
		{
			ID:          "2",
			Key:         "#2",
			Title:       "Add metrics",
			State:       ReviewStateMerged,
			Author:      "bob",
			URL:         "u2",
			AdapterType: AdapterGitHub,
			AdapterIcon: "🐙",
		},
	}

	payload, err := MarshalCodeReviews(reviews)
	require.NoError(t, err)

	decoded, err := UnmarshalCodeReviews(payload)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, reviews[0].ID, decoded[0].ID)
	assert.True(t, reviews[0].CreatedAt.Equal(*decoded[0].CreatedAt))
	decoded[0].CreatedAt = reviews[0].CreatedAt
	assert.Equal(t, reviews, decoded)
}

// TestWorkItems_RoundTrip tests the tagged variant codec for every kind
func TestWorkItems_RoundTrip(t *testing.T) {
	items := []WorkItem{
		JiraIssue{
			Adapter:       Adapter{Type: AdapterJira, Icon: "🔴"},
			Key:           "PROJ-1",
			Summary:       "Investigate outage",
			State:         "In Progress",
			PriorityLevel: intPtr(4),
			AssigneeName:  strPtr("alice"),
			Link:          "https://jira/browse/PROJ-1",
			Due:           strPtr("2025-04-01"),
		},
		TodoistTask{
			Adapter:       Adapter{Type: AdapterTodoist, Icon: "✅"},
			TaskID:        "123",
			Content:       "Write report",
			PriorityLevel: intPtr(2),
			Link:          "https://todoist/task/123",
		},
		GitHubIssue{
			Adapter:    Adapter{Type: AdapterGitHub, Icon: "🐙"},
			Number:     7,
			IssueTitle: "Flaky test",
			State:      "open",
			Link:       "https://github.com/o/r/issues/7",
		},
		AzureWorkItem{
			Adapter:       Adapter{Type: AdapterAzureDevOps, Icon: "🔷"},
			WorkItemID:    99,
			ItemTitle:     "Harden deployment",
			State:         "Active",
			WorkItemType:  "Task",
			PriorityLevel: intPtr(3),
			Link:          "https://dev.azure.com/org/p/_workitems/edit/99",
		},
	}

	payload, err := MarshalWorkItems(items)
	require.NoError(t, err)

	decoded, err := UnmarshalWorkItems(payload)
	require.NoError(t, err)
	require.Len(t, decoded, len(items))
	assert.Equal(t, items, decoded)
}

// TestUnmarshalWorkItems_UnknownKind tests that unknown adapter tags are
// skipped without failing the payload
func TestUnmarshalWorkItems_UnknownKind(t *testing.T) {
	payload := []byte(`[
		{"adapter_type":"linear","id":"l-1","title":"future kind"},
		{"adapter_type":"jira","adapter_icon":"🔴","key":"PROJ-2","summary":"Known kind","status":"To Do","url":"u"}
	]`)

	decoded, err := UnmarshalWorkItems(payload)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, "PROJ-2", decoded[0].ID())
}

// TestUnmarshalWorkItems_InvalidPayload tests that a non-array payload errors
func TestUnmarshalWorkItems_InvalidPayload(t *testing.T) {
	_, err := UnmarshalWorkItems([]byte(`{"not":"an array"}`))
	assert.Error(t, err)
}

// TestWorkItem_Capabilities tests the capability projection of each variant
func TestWorkItem_Capabilities(t *testing.T) {
	t.Run("jira", func(t *testing.T) {
		issue := JiraIssue{Key: "PROJ-1", Summary: "s", State: "Done"}
		assert.Equal(t, "PROJ-1", issue.ID())
		assert.Equal(t, "PROJ-1", issue.DisplayKey())
		assert.Equal(t, "DONE", issue.DisplayStatus())
		assert.False(t, issue.IsOpen())
		assert.True(t, JiraIssue{State: "In Progress"}.IsOpen())
	})

	t.Run("todoist", func(t *testing.T) {
		task := TodoistTask{TaskID: "1", Content: "c"}
		assert.Equal(t, "todo", task.Status())
		assert.True(t, task.IsOpen())
		assert.Nil(t, task.Assignee())

		task.Completed = true
		assert.Equal(t, "done", task.Status())
		assert.False(t, task.IsOpen())
	})

	t.Run("github", func(t *testing.T) {
		issue := GitHubIssue{Number: 7, State: "open", Link: "u"}
		assert.Equal(t, "#7", issue.DisplayKey())
		assert.True(t, issue.IsOpen())
		assert.Nil(t, issue.Priority())
	})

	t.Run("azuredevops", func(t *testing.T) {
		item := AzureWorkItem{WorkItemID: 99, State: "Closed"}
		assert.Equal(t, "99", item.ID())
		assert.Equal(t, "#99", item.DisplayKey())
		assert.False(t, item.IsOpen())
		assert.True(t, AzureWorkItem{State: "Active"}.IsOpen())
	})
}

// TestWorkItem_WireFormat pins the discriminator field name on the wire
func TestWorkItem_WireFormat(t *testing.T) {
	payload, err := MarshalWorkItems([]WorkItem{
		JiraIssue{Adapter: Adapter{Type: AdapterJira, Icon: "🔴"}, Key: "PROJ-3", Summary: "s", State: "To Do", Link: "u"},
	})
	require.NoError(t, err)

	var generic []map[string]any
	require.NoError(t, json.Unmarshal(payload, &generic))
	require.Len(t, generic, 1)
	assert.Equal(t, "jira", generic[0]["adapter_type"])
	assert.Equal(t, "PROJ-3", generic[0]["key"])
}

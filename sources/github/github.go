// Package github provides the GitHub source, serving both code reviews
// (pull requests) and work items (issues). It shells out to the gh CLI and
// parses its JSON output; cliutil caps the subprocess concurrency.
package github

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/notaproblemdotdev/monodash/common"
	"github.com/notaproblemdotdev/monodash/models"
	"github.com/notaproblemdotdev/monodash/sources/cliutil"
)

const (
	sourceType = "github"
	sourceIcon = "🐙"
	cliName    = "gh"

	prFields    = "number,title,state,author,url,createdAt,headRefName,isDraft"
	issueFields = "number,title,state,author,url,assignees"
)

// pullRequest mirrors the gh CLI --json output for pull requests.
type pullRequest struct {
	Number      int       `json:"number"`
	Title       string    `json:"title"`
	State       string    `json:"state"`
	Author      ghUser    `json:"author"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"createdAt"`
	HeadRefName string    `json:"headRefName"`
	IsDraft     bool      `json:"isDraft"`
}

// issue mirrors the gh CLI --json output for issues.
type issue struct {
	Number    int      `json:"number"`
	Title     string   `json:"title"`
	State     string   `json:"state"`
	Author    ghUser   `json:"author"`
	URL       string   `json:"url"`
	Assignees []ghUser `json:"assignees"`
}

type ghUser struct {
	Login string `json:"login"`
	Name  string `json:"name"`
}

// Source fetches pull requests and issues through the gh CLI.
type Source struct{}

// New creates a GitHub source.
func New() *Source {
	return &Source{}
}

// SourceType returns the stable provider tag.
func (s *Source) SourceType() string { return sourceType }

// SourceIcon returns the display hint for the provider.
func (s *Source) SourceIcon() string { return sourceIcon }

// IsAvailable reports whether the gh CLI is installed.
func (s *Source) IsAvailable(_ context.Context) bool {
	return cliutil.IsInstalled(cliName)
}

// CheckAuth runs gh auth status with a short deadline; gh never prompts in
// this mode.
func (s *Source) CheckAuth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, _, err := cliutil.Run(ctx, cliName, "auth", "status")
	if err != nil {
		common.WithSource(sourceType).Warn("GitHub not authenticated")
		return false
	}
	return true
}

// FetchAssigned returns open pull requests assigned to the current user.
func (s *Source) FetchAssigned(ctx context.Context) ([]models.CodeReview, error) {
	return s.fetchPRs(ctx, "pr", "list", "--assignee", "@me", "--state", "open", "--json", prFields)
}

// FetchAuthored returns open pull requests authored by the current user.
func (s *Source) FetchAuthored(ctx context.Context) ([]models.CodeReview, error) {
	return s.fetchPRs(ctx, "pr", "list", "--author", "@me", "--state", "open", "--json", prFields)
}

// FetchPendingReview returns open pull requests requesting the current
// user's review.
func (s *Source) FetchPendingReview(ctx context.Context) ([]models.CodeReview, error) {
	return s.fetchPRs(ctx, "search", "prs", "--", "review-requested:@me", "state:open", "--json", prFields)
}

// FetchItems returns open issues assigned to the current user.
func (s *Source) FetchItems(ctx context.Context) ([]models.WorkItem, error) {
	var issues []issue
	if err := cliutil.FetchJSON(ctx, &issues, cliName, "issue", "list", "--assignee", "@me", "--state", "open", "--json", issueFields); err != nil {
		return nil, fmt.Errorf("failed to fetch github issues: %w", err)
	}

	items := make([]models.WorkItem, 0, len(issues))
	for _, is := range issues {
		items = append(items, s.convertIssue(is))
	}
	return items, nil
}

func (s *Source) fetchPRs(ctx context.Context, args ...string) ([]models.CodeReview, error) {
	var prs []pullRequest
	if err := cliutil.FetchJSON(ctx, &prs, cliName, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch github pull requests: %w", err)
	}

	reviews := make([]models.CodeReview, 0, len(prs))
	for _, pr := range prs {
		reviews = append(reviews, s.convertPullRequest(pr))
	}
	return reviews, nil
}

// convertPullRequest maps a gh CLI pull request onto the normalized shape.
// gh reports states in upper case ("OPEN"); the normalized set is lower
// case.
func (s *Source) convertPullRequest(pr pullRequest) models.CodeReview {
	state := normalizeState(pr.State)

	author := pr.Author.Login
	if pr.Author.Name != "" {
		author = pr.Author.Name
	}
	if author == "" {
		author = "Unknown"
	}

	review := models.CodeReview{
		ID:           strconv.Itoa(pr.Number),
		Key:          "#" + strconv.Itoa(pr.Number),
		Title:        pr.Title,
		State:        state,
		Author:       author,
		SourceBranch: pr.HeadRefName,
		URL:          pr.URL,
		Draft:        pr.IsDraft,
		AdapterType:  sourceType,
		AdapterIcon:  sourceIcon,
	}
	if !pr.CreatedAt.IsZero() {
		createdAt := pr.CreatedAt
		review.CreatedAt = &createdAt
	}
	return review
}

func (s *Source) convertIssue(is issue) models.GitHubIssue {
	item := models.GitHubIssue{
		Adapter: models.Adapter{
			Type: models.AdapterGitHub,
			Icon: sourceIcon,
		},
		Number:     is.Number,
		IssueTitle: is.Title,
		State:      normalizeState(is.State),
		Link:       is.URL,
	}
	if len(is.Assignees) > 0 && is.Assignees[0].Login != "" {
		assignee := is.Assignees[0].Login
		item.AssigneeName = &assignee
	}
	return item
}

func normalizeState(state string) string {
	switch state {
	case "OPEN", "open":
		return models.ReviewStateOpen
	case "CLOSED", "closed":
		return models.ReviewStateClosed
	case "MERGED", "merged":
		return models.ReviewStateMerged
	default:
		return models.ReviewStateOpen
	}
}

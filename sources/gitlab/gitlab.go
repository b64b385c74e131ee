// Package gitlab provides the GitLab code review source. It fetches merge
// requests through the official GitLab API client and normalizes them into
// CodeReview values.
package gitlab

import (
	"context"
	"fmt"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/notaproblemdotdev/monodash/common"
	"github.com/notaproblemdotdev/monodash/models"
)

const (
	sourceType = "gitlab"
	sourceIcon = "🦊"
)

// Config contains the connection settings for a GitLab source.
type Config struct {
	BaseURL string // Base URL of the GitLab instance, e.g. "https://gitlab.example.com"
	Token   string // Personal access token
	Group   string // Optional group to scope merge request searches to
}

// Source fetches merge requests from a GitLab instance.
//
// The client is created once at construction and shared; the GitLab client
// is safe for concurrent use, so one Source can serve concurrent fetch
// tasks.
type Source struct {
	config Config
	client *gitlab.Client
}

// New creates a GitLab source from the given configuration.
func New(config Config) (*Source, error) {
	client, err := gitlab.NewClient(config.Token, gitlab.WithBaseURL(config.BaseURL+"/api/v4"))
	if err != nil {
		return nil, fmt.Errorf("failed to create gitlab client: %w", err)
	}
	return &Source{config: config, client: client}, nil
}

// SourceType returns the stable provider tag.
func (s *Source) SourceType() string { return sourceType }

// SourceIcon returns the display hint for the provider.
func (s *Source) SourceIcon() string { return sourceIcon }

// IsAvailable reports whether the source is configured with an endpoint.
func (s *Source) IsAvailable(_ context.Context) bool {
	return s.config.BaseURL != ""
}

// CheckAuth verifies the token by resolving the current user.
func (s *Source) CheckAuth(ctx context.Context) bool {
	_, _, err := s.client.Users.CurrentUser(gitlab.WithContext(ctx))
	if err != nil {
		common.WithSource(sourceType).WithField("error", err.Error()).Debug("GitLab auth check failed")
		return false
	}
	return true
}

// FetchAssigned returns merge requests assigned to the current user.
func (s *Source) FetchAssigned(ctx context.Context) ([]models.CodeReview, error) {
	return s.fetchByScope(ctx, "assigned_to_me")
}

// FetchAuthored returns merge requests authored by the current user.
func (s *Source) FetchAuthored(ctx context.Context) ([]models.CodeReview, error) {
	return s.fetchByScope(ctx, "created_by_me")
}

// FetchPendingReview returns merge requests where the current user is a
// reviewer.
func (s *Source) FetchPendingReview(ctx context.Context) ([]models.CodeReview, error) {
	user, _, err := s.client.Users.CurrentUser(gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve current user: %w", err)
	}

	options := &gitlab.ListMergeRequestsOptions{
		State:            gitlab.Ptr("opened"),
		Scope:            gitlab.Ptr("all"),
		ReviewerUsername: gitlab.Ptr(user.Username),
	}
	mrs, _, err := s.client.MergeRequests.ListMergeRequests(options, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list merge requests pending review: %w", err)
	}
	return s.convert(mrs), nil
}

func (s *Source) fetchByScope(ctx context.Context, scope string) ([]models.CodeReview, error) {
	options := &gitlab.ListMergeRequestsOptions{
		State: gitlab.Ptr("opened"),
		Scope: gitlab.Ptr(scope),
	}

	if s.config.Group != "" {
		mrs, _, err := s.client.MergeRequests.ListGroupMergeRequests(s.config.Group, &gitlab.ListGroupMergeRequestsOptions{
			State: gitlab.Ptr("opened"),
			Scope: gitlab.Ptr(scope),
		}, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list group merge requests: %w", err)
		}
		return s.convert(mrs), nil
	}

	mrs, _, err := s.client.MergeRequests.ListMergeRequests(options, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list merge requests: %w", err)
	}
	return s.convert(mrs), nil
}

func (s *Source) convert(mrs []*gitlab.BasicMergeRequest) []models.CodeReview {
	reviews := make([]models.CodeReview, 0, len(mrs))
	for _, mr := range mrs {
		reviews = append(reviews, s.convertMergeRequest(mr))
	}
	return reviews
}

// convertMergeRequest maps a GitLab merge request onto the normalized
// CodeReview shape. GitLab reports "opened" where the normalized state set
// says "open"; other states pass through.
func (s *Source) convertMergeRequest(mr *gitlab.BasicMergeRequest) models.CodeReview {
	state := mr.State
	if state == "opened" {
		state = models.ReviewStateOpen
	}

	author := "Unknown"
	if mr.Author != nil {
		if mr.Author.Name != "" {
			author = mr.Author.Name
		} else if mr.Author.Username != "" {
			author = mr.Author.Username
		}
	}

	return models.CodeReview{
		ID:           fmt.Sprintf("%d", mr.IID),
		Key:          fmt.Sprintf("!%d", mr.IID),
		Title:        mr.Title,
		State:        state,
		Author:       author,
		SourceBranch: mr.SourceBranch,
		URL:          mr.WebURL,
		CreatedAt:    mr.CreatedAt,
		Draft:        mr.Draft,
		AdapterType:  sourceType,
		AdapterIcon:  sourceIcon,
	}
}

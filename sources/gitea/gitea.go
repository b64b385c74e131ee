// Package gitea provides the Gitea code review source. It fetches pull
// requests through the Gitea SDK and normalizes them into CodeReview
// values. Forgejo instances speak the same API and work unchanged.
package gitea

import (
	"context"
	"fmt"
	"strconv"

	"code.gitea.io/sdk/gitea"

	"github.com/notaproblemdotdev/monodash/common"
	"github.com/notaproblemdotdev/monodash/models"
)

const (
	sourceType = "gitea"
	sourceIcon = "🍵"
)

// Config contains the connection settings for a Gitea source.
type Config struct {
	BaseURL string   // Base URL of the Gitea instance, e.g. "https://gitea.example.com"
	Token   string   // Access token
	Repos   []string // Repositories to scan, "owner/name" form
}

// Source fetches pull requests from a Gitea instance.
type Source struct {
	config Config
	client *gitea.Client
}

// New creates a Gitea source from the given configuration.
func New(config Config) (*Source, error) {
	client, err := gitea.NewClient(config.BaseURL, gitea.SetToken(config.Token))
	if err != nil {
		return nil, fmt.Errorf("failed to create gitea client: %w", err)
	}
	return &Source{config: config, client: client}, nil
}

// SourceType returns the stable provider tag.
func (s *Source) SourceType() string { return sourceType }

// SourceIcon returns the display hint for the provider.
func (s *Source) SourceIcon() string { return sourceIcon }

// IsAvailable reports whether the source is configured with an endpoint and
// at least one repository to scan.
func (s *Source) IsAvailable(_ context.Context) bool {
	return s.config.BaseURL != "" && len(s.config.Repos) > 0
}

// CheckAuth verifies the token by resolving the current user.
func (s *Source) CheckAuth(_ context.Context) bool {
	_, _, err := s.client.GetMyUserInfo()
	if err != nil {
		common.WithSource(sourceType).WithField("error", err.Error()).Debug("Gitea auth check failed")
		return false
	}
	return true
}

// FetchAssigned returns open pull requests assigned to the current user.
func (s *Source) FetchAssigned(ctx context.Context) ([]models.CodeReview, error) {
	return s.fetch(ctx, func(pr *gitea.PullRequest, login string) bool {
		for _, assignee := range pr.Assignees {
			if assignee != nil && assignee.UserName == login {
				return true
			}
		}
		return pr.Assignee != nil && pr.Assignee.UserName == login
	})
}

// FetchAuthored returns open pull requests authored by the current user.
func (s *Source) FetchAuthored(ctx context.Context) ([]models.CodeReview, error) {
	return s.fetch(ctx, func(pr *gitea.PullRequest, login string) bool {
		return pr.Poster != nil && pr.Poster.UserName == login
	})
}

// FetchPendingReview returns open pull requests requesting the current
// user's review.
func (s *Source) FetchPendingReview(ctx context.Context) ([]models.CodeReview, error) {
	return s.fetch(ctx, func(pr *gitea.PullRequest, login string) bool {
		for _, reviewer := range pr.RequestedReviewers {
			if reviewer != nil && reviewer.UserName == login {
				return true
			}
		}
		return false
	})
}

// fetch lists open pull requests in every configured repository and keeps
// the ones the predicate accepts for the current user.
func (s *Source) fetch(ctx context.Context, keep func(*gitea.PullRequest, string) bool) ([]models.CodeReview, error) {
	user, _, err := s.client.GetMyUserInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve current user: %w", err)
	}

	var reviews []models.CodeReview
	for _, repo := range s.config.Repos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		owner, name, ok := splitRepo(repo)
		if !ok {
			common.WithSource(sourceType).WithField("repo", repo).Warn("Skipping malformed repository reference")
			continue
		}

		prs, _, err := s.client.ListRepoPullRequests(owner, name, gitea.ListPullRequestsOptions{
			State: gitea.StateOpen,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list pull requests for %s: %w", repo, err)
		}

		for _, pr := range prs {
			if pr == nil || !keep(pr, user.UserName) {
				continue
			}
			reviews = append(reviews, s.convertPullRequest(pr))
		}
	}
	return reviews, nil
}

func splitRepo(repo string) (owner, name string, ok bool) {
	for i := 0; i < len(repo); i++ {
		if repo[i] == '/' {
			return repo[:i], repo[i+1:], i > 0 && i < len(repo)-1
		}
	}
	return "", "", false
}

func (s *Source) convertPullRequest(pr *gitea.PullRequest) models.CodeReview {
	state := models.ReviewStateOpen
	switch {
	case pr.HasMerged:
		state = models.ReviewStateMerged
	case pr.State == gitea.StateClosed:
		state = models.ReviewStateClosed
	}

	author := "Unknown"
	if pr.Poster != nil {
		if pr.Poster.FullName != "" {
			author = pr.Poster.FullName
		} else if pr.Poster.UserName != "" {
			author = pr.Poster.UserName
		}
	}

	sourceBranch := ""
	if pr.Head != nil {
		sourceBranch = pr.Head.Ref
	}

	review := models.CodeReview{
		ID:           strconv.FormatInt(pr.Index, 10),
		Key:          "#" + strconv.FormatInt(pr.Index, 10),
		Title:        pr.Title,
		State:        state,
		Author:       author,
		SourceBranch: sourceBranch,
		URL:          pr.HTMLURL,
		Draft:        false,
		AdapterType:  sourceType,
		AdapterIcon:  sourceIcon,
	}
	if pr.Created != nil {
		review.CreatedAt = pr.Created
	}
	return review
}

// Package sources defines the provider abstraction the work store consumes:
// the Source capability set, the CodeReviewSource and WorkItemSource
// interfaces, and the ordered registry sources are registered into.
//
// Concrete adapters live in subpackages (gitlab, github, gitea, jira,
// todoist, azuredevops). Adapters return normalized models values, never
// cache internally, and must be safe for concurrent invocation — the work
// store fans out one goroutine per source.
package sources

import (
	"context"

	"github.com/notaproblemdotdev/monodash/models"
)

// Source is the base capability set every provider adapter implements.
type Source interface {
	// SourceType returns the stable provider tag (e.g. "gitlab").
	SourceType() string

	// SourceIcon returns the display hint for the provider.
	SourceIcon() string

	// IsAvailable reports whether the host tool or API endpoint is usable
	// (CLI installed, endpoint and credentials configured). It does not
	// contact the provider.
	IsAvailable(ctx context.Context) bool

	// CheckAuth reports whether credentials are present and valid.
	CheckAuth(ctx context.Context) bool
}

// CodeReviewSource is implemented by providers that serve merge requests or
// pull requests.
type CodeReviewSource interface {
	Source

	// FetchAssigned returns code reviews assigned to the current user.
	FetchAssigned(ctx context.Context) ([]models.CodeReview, error)

	// FetchAuthored returns code reviews authored by the current user.
	FetchAuthored(ctx context.Context) ([]models.CodeReview, error)

	// FetchPendingReview returns code reviews where the current user is a
	// reviewer. Reserved: the work store read API does not dispatch to it
	// yet.
	FetchPendingReview(ctx context.Context) ([]models.CodeReview, error)
}

// WorkItemSource is implemented by providers that serve issues, tickets, or
// tasks.
type WorkItemSource interface {
	Source

	// FetchItems returns the work items visible to the current user.
	FetchItems(ctx context.Context) ([]models.WorkItem, error)
}

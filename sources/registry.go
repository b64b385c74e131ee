package sources

import (
	"github.com/notaproblemdotdev/monodash/common"
)

// Registry holds the ordered lists of registered sources. Registration
// order is preserved and becomes the aggregation order for healthy sources.
//
// The registry is populated once at startup and treated as immutable
// afterwards; it performs no validation. Registering two sources with the
// same provider tag is permitted but discouraged — the work store indexes
// by tag and would fetch only the last registration.
type Registry struct {
	codeReviewSources []CodeReviewSource
	workItemSources   []WorkItemSource
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// RegisterCodeReviewSource appends a code review source in registration order.
func (r *Registry) RegisterCodeReviewSource(source CodeReviewSource) {
	r.codeReviewSources = append(r.codeReviewSources, source)
	common.Logger.WithField("source", source.SourceType()).Debug("Registered code review source")
}

// RegisterWorkItemSource appends a work item source in registration order.
func (r *Registry) RegisterWorkItemSource(source WorkItemSource) {
	r.workItemSources = append(r.workItemSources, source)
	common.Logger.WithField("source", source.SourceType()).Debug("Registered work item source")
}

// CodeReviewSources returns a defensive snapshot of the registered code
// review sources.
func (r *Registry) CodeReviewSources() []CodeReviewSource {
	snapshot := make([]CodeReviewSource, len(r.codeReviewSources))
	copy(snapshot, r.codeReviewSources)
	return snapshot
}

// WorkItemSources returns a defensive snapshot of the registered work item
// sources.
func (r *Registry) WorkItemSources() []WorkItemSource {
	snapshot := make([]WorkItemSource, len(r.workItemSources))
	copy(snapshot, r.workItemSources)
	return snapshot
}

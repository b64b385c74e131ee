package models

import (
	"encoding/json"
	"fmt"

	"github.com/notaproblemdotdev/monodash/common"
)

// Adapter tags. The serialized form carries the tag in the adapter_type
// field. The work item deserializer dispatches on the jira, todoist, github,
// and azuredevops tags; gitlab and gitea tag code reviews only.
const (
	AdapterJira        = "jira"
	AdapterTodoist     = "todoist"
	AdapterGitHub      = "github"
	AdapterAzureDevOps = "azuredevops"
	AdapterGitLab      = "gitlab"
	AdapterGitea       = "gitea"
)

// MarshalCodeReviews serializes code reviews into the cached payload format,
// a UTF-8 JSON array of normalized objects.
func MarshalCodeReviews(reviews []CodeReview) ([]byte, error) {
	if reviews == nil {
		reviews = []CodeReview{}
	}
	payload, err := json.Marshal(reviews)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal code reviews: %w", err)
	}
	return payload, nil
}

// UnmarshalCodeReviews deserializes a cached payload into code reviews.
// Individual elements that cannot be decoded are skipped with a warning so a
// single bad row never hides the rest of the payload. Decoded elements are
// not checked with Validate.
func UnmarshalCodeReviews(payload []byte) ([]CodeReview, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal code review payload: %w", err)
	}

	reviews := make([]CodeReview, 0, len(raw))
	for _, element := range raw {
		var review CodeReview
		if err := json.Unmarshal(element, &review); err != nil {
			common.Logger.WithField("error", err.Error()).Warn("Skipping undecodable cached code review")
			continue
		}
		reviews = append(reviews, review)
	}
	return reviews, nil
}

// MarshalWorkItems serializes work items into the cached payload format. The
// concrete variant's fields plus its adapter tag land in each element.
func MarshalWorkItems(items []WorkItem) ([]byte, error) {
	if items == nil {
		items = []WorkItem{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal work items: %w", err)
	}
	return payload, nil
}

// UnmarshalWorkItems deserializes a cached payload into work items,
// dispatching on the adapter_type discriminator. Elements with an unknown
// tag are skipped with a warning; they usually mean a newer schema wrote
// the row.
func UnmarshalWorkItems(payload []byte) ([]WorkItem, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal work item payload: %w", err)
	}

	items := make([]WorkItem, 0, len(raw))
	for _, element := range raw {
		item, err := unmarshalWorkItem(element)
		if err != nil {
			common.Logger.WithField("error", err.Error()).Warn("Skipping undecodable cached work item")
			continue
		}
		if item != nil {
			items = append(items, item)
		}
	}
	return items, nil
}

func unmarshalWorkItem(element json.RawMessage) (WorkItem, error) {
	var tag struct {
		AdapterType string `json:"adapter_type"`
	}
	if err := json.Unmarshal(element, &tag); err != nil {
		return nil, fmt.Errorf("failed to read adapter tag: %w", err)
	}

	switch tag.AdapterType {
	case AdapterJira:
		var item JiraIssue
		if err := json.Unmarshal(element, &item); err != nil {
			return nil, err
		}
		return item, nil
	case AdapterTodoist:
		var item TodoistTask
		if err := json.Unmarshal(element, &item); err != nil {
			return nil, err
		}
		return item, nil
	case AdapterGitHub:
		var item GitHubIssue
		if err := json.Unmarshal(element, &item); err != nil {
			return nil, err
		}
		return item, nil
	case AdapterAzureDevOps:
		var item AzureWorkItem
		if err := json.Unmarshal(element, &item); err != nil {
			return nil, err
		}
		return item, nil
	default:
		common.Logger.WithField("adapter_type", tag.AdapterType).Warn("Unknown work item type in cache")
		return nil, nil
	}
}

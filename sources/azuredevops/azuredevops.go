// Package azuredevops provides the Azure DevOps work item source. It speaks
// the Azure DevOps REST API 7.0 directly: a WIQL query resolves the ids of
// the current user's open work items, then a batch endpoint hydrates them.
// Authentication is Basic with an empty username and the PAT as password.
package azuredevops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/notaproblemdotdev/monodash/common"
	"github.com/notaproblemdotdev/monodash/models"
)

const (
	sourceType = "azuredevops"
	sourceIcon = "🔷"

	apiVersion = "7.0"
	batchSize  = 200

	defaultWIQL = "SELECT [System.Id] FROM WorkItems " +
		"WHERE [System.AssignedTo] = @me " +
		"AND [System.State] <> 'Closed' " +
		"AND [System.State] <> 'Done' " +
		"AND [System.State] <> 'Removed' " +
		"ORDER BY [System.ChangedDate] DESC"
)

// Config contains the settings for an Azure DevOps source.
type Config struct {
	Organization string // Azure DevOps organization name
	Project      string // Project name
	Token        string // Personal access token
	BaseURL      string // Override for tests; defaults to dev.azure.com/<org>
	ProfileURL   string // Override for tests; defaults to the vssps profile endpoint
}

// Source fetches work items from an Azure DevOps project.
type Source struct {
	config Config
	client *http.Client
}

// New creates an Azure DevOps source from the given configuration.
func New(config Config) *Source {
	if config.BaseURL == "" {
		config.BaseURL = "https://dev.azure.com/" + config.Organization
	}
	if config.ProfileURL == "" {
		config.ProfileURL = "https://app.vssps.visualstudio.com/_apis/profile/profiles/me"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Source{
		config: config,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// SourceType returns the stable provider tag.
func (s *Source) SourceType() string { return sourceType }

// SourceIcon returns the display hint for the provider.
func (s *Source) SourceIcon() string { return sourceIcon }

// IsAvailable reports whether the source has an organization, project, and
// token configured.
func (s *Source) IsAvailable(_ context.Context) bool {
	return s.config.Organization != "" && s.config.Project != "" && s.config.Token != ""
}

// CheckAuth verifies the PAT by fetching the profile endpoint.
func (s *Source) CheckAuth(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.ProfileURL+"?api-version="+apiVersion, nil)
	if err != nil {
		return false
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		common.WithSource(sourceType).WithField("error", err.Error()).Warn("Azure DevOps auth check failed")
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// wiqlResult mirrors the WIQL query response.
type wiqlResult struct {
	WorkItems []struct {
		ID int `json:"id"`
	} `json:"workItems"`
}

// workItemBatch mirrors the workitemsbatch response.
type workItemBatch struct {
	Value []workItem `json:"value"`
}

type workItem struct {
	ID     int            `json:"id"`
	Fields workItemFields `json:"fields"`
}

type workItemFields struct {
	Title        string       `json:"System.Title"`
	State        string       `json:"System.State"`
	WorkItemType string       `json:"System.WorkItemType"`
	AssignedTo   *identityRef `json:"System.AssignedTo"`
	Priority     *int         `json:"Microsoft.VSTS.Common.Priority"`
	DueDate      string       `json:"Microsoft.VSTS.Scheduling.DueDate"`
}

type identityRef struct {
	DisplayName string `json:"displayName"`
}

// FetchItems returns the current user's open work items via the WIQL +
// batch hydration flow.
func (s *Source) FetchItems(ctx context.Context) ([]models.WorkItem, error) {
	wiqlURL := fmt.Sprintf("%s/%s/_apis/wit/wiql?api-version=%s", s.config.BaseURL, s.config.Project, apiVersion)

	var wiql wiqlResult
	if err := s.postJSON(ctx, wiqlURL, map[string]string{"query": defaultWIQL}, &wiql); err != nil {
		return nil, fmt.Errorf("failed to execute WIQL query: %w", err)
	}

	if len(wiql.WorkItems) == 0 {
		return []models.WorkItem{}, nil
	}

	ids := make([]int, 0, len(wiql.WorkItems))
	for _, ref := range wiql.WorkItems {
		ids = append(ids, ref.ID)
	}

	items := make([]models.WorkItem, 0, len(ids))
	batchURL := fmt.Sprintf("%s/%s/_apis/wit/workitemsbatch?api-version=%s", s.config.BaseURL, s.config.Project, apiVersion)

	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}

		var batch workItemBatch
		request := map[string]any{"ids": ids[start:end], "$expand": "Links"}
		if err := s.postJSON(ctx, batchURL, request, &batch); err != nil {
			return nil, fmt.Errorf("failed to fetch work items batch: %w", err)
		}

		for _, wi := range batch.Value {
			items = append(items, s.convertWorkItem(wi))
		}
	}
	return items, nil
}

func (s *Source) convertWorkItem(wi workItem) models.AzureWorkItem {
	item := models.AzureWorkItem{
		Adapter: models.Adapter{
			Type: models.AdapterAzureDevOps,
			Icon: sourceIcon,
		},
		WorkItemID:   wi.ID,
		ItemTitle:    wi.Fields.Title,
		State:        wi.Fields.State,
		WorkItemType: wi.Fields.WorkItemType,
		Link:         fmt.Sprintf("%s/%s/_workitems/edit/%d", s.config.BaseURL, s.config.Project, wi.ID),
	}

	// Azure DevOps priorities run 1..4 with 1 the most urgent; flip them so
	// a higher normalized value means more urgent.
	if wi.Fields.Priority != nil {
		priority := 5 - *wi.Fields.Priority
		item.PriorityLevel = &priority
	}
	if wi.Fields.AssignedTo != nil && wi.Fields.AssignedTo.DisplayName != "" {
		assignee := wi.Fields.AssignedTo.DisplayName
		item.AssigneeName = &assignee
	}
	if wi.Fields.DueDate != "" {
		due := wi.Fields.DueDate
		item.Due = &due
	}
	return item
}

func (s *Source) postJSON(ctx context.Context, url string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("azure devops API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// setHeaders applies PAT Basic auth (empty username) and JSON content
// negotiation.
func (s *Source) setHeaders(req *http.Request) {
	req.SetBasicAuth("", s.config.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

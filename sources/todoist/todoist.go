// Package todoist provides the Todoist work item source. Todoist has no
// host CLI, so this adapter speaks the REST v2 API directly with bearer
// token authentication.
package todoist

import (
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
	sourceType = "todoist"
	sourceIcon = "✅"

	defaultBaseURL = "https://api.todoist.com/rest/v2"
)

// task mirrors the Todoist REST v2 task shape, reduced to the fields the
// normalized model carries.
type task struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	IsCompleted bool   `json:"is_completed"`
	Priority    int    `json:"priority"`
	URL         string `json:"url"`
	ProjectID   string `json:"project_id"`
	Due         *due   `json:"due"`
}

type due struct {
	Date string `json:"date"`
}

type project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Config contains the settings for a Todoist source.
type Config struct {
	Token    string   // API token
	BaseURL  string   // Override for tests; defaults to the public API
	Projects []string // Optional project names to filter to
}

// Source fetches tasks from the Todoist REST API.
type Source struct {
	config Config
	client *http.Client
}

// New creates a Todoist source from the given configuration.
func New(config Config) *Source {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
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

// IsAvailable reports whether a token is configured.
func (s *Source) IsAvailable(_ context.Context) bool {
	return s.config.Token != ""
}

// CheckAuth verifies the token with a lightweight projects request.
func (s *Source) CheckAuth(ctx context.Context) bool {
	var projects []project
	if err := s.getJSON(ctx, "/projects", &projects); err != nil {
		common.WithSource(sourceType).WithField("error", err.Error()).Debug("Todoist auth check failed")
		return false
	}
	return true
}

// FetchItems returns the active tasks, optionally filtered to the
// configured projects.
func (s *Source) FetchItems(ctx context.Context) ([]models.WorkItem, error) {
	var projects []project
	if err := s.getJSON(ctx, "/projects", &projects); err != nil {
		return nil, fmt.Errorf("failed to fetch todoist projects: %w", err)
	}

	projectNames := make(map[string]string, len(projects))
	for _, p := range projects {
		projectNames[p.ID] = p.Name
	}

	var wanted map[string]bool
	if len(s.config.Projects) > 0 {
		wanted = make(map[string]bool, len(s.config.Projects))
		for _, name := range s.config.Projects {
			wanted[name] = true
		}
	}

	var tasks []task
	if err := s.getJSON(ctx, "/tasks", &tasks); err != nil {
		return nil, fmt.Errorf("failed to fetch todoist tasks: %w", err)
	}

	items := make([]models.WorkItem, 0, len(tasks))
	for _, t := range tasks {
		projectName := projectNames[t.ProjectID]
		if wanted != nil && !wanted[projectName] {
			continue
		}
		items = append(items, s.convertTask(t, projectName))
	}
	return items, nil
}

func (s *Source) convertTask(t task, projectName string) models.TodoistTask {
	item := models.TodoistTask{
		Adapter: models.Adapter{
			Type: models.AdapterTodoist,
			Icon: sourceIcon,
		},
		TaskID:      t.ID,
		Content:     t.Content,
		Completed:   t.IsCompleted,
		Link:        t.URL,
		ProjectName: projectName,
	}
	// Todoist priorities already run 1..4 with 4 the most urgent.
	if t.Priority > 0 {
		priority := t.Priority
		item.PriorityLevel = &priority
	}
	if t.Due != nil && t.Due.Date != "" {
		date := t.Due.Date
		item.Due = &date
	}
	return item
}

func (s *Source) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.config.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("todoist API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

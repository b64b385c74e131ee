// Package api provides the read-only HTTP surface over the work store. It
// exposes the aggregated code reviews and work items, cache metadata,
// source health, and invalidation/refresh controls as JSON endpoints.
package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/notaproblemdotdev/monodash/store"
	"github.com/notaproblemdotdev/monodash/version"
)

// Server wires the work store into an Echo route tree.
type Server struct {
	workStore *store.WorkStore
}

// NewServer creates an API server over the given work store.
func NewServer(workStore *store.WorkStore) *Server {
	return &Server{workStore: workStore}
}

// Register attaches the API routes to an Echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealthz)
	e.GET("/version", s.handleVersion)

	v1 := e.Group("/api/v1")
	v1.GET("/code-reviews/:subsection", s.handleCodeReviews)
	v1.GET("/work-items", s.handleWorkItems)
	v1.POST("/refresh", s.handleRefresh)
	v1.DELETE("/cache", s.handleInvalidate)
	v1.GET("/cache/info", s.handleCacheInfo)
	v1.GET("/health/sources", s.handleSourceHealth)
}

// handleHealthz is the liveness probe.
func (s *Server) handleHealthz(c echo.Context) error {
	return c.String(http.StatusOK, "OK!")
}

// handleVersion reports build information.
func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, version.Get())
}

// handleCodeReviews serves GET /api/v1/code-reviews/:subsection where the
// subsection is "assigned" or "opened". Query parameter force=true bypasses
// the cache.
func (s *Server) handleCodeReviews(c echo.Context) error {
	subsection := c.Param("subsection")
	if subsection != store.SubsectionAssigned && subsection != store.SubsectionOpened {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown subsection: "+subsection)
	}

	force := c.QueryParam("force") == "true"
	result := s.workStore.GetCodeReviews(c.Request().Context(), subsection, force)
	return c.JSON(http.StatusOK, result)
}

// handleWorkItems serves GET /api/v1/work-items. Query parameter force=true
// bypasses the cache.
func (s *Server) handleWorkItems(c echo.Context) error {
	force := c.QueryParam("force") == "true"
	result := s.workStore.GetWorkItems(c.Request().Context(), force)
	return c.JSON(http.StatusOK, result)
}

// refreshResponse summarizes a forced refresh across both data types.
type refreshResponse struct {
	RefreshedAt   time.Time         `json:"refreshed_at"`
	FailedSources []string          `json:"failed_sources"`
	Errors        map[string]string `json:"errors"`
}

// handleRefresh forces a refresh of all data types and reports the merged
// failure set.
func (s *Server) handleRefresh(c echo.Context) error {
	ctx := c.Request().Context()

	response := refreshResponse{
		RefreshedAt:   time.Now(),
		FailedSources: []string{},
		Errors:        map[string]string{},
	}

	assigned := s.workStore.GetCodeReviews(ctx, store.SubsectionAssigned, true)
	opened := s.workStore.GetCodeReviews(ctx, store.SubsectionOpened, true)
	items := s.workStore.GetWorkItems(ctx, true)

	for source, errMsg := range assigned.Errors {
		response.Errors[source] = errMsg
	}
	for source, errMsg := range opened.Errors {
		response.Errors[source] = errMsg
	}
	for source, errMsg := range items.Errors {
		response.Errors[source] = errMsg
	}
	for source := range response.Errors {
		response.FailedSources = append(response.FailedSources, source)
	}
	sort.Strings(response.FailedSources)

	return c.JSON(http.StatusOK, response)
}

// handleInvalidate serves DELETE /api/v1/cache with optional data_type and
// provider query parameters narrowing the scope.
func (s *Server) handleInvalidate(c echo.Context) error {
	dataType := c.QueryParam("data_type")
	provider := c.QueryParam("provider")

	if dataType != "" && dataType != store.DataTypeCodeReviews && dataType != store.DataTypeWorkItems {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown data type: "+dataType)
	}

	s.workStore.Invalidate(c.Request().Context(), dataType, provider)
	return c.NoContent(http.StatusNoContent)
}

// cacheInfoResponse is the JSON view of a cache entry's metadata.
type cacheInfoResponse struct {
	CacheKey   string    `json:"cache_key"`
	DataType   string    `json:"data_type"`
	Provider   string    `json:"provider"`
	Subsection string    `json:"subsection,omitempty"`
	CachedAt   time.Time `json:"cached_at"`
	Age        string    `json:"age"`
	TTLSeconds int       `json:"ttl_seconds"`
	ExpiresAt  time.Time `json:"expires_at"`
	IsValid    bool      `json:"is_valid"`
	FetchCount int       `json:"fetch_count"`
	LastError  string    `json:"last_error,omitempty"`
}

// handleCacheInfo serves GET /api/v1/cache/info?key=<cache_key>.
func (s *Server) handleCacheInfo(c echo.Context) error {
	cacheKey := c.QueryParam("key")
	if cacheKey == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing key parameter")
	}

	info, ok := s.workStore.Cache().Info(c.Request().Context(), cacheKey)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no cache entry for key")
	}

	return c.JSON(http.StatusOK, cacheInfoResponse{
		CacheKey:   info.CacheKey,
		DataType:   info.DataType,
		Provider:   info.Provider,
		Subsection: info.Subsection,
		CachedAt:   info.CachedAt,
		Age:        info.Age(),
		TTLSeconds: int(info.TTL / time.Second),
		ExpiresAt:  info.ExpiresAt,
		IsValid:    info.IsValid,
		FetchCount: info.FetchCount,
		LastError:  info.LastError,
	})
}

// sourceHealthResponse is the JSON view of a failing source.
type sourceHealthResponse struct {
	Source            string    `json:"source"`
	Error             string    `json:"error"`
	FailureCount      int       `json:"failure_count"`
	LastFailure       time.Time `json:"last_failure"`
	RetryDelaySeconds int       `json:"retry_delay_seconds"`
}

// handleSourceHealth serves GET /api/v1/health/sources, reporting the
// currently failing sources and their backoff state.
func (s *Server) handleSourceHealth(c echo.Context) error {
	health := s.workStore.Health()

	failed := health.FailedSources()
	response := make([]sourceHealthResponse, 0, len(failed))
	for _, source := range failed {
		info, ok := health.FailureInfo(source)
		if !ok {
			continue
		}
		response = append(response, sourceHealthResponse{
			Source:            info.Source,
			Error:             info.Error,
			FailureCount:      info.FailureCount,
			LastFailure:       info.Timestamp,
			RetryDelaySeconds: int(info.RetryDelay / time.Second),
		})
	}
	return c.JSON(http.StatusOK, response)
}

package sources

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PageAPIServer exposes the page store over HTTP.
type PageAPIServer struct {
	store *PageStore
}

// NewPageAPIServer creates a new page API server.
func NewPageAPIServer(store *PageStore) *PageAPIServer {
	return &PageAPIServer{
		store: store,
	}
}

// SetupRouter configures a standalone Gin router with the page routes.
func (s *PageAPIServer) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	s.RegisterRoutes(router.Group("/api/v1/meta"))
	return router
}

// RegisterRoutes mounts the page routes on group.
func (s *PageAPIServer) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/pages", s.HandleListPages)
	group.GET("/pages/:id", s.HandleGetPage)
	group.POST("/pages", s.HandleCreatePage)
	group.PUT("/pages/:id", s.HandleUpdatePage)
	group.DELETE("/pages/:id", s.HandleDeletePage)
}

// ListPagesResponse represents the response for GET /api/v1/meta/pages.
type ListPagesResponse struct {
	Pages []Page `json:"pages"`
	Total int    `json:"total"`
}

// CreatePageRequest represents the request for POST /api/v1/meta/pages.
type CreatePageRequest struct {
	Kind    string `json:"kind"` // Default: page
	URL     string `json:"url" binding:"required"`
	Name    string `json:"name"`
	Enabled *bool  `json:"enabled,omitempty"` // Default: true
}

// UpdatePageRequest represents the request for PUT /api/v1/meta/pages/{id}.
type UpdatePageRequest struct {
	Name    *string `json:"name,omitempty"`
	URL     *string `json:"url,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// errorResponse creates a standardized error response.
func errorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// handleError maps domain errors to HTTP responses.
func (s *PageAPIServer) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrPageNotFound):
		c.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	case errors.Is(err, ErrDuplicateURL):
		c.JSON(http.StatusConflict, errorResponse("conflict", err.Error()))
	case errors.Is(err, ErrInvalidPageKind):
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
	default:
		c.JSON(http.StatusInternalServerError, errorResponse("internal_error", "Failed to process request"))
	}
}

// HandleListPages handles GET /api/v1/meta/pages.
func (s *PageAPIServer) HandleListPages(c *gin.Context) {
	filter := PageFilter{}

	if kind := c.Query("kind"); kind != "" {
		filter.Kind = &kind
	}

	if enabledParam := c.Query("enabled"); enabledParam != "" {
		enabled := enabledParam == "true"
		filter.Enabled = &enabled
	}

	pages, err := s.store.ListPages(filter)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if pages == nil {
		pages = []Page{}
	}

	c.JSON(http.StatusOK, ListPagesResponse{
		Pages: pages,
		Total: len(pages),
	})
}

// HandleGetPage handles GET /api/v1/meta/pages/{id}.
func (s *PageAPIServer) HandleGetPage(c *gin.Context) {
	pageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Invalid page ID"))
		return
	}

	page, err := s.store.GetPage(pageID)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// HandleCreatePage handles POST /api/v1/meta/pages.
func (s *PageAPIServer) HandleCreatePage(c *gin.Context) {
	var req CreatePageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
		return
	}

	if req.Kind == "" {
		req.Kind = KindPage
	}
	if err := validateKind(req.Kind); err != nil {
		s.handleError(c, err)
		return
	}
	if err := ValidateURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
		return
	}
	if req.Name == "" {
		req.Name = req.URL
	}

	var enabledAt *time.Time
	if req.Enabled == nil || *req.Enabled {
		now := time.Now()
		enabledAt = &now
	}

	page, err := s.store.CreatePage(req.Kind, req.URL, req.Name, enabledAt)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, page)
}

// HandleUpdatePage handles PUT /api/v1/meta/pages/{id}.
func (s *PageAPIServer) HandleUpdatePage(c *gin.Context) {
	pageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Invalid page ID"))
		return
	}

	var req UpdatePageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", err.Error()))
		return
	}

	if req.URL != nil {
		if err := ValidateURL(*req.URL); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
			return
		}
	}

	update := PageUpdate{
		Name: req.Name,
		URL:  req.URL,
	}

	if req.Enabled != nil {
		if *req.Enabled {
			now := time.Now()
			update.EnabledAt = &now
		} else {
			update.ClearEnabledAt = true
		}
	}

	if err := s.store.UpdatePage(pageID, update); err != nil {
		s.handleError(c, err)
		return
	}

	page, err := s.store.GetPage(pageID)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// HandleDeletePage handles DELETE /api/v1/meta/pages/{id}.
func (s *PageAPIServer) HandleDeletePage(c *gin.Context) {
	pageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", "Invalid page ID"))
		return
	}

	if err := s.store.DeletePage(pageID); err != nil {
		s.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ValidateURL checks that raw is an absolute http(s) URL.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("url must be an absolute http or https URL")
	}
	return nil
}

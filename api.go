package musicnews

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/syncpower/musicnews/aggregator"
	"github.com/syncpower/musicnews/article"
	"github.com/syncpower/musicnews/auth"
	"github.com/syncpower/musicnews/httpclient"
	"github.com/syncpower/musicnews/logger"
	"github.com/syncpower/musicnews/sources"
)

// Response messages of the public routes.
const (
	MessageInvalidPage   = "Invalid page or pageSize parameters."
	MessageLatestFailed  = "取得失敗"
	MessageStaticConfig  = "Failed to load static news URLs configuration"
	MessageTokenFailed   = "認証トークンの取得に失敗しました: "
	MessageURLRequired   = "URL is required"
	MessageURLInvalid    = "URL must be an absolute http or https URL"
	MessageTokenRequired = "Authorization token is required"
)

const (
	defaultColumnsPageSize  = 10
	defaultLatestPageSize   = 10
	defaultImageContentType = "image/*"
)

// ColumnSource serves pages of the merged interview/column list.
type ColumnSource interface {
	GetPage(ctx context.Context, page, pageSize int) (*aggregator.Page, error)
}

// LatestSource lists the newest catalog articles.
type LatestSource interface {
	FetchLatest(ctx context.Context, size int) ([]article.Article, error)
}

// TokenSource hands out access tokens for the metadata service.
type TokenSource interface {
	Token(ctx context.Context) (*auth.Token, error)
}

// Services are the collaborators behind the HTTP routes.
type Services struct {
	Columns    ColumnSource
	Latest     LatestSource
	LatestSize int
	Pages      sources.Loader
	Extractor  aggregator.PageExtractor
	Tokens     TokenSource
	Images     httpclient.Client
	// PageAPI, when set, mounts the page management routes under
	// /api/v1/meta.
	PageAPI *sources.PageAPIServer
}

// APIServer represents the HTTP API server.
type APIServer struct {
	services      Services
	allowedOrigin string
	log           *zap.Logger
}

// NewAPIServer creates a new API server. Cross-origin callers are only
// allowed from allowedOrigin.
func NewAPIServer(services Services, allowedOrigin string, log *zap.Logger) *APIServer {
	if services.LatestSize <= 0 {
		services.LatestSize = defaultLatestPageSize
	}
	if services.Images == nil {
		services.Images = httpclient.NewRestyClient(0, "")
	}
	return &APIServer{
		services:      services,
		allowedOrigin: allowedOrigin,
		log:           logger.OrNop(log),
	}
}

// SetupRouter configures the Gin router with all routes.
func (s *APIServer) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logger.GinMiddleware(s.log))

	router.GET("/health", s.HandleHealth)

	api := router.Group("/api")

	cors := api.Group("", s.corsMiddleware())
	cors.GET("/interview-column", s.HandleInterviewColumn)
	cors.OPTIONS("/interview-column", s.HandlePreflight)
	cors.GET("/oshiraku-news", s.HandleOshirakuNews)
	cors.OPTIONS("/oshiraku-news", s.HandlePreflight)

	api.GET("/static-news", s.HandleStaticNews)
	api.GET("/auth", s.HandleAuth)
	api.GET("/image-proxy", s.HandleImageProxy)

	if s.services.PageAPI != nil {
		s.services.PageAPI.RegisterRoutes(router.Group("/api/v1/meta"))
	}

	return router
}

func (s *APIServer) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", s.allowedOrigin)
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Next()
	}
}

// ColumnsResponse is the body of GET /api/interview-column.
type ColumnsResponse struct {
	Articles   []article.Article `json:"articles"`
	TotalCount int               `json:"total_count"`
	Error      *string           `json:"error"`
}

// HandleHealth handles GET /health.
func (s *APIServer) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandlePreflight answers cross-origin preflight requests.
func (s *APIServer) HandlePreflight(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// HandleInterviewColumn handles GET /api/interview-column.
func (s *APIServer) HandleInterviewColumn(c *gin.Context) {
	page, err1 := queryPositiveInt(c, "page", 1)
	pageSize, err2 := queryPositiveInt(c, "pageSize", defaultColumnsPageSize)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": MessageInvalidPage})
		return
	}

	result, err := s.services.Columns.GetPage(c.Request.Context(), page, pageSize)
	if errors.Is(err, aggregator.ErrInvalidPage) {
		c.JSON(http.StatusBadRequest, gin.H{"error": MessageInvalidPage})
		return
	}
	if err != nil {
		s.log.Error("column page failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := ColumnsResponse{
		Articles:   result.Articles,
		TotalCount: result.TotalCount,
	}
	if resp.Articles == nil {
		resp.Articles = []article.Article{}
	}

	status := http.StatusOK
	if result.Failed() {
		msg := result.ErrorMessage()
		resp.Error = &msg
		status = http.StatusInternalServerError
	}

	c.JSON(status, resp)
}

// HandleOshirakuNews handles GET /api/oshiraku-news.
func (s *APIServer) HandleOshirakuNews(c *gin.Context) {
	articles, err := s.services.Latest.FetchLatest(c.Request.Context(), s.services.LatestSize)
	if err != nil {
		s.log.Error("latest catalog articles failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": MessageLatestFailed})
		return
	}
	if articles == nil {
		articles = []article.Article{}
	}

	c.JSON(http.StatusOK, articles)
}

// HandleStaticNews handles GET /api/static-news. Every configured page is
// scraped on each call; nothing is cached.
func (s *APIServer) HandleStaticNews(c *gin.Context) {
	ctx := c.Request.Context()

	urls, err := s.services.Pages.Load(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": MessageStaticConfig})
		return
	}

	batch := s.services.Extractor.ExtractAll(ctx, urls)
	articles := batch.Articles
	if articles == nil {
		articles = []article.Article{}
	}

	s.log.Info("static news extracted",
		zap.Int("articles", len(articles)),
		zap.Int("dropped", len(batch.Failures)),
	)
	c.JSON(http.StatusOK, gin.H{"staticNews": articles})
}

// HandleAuth handles GET /api/auth.
func (s *APIServer) HandleAuth(c *gin.Context) {
	token, err := s.services.Tokens.Token(c.Request.Context())
	if err != nil {
		c.JSON(authStatus(err), gin.H{"message": MessageTokenFailed + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token.Token,
		"expires_at": token.ExpiresAtMillis(),
	})
}

// authStatus maps token errors to HTTP statuses.
func authStatus(err error) int {
	var upstream *auth.UpstreamError
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		return http.StatusBadRequest
	case errors.As(err, &upstream):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrInvalidResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HandleImageProxy handles GET /api/image-proxy. The caller's bearer token
// is forwarded to the image host.
func (s *APIServer) HandleImageProxy(c *gin.Context) {
	imageURL := c.Query("url")
	if imageURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": MessageURLRequired})
		return
	}
	if err := sources.ValidateURL(imageURL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": MessageURLInvalid})
		return
	}

	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": MessageTokenRequired})
		return
	}

	resp, err := s.services.Images.Get(c.Request.Context(), imageURL, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if err != nil {
		s.log.Error("image proxy fetch failed", zap.String("url", imageURL), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !resp.IsSuccess() {
		msg := fmt.Sprintf("Request failed with status code %d", resp.StatusCode())
		s.log.Warn("image proxy upstream error", zap.String("url", imageURL), zap.Int("status", resp.StatusCode()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
		return
	}

	contentType := resp.Header().Get("Content-Type")
	if contentType == "" {
		contentType = defaultImageContentType
	}
	c.Data(http.StatusOK, contentType, resp.Body())
}

// bearerToken returns the second word of an Authorization header.
func bearerToken(header string) string {
	fields := strings.Fields(header)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

// queryPositiveInt parses a query parameter that must be an integer >= 1.
// Missing or empty parameters use def.
func queryPositiveInt(c *gin.Context, key string, def int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("invalid %s: %d", key, n)
	}
	return n, nil
}

package api

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yorizo/yorizo/internal/agent"
	"github.com/yorizo/yorizo/internal/config"
	"github.com/yorizo/yorizo/internal/llm"
	"github.com/yorizo/yorizo/internal/logging"
	"github.com/yorizo/yorizo/internal/retriever"
)

// DocumentStore is the retrieval store behind the RAG routes
type DocumentStore interface {
	Index(ctx context.Context, inputs []retriever.DocumentInput, defaultOwnerKey string) ([]*retriever.Document, error)
	Query(ctx context.Context, text string, k int, filters retriever.Filters) ([]retriever.Result, error)
	Get(ctx context.Context, id string) (*retriever.Document, error)
	ListRecent(ctx context.Context, opts retriever.ListOptions) ([]*retriever.Document, error)
	Count(ctx context.Context) (int, error)
}

// Consultant answers chat questions
type Consultant interface {
	Answer(ctx context.Context, in agent.ChatInput) (*agent.Answer, error)
}

// Server represents the HTTP API server
type Server struct {
	config     *config.Config
	router     *gin.Engine
	store      DocumentStore
	consultant Consultant
	logger     *zap.Logger
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, store DocumentStore, consultant Consultant, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		config:     cfg,
		router:     gin.New(),
		store:      store,
		consultant: consultant,
		logger:     logging.OrNop(logger),
	}

	s.setupRoutes()
	return s
}

// Handler exposes the router for tests and custom listeners
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestLogger(s.logger))
	s.router.Use(corsMiddleware(s.config.Server.CORSOrigins))

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rag := s.router.Group("/api/rag")
	{
		rag.POST("/documents", s.handleCreateDocuments)
		rag.GET("/documents", s.handleListDocuments)
		rag.GET("/documents/:id", s.handleGetDocument)
		rag.POST("/search", s.handleSearch)
		rag.POST("/chat", s.handleChat)
	}
}

// Run starts the server and shuts it down when ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down API server")
		return srv.Shutdown(shutdownCtx)
	}
}

// requestLogger logs one line per request
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// corsMiddleware adds CORS headers for the allowed origins
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// writeError maps domain errors to status codes
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, retriever.ErrEmbeddingUnavailable), errors.Is(err, llm.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, retriever.ErrEmptyQuery):
		status = http.StatusBadRequest
	case errors.Is(err, retriever.ErrNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	count, err := s.store.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"documents": count,
	})
}

// DocumentPayload is one document in an index request. Empty text is
// accepted and stored as an empty document.
type DocumentPayload struct {
	Text       string         `json:"text"`
	Title      string         `json:"title"`
	SourceID   string         `json:"source_id"`
	SourceType string         `json:"source_type"`
	Metadata   map[string]any `json:"metadata"`
}

// CreateDocumentsRequest represents an index request
type CreateDocumentsRequest struct {
	UserID    string            `json:"user_id"`
	CompanyID string            `json:"company_id"`
	Documents []DocumentPayload `json:"documents" binding:"required,min=1,dive"`
}

// handleCreateDocuments embeds and stores documents
func (s *Server) handleCreateDocuments(c *gin.Context) {
	var req CreateDocumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	inputs := make([]retriever.DocumentInput, len(req.Documents))
	for i, d := range req.Documents {
		meta := make(map[string]any, len(d.Metadata)+1)
		maps.Copy(meta, d.Metadata)
		if req.CompanyID != "" {
			if _, ok := meta["company_id"]; !ok {
				meta["company_id"] = req.CompanyID
			}
		}
		inputs[i] = retriever.DocumentInput{
			Text:       d.Text,
			Title:      d.Title,
			SourceID:   d.SourceID,
			SourceType: d.SourceType,
			Metadata:   meta,
		}
	}

	docs, err := s.store.Index(c.Request.Context(), inputs, s.indexOwner(req.UserID, req.CompanyID))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// handleListDocuments lists recent documents
func (s *Server) handleListDocuments(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
			return
		}
		limit = n
	}

	docs, err := s.store.ListRecent(c.Request.Context(), retriever.ListOptions{
		OwnerKey:  c.Query("user_id"),
		CompanyID: c.Query("company_id"),
		Limit:     limit,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	if docs == nil {
		docs = []*retriever.Document{}
	}

	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// handleGetDocument returns one document
func (s *Server) handleGetDocument(c *gin.Context) {
	doc, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// SearchRequest represents a search request
type SearchRequest struct {
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id"`
	Query     string `json:"query"`
	TopK      int    `json:"top_k"`
}

// handleSearch returns the documents most similar to the query
func (s *Server) handleSearch(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TopK < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "top_k must not be negative"})
		return
	}

	results, err := s.store.Query(c.Request.Context(), req.Query, req.TopK, retriever.Filters{
		OwnerKey:  s.ownerKey(req.UserID),
		CompanyID: req.CompanyID,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	if results == nil {
		results = []retriever.Result{}
	}

	c.JSON(http.StatusOK, gin.H{"matches": results})
}

// ChatRequest represents a chat request
type ChatRequest struct {
	UserID    string   `json:"user_id"`
	CompanyID string   `json:"company_id"`
	Question  string   `json:"question" binding:"required"`
	History   []string `json:"history"`
	TopK      int      `json:"top_k"`
}

// handleChat answers a question grounded on retrieved documents
func (s *Server) handleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answer, err := s.consultant.Answer(c.Request.Context(), agent.ChatInput{
		Question:  req.Question,
		History:   req.History,
		OwnerKey:  s.ownerKey(req.UserID),
		CompanyID: req.CompanyID,
		TopK:      req.TopK,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, answer)
}

// indexOwner picks the owner of new documents: the user, else the company,
// else the configured default.
func (s *Server) indexOwner(userID, companyID string) string {
	if userID != "" {
		return userID
	}
	if companyID != "" {
		return companyID
	}
	return s.config.RAG.DefaultOwnerKey
}

func (s *Server) ownerKey(userID string) string {
	if userID != "" {
		return userID
	}
	return s.config.RAG.DefaultOwnerKey
}

package ticketai

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"tiketti_back/cache"
)

// Module bundles the AI similarity features behind the /ai routes.
type Module struct {
	cfg     Config
	service *Service
}

// Config returns the loaded AI configuration for sibling modules.
func (m *Module) Config() Config {
	if m == nil {
		return Config{}
	}
	return m.cfg
}

// Service exposes the similarity pipeline to sibling modules (ticket
// lifecycle hooks, the support agent). Nil when the AI is unconfigured.
func (m *Module) Service() *Service {
	if m == nil {
		return nil
	}
	return m.service
}

// RegisterRoutes initializes the AI module and mounts the similarity routes.
// With no API key configured the routes still exist but answer 503 before
// any provider call; the rest of the application keeps working.
func RegisterRoutes(router *gin.Engine) (*Module, error) {
	cfg := LoadConfigFromEnv()
	module := &Module{cfg: cfg}

	if err := cfg.Validate(); err != nil {
		log.Printf("ticketai: AI features disabled: %v", err)
	} else {
		db, err := openDatabaseFromEnv()
		if err != nil {
			return nil, err
		}

		store, err := NewPgVectorStore(db, cfg)
		if err != nil {
			return nil, err
		}
		if pg, ok := store.(*pgVectorStore); ok {
			if err := pg.EnsureSchema(context.Background()); err != nil {
				return nil, err
			}
		}

		embedder, err := NewHTTPEmbedder(cfg)
		if err != nil {
			return nil, err
		}

		service, err := NewService(embedder, store, cfg)
		if err != nil {
			return nil, err
		}
		module.service = service
	}

	group := router.Group("/ai")
	group.Use(RequireConfigured(cfg))
	group.Use(RateLimit(cfg))
	group.POST("/similar-tickets", module.handleSimilarTickets)
	group.GET("/search-tickets", module.handleSearchTickets)
	group.POST("/process-ticket", module.handleProcessTicket)

	return module, nil
}

// RequireConfigured short-circuits AI routes with 503 when the provider API
// key is missing, before any provider call is attempted. Shared with the
// agents module, which mounts its own routes under /ai.
func RequireConfigured(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := cfg.Validate(); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "AI services are not properly configured. Check API keys and configuration.",
			})
			return
		}
		c.Next()
	}
}

// RateLimit applies a fixed-window per-client limit to AI routes when
// enabled. The limiter fails open: with Redis down requests pass.
func RateLimit(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.RateLimitEnabled {
			c.Next()
			return
		}
		key := "ratelimit:ai:" + c.ClientIP()
		if !cache.Allow(c.Request.Context(), key, cfg.RateLimitMaxRequests, cfg.RateLimitWindow) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many AI requests, slow down.",
			})
			return
		}
		c.Next()
	}
}

type similarTicketsRequest struct {
	TicketTitle       string `json:"ticketTitle"`
	TicketDescription string `json:"ticketDescription"`
	TicketCategory    string `json:"ticketCategory"`
	Limit             int    `json:"limit"`
}

func (m *Module) handleSimilarTickets(c *gin.Context) {
	var req similarTicketsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if strings.TrimSpace(req.TicketTitle) == "" || strings.TrimSpace(req.TicketDescription) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Ticket title and description are required"})
		return
	}

	matches, err := m.service.FindSimilarTicketsForTicket(c.Request.Context(), TicketContent{
		Title:       req.TicketTitle,
		Description: req.TicketDescription,
		Category:    req.TicketCategory,
	}, req.Limit)
	if err != nil {
		log.Printf("ticketai: similar tickets: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to find similar tickets"})
		return
	}
	if matches == nil {
		matches = []Match{}
	}
	c.JSON(http.StatusOK, gin.H{"similarTickets": matches})
}

func (m *Module) handleSearchTickets(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query is required"})
		return
	}

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid limit %q", raw)})
			return
		}
		limit = parsed
	}

	matches, err := m.service.SearchTickets(c.Request.Context(), query, limit)
	if err != nil {
		log.Printf("ticketai: search tickets: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search tickets"})
		return
	}
	if matches == nil {
		matches = []Match{}
	}
	c.JSON(http.StatusOK, gin.H{"results": matches})
}

type processTicketRequest struct {
	TicketID          string `json:"ticketId"`
	TicketTitle       string `json:"ticketTitle"`
	TicketDescription string `json:"ticketDescription"`
	TicketCategory    string `json:"ticketCategory"`
	DeviceInfo        string `json:"deviceInfo"`
	AdditionalInfo    string `json:"additionalInfo"`
}

func (m *Module) handleProcessTicket(c *gin.Context) {
	var req processTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if strings.TrimSpace(req.TicketID) == "" ||
		strings.TrimSpace(req.TicketTitle) == "" ||
		strings.TrimSpace(req.TicketDescription) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Ticket ID, title, and description are required"})
		return
	}

	ok := m.service.ProcessTicket(c.Request.Context(), TicketContent{
		ID:             req.TicketID,
		Title:          req.TicketTitle,
		Description:    req.TicketDescription,
		Category:       req.TicketCategory,
		Device:         req.DeviceInfo,
		AdditionalInfo: req.AdditionalInfo,
	})
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to process ticket"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Ticket processed successfully"})
}

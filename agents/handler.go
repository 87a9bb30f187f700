package agents

import (
	"context"
	"log"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"tiketti_back/authorization"
	"tiketti_back/llm"
	"tiketti_back/ticketai"
	"tiketti_back/tickets"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Module bundles the LLM agents behind the /ai routes and acts as the
// simulated requester for the tickets module.
type Module struct {
	db        *gorm.DB
	cfg       ticketai.Config
	ai        *ticketai.Service
	support   *SupportAgent
	chat      *ChatAgent
	generator *TicketGeneratorAgent
}

// RegisterRoutes initializes the agents and mounts their routes under /ai,
// alongside the similarity routes owned by the ticketai module. With no API
// key configured the routes answer 503 before any provider call; the module
// still registers so the wiring in main stays unconditional.
func RegisterRoutes(router *gin.Engine, guard *authorization.Guard, aiModule *ticketai.Module) (*Module, error) {
	cfg := aiModule.Config()
	module := &Module{cfg: cfg}

	if err := cfg.Validate(); err != nil {
		log.Printf("agents: AI agents disabled: %v", err)
	} else {
		db, err := openDatabaseFromEnv()
		if err != nil {
			return nil, err
		}
		module.db = db

		client, err := llm.NewChatClientFromEnv()
		if err != nil {
			return nil, err
		}
		completer := llm.NewResponseCacheFromEnv(client)

		var finder SimilarityFinder
		if svc := aiModule.Service(); svc != nil {
			module.ai = svc
			finder = svc
		}

		support, err := NewSupportAgent(completer, finder, nil)
		if err != nil {
			return nil, err
		}
		chat, err := NewChatAgent(completer)
		if err != nil {
			return nil, err
		}
		generator, err := NewTicketGeneratorAgent(completer)
		if err != nil {
			return nil, err
		}
		module.support = support
		module.chat = chat
		module.generator = generator
	}

	group := router.Group("/ai")
	group.Use(ticketai.RequireConfigured(cfg))
	group.Use(ticketai.RateLimit(cfg))
	group.POST("/support-agent", guard.RequireAuthenticated(), module.handleSupportAgent)
	group.POST("/generate-ticket",
		guard.RequireAuthenticated(),
		guard.RequireAnyRole(authorization.RoleSupport, authorization.RoleAdmin),
		module.handleGenerateTicket)
	group.GET("/ticket-chat/:id", guard.RequireAuthenticated(), module.handleTicketChat)

	return module, nil
}

type supportAgentRequest struct {
	Query             string `json:"query"`
	TicketID          string `json:"ticketId"`
	TicketTitle       string `json:"ticketTitle"`
	TicketDescription string `json:"ticketDescription"`
	TicketCategory    string `json:"ticketCategory"`
	TicketPriority    string `json:"ticketPriority"`
	TicketStatus      string `json:"ticketStatus"`
	IncludeComments   bool   `json:"includeComments"`
}

func (m *Module) handleSupportAgent(c *gin.Context) {
	var req supportAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query is required"})
		return
	}

	info := TicketInfo{
		ID:          req.TicketID,
		Title:       req.TicketTitle,
		Description: req.TicketDescription,
		Category:    req.TicketCategory,
		Priority:    req.TicketPriority,
		Status:      req.TicketStatus,
	}
	if req.TicketID != "" {
		m.fillTicketInfo(c.Request.Context(), &info, req.IncludeComments)
	}

	state := m.support.Run(c.Request.Context(), req.Query, info)
	c.JSON(http.StatusOK, state)
}

// fillTicketInfo completes the request's ticket snapshot from the database.
// Request fields win so the UI can analyze unsaved edits; lookup failures are
// logged and leave the snapshot as provided.
func (m *Module) fillTicketInfo(ctx context.Context, info *TicketInfo, includeComments bool) {
	if m.db == nil {
		return
	}

	var ticket tickets.Ticket
	if err := m.db.WithContext(ctx).Preload("Category").First(&ticket, "id = ?", info.ID).Error; err != nil {
		log.Printf("agents: load ticket %s: %v", info.ID, err)
		return
	}

	if strings.TrimSpace(info.Title) == "" {
		info.Title = ticket.Title
	}
	if strings.TrimSpace(info.Description) == "" {
		info.Description = ticket.Description
	}
	if strings.TrimSpace(info.Category) == "" && ticket.Category != nil {
		info.Category = ticket.Category.Name
	}
	if strings.TrimSpace(info.Priority) == "" {
		info.Priority = ticket.Priority
	}
	if strings.TrimSpace(info.Status) == "" {
		info.Status = ticket.Status
	}

	if includeComments {
		var comments []tickets.Comment
		if err := m.db.WithContext(ctx).
			Where("ticket_id = ?", ticket.ID).
			Order("created_at ASC").
			Find(&comments).Error; err != nil {
			log.Printf("agents: load comments for %s: %v", ticket.ID, err)
			return
		}
		info.Comments = commentEntries(&ticket, comments)
	}
}

type generateTicketRequest struct {
	Complexity     string  `json:"complexity"`
	Category       string  `json:"category"`
	UserProfile    string  `json:"userProfile"`
	ResponseFormat string  `json:"responseFormat"`
	AssignToID     *uint64 `json:"assignToId"`
}

func (m *Module) handleGenerateTicket(c *gin.Context) {
	userID, ok := authorization.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req generateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	category, categoryName := m.resolveCategory(c.Request.Context(), req.Category)

	draft, err := m.generator.GenerateTicket(c.Request.Context(), GenerateParams{
		Complexity:     req.Complexity,
		CategoryName:   categoryName,
		UserProfile:    req.UserProfile,
		ResponseFormat: req.ResponseFormat,
	})
	if err != nil {
		log.Printf("agents: generate ticket: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate ticket"})
		return
	}

	solution := m.generator.GenerateSolution(c.Request.Context(), draft)
	profile := strings.TrimSpace(req.UserProfile)
	if profile == "" {
		profile = "student"
	}

	ticket := tickets.Ticket{
		Title:          draft.Title,
		Description:    draft.Description,
		Device:         draft.Device,
		AdditionalInfo: draft.AdditionalInfo,
		Priority:       draft.Priority,
		Status:         tickets.StatusOpen,
		ResponseFormat: draft.ResponseFormat,
		CreatedByID:    userID,
		AssignedToID:   req.AssignToID,
		IsAIGenerated:  true,
		Solution:       &solution,
		UserProfile:    &profile,
	}
	if category != nil {
		ticket.CategoryID = &category.ID
	}
	if err := m.db.WithContext(c.Request.Context()).Create(&ticket).Error; err != nil {
		log.Printf("agents: store generated ticket: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store generated ticket"})
		return
	}

	if m.ai != nil {
		m.ai.ProcessTicket(c.Request.Context(), ticketai.TicketContent{
			ID:             ticket.ID,
			Title:          ticket.Title,
			Description:    ticket.Description,
			Category:       categoryName,
			Device:         ticket.Device,
			AdditionalInfo: ticket.AdditionalInfo,
		})
	}

	c.JSON(http.StatusCreated, gin.H{"ticket": ticket})
}

// resolveCategory finds a ticket category by uuid or by case-insensitive
// name. A miss is not an error: the generated ticket just carries no
// category reference and the prompt uses the requested (or default) name.
func (m *Module) resolveCategory(ctx context.Context, raw string) (*tickets.Category, string) {
	name := strings.TrimSpace(raw)
	if name == "" || m.db == nil {
		return nil, name
	}

	var category tickets.Category
	query := m.db.WithContext(ctx)
	if uuidPattern.MatchString(name) {
		query = query.Where("id = ?", name)
	} else {
		query = query.Where("LOWER(name) = LOWER(?)", name)
	}
	if err := query.First(&category).Error; err != nil {
		log.Printf("agents: resolve category %q: %v", name, err)
		return nil, name
	}
	return &category, category.Name
}

type chatInbound struct {
	Content string `json:"content"`
}

type chatOutbound struct {
	Comment    *tickets.Comment `json:"comment,omitempty"`
	AIComment  *tickets.Comment `json:"aiComment,omitempty"`
	Evaluation string           `json:"evaluation,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// handleTicketChat runs the live training conversation over a websocket.
// Every inbound support message is persisted, answered by the simulated
// requester and echoed back with the progress evaluation. An ERROR
// evaluation tells the UI to hide the progress indicator.
func (m *Module) handleTicketChat(c *gin.Context) {
	userID, ok := authorization.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var ticket tickets.Ticket
	if err := m.db.WithContext(c.Request.Context()).Preload("Category").First(&ticket, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "ticket not found"})
		return
	}
	if !ticket.IsAIGenerated {
		c.JSON(http.StatusBadRequest, gin.H{"error": "live chat is only available on training tickets"})
		return
	}

	conn, err := chatUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("agents: websocket upgrade for %s: %v", ticket.ID, err)
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	for {
		var inbound chatInbound
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("agents: websocket read for %s: %v", ticket.ID, err)
			}
			return
		}
		content := strings.TrimSpace(inbound.Content)
		if content == "" {
			conn.WriteJSON(chatOutbound{Error: "comment content is required"})
			continue
		}

		var history []tickets.Comment
		if err := m.db.WithContext(ctx).
			Where("ticket_id = ?", ticket.ID).
			Order("created_at ASC").
			Find(&history).Error; err != nil {
			log.Printf("agents: load chat history for %s: %v", ticket.ID, err)
			conn.WriteJSON(chatOutbound{Error: "Internal server error"})
			continue
		}

		comment := tickets.Comment{TicketID: ticket.ID, AuthorID: userID, Content: content}
		if err := m.db.WithContext(ctx).Create(&comment).Error; err != nil {
			log.Printf("agents: store chat comment for %s: %v", ticket.ID, err)
			conn.WriteJSON(chatOutbound{Error: "Internal server error"})
			continue
		}

		reply := m.chat.Reply(ctx, chatTicketFrom(&ticket), commentEntries(&ticket, history), content)

		aiComment := tickets.Comment{TicketID: ticket.ID, AuthorID: ticket.CreatedByID, Content: reply.ResponseText}
		if err := m.db.WithContext(ctx).Create(&aiComment).Error; err != nil {
			log.Printf("agents: store chat reply for %s: %v", ticket.ID, err)
			conn.WriteJSON(chatOutbound{Comment: &comment, Error: "Internal server error"})
			continue
		}

		if err := conn.WriteJSON(chatOutbound{Comment: &comment, AIComment: &aiComment, Evaluation: reply.Evaluation}); err != nil {
			log.Printf("agents: websocket write for %s: %v", ticket.ID, err)
			return
		}
	}
}

// SimulatedReply implements the tickets module's AIResponder: it answers a
// support comment on a training ticket in the requester's persona. Progress
// comes from the keyword heuristic here, so each support comment costs a
// single completion; the live chat keeps the LLM evaluation.
func (m *Module) SimulatedReply(ctx context.Context, ticket *tickets.Ticket, history []tickets.Comment, supportComment tickets.Comment) (string, string, error) {
	if m == nil || m.generator == nil {
		return "", "", ErrAgentsDisabled
	}
	reply := m.generator.SimulateUserReply(ctx, chatTicketFrom(ticket), commentEntries(ticket, history), supportComment.Content)
	return reply.ResponseText, reply.Evaluation, nil
}

func chatTicketFrom(ticket *tickets.Ticket) ChatTicket {
	chatTicket := ChatTicket{
		ID:             ticket.ID,
		Title:          ticket.Title,
		Description:    ticket.Description,
		Device:         ticket.Device,
		Priority:       ticket.Priority,
		AdditionalInfo: ticket.AdditionalInfo,
	}
	if ticket.Category != nil {
		chatTicket.Category = ticket.Category.Name
	}
	if ticket.UserProfile != nil {
		chatTicket.UserProfile = *ticket.UserProfile
	}
	if ticket.Solution != nil {
		chatTicket.Solution = *ticket.Solution
	}
	return chatTicket
}

// commentEntries converts stored comments into the agents' conversation
// shape. The requester side is whoever filed the ticket; everyone else is
// support.
func commentEntries(ticket *tickets.Ticket, comments []tickets.Comment) []CommentEntry {
	entries := make([]CommentEntry, 0, len(comments))
	for _, comment := range comments {
		entry := CommentEntry{
			AuthorName: "Tukihenkilö",
			Role:       "support",
			Content:    comment.Content,
			CreatedAt:  comment.CreatedAt,
		}
		if comment.AuthorID == ticket.CreatedByID {
			entry.AuthorName = "Käyttäjä"
			entry.Role = "user"
		}
		entries = append(entries, entry)
	}
	return entries
}

package tickets

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"tiketti_back/authorization"
	"tiketti_back/storage"
	"tiketti_back/ticketai"
)

const attachmentURLExpiry = 15 * time.Minute

// AIResponder produces the simulated requester's reply to a support comment
// on an AI-generated training ticket. Implemented by the agents module and
// wired in after registration to keep the dependency one-directional.
type AIResponder interface {
	SimulatedReply(ctx context.Context, ticket *Ticket, history []Comment, supportComment Comment) (reply string, evaluation string, err error)
}

// Module owns the ticket CRUD surface and the ticket lifecycle hooks that
// feed the AI pipeline.
type Module struct {
	db          *gorm.DB
	ai          *ticketai.Service
	aiCfg       ticketai.Config
	attachments *storage.ObjectStorage
	responder   AIResponder
}

// RegisterRoutes initialises the tickets module and mounts its routes.
func RegisterRoutes(router *gin.Engine, guard *authorization.Guard, aiModule *ticketai.Module) (*Module, error) {
	db, err := openDatabaseFromEnv()
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Category{}, &Ticket{}, &Comment{}, &Attachment{}); err != nil {
		return nil, err
	}

	attachments, err := storage.NewAttachmentStorageFromEnv()
	if err != nil {
		return nil, err
	}
	if attachments == nil {
		log.Printf("tickets: attachment storage not configured, uploads disabled")
	}

	module := &Module{
		db:          db,
		attachments: attachments,
	}
	if aiModule != nil {
		module.ai = aiModule.Service()
		module.aiCfg = aiModule.Config()
	}

	categories := router.Group("/categories")
	categories.GET("", module.handleListCategories)
	categories.POST("", guard.RequireAuthenticated(), guard.RequireRole(authorization.RoleAdmin), module.handleCreateCategory)

	group := router.Group("/tickets")
	group.Use(guard.RequireAuthenticated())
	group.GET("", module.handleListTickets)
	group.POST("", module.handleCreateTicket)
	group.GET("/:id", module.handleGetTicket)
	group.PUT("/:id", module.handleUpdateTicket)
	group.DELETE("/:id", guard.RequireRole(authorization.RoleAdmin), module.handleDeleteTicket)
	group.PATCH("/:id/status", guard.RequireAnyRole(authorization.RoleSupport, authorization.RoleAdmin), module.handleUpdateStatus)
	group.PATCH("/:id/assign", guard.RequireAnyRole(authorization.RoleSupport, authorization.RoleAdmin), module.handleAssign)
	group.GET("/:id/comments", module.handleListComments)
	group.POST("/:id/comments", module.handleCreateComment)
	group.GET("/:id/attachments", module.handleListAttachments)
	group.POST("/:id/attachments", module.handleUploadAttachment)

	return module, nil
}

// DB exposes the module's database handle to sibling modules.
func (m *Module) DB() *gorm.DB {
	if m == nil {
		return nil
	}
	return m.db
}

// SetAIResponder wires the simulated-requester agent in after both modules
// are registered.
func (m *Module) SetAIResponder(responder AIResponder) {
	if m == nil {
		return
	}
	m.responder = responder
}

func (m *Module) handleListCategories(c *gin.Context) {
	var categories []Category
	if err := m.db.WithContext(c.Request.Context()).Order("name ASC").Find(&categories).Error; err != nil {
		log.Printf("tickets: list categories: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

type createCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (m *Module) handleCreateCategory(c *gin.Context) {
	var req createCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category name is required"})
		return
	}

	category := Category{Name: name, Description: strings.TrimSpace(req.Description)}
	if err := m.db.WithContext(c.Request.Context()).Create(&category).Error; err != nil {
		log.Printf("tickets: create category: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"category": category})
}

func (m *Module) handleListTickets(c *gin.Context) {
	query := m.db.WithContext(c.Request.Context()).Model(&Ticket{}).Preload("Category")

	if status := strings.TrimSpace(c.Query("status")); status != "" {
		if !ValidStatus(status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}
		query = query.Where("status = ?", status)
	}
	if priority := strings.TrimSpace(c.Query("priority")); priority != "" {
		if !ValidPriority(priority) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid priority filter"})
			return
		}
		query = query.Where("priority = ?", priority)
	}
	if categoryID := strings.TrimSpace(c.Query("categoryId")); categoryID != "" {
		query = query.Where("category_id = ?", categoryID)
	}
	if strings.EqualFold(strings.TrimSpace(c.Query("mine")), "true") {
		userID, ok := authorization.CurrentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		query = query.Where("created_by_id = ? OR assigned_to_id = ?", userID, userID)
	}

	var tickets []Ticket
	if err := query.Order("created_at DESC").Find(&tickets).Error; err != nil {
		log.Printf("tickets: list tickets: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

type createTicketRequest struct {
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Device         string  `json:"device"`
	AdditionalInfo string  `json:"additionalInfo"`
	Priority       string  `json:"priority"`
	ResponseFormat string  `json:"responseFormat"`
	CategoryID     *string `json:"categoryId"`
}

func (m *Module) handleCreateTicket(c *gin.Context) {
	userID, ok := authorization.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Description) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title and description are required"})
		return
	}

	priority := strings.TrimSpace(req.Priority)
	if priority == "" {
		priority = PriorityMedium
	}
	if !ValidPriority(priority) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid priority"})
		return
	}
	format := strings.TrimSpace(req.ResponseFormat)
	if format == "" {
		format = FormatText
	}
	if !ValidResponseFormat(format) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid response format"})
		return
	}

	ticket := Ticket{
		Title:          strings.TrimSpace(req.Title),
		Description:    strings.TrimSpace(req.Description),
		Device:         strings.TrimSpace(req.Device),
		AdditionalInfo: strings.TrimSpace(req.AdditionalInfo),
		Priority:       priority,
		Status:         StatusOpen,
		ResponseFormat: format,
		CategoryID:     req.CategoryID,
		CreatedByID:    userID,
	}
	if err := m.db.WithContext(c.Request.Context()).Create(&ticket).Error; err != nil {
		log.Printf("tickets: create ticket: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	m.processForAI(c.Request.Context(), &ticket)

	c.JSON(http.StatusCreated, gin.H{"ticket": ticket})
}

func (m *Module) loadTicket(c *gin.Context) (*Ticket, bool) {
	id := strings.TrimSpace(c.Param("id"))
	var ticket Ticket
	err := m.db.WithContext(c.Request.Context()).Preload("Category").First(&ticket, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
		return nil, false
	}
	if err != nil {
		log.Printf("tickets: load ticket %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return nil, false
	}
	return &ticket, true
}

func (m *Module) handleGetTicket(c *gin.Context) {
	ticket, ok := m.loadTicket(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": ticket})
}

type updateTicketRequest struct {
	Title          *string `json:"title"`
	Description    *string `json:"description"`
	Device         *string `json:"device"`
	AdditionalInfo *string `json:"additionalInfo"`
	Priority       *string `json:"priority"`
	CategoryID     *string `json:"categoryId"`
}

func (m *Module) handleUpdateTicket(c *gin.Context) {
	ticket, ok := m.loadTicket(c)
	if !ok {
		return
	}

	userID, _ := authorization.CurrentUserID(c)
	if ticket.CreatedByID != userID && !authorization.HasAnyRole(c, authorization.RoleSupport, authorization.RoleAdmin) {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the creator or support staff may edit a ticket"})
		return
	}

	var req updateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title cannot be empty"})
			return
		}
		ticket.Title = title
	}
	if req.Description != nil {
		desc := strings.TrimSpace(*req.Description)
		if desc == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "description cannot be empty"})
			return
		}
		ticket.Description = desc
	}
	if req.Device != nil {
		ticket.Device = strings.TrimSpace(*req.Device)
	}
	if req.AdditionalInfo != nil {
		ticket.AdditionalInfo = strings.TrimSpace(*req.AdditionalInfo)
	}
	if req.Priority != nil {
		priority := strings.TrimSpace(*req.Priority)
		if !ValidPriority(priority) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid priority"})
			return
		}
		ticket.Priority = priority
	}
	if req.CategoryID != nil {
		ticket.CategoryID = req.CategoryID
		ticket.Category = nil
	}

	if err := m.db.WithContext(c.Request.Context()).Save(ticket).Error; err != nil {
		log.Printf("tickets: update ticket %s: %v", ticket.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	m.processForAI(c.Request.Context(), ticket)

	c.JSON(http.StatusOK, gin.H{"ticket": ticket})
}

func (m *Module) handleDeleteTicket(c *gin.Context) {
	ticket, ok := m.loadTicket(c)
	if !ok {
		return
	}

	err := m.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("ticket_id = ?", ticket.ID).Delete(&Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("ticket_id = ?", ticket.ID).Delete(&Attachment{}).Error; err != nil {
			return err
		}
		return tx.Delete(ticket).Error
	})
	if err != nil {
		log.Printf("tickets: delete ticket %s: %v", ticket.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if m.ai != nil {
		m.ai.HandleTicketDeletion(c.Request.Context(), ticket.ID)
	}

	c.Status(http.StatusNoContent)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (m *Module) handleUpdateStatus(c *gin.Context) {
	ticket, ok := m.loadTicket(c)
	if !ok {
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil || !ValidStatus(strings.TrimSpace(req.Status)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	ticket.Status = strings.TrimSpace(req.Status)
	if err := m.db.WithContext(c.Request.Context()).Model(ticket).Update("status", ticket.Status).Error; err != nil {
		log.Printf("tickets: update status for %s: %v", ticket.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": ticket})
}

type assignRequest struct {
	AssignedToID *uint64 `json:"assignedToId"`
}

func (m *Module) handleAssign(c *gin.Context) {
	ticket, ok := m.loadTicket(c)
	if !ok {
		return
	}

	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	ticket.AssignedToID = req.AssignedToID
	if ticket.Status == StatusOpen && req.AssignedToID != nil {
		ticket.Status = StatusInProgress
	}
	if err := m.db.WithContext(c.Request.Context()).Model(ticket).
		Updates(map[string]interface{}{"assigned_to_id": ticket.AssignedToID, "status": ticket.Status}).Error; err != nil {
		log.Printf("tickets: assign ticket %s: %v", ticket.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": ticket})
}

func (m *Module) handleListComments(c *gin.Context) {
	ticket, ok := m.loadTicket(c)
	if !ok {
		return
	}

	var comments []Comment
	if err := m.db.WithContext(c.Request.Context()).
		Where("ticket_id = ?", ticket.ID).
		Order("created_at ASC").
		Find(&comments).Error; err != nil {
		log.Printf("tickets: list comments for %s: %v", ticket.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

type createCommentRequest struct {
	Content string `json:"content"`
}

func (m *Module) handleCreateComment(c *gin.Context) {
	ticket, ok := m.loadTicket(c)
	if !ok {
		return
	}

	userID, okUser := authorization.CurrentUserID(c)
	if !okUser {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "comment content is required"})
		return
	}

	var history []Comment
	if err := m.db.WithContext(c.Request.Context()).
		Where("ticket_id = ?", ticket.ID).
		Order("created_at ASC").
		Find(&history).Error; err != nil {
		log.Printf("tickets: load comment history for %s: %v", ticket.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	comment := Comment{
		TicketID: ticket.ID,
		AuthorID: userID,
		Content:  strings.TrimSpace(req.Content),
	}
	if err := m.db.WithContext(c.Request.Context()).Create(&comment).Error; err != nil {
		log.Printf("tickets: create comment on %s: %v", ticket.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	response := gin.H{"comment": comment}

	// Training tickets answer back: the simulated requester reacts to every
	// support comment when the feature is enabled.
	if aiComment, evaluation, replied := m.simulatedReply(c.Request.Context(), ticket, history, comment); replied {
		response["aiComment"] = aiComment
		response["evaluation"] = evaluation
	}

	c.JSON(http.StatusCreated, response)
}

// simulatedReply asks the chat agent for the requester's next message and
// persists it. Best-effort: any failure leaves the support comment in place.
func (m *Module) simulatedReply(ctx context.Context, ticket *Ticket, history []Comment, supportComment Comment) (*Comment, string, bool) {
	if m.responder == nil || !m.aiCfg.EnableAgentChat {
		return nil, "", false
	}
	if !ticket.IsAIGenerated || supportComment.AuthorID == ticket.CreatedByID {
		return nil, "", false
	}

	reply, evaluation, err := m.responder.SimulatedReply(ctx, ticket, history, supportComment)
	if err != nil {
		log.Printf("tickets: simulated reply for %s: %v", ticket.ID, err)
		return nil, "", false
	}

	aiComment := Comment{
		TicketID: ticket.ID,
		AuthorID: ticket.CreatedByID,
		Content:  reply,
	}
	if err := m.db.WithContext(ctx).Create(&aiComment).Error; err != nil {
		log.Printf("tickets: store simulated reply for %s: %v", ticket.ID, err)
		return nil, "", false
	}
	return &aiComment, evaluation, true
}

func (m *Module) handleListAttachments(c *gin.Context) {
	ticket, ok := m.loadTicket(c)
	if !ok {
		return
	}

	var attachments []Attachment
	if err := m.db.WithContext(c.Request.Context()).
		Where("ticket_id = ?", ticket.ID).
		Order("created_at ASC").
		Find(&attachments).Error; err != nil {
		log.Printf("tickets: list attachments for %s: %v", ticket.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	for i := range attachments {
		signed, err := m.attachments.PresignedURL(c.Request.Context(), attachments[i].ObjectKey, attachmentURLExpiry)
		if err != nil {
			log.Printf("tickets: presign attachment %s: %v", attachments[i].ID, err)
			continue
		}
		attachments[i].URL = signed
	}
	c.JSON(http.StatusOK, gin.H{"attachments": attachments})
}

func (m *Module) handleUploadAttachment(c *gin.Context) {
	ticket, ok := m.loadTicket(c)
	if !ok {
		return
	}
	if m.attachments == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "attachment storage is not configured"})
		return
	}

	userID, okUser := authorization.CurrentUserID(c)
	if !okUser {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	objectURL, err := m.attachments.Upload(c.Request.Context(), fileHeader, ticket.ID)
	if err != nil {
		log.Printf("tickets: upload attachment for %s: %v", ticket.ID, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	attachment := Attachment{
		TicketID:    ticket.ID,
		UploaderID:  userID,
		ObjectKey:   objectURL,
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
	}
	if err := m.db.WithContext(c.Request.Context()).Create(&attachment).Error; err != nil {
		log.Printf("tickets: store attachment for %s: %v", ticket.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"attachment": attachment})
}

// processForAI keeps the vector store in sync with ticket content.
// Best-effort: the AI pipeline never blocks ticket creation or updates.
func (m *Module) processForAI(ctx context.Context, ticket *Ticket) {
	if m.ai == nil {
		return
	}

	categoryName := ""
	if ticket.Category != nil {
		categoryName = ticket.Category.Name
	} else if ticket.CategoryID != nil {
		var category Category
		if err := m.db.WithContext(ctx).First(&category, "id = ?", *ticket.CategoryID).Error; err == nil {
			categoryName = category.Name
		}
	}

	m.ai.ProcessTicket(ctx, ticketai.TicketContent{
		ID:             ticket.ID,
		Title:          ticket.Title,
		Description:    ticket.Description,
		Category:       categoryName,
		Device:         ticket.Device,
		AdditionalInfo: ticket.AdditionalInfo,
	})
}

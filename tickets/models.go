package tickets

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Priority levels, worst last.
const (
	PriorityLow      = "LOW"
	PriorityMedium   = "MEDIUM"
	PriorityHigh     = "HIGH"
	PriorityCritical = "CRITICAL"
)

// Ticket lifecycle states.
const (
	StatusOpen       = "OPEN"
	StatusInProgress = "IN_PROGRESS"
	StatusResolved   = "RESOLVED"
	StatusClosed     = "CLOSED"
)

// Requested response formats for training tickets.
const (
	FormatText  = "TEKSTI"
	FormatImage = "KUVA"
	FormatVideo = "VIDEO"
)

// Ticket is a helpdesk request. AI-generated training tickets additionally
// carry a hidden solution and the simulated requester's profile; the solution
// never leaves the backend through the JSON encoding.
type Ticket struct {
	ID             string         `gorm:"type:uuid;primaryKey" json:"id"`
	Title          string         `gorm:"size:200;not null" json:"title"`
	Description    string         `gorm:"type:text;not null" json:"description"`
	Device         string         `gorm:"size:100" json:"device"`
	AdditionalInfo string         `gorm:"type:text" json:"additionalInfo"`
	Priority       string         `gorm:"size:16;not null;default:'MEDIUM'" json:"priority"`
	Status         string         `gorm:"size:16;not null;default:'OPEN'" json:"status"`
	ResponseFormat string         `gorm:"size:16;not null;default:'TEKSTI'" json:"responseFormat"`
	CategoryID     *string        `gorm:"type:uuid;index" json:"categoryId,omitempty"`
	Category       *Category      `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	CreatedByID    uint64         `gorm:"not null;index" json:"createdById"`
	AssignedToID   *uint64        `gorm:"index" json:"assignedToId,omitempty"`
	IsAIGenerated  bool           `gorm:"not null;default:false" json:"isAiGenerated"`
	Solution       *string        `gorm:"type:text" json:"-"`
	UserProfile    *string        `gorm:"size:50" json:"userProfile,omitempty"`
	Extras         datatypes.JSON `gorm:"type:json" json:"extras,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

func (Ticket) TableName() string {
	return "tickets"
}

// BeforeCreate assigns the uuid primary key.
func (t *Ticket) BeforeCreate(tx *gorm.DB) error {
	if strings.TrimSpace(t.ID) == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Comment is one turn in a ticket conversation. Comments are immutable once
// created and ordered by creation time.
type Comment struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	TicketID  string    `gorm:"type:uuid;not null;index" json:"ticketId"`
	AuthorID  uint64    `gorm:"not null;index" json:"authorId"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func (Comment) TableName() string {
	return "ticket_comments"
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if strings.TrimSpace(c.ID) == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Category groups tickets by problem area.
type Category struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (Category) TableName() string {
	return "ticket_categories"
}

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if strings.TrimSpace(c.ID) == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Attachment is an uploaded file tied to a ticket, stored in object storage.
type Attachment struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	TicketID    string    `gorm:"type:uuid;not null;index" json:"ticketId"`
	UploaderID  uint64    `gorm:"not null" json:"uploaderId"`
	ObjectKey   string    `gorm:"size:255;not null" json:"-"`
	FileName    string    `gorm:"size:255;not null" json:"fileName"`
	ContentType string    `gorm:"size:100" json:"contentType"`
	Size        int64     `gorm:"not null" json:"size"`
	URL         string    `gorm:"-" json:"url,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (Attachment) TableName() string {
	return "ticket_attachments"
}

func (a *Attachment) BeforeCreate(tx *gorm.DB) error {
	if strings.TrimSpace(a.ID) == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// ValidPriority reports whether value is a known priority level.
func ValidPriority(value string) bool {
	switch value {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// ValidStatus reports whether value is a known lifecycle state.
func ValidStatus(value string) bool {
	switch value {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// ValidResponseFormat reports whether value is a known response format.
func ValidResponseFormat(value string) bool {
	switch value {
	case FormatText, FormatImage, FormatVideo:
		return true
	}
	return false
}

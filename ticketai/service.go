package ticketai

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// TicketContent is the slice of a ticket the AI features care about.
type TicketContent struct {
	ID             string
	Title          string
	Description    string
	Category       string
	Device         string
	AdditionalInfo string
}

// Service orchestrates the embedder and the vector store: it turns tickets
// into vectors, keeps the store in sync with ticket lifecycle events and
// answers similarity queries.
type Service struct {
	embedder Embedder
	store    VectorStore

	threshold  float64
	maxResults int
}

// NewService wires the similarity pipeline. Threshold and result cap come
// from the shared AI configuration.
func NewService(embedder Embedder, store VectorStore, cfg Config) (*Service, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ticketai: embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("ticketai: vector store is required")
	}
	threshold := cfg.SimilarityThreshold
	if threshold <= 0 {
		threshold = 0.7
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Service{
		embedder:   embedder,
		store:      store,
		threshold:  threshold,
		maxResults: maxResults,
	}, nil
}

// compositeText flattens a ticket into one embedding input, omitting blank
// fields so absent metadata does not dilute the vector.
func compositeText(ticket TicketContent) string {
	parts := make([]string, 0, 5)
	if title := strings.TrimSpace(ticket.Title); title != "" {
		parts = append(parts, "Title: "+title)
	}
	if desc := strings.TrimSpace(ticket.Description); desc != "" {
		parts = append(parts, "Description: "+desc)
	}
	if category := strings.TrimSpace(ticket.Category); category != "" {
		parts = append(parts, "Category: "+category)
	}
	if device := strings.TrimSpace(ticket.Device); device != "" {
		parts = append(parts, "Device: "+device)
	}
	if info := strings.TrimSpace(ticket.AdditionalInfo); info != "" {
		parts = append(parts, "Additional Info: "+info)
	}
	return strings.Join(parts, "\n")
}

// ProcessTicket embeds a new or updated ticket and stores the vector.
// It is deliberately best-effort: failures are logged and reported as false
// so that ticket creation is never blocked by the AI pipeline.
func (s *Service) ProcessTicket(ctx context.Context, ticket TicketContent) bool {
	log.Printf("ticketai: processing ticket %s", ticket.ID)

	vector, err := s.embedder.Embed(ctx, compositeText(ticket))
	if err != nil {
		log.Printf("ticketai: embed ticket %s: %v", ticket.ID, err)
		return false
	}
	if err := s.store.Upsert(ctx, ticket.ID, vector); err != nil {
		log.Printf("ticketai: store embedding for ticket %s: %v", ticket.ID, err)
		return false
	}
	return true
}

// HandleTicketDeletion removes the stored embedding for a deleted ticket.
// Best-effort like ProcessTicket.
func (s *Service) HandleTicketDeletion(ctx context.Context, ticketID string) bool {
	if _, err := s.store.Delete(ctx, ticketID); err != nil {
		log.Printf("ticketai: delete embedding for ticket %s: %v", ticketID, err)
		return false
	}
	return true
}

// FindSimilarTicketsForTicket embeds the ticket content without storing it
// and returns the nearest stored tickets. Unlike ProcessTicket a failure here
// is surfaced; the caller decides how fatal it is to its own step.
func (s *Service) FindSimilarTicketsForTicket(ctx context.Context, ticket TicketContent, limit int) ([]Match, error) {
	vector, err := s.embedder.Embed(ctx, compositeText(ticket))
	if err != nil {
		return nil, err
	}
	return s.neighbors(ctx, vector, limit)
}

// SearchTickets embeds a free-text query and returns the nearest tickets.
func (s *Service) SearchTickets(ctx context.Context, query string, limit int) ([]Match, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.neighbors(ctx, vector, limit)
}

func (s *Service) neighbors(ctx context.Context, vector []float32, limit int) ([]Match, error) {
	if limit <= 0 || limit > s.maxResults {
		limit = s.maxResults
	}
	return s.store.NearestNeighbors(ctx, vector, limit, s.threshold)
}

package ticketai

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// ErrStore marks vector store failures. An error is never the same thing as
// an empty result: callers that see ErrStore cannot conclude "no matches".
var ErrStore = errors.New("ticketai: vector store failed")

// Match is one similarity search hit. Similarity is cosine similarity
// rescaled to [0,1].
type Match struct {
	TicketID   string  `json:"ticketId"`
	Similarity float64 `json:"similarity"`
}

// VectorStore persists one embedding per ticket and answers nearest-neighbor
// queries over them.
type VectorStore interface {
	Upsert(ctx context.Context, ticketID string, vector []float32) error
	Delete(ctx context.Context, ticketID string) (bool, error)
	NearestNeighbors(ctx context.Context, vector []float32, limit int, threshold float64) ([]Match, error)
}

// pgVectorStore keeps ticket embeddings in a pgvector column and runs
// similarity queries with the cosine distance operator.
type pgVectorStore struct {
	db        *gorm.DB
	dimension int

	indexType      string
	listSize       int
	efConstruction int
	m              int
}

// NewPgVectorStore wires a vector store over the given database connection.
// The connected database must have the pgvector extension available.
func NewPgVectorStore(db *gorm.DB, cfg Config) (VectorStore, error) {
	if db == nil {
		return nil, errors.New("ticketai: database connection is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("ticketai: vector dimension must be positive, got %d", cfg.Dimension)
	}
	return &pgVectorStore{
		db:             db,
		dimension:      cfg.Dimension,
		indexType:      strings.ToLower(strings.TrimSpace(cfg.IndexType)),
		listSize:       cfg.ListSize,
		efConstruction: cfg.EfConstruction,
		m:              cfg.M,
	}, nil
}

// EnsureSchema creates the pgvector extension, the embeddings table and the
// configured approximate-nearest-neighbor index.
func (s *pgVectorStore) EnsureSchema(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("%w: create extension: %v", ErrStore, err)
	}

	tableStmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ticket_embeddings (
		ticket_id uuid PRIMARY KEY,
		embedding vector(%d) NOT NULL,
		updated_at timestamptz NOT NULL DEFAULT now()
	)`, s.dimension)
	if err := s.db.WithContext(ctx).Exec(tableStmt).Error; err != nil {
		return fmt.Errorf("%w: create table: %v", ErrStore, err)
	}

	var indexStmt string
	switch s.indexType {
	case "ivfflat":
		indexStmt = fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS ticket_embeddings_embedding_idx
			 ON ticket_embeddings USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)`,
			s.listSize)
	default:
		indexStmt = fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS ticket_embeddings_embedding_idx
			 ON ticket_embeddings USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d)`,
			s.m, s.efConstruction)
	}
	if err := s.db.WithContext(ctx).Exec(indexStmt).Error; err != nil {
		return fmt.Errorf("%w: create index: %v", ErrStore, err)
	}
	return nil
}

// Upsert inserts or replaces the vector for a ticket, refreshing the update
// timestamp. Repeated calls with the same id converge to one row.
func (s *pgVectorStore) Upsert(ctx context.Context, ticketID string, vector []float32) error {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return fmt.Errorf("%w: ticket id is required", ErrStore)
	}
	if len(vector) != s.dimension {
		return fmt.Errorf("%w: vector length %d does not match column width %d", ErrStore, len(vector), s.dimension)
	}

	stmt := `INSERT INTO ticket_embeddings (ticket_id, embedding)
		VALUES (?, ?::vector)
		ON CONFLICT (ticket_id)
		DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = now()`
	if err := s.db.WithContext(ctx).Exec(stmt, ticketID, vectorLiteral(vector)).Error; err != nil {
		return fmt.Errorf("%w: upsert ticket %s: %v", ErrStore, ticketID, err)
	}
	return nil
}

// Delete removes the embedding row for a ticket. Deleting an absent id is a
// no-op reported through the boolean, not an error.
func (s *pgVectorStore) Delete(ctx context.Context, ticketID string) (bool, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return false, fmt.Errorf("%w: ticket id is required", ErrStore)
	}

	result := s.db.WithContext(ctx).Exec("DELETE FROM ticket_embeddings WHERE ticket_id = ?", ticketID)
	if result.Error != nil {
		return false, fmt.Errorf("%w: delete ticket %s: %v", ErrStore, ticketID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// NearestNeighbors returns up to limit tickets whose cosine similarity to the
// query vector exceeds threshold, descending by similarity. Ties break by
// ticket id so repeated identical queries stay stable.
func (s *pgVectorStore) NearestNeighbors(ctx context.Context, vector []float32, limit int, threshold float64) ([]Match, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: vector length %d does not match column width %d", ErrStore, len(vector), s.dimension)
	}
	if limit <= 0 {
		limit = 5
	}

	stmt := `SELECT ticket_id, 1 - (embedding <=> ?::vector) AS similarity
		FROM ticket_embeddings
		WHERE 1 - (embedding <=> ?::vector) > ?
		ORDER BY similarity DESC, ticket_id ASC
		LIMIT ?`

	literal := vectorLiteral(vector)
	rows := make([]struct {
		TicketID   string
		Similarity float64
	}, 0, limit)
	if err := s.db.WithContext(ctx).Raw(stmt, literal, literal, threshold, limit).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: similarity query: %v", ErrStore, err)
	}

	matches := make([]Match, 0, len(rows))
	for _, row := range rows {
		similarity := row.Similarity
		if similarity < 0 {
			similarity = 0
		}
		if similarity > 1 {
			similarity = 1
		}
		matches = append(matches, Match{TicketID: row.TicketID, Similarity: similarity})
	}
	return matches, nil
}

// vectorLiteral renders a vector in pgvector's input syntax: [1,2,3].
func vectorLiteral(vector []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, value := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(value), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

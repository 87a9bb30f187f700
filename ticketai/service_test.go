package ticketai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

type stubEmbedder struct {
	vector []float32
	err    error
	calls  int
	inputs []string
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	s.inputs = append(s.inputs, text)
	if s.err != nil {
		return nil, s.err
	}
	return s.vector, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vector, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vector)
	}
	return out, nil
}

type stubStore struct {
	upserts   map[string][]float32
	deleted   []string
	matches   []Match
	upsertErr error
	queryErr  error

	lastLimit     int
	lastThreshold float64
}

func newStubStore() *stubStore {
	return &stubStore{upserts: map[string][]float32{}}
}

func (s *stubStore) Upsert(ctx context.Context, ticketID string, vector []float32) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts[ticketID] = vector
	return nil
}

func (s *stubStore) Delete(ctx context.Context, ticketID string) (bool, error) {
	s.deleted = append(s.deleted, ticketID)
	return true, nil
}

func (s *stubStore) NearestNeighbors(ctx context.Context, vector []float32, limit int, threshold float64) ([]Match, error) {
	s.lastLimit = limit
	s.lastThreshold = threshold
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.matches, nil
}

func testConfig() Config {
	return Config{
		APIKey:              "test-key",
		Dimension:           3,
		SimilarityThreshold: 0.7,
		MaxResults:          5,
	}
}

func TestCompositeTextOmitsBlankFields(t *testing.T) {
	text := compositeText(TicketContent{
		Title:       "Ei nettiyhteyttä",
		Description: "Kone ei saa yhteyttä verkkoon",
		Device:      "  ",
	})
	want := "Title: Ei nettiyhteyttä\nDescription: Kone ei saa yhteyttä verkkoon"
	if text != want {
		t.Fatalf("unexpected composite text:\n%q\nwant\n%q", text, want)
	}
	if strings.Contains(text, "Device:") {
		t.Fatalf("blank device should be omitted, got %q", text)
	}
}

func TestProcessTicketStoresEmbedding(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{0.1, 0.2, 0.3}}
	store := newStubStore()
	svc, err := NewService(embedder, store, testConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ok := svc.ProcessTicket(context.Background(), TicketContent{
		ID:          "11111111-1111-1111-1111-111111111111",
		Title:       "Tulostin ei toimi",
		Description: "Tulostin ei tulosta mitään",
	})
	if !ok {
		t.Fatalf("expected success")
	}
	if _, found := store.upserts["11111111-1111-1111-1111-111111111111"]; !found {
		t.Fatalf("embedding was not stored")
	}
}

func TestProcessTicketEmbedFailureIsBestEffort(t *testing.T) {
	embedder := &stubEmbedder{err: fmt.Errorf("%w: provider down", ErrEmbedding)}
	store := newStubStore()
	svc, err := NewService(embedder, store, testConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if ok := svc.ProcessTicket(context.Background(), TicketContent{ID: "t1", Title: "x", Description: "y"}); ok {
		t.Fatalf("expected false on embed failure")
	}
	if len(store.upserts) != 0 {
		t.Fatalf("nothing must be persisted after embed failure, got %d rows", len(store.upserts))
	}
}

func TestProcessTicketStoreFailureIsBestEffort(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
	store := newStubStore()
	store.upsertErr = fmt.Errorf("%w: connection refused", ErrStore)
	svc, err := NewService(embedder, store, testConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if ok := svc.ProcessTicket(context.Background(), TicketContent{ID: "t1", Title: "x", Description: "y"}); ok {
		t.Fatalf("expected false on store failure")
	}
}

func TestFindSimilarTicketsPropagatesFailure(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
	store := newStubStore()
	store.queryErr = fmt.Errorf("%w: timeout", ErrStore)
	svc, err := NewService(embedder, store, testConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	_, err = svc.FindSimilarTicketsForTicket(context.Background(), TicketContent{Title: "a", Description: "b"}, 3)
	if !errors.Is(err, ErrStore) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestSearchTicketsCapsLimit(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
	store := newStubStore()
	store.matches = []Match{{TicketID: "a", Similarity: 0.9}}
	svc, err := NewService(embedder, store, testConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.SearchTickets(context.Background(), "verkko ongelma", 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lastLimit != 5 {
		t.Fatalf("limit should be capped to 5, got %d", store.lastLimit)
	}
	if store.lastThreshold != 0.7 {
		t.Fatalf("threshold should come from config, got %v", store.lastThreshold)
	}

	if _, err := svc.SearchTickets(context.Background(), "verkko ongelma", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lastLimit != 5 {
		t.Fatalf("zero limit should fall back to the configured cap, got %d", store.lastLimit)
	}
}

func TestHandleTicketDeletion(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
	store := newStubStore()
	svc, err := NewService(embedder, store, testConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if ok := svc.HandleTicketDeletion(context.Background(), "t9"); !ok {
		t.Fatalf("expected success")
	}
	if len(store.deleted) != 1 || store.deleted[0] != "t9" {
		t.Fatalf("unexpected deletions: %v", store.deleted)
	}
}

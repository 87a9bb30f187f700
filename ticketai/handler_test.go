package ticketai

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(module *Module) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	group := router.Group("/ai")
	group.Use(RequireConfigured(module.cfg))
	group.Use(RateLimit(module.cfg))
	group.POST("/similar-tickets", module.handleSimilarTickets)
	group.GET("/search-tickets", module.handleSearchTickets)
	group.POST("/process-ticket", module.handleProcessTicket)
	return router
}

func newTestModule(embedder Embedder, store VectorStore) *Module {
	cfg := testConfig()
	svc, err := NewService(embedder, store, cfg)
	if err != nil {
		panic(err)
	}
	return &Module{cfg: cfg, service: svc}
}

func TestMissingAPIKeyReturns503WithoutProviderCalls(t *testing.T) {
	embedder := &stubEmbedder{vector: []float32{1, 0, 0}}
	store := newStubStore()
	module := newTestModule(embedder, store)
	module.cfg.APIKey = ""
	router := newTestRouter(module)

	paths := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPost, "/ai/similar-tickets", `{"ticketTitle":"a","ticketDescription":"b"}`},
		{http.MethodGet, "/ai/search-tickets?query=verkko", ""},
		{http.MethodPost, "/ai/process-ticket", `{"ticketId":"t1","ticketTitle":"a","ticketDescription":"b"}`},
	}
	for _, tc := range paths {
		var body *bytes.Buffer
		if tc.body != "" {
			body = bytes.NewBufferString(tc.body)
		} else {
			body = &bytes.Buffer{}
		}
		req := httptest.NewRequest(tc.method, tc.path, body)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s %s: expected 503, got %d", tc.method, tc.path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "not properly configured") {
			t.Fatalf("%s %s: expected explanatory body, got %s", tc.method, tc.path, rec.Body.String())
		}
	}
	if embedder.calls != 0 {
		t.Fatalf("no provider call may happen without an API key, got %d", embedder.calls)
	}
}

func TestSimilarTicketsRequiresTitleAndDescription(t *testing.T) {
	module := newTestModule(&stubEmbedder{vector: []float32{1, 0, 0}}, newStubStore())
	router := newTestRouter(module)

	req := httptest.NewRequest(http.MethodPost, "/ai/similar-tickets", bytes.NewBufferString(`{"ticketTitle":"only title"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSimilarTicketsReturnsMatches(t *testing.T) {
	store := newStubStore()
	store.matches = []Match{
		{TicketID: "t1", Similarity: 0.92},
		{TicketID: "t2", Similarity: 0.81},
	}
	module := newTestModule(&stubEmbedder{vector: []float32{1, 0, 0}}, store)
	router := newTestRouter(module)

	payload := `{"ticketTitle":"Ei nettiyhteyttä","ticketDescription":"Kone ei saa yhteyttä","limit":2}`
	req := httptest.NewRequest(http.MethodPost, "/ai/similar-tickets", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var decoded struct {
		SimilarTickets []Match `json:"similarTickets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(decoded.SimilarTickets) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(decoded.SimilarTickets))
	}
	if decoded.SimilarTickets[0].TicketID != "t1" || decoded.SimilarTickets[0].Similarity != 0.92 {
		t.Fatalf("unexpected first match: %+v", decoded.SimilarTickets[0])
	}
}

func TestSearchTicketsRequiresQuery(t *testing.T) {
	module := newTestModule(&stubEmbedder{vector: []float32{1, 0, 0}}, newStubStore())
	router := newTestRouter(module)

	req := httptest.NewRequest(http.MethodGet, "/ai/search-tickets", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSearchTicketsEmptyResultIsNotAnError(t *testing.T) {
	module := newTestModule(&stubEmbedder{vector: []float32{1, 0, 0}}, newStubStore())
	router := newTestRouter(module)

	req := httptest.NewRequest(http.MethodGet, "/ai/search-tickets?query=tuntematon", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"results":[]`) {
		t.Fatalf("expected empty results array, got %s", rec.Body.String())
	}
}

func TestProcessTicketReports500OnFailure(t *testing.T) {
	store := newStubStore()
	store.upsertErr = ErrStore
	module := newTestModule(&stubEmbedder{vector: []float32{1, 0, 0}}, store)
	router := newTestRouter(module)

	payload := `{"ticketId":"t1","ticketTitle":"a","ticketDescription":"b"}`
	req := httptest.NewRequest(http.MethodPost, "/ai/process-ticket", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"success":false`) {
		t.Fatalf("expected success=false in body, got %s", rec.Body.String())
	}
}

func TestProcessTicketSuccess(t *testing.T) {
	store := newStubStore()
	module := newTestModule(&stubEmbedder{vector: []float32{1, 0, 0}}, store)
	router := newTestRouter(module)

	payload := `{"ticketId":"t1","ticketTitle":"Tulostin","ticketDescription":"Ei tulosta","deviceInfo":"HP LaserJet"}`
	req := httptest.NewRequest(http.MethodPost, "/ai/process-ticket", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, found := store.upserts["t1"]; !found {
		t.Fatalf("embedding was not stored")
	}
}

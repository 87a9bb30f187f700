package ticketai

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every environment-sourced knob for the AI features:
// provider credentials, vector store layout, similarity search bounds,
// caching, rate limiting and feature flags.
type Config struct {
	APIKey          string
	BaseURL         string
	EmbeddingModel  string
	CompletionModel string
	AdvancedModel   string

	Dimension      int
	IndexType      string
	ListSize       int
	EfConstruction int
	M              int

	SimilarityThreshold float64
	MaxResults          int

	CacheEnabled bool
	CacheTTL     time.Duration

	RateLimitEnabled     bool
	RateLimitMaxRequests int64
	RateLimitWindow      time.Duration

	Verbose bool

	EnableSolutionRecommender bool
	EnableKnowledgeExtraction bool
	EnableAgentChat           bool
}

// LoadConfigFromEnv reads the AI configuration from the environment,
// substituting the documented defaults for anything unset.
func LoadConfigFromEnv() Config {
	return Config{
		APIKey:          strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL:         strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		EmbeddingModel:  envDefault("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		CompletionModel: envDefault("OPENAI_COMPLETION_MODEL", "gpt-3.5-turbo"),
		AdvancedModel:   envDefault("OPENAI_ADVANCED_MODEL", "gpt-4"),

		Dimension:      envInt("PGVECTOR_DIMENSION", 1536),
		IndexType:      strings.ToLower(envDefault("PGVECTOR_INDEX_TYPE", "hnsw")),
		ListSize:       envInt("PGVECTOR_LIST_SIZE", 100),
		EfConstruction: envInt("PGVECTOR_EF_CONSTRUCTION", 64),
		M:              envInt("PGVECTOR_M", 16),

		SimilarityThreshold: envFloat("SIMILARITY_MATCH_THRESHOLD", 0.7),
		MaxResults:          envInt("SIMILARITY_MAX_RESULTS", 5),

		CacheEnabled: envBool("AI_CACHE_ENABLED"),
		CacheTTL:     time.Duration(envInt("AI_CACHE_TTL", 3600)) * time.Second,

		RateLimitEnabled:     envBool("AI_RATE_LIMIT_ENABLED"),
		RateLimitMaxRequests: int64(envInt("AI_RATE_LIMIT_MAX_REQUESTS", 60)),
		RateLimitWindow:      time.Duration(envInt("AI_RATE_LIMIT_TIME_WINDOW", 60)) * time.Second,

		Verbose: envBool("AGENT_VERBOSE"),

		EnableSolutionRecommender: envBool("ENABLE_SOLUTION_RECOMMENDER"),
		EnableKnowledgeExtraction: envBool("ENABLE_KNOWLEDGE_EXTRACTION"),
		EnableAgentChat:           envBool("ENABLE_AGENT_CHAT"),
	}
}

// Validate reports whether the configuration is complete enough to serve AI
// requests. A missing API key is the one fatal omission; it is logged once
// here and turned into a 503 by the route middleware.
func (c Config) Validate() error {
	if c.APIKey == "" {
		log.Printf("ticketai: missing AI configuration: OPENAI_API_KEY")
		return fmt.Errorf("ticketai: OPENAI_API_KEY is required")
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("ticketai: vector dimension must be positive, got %d", c.Dimension)
	}
	return nil
}

func envDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed < 0 || parsed > 1 {
		return fallback
	}
	return parsed
}

func envBool(key string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(key)), "true")
}

package main

import (
	"log"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"tiketti_back/agents"
	"tiketti_back/authorization"
	"tiketti_back/ticketai"
	"tiketti_back/tickets"
)

func mustLoadEnv() {
	_ = godotenv.Load()
}

func main() {
	mustLoadEnv()

	r := gin.Default()
	r.Use(cors.New(corsConfig()))

	authModule, err := authorization.RegisterRoutes(r)
	if err != nil {
		log.Fatalf("register auth routes: %v", err)
	}
	guard := authModule.Guard()

	aiModule, err := ticketai.RegisterRoutes(r)
	if err != nil {
		log.Fatalf("register ticket AI routes: %v", err)
	}

	ticketsModule, err := tickets.RegisterRoutes(r, guard, aiModule)
	if err != nil {
		log.Fatalf("register ticket routes: %v", err)
	}

	agentsModule, err := agents.RegisterRoutes(r, guard, aiModule)
	if err != nil {
		log.Fatalf("register agent routes: %v", err)
	}
	ticketsModule.SetAIResponder(agentsModule)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if err := r.Run(":" + port); err != nil {
		log.Fatalf("start server: %v", err)
	}
}

func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	if origins := strings.TrimSpace(os.Getenv("CORS_ALLOW_ORIGINS")); origins != "" {
		allowed := make([]string, 0, 4)
		for _, origin := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				allowed = append(allowed, trimmed)
			}
		}
		cfg.AllowOrigins = allowed
		cfg.AllowCredentials = true
	} else {
		cfg.AllowAllOrigins = true
	}
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
	return cfg
}

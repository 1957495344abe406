package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/arealis/magnus-backend/internal/handlers"
)

type RouterConfig struct {
	AgentHandler  *handlers.AgentHandler
	IngestHandler *handlers.IngestHandler
	CORSOrigins   string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	origins := []string{"http://localhost:3000", "http://localhost:5173"}
	if cfg.CORSOrigins != "" {
		origins = strings.Split(cfg.CORSOrigins, ",")
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/health", handlers.HealthCheck)

	api := router.Group("/api/v1")
	{
		// Agent callbacks
		agents := api.Group("/agents")
		agents.POST("/compliance", cfg.AgentHandler.PostCompliance)
		agents.POST("/fraud", cfg.AgentHandler.PostFraud)
		agents.POST("/routing", cfg.AgentHandler.PostRouting)
		agents.POST("/explainability", cfg.AgentHandler.PostExplainability)
		agents.POST("/failures", cfg.AgentHandler.PostFailure)
		agents.POST("/failures/clear", cfg.AgentHandler.PostFailureClear)

		// Data ingestion
		ingest := api.Group("/ingest")
		ingest.GET("/ping", cfg.IngestHandler.Ping)
		ingest.POST("/csv", cfg.IngestHandler.PostCSV)
		ingest.POST("/live-api", cfg.IngestHandler.PostLiveAPI)
	}

	return router
}

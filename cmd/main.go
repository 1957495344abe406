package main

import (
	"fmt"
	"os"

	"github.com/arealis/magnus-backend/internal/db"
	"github.com/arealis/magnus-backend/internal/handlers"
	"github.com/arealis/magnus-backend/internal/logger"
	"github.com/arealis/magnus-backend/internal/repos"
	"github.com/arealis/magnus-backend/internal/server"
	"github.com/arealis/magnus-backend/internal/services"
	"github.com/arealis/magnus-backend/internal/utils"
	"github.com/arealis/magnus-backend/internal/vectorindex"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	port := utils.GetEnv("PORT", "8000", log)
	embeddingDim := utils.GetEnvAsInt("EXPLAINABILITY_EMBEDDING_DIM", 32, log)
	qdrantURL := utils.GetEnv("QDRANT_URL", "", log)
	qdrantCollection := utils.GetEnv("QDRANT_COLLECTION", "explainability_cache", log)
	corsOrigins := utils.GetEnv("CORS_ORIGINS", "", log)

	// Database
	databaseService, err := db.NewDatabaseService(log)
	if err != nil {
		log.Fatal("Database init failed", "error", err)
	}
	if err = databaseService.AutoMigrateAll(); err != nil {
		log.Fatal("Database auto migration failed", "error", err)
	}
	theDB := databaseService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	complianceRepo := repos.NewComplianceCheckRepo(theDB, log)
	fraudRepo := repos.NewFraudFlagRepo(theDB, log)
	routeRepo := repos.NewRouteSelectionRepo(theDB, log)
	explainabilityRepo := repos.NewExplainabilityCacheRepo(theDB, log)
	failureRepo := repos.NewAgentFailureRepo(theDB, log)
	sessionRepo := repos.NewIngestSessionRepo(theDB, log)
	transactionRepo := repos.NewTransactionRepo(theDB, log)
	bankRepo := repos.NewBankConnectionRepo(theDB, log)

	// Vector index. The engine works without one; writes degrade to no-ops.
	var index vectorindex.Index
	if qdrantURL == "" {
		log.Warn("QDRANT_URL not set, vector index disabled")
		index = vectorindex.NewNoop(log)
	} else {
		index, err = vectorindex.NewQdrant(log, vectorindex.Config{
			URL:        qdrantURL,
			Collection: qdrantCollection,
			VectorDim:  embeddingDim,
		})
		if err != nil {
			log.Warn("Qdrant init failed, vector index disabled", "error", err)
			index = vectorindex.NewNoop(log)
		}
	}

	// Services
	log.Info("Setting up Services from main...")
	pipelineService := services.NewPipelineService(
		theDB,
		log,
		complianceRepo,
		fraudRepo,
		routeRepo,
		explainabilityRepo,
		failureRepo,
		index,
		embeddingDim,
	)
	ingestService := services.NewIngestService(theDB, log, sessionRepo, transactionRepo, bankRepo)

	// Handlers
	log.Info("Setting up Handlers from main...")
	agentHandler := handlers.NewAgentHandler(pipelineService, log)
	ingestHandler := handlers.NewIngestHandler(ingestService, log)

	// Router
	router := server.NewRouter(server.RouterConfig{
		AgentHandler:  agentHandler,
		IngestHandler: ingestHandler,
		CORSOrigins:   corsOrigins,
	})

	log.Info("Starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}

package db

import (
  "fmt"
  "strings"
  "gorm.io/driver/postgres"
  "gorm.io/driver/sqlite"
  "gorm.io/gorm"
  "github.com/arealis/magnus-backend/internal/logger"
  "github.com/arealis/magnus-backend/internal/types"
  "github.com/arealis/magnus-backend/internal/utils"
)

type DatabaseService struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewDatabaseService(log *logger.Logger) (*DatabaseService, error) {
  serviceLog := log.With("service", "DatabaseService")

  log.Info("Loading environment variables...")
  driver := strings.ToLower(utils.GetEnv("DATABASE_DRIVER", "postgres", log))

  var dialector gorm.Dialector
  switch driver {
  case "sqlite":
    sqlitePath := utils.GetEnv("SQLITE_PATH", "./arealis_magnus.db", log)
    dialector = sqlite.Open(sqlitePath)
  default:
    postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
    postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
    postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
    postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
    postgresName := utils.GetEnv("POSTGRES_NAME", "arealis_magnus", log)
    dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)
    dialector = postgres.Open(dsn)
  }

  log.Info("Connecting to database...", "driver", driver)
  database, err := gorm.Open(dialector, &gorm.Config{
    DisableForeignKeyConstraintWhenMigrating: true,
    TranslateError:                           true,
  })
  if err != nil {
    log.Error("Failed to connect to database", "driver", driver, "error", err)
    return nil, fmt.Errorf("Failed to connect to database: %w", err)
  }

  return &DatabaseService{db: database, log: serviceLog}, nil
}

func (s *DatabaseService) AutoMigrateAll() error {
  s.log.Info("Auto migrating tables...")
  err := s.db.AutoMigrate(
    &types.IngestSession{},
    &types.Transaction{},
    &types.BankConnection{},
    &types.ComplianceCheck{},
    &types.FraudFlag{},
    &types.RouteSelection{},
    &types.ExplainabilityCache{},
    &types.AgentFailure{},
  )
  if err != nil {
    s.log.Error("Auto migration failed", "error", err)
    return err
  }
  s.log.Info("Configuring foreign key relationships...")
  constraints := []struct {
    name string
    sql  string
  }{
    {
      name: "fk_compliance_checks_session_id",
      sql: `
        ALTER TABLE "compliance_checks"
        ADD CONSTRAINT "fk_compliance_checks_session_id"
        FOREIGN KEY ("session_id")
        REFERENCES "ingest_sessions"("id")
        ON DELETE CASCADE
      `,
    },
    {
      name: "fk_fraud_flags_trace_id",
      sql: `
        ALTER TABLE "fraud_flags"
        ADD CONSTRAINT "fk_fraud_flags_trace_id"
        FOREIGN KEY ("trace_id")
        REFERENCES "compliance_checks"("trace_id")
        ON DELETE CASCADE
      `,
    },
    {
      name: "fk_route_selection_trace_id",
      sql: `
        ALTER TABLE "route_selection"
        ADD CONSTRAINT "fk_route_selection_trace_id"
        FOREIGN KEY ("trace_id")
        REFERENCES "fraud_flags"("trace_id")
        ON DELETE CASCADE
      `,
    },
    {
      name: "fk_explainability_cache_trace_id",
      sql: `
        ALTER TABLE "explainability_cache"
        ADD CONSTRAINT "fk_explainability_cache_trace_id"
        FOREIGN KEY ("trace_id")
        REFERENCES "route_selection"("trace_id")
        ON DELETE CASCADE
      `,
    },
    {
      name: "fk_transactions_session_id",
      sql: `
        ALTER TABLE "transactions"
        ADD CONSTRAINT "fk_transactions_session_id"
        FOREIGN KEY ("session_id")
        REFERENCES "ingest_sessions"("id")
        ON DELETE CASCADE
      `,
    },
  }
  for _, constraint := range constraints {
    if err := s.db.Exec(constraint.sql).Error; err != nil {
      // Re-running migrations against an existing schema hits duplicate
      // constraint errors; sqlite cannot ALTER ADD CONSTRAINT at all.
      s.log.Debug("Skipping constraint", "constraint", constraint.name, "error", err)
    }
  }
  return nil
}

func (s *DatabaseService) DB() *gorm.DB {
  return s.db
}

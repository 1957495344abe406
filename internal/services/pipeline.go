package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/arealis/magnus-backend/internal/embedding"
	"github.com/arealis/magnus-backend/internal/logger"
	"github.com/arealis/magnus-backend/internal/repos"
	"github.com/arealis/magnus-backend/internal/types"
	"github.com/arealis/magnus-backend/internal/vectorindex"
)

// ComplianceOutputInput carries one compliance agent result for a trace.
type ComplianceOutputInput struct {
	TraceID           string
	SessionID         uuid.UUID
	RawInput          map[string]interface{}
	ComplianceSummary map[string]interface{}
	RiskScore         *float64
	Status            string
	NextAgent         string
	LatencyMs         *float64
}

type FraudOutputInput struct {
	TraceID          string
	ProbabilityScore float64
	FlaggedFeatures  map[string]interface{}
	ExplanatoryNotes *string
	Status           string
	NextAgent        string
	LatencyMs        *float64
}

type RoutingOutputInput struct {
	TraceID          string
	RecommendedRoute map[string]interface{}
	Alternatives     map[string]interface{}
	Confidence       float64
	Status           string
	NextAgent        string
	LatencyMs        *float64
}

type ExplainabilityOutputInput struct {
	TraceID            string
	Explanation        string
	SupportingEvidence map[string]interface{}
	Status             string
	NextAgent          string
	LatencyMs          *float64
}

type AgentFailureInput struct {
	AgentName    string
	TraceID      string
	ErrorPayload map[string]interface{}
	LatencyMs    *float64
}

// PipelineService records agent stage outputs for payment traces. A trace
// walks the fixed chain compliance -> fraud_detection -> routing ->
// explainability; each stage keeps exactly one record per trace_id and a
// resubmission overwrites the stored record in place. Recording a stage
// also clears any pending failure row for that agent and trace.
type PipelineService interface {
	RecordComplianceOutput(ctx context.Context, in ComplianceOutputInput) (*types.ComplianceCheck, error)
	RecordFraudOutput(ctx context.Context, in FraudOutputInput) (*types.FraudFlag, error)
	RecordRoutingOutput(ctx context.Context, in RoutingOutputInput) (*types.RouteSelection, error)
	RecordExplainabilityOutput(ctx context.Context, in ExplainabilityOutputInput) (*types.ExplainabilityCache, error)
	MarkAgentFailure(ctx context.Context, in AgentFailureInput) (*types.AgentFailure, error)
	ClearAgentFailure(ctx context.Context, agentName, traceID string) error
}

type pipelineService struct {
	db           *gorm.DB
	log          *logger.Logger
	events       *logger.Logger
	compliance   repos.ComplianceCheckRepo
	fraud        repos.FraudFlagRepo
	routes       repos.RouteSelectionRepo
	explanations repos.ExplainabilityCacheRepo
	failures     repos.AgentFailureRepo
	index        vectorindex.Index
	embeddingDim int
}

func NewPipelineService(
	db *gorm.DB,
	baseLog *logger.Logger,
	compliance repos.ComplianceCheckRepo,
	fraud repos.FraudFlagRepo,
	routes repos.RouteSelectionRepo,
	explanations repos.ExplainabilityCacheRepo,
	failures repos.AgentFailureRepo,
	index vectorindex.Index,
	embeddingDim int,
) PipelineService {
	return &pipelineService{
		db:           db,
		log:          baseLog.With("service", "PipelineService"),
		events:       baseLog.With("component", "agent_pipeline"),
		compliance:   compliance,
		fraud:        fraud,
		routes:       routes,
		explanations: explanations,
		failures:     failures,
		index:        index,
		embeddingDim: embeddingDim,
	}
}

func (s *pipelineService) RecordComplianceOutput(ctx context.Context, in ComplianceOutputInput) (*types.ComplianceCheck, error) {
	if in.TraceID == "" {
		return nil, fmt.Errorf("%w: trace_id is required", ErrInvalidArgument)
	}
	status, err := types.ParseAgentStatus(in.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, in.Status)
	}
	if in.RiskScore != nil && !validUnitInterval(*in.RiskScore) {
		return nil, fmt.Errorf("%w: risk_score", ErrInvalidScore)
	}

	record, err := s.upsertCompliance(ctx, in, status)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost a concurrent first-insert race; the retry lands on the
		// update path against the winner's row.
		record, err = s.upsertCompliance(ctx, in, status)
	}
	if err != nil {
		return nil, err
	}

	extra := []interface{}{"record_id", record.ID, "next_agent", record.NextAgent}
	if record.RiskScore != nil {
		extra = append(extra, "risk_score", *record.RiskScore)
	}
	s.logAgentEvent(types.AgentCompliance, in.TraceID, record.Status, in.LatencyMs, extra...)
	return record, nil
}

func (s *pipelineService) upsertCompliance(ctx context.Context, in ComplianceOutputInput, status types.AgentStatus) (*types.ComplianceCheck, error) {
	rawInput, err := mapJSON(in.RawInput)
	if err != nil {
		return nil, err
	}
	summary, err := mapJSON(in.ComplianceSummary)
	if err != nil {
		return nil, err
	}

	var record *types.ComplianceCheck
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.compliance.GetByTraceID(ctx, tx, in.TraceID)
		if err != nil {
			return err
		}
		if existing == nil {
			record = &types.ComplianceCheck{
				TraceID:           in.TraceID,
				SessionID:         in.SessionID,
				RawInput:          rawInput,
				ComplianceSummary: summary,
				RiskScore:         in.RiskScore,
				AgentLifecycle: types.AgentLifecycle{
					Status:    status,
					NextAgent: nextAgentOrDefault(in.NextAgent, types.ComplianceCheck{}.DefaultNextAgent()),
				},
			}
			if err := s.compliance.Create(ctx, tx, record); err != nil {
				return err
			}
		} else {
			existing.SessionID = in.SessionID
			existing.RawInput = rawInput
			existing.ComplianceSummary = summary
			existing.RiskScore = in.RiskScore
			existing.Status = status
			if in.NextAgent != "" {
				existing.NextAgent = in.NextAgent
			}
			if err := s.compliance.Save(ctx, tx, existing); err != nil {
				return err
			}
			record = existing
		}
		return s.failures.DeleteByAgentAndTrace(ctx, tx, types.AgentCompliance, in.TraceID)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *pipelineService) RecordFraudOutput(ctx context.Context, in FraudOutputInput) (*types.FraudFlag, error) {
	if in.TraceID == "" {
		return nil, fmt.Errorf("%w: trace_id is required", ErrInvalidArgument)
	}
	status, err := types.ParseAgentStatus(in.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, in.Status)
	}
	if !validUnitInterval(in.ProbabilityScore) {
		return nil, fmt.Errorf("%w: probability_score", ErrInvalidScore)
	}

	record, err := s.upsertFraud(ctx, in, status)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		record, err = s.upsertFraud(ctx, in, status)
	}
	if err != nil {
		return nil, err
	}

	s.logAgentEvent(types.AgentFraudDetection, in.TraceID, record.Status, in.LatencyMs,
		"record_id", record.ID,
		"next_agent", record.NextAgent,
		"probability_score", record.ProbabilityScore)
	return record, nil
}

func (s *pipelineService) upsertFraud(ctx context.Context, in FraudOutputInput, status types.AgentStatus) (*types.FraudFlag, error) {
	features, err := mapJSON(in.FlaggedFeatures)
	if err != nil {
		return nil, err
	}

	var record *types.FraudFlag
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.fraud.GetByTraceID(ctx, tx, in.TraceID)
		if err != nil {
			return err
		}
		if existing == nil {
			ok, err := s.compliance.ExistsByTraceID(ctx, tx, in.TraceID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: no compliance check for trace %q", ErrMissingPrerequisite, in.TraceID)
			}
			record = &types.FraudFlag{
				TraceID:          in.TraceID,
				ProbabilityScore: in.ProbabilityScore,
				FlaggedFeatures:  features,
				ExplanatoryNotes: in.ExplanatoryNotes,
				AgentLifecycle: types.AgentLifecycle{
					Status:    status,
					NextAgent: nextAgentOrDefault(in.NextAgent, types.FraudFlag{}.DefaultNextAgent()),
				},
			}
			if err := s.fraud.Create(ctx, tx, record); err != nil {
				return err
			}
		} else {
			existing.ProbabilityScore = in.ProbabilityScore
			existing.FlaggedFeatures = features
			existing.ExplanatoryNotes = in.ExplanatoryNotes
			existing.Status = status
			if in.NextAgent != "" {
				existing.NextAgent = in.NextAgent
			}
			if err := s.fraud.Save(ctx, tx, existing); err != nil {
				return err
			}
			record = existing
		}
		return s.failures.DeleteByAgentAndTrace(ctx, tx, types.AgentFraudDetection, in.TraceID)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *pipelineService) RecordRoutingOutput(ctx context.Context, in RoutingOutputInput) (*types.RouteSelection, error) {
	if in.TraceID == "" {
		return nil, fmt.Errorf("%w: trace_id is required", ErrInvalidArgument)
	}
	status, err := types.ParseAgentStatus(in.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, in.Status)
	}
	if !validUnitInterval(in.Confidence) {
		return nil, fmt.Errorf("%w: confidence", ErrInvalidScore)
	}

	record, err := s.upsertRouting(ctx, in, status)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		record, err = s.upsertRouting(ctx, in, status)
	}
	if err != nil {
		return nil, err
	}

	s.logAgentEvent(types.AgentRouting, in.TraceID, record.Status, in.LatencyMs,
		"record_id", record.ID,
		"next_agent", record.NextAgent,
		"confidence", record.Confidence)
	return record, nil
}

func (s *pipelineService) upsertRouting(ctx context.Context, in RoutingOutputInput, status types.AgentStatus) (*types.RouteSelection, error) {
	route, err := mapJSON(in.RecommendedRoute)
	if err != nil {
		return nil, err
	}
	alternatives, err := mapJSON(in.Alternatives)
	if err != nil {
		return nil, err
	}

	var record *types.RouteSelection
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.routes.GetByTraceID(ctx, tx, in.TraceID)
		if err != nil {
			return err
		}
		if existing == nil {
			ok, err := s.fraud.ExistsByTraceID(ctx, tx, in.TraceID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: no fraud flag for trace %q", ErrMissingPrerequisite, in.TraceID)
			}
			record = &types.RouteSelection{
				TraceID:          in.TraceID,
				RecommendedRoute: route,
				Alternatives:     alternatives,
				Confidence:       in.Confidence,
				AgentLifecycle: types.AgentLifecycle{
					Status:    status,
					NextAgent: nextAgentOrDefault(in.NextAgent, types.RouteSelection{}.DefaultNextAgent()),
				},
			}
			if err := s.routes.Create(ctx, tx, record); err != nil {
				return err
			}
		} else {
			existing.RecommendedRoute = route
			existing.Alternatives = alternatives
			existing.Confidence = in.Confidence
			existing.Status = status
			if in.NextAgent != "" {
				existing.NextAgent = in.NextAgent
			}
			if err := s.routes.Save(ctx, tx, existing); err != nil {
				return err
			}
			record = existing
		}
		return s.failures.DeleteByAgentAndTrace(ctx, tx, types.AgentRouting, in.TraceID)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *pipelineService) RecordExplainabilityOutput(ctx context.Context, in ExplainabilityOutputInput) (*types.ExplainabilityCache, error) {
	if in.TraceID == "" {
		return nil, fmt.Errorf("%w: trace_id is required", ErrInvalidArgument)
	}
	if in.Explanation == "" {
		return nil, fmt.Errorf("%w: explanation is required", ErrInvalidArgument)
	}
	status, err := types.ParseAgentStatus(in.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, in.Status)
	}

	record, vector, err := s.upsertExplainability(ctx, in, status)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		record, vector, err = s.upsertExplainability(ctx, in, status)
	}
	if err != nil {
		return nil, err
	}

	// Best effort: index availability never gates the write that already
	// committed.
	if vector != nil {
		go s.pushEmbedding(in.TraceID, vector)
	}

	s.logAgentEvent(types.AgentExplainability, in.TraceID, record.Status, in.LatencyMs,
		"record_id", record.ID,
		"next_agent", record.NextAgent,
		"embedding_refreshed", vector != nil)
	return record, nil
}

func (s *pipelineService) upsertExplainability(ctx context.Context, in ExplainabilityOutputInput, status types.AgentStatus) (*types.ExplainabilityCache, []float64, error) {
	evidence, err := mapJSON(in.SupportingEvidence)
	if err != nil {
		return nil, nil, err
	}

	var (
		record *types.ExplainabilityCache
		vector []float64
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.explanations.GetByTraceID(ctx, tx, in.TraceID)
		if err != nil {
			return err
		}
		if existing == nil {
			ok, err := s.routes.ExistsByTraceID(ctx, tx, in.TraceID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: no route selection for trace %q", ErrMissingPrerequisite, in.TraceID)
			}
			vec, err := embedding.Generate(in.Explanation, s.embeddingDim)
			if err != nil {
				return err
			}
			vector = vec
			record = &types.ExplainabilityCache{
				TraceID:            in.TraceID,
				Explanation:        in.Explanation,
				SupportingEvidence: evidence,
				Embedding:          embedding.EncodeFloat32LE(vec),
				AgentLifecycle: types.AgentLifecycle{
					Status:    status,
					NextAgent: nextAgentOrDefault(in.NextAgent, types.ExplainabilityCache{}.DefaultNextAgent()),
				},
			}
			if err := s.explanations.Create(ctx, tx, record); err != nil {
				return err
			}
		} else {
			// The vector is a pure function of the explanation text, so
			// only a text change forces a regeneration.
			if existing.Explanation != in.Explanation {
				vec, err := embedding.Generate(in.Explanation, s.embeddingDim)
				if err != nil {
					return err
				}
				vector = vec
				existing.Embedding = embedding.EncodeFloat32LE(vec)
			}
			existing.Explanation = in.Explanation
			existing.SupportingEvidence = evidence
			existing.Status = status
			if in.NextAgent != "" {
				existing.NextAgent = in.NextAgent
			}
			if err := s.explanations.Save(ctx, tx, existing); err != nil {
				return err
			}
			record = existing
		}
		return s.failures.DeleteByAgentAndTrace(ctx, tx, types.AgentExplainability, in.TraceID)
	})
	if err != nil {
		return nil, nil, err
	}
	return record, vector, nil
}

func (s *pipelineService) pushEmbedding(traceID string, vector []float64) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	pointID := vectorindex.VectorID(traceID)
	if err := s.index.Upsert(ctx, pointID, embedding.Float32Vector(vector)); err != nil {
		s.log.Warn("vector index upsert failed",
			"trace_id", traceID,
			"point_id", pointID,
			"error", err)
	}
}

func (s *pipelineService) MarkAgentFailure(ctx context.Context, in AgentFailureInput) (*types.AgentFailure, error) {
	if in.AgentName == "" || in.TraceID == "" {
		return nil, fmt.Errorf("%w: agent_name and trace_id are required", ErrInvalidArgument)
	}
	payload, err := mapJSON(in.ErrorPayload)
	if err != nil {
		return nil, err
	}

	record, err := s.upsertFailure(ctx, in, payload)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		record, err = s.upsertFailure(ctx, in, payload)
	}
	if err != nil {
		return nil, err
	}

	s.logAgentEvent(in.AgentName, in.TraceID, types.AgentStatusError, in.LatencyMs,
		"retry_count", record.RetryCount)
	return record, nil
}

func (s *pipelineService) upsertFailure(ctx context.Context, in AgentFailureInput, payload datatypes.JSON) (*types.AgentFailure, error) {
	var record *types.AgentFailure
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.failures.GetByAgentAndTrace(ctx, tx, in.AgentName, in.TraceID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if existing == nil {
			record = &types.AgentFailure{
				AgentName:     in.AgentName,
				TraceID:       in.TraceID,
				ErrorPayload:  payload,
				RetryCount:    1,
				LastAttemptAt: now,
			}
			return s.failures.Create(ctx, tx, record)
		}
		existing.RetryCount++
		existing.ErrorPayload = payload
		existing.LastAttemptAt = now
		record = existing
		return s.failures.Save(ctx, tx, existing)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *pipelineService) ClearAgentFailure(ctx context.Context, agentName, traceID string) error {
	if agentName == "" || traceID == "" {
		return fmt.Errorf("%w: agent_name and trace_id are required", ErrInvalidArgument)
	}
	return s.failures.DeleteByAgentAndTrace(ctx, nil, agentName, traceID)
}

func (s *pipelineService) logAgentEvent(agent, traceID string, status types.AgentStatus, latencyMs *float64, extra ...interface{}) {
	kvs := []interface{}{
		"agent", agent,
		"trace_id", traceID,
		"status", string(status),
	}
	if latencyMs != nil {
		kvs = append(kvs, "latency_ms", math.Round(*latencyMs*100)/100)
	}
	kvs = append(kvs, extra...)
	s.events.Info("agent event", kvs...)
}

func validUnitInterval(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0.0 && v <= 1.0
}

func nextAgentOrDefault(requested, fallback string) string {
	if requested != "" {
		return requested
	}
	return fallback
}

func mapJSON(m map[string]interface{}) (datatypes.JSON, error) {
	if m == nil {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: payload not JSON-encodable", ErrInvalidArgument)
	}
	return datatypes.JSON(raw), nil
}

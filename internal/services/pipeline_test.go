package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/arealis/magnus-backend/internal/embedding"
	"github.com/arealis/magnus-backend/internal/logger"
	"github.com/arealis/magnus-backend/internal/repos"
	"github.com/arealis/magnus-backend/internal/types"
	"github.com/arealis/magnus-backend/internal/vectorindex"
)

const testEmbeddingDim = 32

type indexCall struct {
	id     uint64
	vector []float32
}

// captureIndex records upserts and signals each one so tests can wait for
// the asynchronous index push without sleeping.
type captureIndex struct {
	mu      sync.Mutex
	calls   []indexCall
	arrived chan struct{}
}

func newCaptureIndex() *captureIndex {
	return &captureIndex{arrived: make(chan struct{}, 16)}
}

func (c *captureIndex) Upsert(_ context.Context, id uint64, vector []float32) error {
	c.mu.Lock()
	c.calls = append(c.calls, indexCall{id: id, vector: append([]float32(nil), vector...)})
	c.mu.Unlock()
	c.arrived <- struct{}{}
	return nil
}

func (c *captureIndex) Remove(_ context.Context, _ uint64) error { return nil }

func (c *captureIndex) waitForUpsert(t *testing.T) indexCall {
	t.Helper()
	select {
	case <-c.arrived:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for index upsert")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[len(c.calls)-1]
}

func newTestPipeline(t *testing.T) (PipelineService, *gorm.DB, *captureIndex) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	err = db.AutoMigrate(
		&types.ComplianceCheck{},
		&types.FraudFlag{},
		&types.RouteSelection{},
		&types.ExplainabilityCache{},
		&types.AgentFailure{},
	)
	if err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}
	idx := newCaptureIndex()
	svc := NewPipelineService(
		db,
		log,
		repos.NewComplianceCheckRepo(db, log),
		repos.NewFraudFlagRepo(db, log),
		repos.NewRouteSelectionRepo(db, log),
		repos.NewExplainabilityCacheRepo(db, log),
		repos.NewAgentFailureRepo(db, log),
		idx,
		testEmbeddingDim,
	)
	return svc, db, idx
}

func floatPtr(v float64) *float64 { return &v }

func recordChain(t *testing.T, svc PipelineService, traceID string, upTo string) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.RecordComplianceOutput(ctx, ComplianceOutputInput{
		TraceID:   traceID,
		SessionID: uuid.New(),
		RiskScore: floatPtr(0.12),
	})
	if err != nil {
		t.Fatalf("record compliance: %v", err)
	}
	if upTo == types.AgentCompliance {
		return
	}
	_, err = svc.RecordFraudOutput(ctx, FraudOutputInput{
		TraceID:          traceID,
		ProbabilityScore: 0.3,
	})
	if err != nil {
		t.Fatalf("record fraud: %v", err)
	}
	if upTo == types.AgentFraudDetection {
		return
	}
	_, err = svc.RecordRoutingOutput(ctx, RoutingOutputInput{
		TraceID:    traceID,
		Confidence: 0.8,
	})
	if err != nil {
		t.Fatalf("record routing: %v", err)
	}
}

func TestRecordComplianceDefaults(t *testing.T) {
	svc, _, _ := newTestPipeline(t)

	record, err := svc.RecordComplianceOutput(context.Background(), ComplianceOutputInput{
		TraceID:   "t-defaults",
		SessionID: uuid.New(),
		RawInput:  map[string]interface{}{"amount": 125000.0},
		RiskScore: floatPtr(0.25),
		LatencyMs: floatPtr(12.345),
	})
	if err != nil {
		t.Fatalf("record compliance: %v", err)
	}
	if record.Status != types.AgentStatusComplete {
		t.Fatalf("default status: want=%q got=%q", types.AgentStatusComplete, record.Status)
	}
	if record.NextAgent != types.AgentFraudDetection {
		t.Fatalf("default next_agent: want=%q got=%q", types.AgentFraudDetection, record.NextAgent)
	}
}

func TestRecordComplianceIdempotentResubmission(t *testing.T) {
	svc, db, _ := newTestPipeline(t)
	ctx := context.Background()

	first, err := svc.RecordComplianceOutput(ctx, ComplianceOutputInput{
		TraceID:   "t-idem",
		SessionID: uuid.New(),
		RiskScore: floatPtr(0.2),
	})
	if err != nil {
		t.Fatalf("first submission: %v", err)
	}
	second, err := svc.RecordComplianceOutput(ctx, ComplianceOutputInput{
		TraceID:   "t-idem",
		SessionID: first.SessionID,
		RiskScore: floatPtr(0.9),
		Status:    "error",
	})
	if err != nil {
		t.Fatalf("second submission: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("resubmission must update in place: want id=%d got=%d", first.ID, second.ID)
	}
	if second.RiskScore == nil || *second.RiskScore != 0.9 {
		t.Fatalf("risk_score not overwritten: got=%v", second.RiskScore)
	}
	if second.Status != types.AgentStatusError {
		t.Fatalf("status not overwritten: got=%q", second.Status)
	}
	// The resubmission must not change the stored hand-off hint.
	if second.NextAgent != types.AgentFraudDetection {
		t.Fatalf("next_agent changed on update: got=%q", second.NextAgent)
	}

	var count int64
	if err := db.Model(&types.ComplianceCheck{}).Where("trace_id = ?", "t-idem").Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("rows per trace: want=1 got=%d", count)
	}
}

func TestRecordComplianceRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestPipeline(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   ComplianceOutputInput
		want error
	}{
		{"empty trace", ComplianceOutputInput{SessionID: uuid.New()}, ErrInvalidArgument},
		{"bad status", ComplianceOutputInput{TraceID: "t1", Status: "done"}, ErrInvalidStatus},
		{"score below range", ComplianceOutputInput{TraceID: "t1", RiskScore: floatPtr(-0.0001)}, ErrInvalidScore},
		{"score above range", ComplianceOutputInput{TraceID: "t1", RiskScore: floatPtr(1.0001)}, ErrInvalidScore},
		{"score NaN", ComplianceOutputInput{TraceID: "t1", RiskScore: floatPtr(math.NaN())}, ErrInvalidScore},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.RecordComplianceOutput(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}
}

func TestFraudAndRoutingRejectBadScores(t *testing.T) {
	svc, _, _ := newTestPipeline(t)
	ctx := context.Background()

	for _, score := range []float64{-0.0001, 1.0001, math.NaN()} {
		if _, err := svc.RecordFraudOutput(ctx, FraudOutputInput{
			TraceID:          "t1",
			ProbabilityScore: score,
		}); !errors.Is(err, ErrInvalidScore) {
			t.Fatalf("probability_score=%v: want ErrInvalidScore got %v", score, err)
		}
		if _, err := svc.RecordRoutingOutput(ctx, RoutingOutputInput{
			TraceID:    "t1",
			Confidence: score,
		}); !errors.Is(err, ErrInvalidScore) {
			t.Fatalf("confidence=%v: want ErrInvalidScore got %v", score, err)
		}
	}
}

func TestScoreBoundariesAccepted(t *testing.T) {
	svc, _, _ := newTestPipeline(t)
	ctx := context.Background()

	for i, score := range []float64{0.0, 1.0} {
		trace := fmt.Sprintf("t-bound-%d", i)
		if _, err := svc.RecordComplianceOutput(ctx, ComplianceOutputInput{
			TraceID:   trace,
			SessionID: uuid.New(),
			RiskScore: floatPtr(score),
		}); err != nil {
			t.Fatalf("risk_score=%v rejected: %v", score, err)
		}
		if _, err := svc.RecordFraudOutput(ctx, FraudOutputInput{
			TraceID:          trace,
			ProbabilityScore: score,
		}); err != nil {
			t.Fatalf("probability_score=%v rejected: %v", score, err)
		}
		if _, err := svc.RecordRoutingOutput(ctx, RoutingOutputInput{
			TraceID:    trace,
			Confidence: score,
		}); err != nil {
			t.Fatalf("confidence=%v rejected: %v", score, err)
		}
	}
}

func TestPrerequisiteChainEnforced(t *testing.T) {
	svc, _, _ := newTestPipeline(t)
	ctx := context.Background()

	_, err := svc.RecordFraudOutput(ctx, FraudOutputInput{TraceID: "t-orphan", ProbabilityScore: 0.5})
	if !errors.Is(err, ErrMissingPrerequisite) {
		t.Fatalf("fraud without compliance: want ErrMissingPrerequisite got %v", err)
	}
	_, err = svc.RecordRoutingOutput(ctx, RoutingOutputInput{TraceID: "t-orphan", Confidence: 0.5})
	if !errors.Is(err, ErrMissingPrerequisite) {
		t.Fatalf("routing without fraud: want ErrMissingPrerequisite got %v", err)
	}
	_, err = svc.RecordExplainabilityOutput(ctx, ExplainabilityOutputInput{TraceID: "t-orphan", Explanation: "x"})
	if !errors.Is(err, ErrMissingPrerequisite) {
		t.Fatalf("explainability without routing: want ErrMissingPrerequisite got %v", err)
	}
}

func TestFullChainNextAgents(t *testing.T) {
	svc, _, idx := newTestPipeline(t)
	ctx := context.Background()
	trace := "t42"

	compliance, err := svc.RecordComplianceOutput(ctx, ComplianceOutputInput{
		TraceID:   trace,
		SessionID: uuid.New(),
		RiskScore: floatPtr(0.12),
	})
	if err != nil {
		t.Fatalf("compliance: %v", err)
	}
	fraud, err := svc.RecordFraudOutput(ctx, FraudOutputInput{TraceID: trace, ProbabilityScore: 0.05})
	if err != nil {
		t.Fatalf("fraud: %v", err)
	}
	route, err := svc.RecordRoutingOutput(ctx, RoutingOutputInput{
		TraceID:          trace,
		RecommendedRoute: map[string]interface{}{"rail": "NEFT"},
		Confidence:       0.91,
	})
	if err != nil {
		t.Fatalf("routing: %v", err)
	}
	explain, err := svc.RecordExplainabilityOutput(ctx, ExplainabilityOutputInput{
		TraceID:     trace,
		Explanation: "routed via NEFT for lowest cost",
	})
	if err != nil {
		t.Fatalf("explainability: %v", err)
	}

	hops := []struct {
		stage string
		got   string
		want  string
	}{
		{"compliance", compliance.NextAgent, types.AgentFraudDetection},
		{"fraud_detection", fraud.NextAgent, types.AgentRouting},
		{"routing", route.NextAgent, types.AgentExplainability},
		{"explainability", explain.NextAgent, types.NextAgentNone},
	}
	for _, hop := range hops {
		if hop.got != hop.want {
			t.Fatalf("%s next_agent: want=%q got=%q", hop.stage, hop.want, hop.got)
		}
	}

	call := idx.waitForUpsert(t)
	if want := vectorindex.VectorID(trace); call.id != want {
		t.Fatalf("index point id: want=%d got=%d", want, call.id)
	}
	if len(call.vector) != testEmbeddingDim {
		t.Fatalf("index vector length: want=%d got=%d", testEmbeddingDim, len(call.vector))
	}
}

func TestExplainabilityEmbeddingRegeneration(t *testing.T) {
	svc, _, idx := newTestPipeline(t)
	ctx := context.Background()
	trace := "t-embed"
	recordChain(t, svc, trace, types.AgentRouting)

	first, err := svc.RecordExplainabilityOutput(ctx, ExplainabilityOutputInput{
		TraceID:     trace,
		Explanation: "original explanation",
	})
	if err != nil {
		t.Fatalf("first explainability: %v", err)
	}
	idx.waitForUpsert(t)

	want, err := embedding.Generate("original explanation", testEmbeddingDim)
	if err != nil {
		t.Fatalf("reference embedding: %v", err)
	}
	if !bytes.Equal(first.Embedding, embedding.EncodeFloat32LE(want)) {
		t.Fatalf("stored embedding does not match the derived vector")
	}

	// Same text: the stored bytes must survive untouched and nothing is
	// pushed to the index.
	same, err := svc.RecordExplainabilityOutput(ctx, ExplainabilityOutputInput{
		TraceID:     trace,
		Explanation: "original explanation",
		SupportingEvidence: map[string]interface{}{
			"source": "resubmission",
		},
	})
	if err != nil {
		t.Fatalf("resubmission: %v", err)
	}
	if !bytes.Equal(same.Embedding, first.Embedding) {
		t.Fatalf("embedding changed although the explanation did not")
	}
	select {
	case <-idx.arrived:
		t.Fatalf("index push fired for an unchanged explanation")
	case <-time.After(100 * time.Millisecond):
	}

	changed, err := svc.RecordExplainabilityOutput(ctx, ExplainabilityOutputInput{
		TraceID:     trace,
		Explanation: "revised explanation",
	})
	if err != nil {
		t.Fatalf("changed text: %v", err)
	}
	if bytes.Equal(changed.Embedding, first.Embedding) {
		t.Fatalf("embedding not regenerated for new explanation text")
	}
	idx.waitForUpsert(t)
}

func TestRecordRoutingAlternativesObject(t *testing.T) {
	svc, _, _ := newTestPipeline(t)
	ctx := context.Background()
	trace := "t-alt"
	recordChain(t, svc, trace, types.AgentFraudDetection)

	record, err := svc.RecordRoutingOutput(ctx, RoutingOutputInput{
		TraceID:          trace,
		RecommendedRoute: map[string]interface{}{"rail": "NEFT"},
		Alternatives:     map[string]interface{}{"backup": "RTGS", "tertiary": "IMPS"},
		Confidence:       0.75,
	})
	if err != nil {
		t.Fatalf("record routing: %v", err)
	}

	var stored map[string]interface{}
	if err := json.Unmarshal(record.Alternatives, &stored); err != nil {
		t.Fatalf("decode stored alternatives: %v", err)
	}
	if stored["backup"] != "RTGS" || stored["tertiary"] != "IMPS" {
		t.Fatalf("alternatives not persisted as an object: got=%v", stored)
	}
}

func TestMarkAgentFailureCountsRetries(t *testing.T) {
	svc, db, _ := newTestPipeline(t)
	ctx := context.Background()

	first, err := svc.MarkAgentFailure(ctx, AgentFailureInput{
		AgentName:    types.AgentFraudDetection,
		TraceID:      "t-fail",
		ErrorPayload: map[string]interface{}{"error": "model timeout"},
	})
	if err != nil {
		t.Fatalf("first failure: %v", err)
	}
	if first.RetryCount != 1 {
		t.Fatalf("first retry_count: want=1 got=%d", first.RetryCount)
	}

	second, err := svc.MarkAgentFailure(ctx, AgentFailureInput{
		AgentName:    types.AgentFraudDetection,
		TraceID:      "t-fail",
		ErrorPayload: map[string]interface{}{"error": "model timeout again"},
	})
	if err != nil {
		t.Fatalf("second failure: %v", err)
	}
	if second.RetryCount != 2 {
		t.Fatalf("second retry_count: want=2 got=%d", second.RetryCount)
	}
	if second.ID != first.ID {
		t.Fatalf("failure row must be reused: want id=%d got=%d", first.ID, second.ID)
	}

	// A different agent on the same trace tracks independently.
	other, err := svc.MarkAgentFailure(ctx, AgentFailureInput{
		AgentName: types.AgentRouting,
		TraceID:   "t-fail",
	})
	if err != nil {
		t.Fatalf("other agent failure: %v", err)
	}
	if other.RetryCount != 1 {
		t.Fatalf("other agent retry_count: want=1 got=%d", other.RetryCount)
	}

	var count int64
	if err := db.Model(&types.AgentFailure{}).Where("trace_id = ?", "t-fail").Count(&count).Error; err != nil {
		t.Fatalf("count failures: %v", err)
	}
	if count != 2 {
		t.Fatalf("failure rows: want=2 got=%d", count)
	}
}

func TestSuccessClearsFailureRow(t *testing.T) {
	svc, db, _ := newTestPipeline(t)
	ctx := context.Background()
	trace := "t-recover"
	recordChain(t, svc, trace, types.AgentCompliance)

	if _, err := svc.MarkAgentFailure(ctx, AgentFailureInput{
		AgentName: types.AgentFraudDetection,
		TraceID:   trace,
	}); err != nil {
		t.Fatalf("mark failure: %v", err)
	}

	if _, err := svc.RecordFraudOutput(ctx, FraudOutputInput{
		TraceID:          trace,
		ProbabilityScore: 0.1,
	}); err != nil {
		t.Fatalf("record fraud: %v", err)
	}

	var count int64
	err := db.Model(&types.AgentFailure{}).
		Where("agent_name = ? AND trace_id = ?", types.AgentFraudDetection, trace).
		Count(&count).Error
	if err != nil {
		t.Fatalf("count failures: %v", err)
	}
	if count != 0 {
		t.Fatalf("failure row survived a successful submission: count=%d", count)
	}
}

func TestClearAgentFailure(t *testing.T) {
	svc, db, _ := newTestPipeline(t)
	ctx := context.Background()

	if _, err := svc.MarkAgentFailure(ctx, AgentFailureInput{
		AgentName: types.AgentCompliance,
		TraceID:   "t-clear",
	}); err != nil {
		t.Fatalf("mark failure: %v", err)
	}
	if err := svc.ClearAgentFailure(ctx, types.AgentCompliance, "t-clear"); err != nil {
		t.Fatalf("clear failure: %v", err)
	}
	// Clearing an absent row stays a no-op.
	if err := svc.ClearAgentFailure(ctx, types.AgentCompliance, "t-clear"); err != nil {
		t.Fatalf("clear absent failure: %v", err)
	}

	var count int64
	if err := db.Model(&types.AgentFailure{}).Where("trace_id = ?", "t-clear").Count(&count).Error; err != nil {
		t.Fatalf("count failures: %v", err)
	}
	if count != 0 {
		t.Fatalf("failure rows after clear: want=0 got=%d", count)
	}
}

func TestNextAgentOverride(t *testing.T) {
	svc, _, _ := newTestPipeline(t)
	ctx := context.Background()

	record, err := svc.RecordComplianceOutput(ctx, ComplianceOutputInput{
		TraceID:   "t-override",
		SessionID: uuid.New(),
		NextAgent: "manual_review",
	})
	if err != nil {
		t.Fatalf("record with override: %v", err)
	}
	if record.NextAgent != "manual_review" {
		t.Fatalf("next_agent override: want=%q got=%q", "manual_review", record.NextAgent)
	}

	// Updates without an override keep the stored value.
	record, err = svc.RecordComplianceOutput(ctx, ComplianceOutputInput{
		TraceID:   "t-override",
		SessionID: record.SessionID,
	})
	if err != nil {
		t.Fatalf("record without override: %v", err)
	}
	if record.NextAgent != "manual_review" {
		t.Fatalf("next_agent preserved: want=%q got=%q", "manual_review", record.NextAgent)
	}
}

func TestMarkAgentFailureValidation(t *testing.T) {
	svc, _, _ := newTestPipeline(t)
	ctx := context.Background()

	if _, err := svc.MarkAgentFailure(ctx, AgentFailureInput{TraceID: "t1"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("missing agent_name: want ErrInvalidArgument got %v", err)
	}
	if _, err := svc.MarkAgentFailure(ctx, AgentFailureInput{AgentName: "compliance"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("missing trace_id: want ErrInvalidArgument got %v", err)
	}
	if err := svc.ClearAgentFailure(ctx, "", "t1"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("clear with empty agent: want ErrInvalidArgument got %v", err)
	}
}

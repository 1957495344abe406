package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arealis/magnus-backend/internal/logger"
	"github.com/arealis/magnus-backend/internal/services"
)

// AgentHandler receives stage outputs and failure reports from the external
// pipeline agents.
type AgentHandler struct {
	pipeline services.PipelineService
	log      *logger.Logger
}

func NewAgentHandler(pipeline services.PipelineService, baseLog *logger.Logger) *AgentHandler {
	return &AgentHandler{
		pipeline: pipeline,
		log:      baseLog.With("handler", "AgentHandler"),
	}
}

func (ah *AgentHandler) PostCompliance(c *gin.Context) {
	var req struct {
		TraceID           string                 `json:"trace_id"`
		SessionID         string                 `json:"session_id"`
		RawInput          map[string]interface{} `json:"raw_input"`
		ComplianceSummary map[string]interface{} `json:"compliance_summary"`
		RiskScore         *float64               `json:"risk_score"`
		Status            string                 `json:"status"`
		NextAgent         string                 `json:"next_agent"`
		LatencyMs         *float64               `json:"latency_ms"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	var sessionID uuid.UUID
	if req.SessionID != "" {
		parsed, err := uuid.Parse(req.SessionID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
			return
		}
		sessionID = parsed
	}
	record, err := ah.pipeline.RecordComplianceOutput(c.Request.Context(), services.ComplianceOutputInput{
		TraceID:           req.TraceID,
		SessionID:         sessionID,
		RawInput:          req.RawInput,
		ComplianceSummary: req.ComplianceSummary,
		RiskScore:         req.RiskScore,
		Status:            req.Status,
		NextAgent:         req.NextAgent,
		LatencyMs:         req.LatencyMs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (ah *AgentHandler) PostFraud(c *gin.Context) {
	var req struct {
		TraceID          string                 `json:"trace_id"`
		ProbabilityScore float64                `json:"probability_score"`
		FlaggedFeatures  map[string]interface{} `json:"flagged_features"`
		ExplanatoryNotes *string                `json:"explanatory_notes"`
		Status           string                 `json:"status"`
		NextAgent        string                 `json:"next_agent"`
		LatencyMs        *float64               `json:"latency_ms"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	record, err := ah.pipeline.RecordFraudOutput(c.Request.Context(), services.FraudOutputInput{
		TraceID:          req.TraceID,
		ProbabilityScore: req.ProbabilityScore,
		FlaggedFeatures:  req.FlaggedFeatures,
		ExplanatoryNotes: req.ExplanatoryNotes,
		Status:           req.Status,
		NextAgent:        req.NextAgent,
		LatencyMs:        req.LatencyMs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (ah *AgentHandler) PostRouting(c *gin.Context) {
	var req struct {
		TraceID          string                 `json:"trace_id"`
		RecommendedRoute map[string]interface{} `json:"recommended_route"`
		Alternatives     map[string]interface{} `json:"alternatives"`
		Confidence       float64                `json:"confidence"`
		Status           string                 `json:"status"`
		NextAgent        string                 `json:"next_agent"`
		LatencyMs        *float64               `json:"latency_ms"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	record, err := ah.pipeline.RecordRoutingOutput(c.Request.Context(), services.RoutingOutputInput{
		TraceID:          req.TraceID,
		RecommendedRoute: req.RecommendedRoute,
		Alternatives:     req.Alternatives,
		Confidence:       req.Confidence,
		Status:           req.Status,
		NextAgent:        req.NextAgent,
		LatencyMs:        req.LatencyMs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (ah *AgentHandler) PostExplainability(c *gin.Context) {
	var req struct {
		TraceID            string                 `json:"trace_id"`
		Explanation        string                 `json:"explanation"`
		SupportingEvidence map[string]interface{} `json:"supporting_evidence"`
		Status             string                 `json:"status"`
		NextAgent          string                 `json:"next_agent"`
		LatencyMs          *float64               `json:"latency_ms"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	record, err := ah.pipeline.RecordExplainabilityOutput(c.Request.Context(), services.ExplainabilityOutputInput{
		TraceID:            req.TraceID,
		Explanation:        req.Explanation,
		SupportingEvidence: req.SupportingEvidence,
		Status:             req.Status,
		NextAgent:          req.NextAgent,
		LatencyMs:          req.LatencyMs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (ah *AgentHandler) PostFailure(c *gin.Context) {
	var req struct {
		AgentName    string                 `json:"agent_name"`
		TraceID      string                 `json:"trace_id"`
		ErrorPayload map[string]interface{} `json:"error_payload"`
		LatencyMs    *float64               `json:"latency_ms"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	record, err := ah.pipeline.MarkAgentFailure(c.Request.Context(), services.AgentFailureInput{
		AgentName:    req.AgentName,
		TraceID:      req.TraceID,
		ErrorPayload: req.ErrorPayload,
		LatencyMs:    req.LatencyMs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (ah *AgentHandler) PostFailureClear(c *gin.Context) {
	var req struct {
		AgentName string `json:"agent_name"`
		TraceID   string `json:"trace_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := ah.pipeline.ClearAgentFailure(c.Request.Context(), req.AgentName, req.TraceID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

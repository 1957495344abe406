package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arealis/magnus-backend/internal/logger"
	"github.com/arealis/magnus-backend/internal/services"
	"github.com/arealis/magnus-backend/internal/types"
)

type stubIngest struct {
	mu         sync.Mutex
	registered []string
}

func (s *stubIngest) CreateSession(_ context.Context, source types.IngestSource) (*types.IngestSession, error) {
	return &types.IngestSession{ID: uuid.New(), Source: source, Status: types.IngestStatusReceived}, nil
}

func (s *stubIngest) IngestCSV(_ context.Context, _ io.Reader) (*types.IngestSession, error) {
	return &types.IngestSession{ID: uuid.New(), Source: types.IngestSourceCSV, Status: types.IngestStatusCompleted}, nil
}

func (s *stubIngest) RegisterBankConnection(_ context.Context, bankName string, credentials map[string]string, _ *uuid.UUID) (*types.BankConnection, error) {
	bank := strings.ToLower(bankName)
	if credentials["api_key"] == "" {
		return nil, fmt.Errorf("%w: missing credentials for %s", services.ErrInvalidArgument, bank)
	}
	s.mu.Lock()
	s.registered = append(s.registered, bank)
	s.mu.Unlock()
	return &types.BankConnection{ID: uuid.New(), BankName: bank, Status: types.BankConnectionStatusConnected}, nil
}

func newIngestRouter(t *testing.T, stub *stubIngest) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}
	handler := NewIngestHandler(stub, log)
	router := gin.New()
	router.POST("/ingest/live-api", handler.PostLiveAPI)
	router.GET("/ingest/ping", handler.Ping)
	return router
}

func TestPostLiveAPIMultipleBanks(t *testing.T) {
	stub := &stubIngest{}
	router := newIngestRouter(t, stub)

	body := `{"bank_credentials":{"hdfc":{"api_key":"k1"},"icici":{"api_key":"k2"}}}`
	req := httptest.NewRequest(http.MethodPost, "/ingest/live-api", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status: want=%d got=%d body=%s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	if len(stub.registered) != 2 {
		t.Fatalf("registered banks: want=2 got=%v", stub.registered)
	}
	if !strings.Contains(rec.Body.String(), `"connections"`) {
		t.Fatalf("response must list connections, got %s", rec.Body.String())
	}
}

func TestPostLiveAPIValidation(t *testing.T) {
	router := newIngestRouter(t, &stubIngest{})

	cases := []struct {
		name string
		body string
	}{
		{"empty map", `{"bank_credentials":{}}`},
		{"missing field", `{}`},
		{"bad credentials", `{"bank_credentials":{"hdfc":{}}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/ingest/live-api", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status: want=%d got=%d body=%s", http.StatusBadRequest, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestIngestPing(t *testing.T) {
	router := newIngestRouter(t, &stubIngest{})

	req := httptest.NewRequest(http.MethodGet, "/ingest/ping", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d", http.StatusOK, rec.Code)
	}
}

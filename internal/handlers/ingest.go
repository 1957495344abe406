package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arealis/magnus-backend/internal/logger"
	"github.com/arealis/magnus-backend/internal/services"
	"github.com/arealis/magnus-backend/internal/types"
)

type IngestHandler struct {
	ingest services.IngestService
	log    *logger.Logger
}

func NewIngestHandler(ingest services.IngestService, baseLog *logger.Logger) *IngestHandler {
	return &IngestHandler{
		ingest: ingest,
		log:    baseLog.With("handler", "IngestHandler"),
	}
}

// PostCSV accepts a multipart transaction upload under the "file" field.
func (ih *IngestHandler) PostCSV(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}
	name := strings.ToLower(fileHeader.Filename)
	contentType := fileHeader.Header.Get("Content-Type")
	if !strings.HasSuffix(name, ".csv") && !strings.Contains(contentType, "csv") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected a csv upload"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return
	}
	defer file.Close()

	session, err := ih.ingest.IngestCSV(c.Request.Context(), file)
	if err != nil {
		status := statusForError(err)
		body := gin.H{"error": err.Error()}
		if session != nil {
			body["session"] = session
		}
		if status == http.StatusInternalServerError {
			body["error"] = "internal server error"
		}
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// PostLiveAPI registers live bank connections for pull-based ingestion, one
// per entry in the bank_credentials map.
func (ih *IngestHandler) PostLiveAPI(c *gin.Context) {
	var req struct {
		BankCredentials map[string]map[string]string `json:"bank_credentials"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if len(req.BankCredentials) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bank_credentials is required"})
		return
	}
	connections := make([]*types.BankConnection, 0, len(req.BankCredentials))
	for bankName, credentials := range req.BankCredentials {
		connection, err := ih.ingest.RegisterBankConnection(c.Request.Context(), bankName, credentials, nil)
		if err != nil {
			respondError(c, err)
			return
		}
		connections = append(connections, connection)
	}
	c.JSON(http.StatusCreated, gin.H{"connections": connections})
}

func (ih *IngestHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

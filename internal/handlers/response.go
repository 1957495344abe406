package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/arealis/magnus-backend/internal/services"
)

// statusForError maps service failures onto HTTP statuses. Caller mistakes
// stay 4xx with detail; anything else is a generic 500 so store internals
// never leak into responses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidArgument),
		errors.Is(err, services.ErrInvalidScore),
		errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrMissingPrerequisite):
		return http.StatusBadRequest
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dreamscape/internal/domain"
	"dreamscape/internal/repository"
)

// JournalHandler mantiene dependencias para los endpoints del diario.
// Todas las rutas exigen sesion; las entradas quedan ligadas al username
// autenticado, no al valor de la cookie de display.
type JournalHandler struct {
	logger  *zap.Logger
	entries repository.EntryRepository
}

func NewJournalHandler(logger *zap.Logger, entries repository.EntryRepository) *JournalHandler {
	return &JournalHandler{
		logger:  logger,
		entries: entries,
	}
}

type journalEntryRequest struct {
	Title string   `json:"title" binding:"required"`
	Dream string   `json:"dream" binding:"required"`
	Tags  []string `json:"tags"`
	Mood  string   `json:"mood"`
}

// CreateEntry maneja POST /api/journal.
func (h *JournalHandler) CreateEntry(c *gin.Context) {
	claims, ok := GetSessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}

	var req journalEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid journal entry request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"message": "Title and dream are required"})
		return
	}

	entry := domain.JournalEntry{
		ID:       uuid.NewString(),
		Username: claims.Username,
		Title:    req.Title,
		Dream:    req.Dream,
		Tags:     req.Tags,
		Mood:     req.Mood,
		Date:     time.Now().UTC(),
	}

	if err := h.entries.Create(c.Request.Context(), entry); err != nil {
		h.logger.Error("save journal entry failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error saving entry"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Journal entry saved", "entry": entry})
}

// ListEntries maneja GET /api/journal.
func (h *JournalHandler) ListEntries(c *gin.Context) {
	claims, ok := GetSessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}

	entries, err := h.entries.ListByUsername(c.Request.Context(), claims.Username)
	if err != nil {
		h.logger.Error("fetch journal entries failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error fetching entries"})
		return
	}
	if entries == nil {
		entries = []domain.JournalEntry{}
	}

	c.JSON(http.StatusOK, entries)
}

// UpdateEntry maneja PUT /api/journal/:id.
func (h *JournalHandler) UpdateEntry(c *gin.Context) {
	claims, ok := GetSessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}

	var req journalEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid journal update request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"message": "Title and dream are required"})
		return
	}

	entry := domain.JournalEntry{
		ID:       c.Param("id"),
		Username: claims.Username,
		Title:    req.Title,
		Dream:    req.Dream,
		Tags:     req.Tags,
		Mood:     req.Mood,
	}

	updated, found, err := h.entries.Update(c.Request.Context(), entry)
	if err != nil {
		h.logger.Error("update journal entry failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error updating entry"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"message": "Entry not found or unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Journal entry updated", "entry": updated})
}

// DeleteEntry maneja DELETE /api/journal/:id.
func (h *JournalHandler) DeleteEntry(c *gin.Context) {
	claims, ok := GetSessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}

	found, err := h.entries.Delete(c.Request.Context(), c.Param("id"), claims.Username)
	if err != nil {
		h.logger.Error("delete journal entry failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Error deleting entry"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"message": "Entry not found or unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Journal entry deleted"})
}

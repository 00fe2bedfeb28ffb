package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"session-store-svc/src/internal/config"
	"session-store-svc/src/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Handler interface {
	GetStats(c *gin.Context)
	CollectGarbage(c *gin.Context)
	ReadSession(c *gin.Context)
	DestroySession(c *gin.Context)
	ClearSession(c *gin.Context)
	ReadKey(c *gin.Context)
	WriteKey(c *gin.Context)
	DeleteKey(c *gin.Context)
}

type handler struct {
	config *config.Configuration
	store  *Store
}

// GCRequest optionally overrides the gc cutoff (unix seconds).
type GCRequest struct {
	Cutoff int64 `json:"cutoff"`
}

func NewHandler(cfg *config.Configuration, store *Store) Handler {
	return &handler{
		config: cfg,
		store:  store,
	}
}

func (h *handler) context(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), time.Duration(h.config.App.Timeout)*time.Second)
}

func (h *handler) GetStats(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	stats, err := h.store.Stats(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to get session statistics")
		h.sendErrorResponse(c, http.StatusInternalServerError, "Failed to retrieve session statistics", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
		"message": "Session statistics retrieved successfully",
	})
}

func (h *handler) CollectGarbage(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	var req GCRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.sendErrorResponse(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	adminID, _ := c.Get("user_id")
	logrus.WithFields(logrus.Fields{
		"admin_user_id": adminID,
		"cutoff":        req.Cutoff,
	}).Info("Session garbage collection requested")

	removed, err := h.store.gc(ctx, req.Cutoff, models.ServiceSessionAdmin)
	if err != nil {
		h.sendErrorResponse(c, http.StatusInternalServerError, "Failed to collect expired sessions", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"removed": removed},
		"message": "Expired sessions removed",
	})
}

func (h *handler) ReadSession(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	data, err := h.store.Session(c.Param("id")).ReadAll(ctx)
	if err != nil {
		h.handleError(c, "read", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func (h *handler) DestroySession(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	if err := h.store.Session(c.Param("id")).Destroy(ctx); err != nil {
		h.handleError(c, "destroy", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Session destroyed",
	})
}

func (h *handler) ClearSession(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	if !h.store.Session(c.Param("id")).Clear(ctx) {
		h.sendErrorResponse(c, http.StatusInternalServerError, "Failed to clear session", "session data could not be persisted")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Session cleared",
	})
}

func (h *handler) ReadKey(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	key := c.Param("key")
	handle := h.store.Session(c.Param("id"))

	exists, err := handle.Check(ctx, key)
	if err != nil {
		h.handleError(c, "check", err)
		return
	}

	value, err := handle.Read(ctx, key)
	if err != nil {
		h.handleError(c, "read", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"exists":  exists,
		"data":    value,
	})
}

func (h *handler) WriteKey(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	key := c.Param("key")
	if err := validateKey(key); err != nil {
		h.sendErrorResponse(c, http.StatusBadRequest, "Invalid session key", err.Error())
		return
	}

	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		h.sendErrorResponse(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	value, ok := body["value"]
	if !ok {
		h.sendErrorResponse(c, http.StatusBadRequest, "Invalid request body", "field 'value' is required")
		return
	}

	if !h.store.Session(c.Param("id")).Write(ctx, key, value) {
		h.sendErrorResponse(c, http.StatusInternalServerError, "Failed to write session key", "session data could not be persisted")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Session key written",
	})
}

func (h *handler) DeleteKey(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	key := c.Param("key")
	if err := validateKey(key); err != nil {
		h.sendErrorResponse(c, http.StatusBadRequest, "Invalid session key", err.Error())
		return
	}

	if !h.store.Session(c.Param("id")).Delete(ctx, key) {
		h.sendErrorResponse(c, http.StatusInternalServerError, "Failed to delete session key", "session data could not be persisted")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Session key deleted",
	})
}

func (h *handler) handleError(c *gin.Context, op string, err error) {
	logrus.WithError(err).WithFields(logrus.Fields{
		"session_id": c.Param("id"),
		"operation":  op,
	}).Error("Session request failed")

	switch {
	case errors.Is(err, models.ErrInvalidKey):
		h.sendErrorResponse(c, http.StatusBadRequest, "Invalid session key", err.Error())
	case errors.Is(err, models.ErrSessionNotStarted):
		h.sendErrorResponse(c, http.StatusBadRequest, "Session id is required", err.Error())
	default:
		h.sendErrorResponse(c, http.StatusInternalServerError, "Session operation failed", err.Error())
	}
}

func (h *handler) sendErrorResponse(c *gin.Context, statusCode int, error, message string) {
	c.JSON(statusCode, gin.H{
		"error":   error,
		"success": false,
		"message": message,
	})
}

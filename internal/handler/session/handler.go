package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/MCLifeLeader/chat-service/internal/handler"
	"github.com/MCLifeLeader/chat-service/internal/model"
	"github.com/MCLifeLeader/chat-service/internal/repository"
	"github.com/MCLifeLeader/chat-service/internal/service/chat"
	apperrors "github.com/MCLifeLeader/chat-service/pkg/errors"
)

// snapshotCacheTTL bounds how stale the cached session list may be on top of
// the eventual consistency the snapshot projection already implies.
const snapshotCacheTTL = 5 * time.Second

type Handler struct {
	service  chat.ChatService
	docStore repository.DocumentStore
	cache    *gocache.Cache
}

func NewHandler(service chat.ChatService, docStore repository.DocumentStore) *Handler {
	return &Handler{
		service:  service,
		docStore: docStore,
		cache:    gocache.New(snapshotCacheTTL, time.Minute),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	sessions := r.Group("/sessions")
	{
		sessions.POST("", h.CreateSession)
		sessions.GET("", h.ListSessions)
		sessions.GET("/:id", h.GetSession)
		sessions.POST("/:id/participants", h.AddParticipant)
		sessions.GET("/:id/participants", h.ListParticipants)
		sessions.POST("/:id/snapshot", h.SnapshotSession)
	}
}

func (h *Handler) CreateSession(c *gin.Context) {
	var req model.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	session, err := h.service.CreateSession(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(session))
}

// ListSessions serves the fast path: projected snapshots from the document
// store behind a short in-process cache, falling back to the relational
// store when no snapshots are projected yet.
func (h *Handler) ListSessions(c *gin.Context) {
	var page model.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	cacheKey := fmt.Sprintf("sessions:%d:%d", page.Page, page.PageSize)
	if cached, ok := h.cache.Get(cacheKey); ok {
		c.JSON(http.StatusOK, handler.NewSuccessResponse(cached))
		return
	}

	snapshots, err := h.docStore.ListSnapshots(c.Request.Context(), page)
	if err == nil && len(snapshots) > 0 {
		h.cache.Set(cacheKey, snapshots, gocache.DefaultExpiration)
		c.JSON(http.StatusOK, handler.NewSuccessResponse(snapshots))
		return
	}

	sessions, err := h.service.ListSessions(c.Request.Context(), page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(sessions))
}

func (h *Handler) GetSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid session ID"))
		return
	}

	session, err := h.service.GetSession(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Code == apperrors.ErrNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(session))
}

func (h *Handler) AddParticipant(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid session ID"))
		return
	}

	var req model.AddParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	participant, err := h.service.AddParticipant(c.Request.Context(), sessionID, &req)
	if err != nil {
		status := http.StatusInternalServerError
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Code == apperrors.ErrNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(participant))
}

func (h *Handler) ListParticipants(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid session ID"))
		return
	}

	participants, err := h.service.ListParticipants(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(participants))
}

func (h *Handler) SnapshotSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid session ID"))
		return
	}

	if err := h.service.SnapshotSession(c.Request.Context(), sessionID); err != nil {
		status := http.StatusInternalServerError
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Code == apperrors.ErrNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusAccepted, handler.NewSuccessResponse(nil))
}

package message

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/MCLifeLeader/chat-service/internal/handler"
	"github.com/MCLifeLeader/chat-service/internal/model"
	"github.com/MCLifeLeader/chat-service/internal/repository"
	"github.com/MCLifeLeader/chat-service/internal/service/chat"
	apperrors "github.com/MCLifeLeader/chat-service/pkg/errors"
)

type Handler struct {
	service  chat.ChatService
	docStore repository.DocumentStore
}

func NewHandler(service chat.ChatService, docStore repository.DocumentStore) *Handler {
	return &Handler{
		service:  service,
		docStore: docStore,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	messages := r.Group("/sessions/:id/messages")
	{
		messages.POST("", h.SendMessage)
		messages.GET("", h.ListMessages)
		messages.PUT("/:messageId", h.EditMessage)
		messages.DELETE("/:messageId", h.DeleteMessage)
	}
}

// SendMessage commits the authoritative write; a success response promises
// durability in the relational store and eventual consistency on the fast
// read path.
func (h *Handler) SendMessage(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid session ID"))
		return
	}

	var req model.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	msg, err := h.service.SendMessage(c.Request.Context(), sessionID, &req)
	if err != nil {
		c.JSON(statusFor(err), handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(msg))
}

// ListMessages reads from the document store first; transient staleness
// after a write is expected there, so an empty result falls back to the
// relational store.
func (h *Handler) ListMessages(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid session ID"))
		return
	}

	var page model.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	docs, err := h.docStore.ListMessages(c.Request.Context(), sessionID, page)
	if err == nil && len(docs) > 0 {
		c.JSON(http.StatusOK, handler.NewSuccessResponse(docs))
		return
	}

	messages, err := h.service.ListMessages(c.Request.Context(), sessionID, page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(messages))
}

func (h *Handler) EditMessage(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid session ID"))
		return
	}
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid message ID"))
		return
	}

	var req model.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	msg, err := h.service.EditMessage(c.Request.Context(), sessionID, messageID, &req)
	if err != nil {
		c.JSON(statusFor(err), handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(msg))
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid session ID"))
		return
	}
	messageID, err := uuid.Parse(c.Param("messageId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid message ID"))
		return
	}

	if err := h.service.DeleteMessage(c.Request.Context(), sessionID, messageID); err != nil {
		c.JSON(statusFor(err), handler.NewErrorResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}

func statusFor(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code == apperrors.ErrNotFound {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

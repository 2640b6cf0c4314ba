package outbox

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MCLifeLeader/chat-service/internal/handler"
	"github.com/MCLifeLeader/chat-service/internal/repository"
	"github.com/MCLifeLeader/chat-service/pkg/metrics"
)

// Handler exposes the outbox observability surface. Dead-lettered entries
// never reach a synchronous caller; this endpoint is how they are noticed.
type Handler struct {
	repo    repository.OutboxRepository
	metrics *metrics.Metrics
}

func NewHandler(repo repository.OutboxRepository, m *metrics.Metrics) *Handler {
	return &Handler{repo: repo, metrics: m}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/admin/outbox/stats", h.GetStatistics)
}

func (h *Handler) GetStatistics(c *gin.Context) {
	stats, err := h.repo.GetStatistics(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, handler.NewErrorResponse(err.Error()))
		return
	}

	h.metrics.OutboxQueueSize.Set(float64(stats.Pending))

	c.JSON(http.StatusOK, handler.NewSuccessResponse(stats))
}

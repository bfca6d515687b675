package handlers

import (
	"net/http"

	"github.com/device-spoof/device-spoof-go/internal/middleware"
	"github.com/device-spoof/device-spoof-go/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// StatsHandler 系统统计处理器
type StatsHandler struct {
	groupRepo repository.GroupRepository
	logger    *logrus.Logger
	metrics   *middleware.PrometheusMetrics
}

func NewStatsHandler(groupRepo repository.GroupRepository, logger *logrus.Logger, metrics *middleware.PrometheusMetrics) *StatsHandler {
	return &StatsHandler{
		groupRepo: groupRepo,
		logger:    logger,
		metrics:   metrics,
	}
}

// GetSystemStats 获取系统统计
// GET /api/stats
func (h *StatsHandler) GetSystemStats(c *gin.Context) {
	groups, apps, err := h.groupRepo.Counts(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to get system stats")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "获取系统统计失败",
		})
		return
	}

	if h.metrics != nil {
		h.metrics.SetGroupCounts(groups, apps)
	}

	c.JSON(http.StatusOK, gin.H{
		"groups_total":  groups,
		"apps_assigned": apps,
	})
}

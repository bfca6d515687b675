package api

import (
	"time"

	"github.com/device-spoof/device-spoof-go/internal/api/handlers"
	"github.com/device-spoof/device-spoof-go/internal/config"
	"github.com/device-spoof/device-spoof-go/internal/middleware"
	"github.com/device-spoof/device-spoof-go/internal/repository"
	"github.com/device-spoof/device-spoof-go/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SetupRouter 组装控制面路由
// groupService 由调用方创建并传入: 它持有进程内的应用归属反向索引,
// 路由层不得自行构造第二个实例
func SetupRouter(cfg *config.Config, logger *logrus.Logger, groupService service.GroupService, groupRepo repository.GroupRepository, memMonitor *middleware.MemoryMonitor, promMetrics *middleware.PrometheusMetrics) *gin.Engine {
	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	// Prometheus 监控中间件
	if promMetrics != nil {
		r.Use(promMetrics.HTTPMiddleware())
	}

	groupHandler := handlers.NewGroupHandler(groupService, logger, promMetrics)
	statsHandler := handlers.NewStatsHandler(groupRepo, logger, promMetrics)

	// 内存监控端点
	if memMonitor != nil {
		r.GET("/metrics", memMonitor.MetricsEndpoint())
	}
	r.POST("/debug/gc", middleware.ForceGC())

	// Prometheus 指标端点
	if promMetrics != nil {
		r.GET("/metrics/prometheus", promMetrics.Handler())
	}

	// API v1
	v1 := r.Group("/api")
	{
		// 健康检查
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"version": "1.0.0",
			})
		})

		// 系统统计
		v1.GET("/stats", statsHandler.GetSystemStats)

		// 分组管理
		v1.GET("/groups", groupHandler.ListGroups)
		v1.POST("/groups", groupHandler.CreateGroup)
		v1.GET("/groups/:id", groupHandler.GetGroup)
		v1.PUT("/groups/:id", groupHandler.RenameGroup)
		v1.DELETE("/groups/:id", groupHandler.DeleteGroup)

		// 应用归属
		v1.POST("/groups/:id/apps", groupHandler.AssignApp)
		v1.DELETE("/groups/:id/apps/:package", groupHandler.UnassignApp)
		v1.GET("/apps/:package/group", groupHandler.GetAppGroup)

		// 标识值
		v1.GET("/groups/:id/values/:kind", groupHandler.GetValue)
		v1.POST("/groups/:id/values/:kind/regenerate", groupHandler.RegenerateValue)

		// 厂商档案
		v1.GET("/manufacturers", groupHandler.GetManufacturers)
	}

	return r
}

// LoggerMiddleware 日志中间件
func LoggerMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		method := c.Request.Method
		path := c.Request.URL.Path

		logger.WithFields(logrus.Fields{
			"status":  statusCode,
			"method":  method,
			"path":    path,
			"latency": latency.Milliseconds(),
		}).Info("HTTP Request")
	}
}

// CORSMiddleware CORS 中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

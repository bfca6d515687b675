package middleware

import (
	"strconv"
	"time"

	"github.com/device-spoof/device-spoof-go/internal/identity"
	"github.com/device-spoof/device-spoof-go/internal/resolver"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// PrometheusMetrics Prometheus 指标收集器
type PrometheusMetrics struct {
	logger *logrus.Logger

	// HTTP 请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 分组业务指标
	groupsTotal         prometheus.Gauge
	appsAssigned        prometheus.Gauge
	valuesGeneratedTotal *prometheus.CounterVec
	regenerationsTotal  *prometheus.CounterVec
	assignConflictsTotal prometheus.Counter

	// 类解析缓存指标
	cacheHits       prometheus.Gauge
	cacheMisses     prometheus.Gauge
	cacheNotFound   prometheus.Gauge
	cacheSize       prometheus.Gauge
	cacheTombstones prometheus.Gauge
	cacheHitRate    prometheus.Gauge

	// 系统指标
	memoryUsage     prometheus.Gauge
	goroutinesCount prometheus.Gauge
	gcCount         prometheus.Gauge

	// 数据库指标
	dbConnectionsOpen  prometheus.Gauge
	dbConnectionsIdle  prometheus.Gauge
	dbConnectionsInUse prometheus.Gauge
}

// NewPrometheusMetrics 创建 Prometheus 指标收集器
func NewPrometheusMetrics(logger *logrus.Logger, namespace string) *PrometheusMetrics {
	if namespace == "" {
		namespace = "device_spoof"
	}

	pm := &PrometheusMetrics{
		logger: logger,

		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latencies in seconds",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path"},
		),

		groupsTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "groups_total",
				Help:      "Current number of spoof groups",
			},
		),
		appsAssigned: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "apps_assigned_total",
				Help:      "Current number of app-to-group assignments",
			},
		),
		valuesGeneratedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "values_generated_total",
				Help:      "Total number of identifier values generated",
			},
			[]string{"kind"}, // android_id, serial, imei, imsi
		),
		regenerationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "regenerations_total",
				Help:      "Total number of explicit value regenerations",
			},
			[]string{"kind"},
		),
		assignConflictsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "assign_conflicts_total",
				Help:      "Total number of rejected cross-group assignments",
			},
		),

		cacheHits: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resolution_cache_hits",
				Help:      "Cumulative resolution cache hits",
			},
		),
		cacheMisses: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resolution_cache_misses",
				Help:      "Cumulative resolution cache misses",
			},
		),
		cacheNotFound: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resolution_cache_not_found",
				Help:      "Cumulative failed class lookups (tombstoned)",
			},
		),
		cacheSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resolution_cache_size",
				Help:      "Current number of cached class handles",
			},
		),
		cacheTombstones: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resolution_cache_tombstones",
				Help:      "Current number of negative cache entries",
			},
		),
		cacheHitRate: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resolution_cache_hit_rate",
				Help:      "Resolution cache hit rate (0 when no lookups)",
			},
		),

		memoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage in bytes",
			},
		),
		goroutinesCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "goroutines_count",
				Help:      "Current number of goroutines",
			},
		),
		gcCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "gc_count",
				Help:      "Number of completed GC cycles",
			},
		),

		dbConnectionsOpen: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections_open",
				Help:      "Number of open database connections",
			},
		),
		dbConnectionsIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections_idle",
				Help:      "Number of idle database connections",
			},
		),
		dbConnectionsInUse: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections_in_use",
				Help:      "Number of database connections in use",
			},
		),
	}

	logger.Info("Prometheus metrics initialized")
	return pm
}

// HTTPMiddleware HTTP 请求监控中间件
func (pm *PrometheusMetrics) HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		pm.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		pm.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

// Handler 返回 Prometheus HTTP Handler
func (pm *PrometheusMetrics) Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// SetGroupCounts 更新分组与归属数量
func (pm *PrometheusMetrics) SetGroupCounts(groups, apps int64) {
	pm.groupsTotal.Set(float64(groups))
	pm.appsAssigned.Set(float64(apps))
}

// RecordGroupCreated 记录分组创建: 每个类别各生成一个值
func (pm *PrometheusMetrics) RecordGroupCreated() {
	for _, kind := range identity.AllKinds() {
		pm.valuesGeneratedTotal.WithLabelValues(string(kind)).Inc()
	}
}

// RecordRegeneration 记录显式重新生成
func (pm *PrometheusMetrics) RecordRegeneration(kind identity.Kind) {
	pm.valuesGeneratedTotal.WithLabelValues(string(kind)).Inc()
	pm.regenerationsTotal.WithLabelValues(string(kind)).Inc()
}

// RecordAssignConflict 记录被拒绝的跨组分配
func (pm *PrometheusMetrics) RecordAssignConflict() {
	pm.assignConflictsTotal.Inc()
}

// UpdateCacheStats 导出类解析缓存统计
// 挂钩分发层持有缓存实例, 周期性把快照推到这里
func (pm *PrometheusMetrics) UpdateCacheStats(stats resolver.Stats) {
	pm.cacheHits.Set(float64(stats.Hits))
	pm.cacheMisses.Set(float64(stats.Misses))
	pm.cacheNotFound.Set(float64(stats.NotFoundCount))
	pm.cacheSize.Set(float64(stats.Size))
	pm.cacheTombstones.Set(float64(stats.Tombstones))
	pm.cacheHitRate.Set(stats.HitRate())
}

// UpdateMemoryStats 更新内存统计
func (pm *PrometheusMetrics) UpdateMemoryStats(stats MemoryStats) {
	pm.memoryUsage.Set(float64(stats.Alloc))
	pm.goroutinesCount.Set(float64(stats.Goroutines))
	pm.gcCount.Set(float64(stats.NumGC))
}

// UpdateDBStats 更新数据库连接统计
func (pm *PrometheusMetrics) UpdateDBStats(open, idle, inUse int) {
	pm.dbConnectionsOpen.Set(float64(open))
	pm.dbConnectionsIdle.Set(float64(idle))
	pm.dbConnectionsInUse.Set(float64(inUse))
}

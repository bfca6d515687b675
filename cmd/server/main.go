package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/device-spoof/device-spoof-go/internal/api"
	"github.com/device-spoof/device-spoof-go/internal/config"
	"github.com/device-spoof/device-spoof-go/internal/middleware"
	"github.com/device-spoof/device-spoof-go/internal/repository"
	"github.com/device-spoof/device-spoof-go/internal/resolver"
	"github.com/device-spoof/device-spoof-go/internal/retry"
	"github.com/device-spoof/device-spoof-go/internal/service"
	"github.com/device-spoof/device-spoof-go/internal/watcher"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// hookTargets 挂钩目标类: 标识符读取 API 所在的框架类
// 句柄是方法签名描述, 分发层据此决定拦截哪些调用
var hookTargets = map[string]string{
	"android.telephony.TelephonyManager": "getDeviceId()Ljava/lang/String;,getImei(I)Ljava/lang/String;,getSubscriberId()Ljava/lang/String;",
	"android.provider.Settings$Secure":   "getString(Landroid/content/ContentResolver;Ljava/lang/String;)Ljava/lang/String;",
	"android.os.Build":                   "SERIAL:Ljava/lang/String;,getSerial()Ljava/lang/String;",
	"android.os.SystemProperties":        "get(Ljava/lang/String;)Ljava/lang/String;",
}

func main() {
	// 1. 打印版本信息
	fmt.Printf("Device Spoof Control Plane\n")
	fmt.Printf("Version: %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n\n", GitCommit)

	// 2. 加载配置
	configPath := "./configs/config.yaml"
	if len(os.Args) > 1 && os.Args[1] == "--config" && len(os.Args) > 2 {
		configPath = os.Args[2]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 3. 初始化日志
	logger := config.InitLogger(&cfg.Log)
	logger.Infof("Starting Device Spoof Control Plane %s", Version)
	logger.Infof("Config loaded from: %s", configPath)

	// 4. 初始化数据库 (带重试, 数据库容器可能晚于服务就绪)
	var db *gorm.DB
	retryCfg := retry.DefaultConfig()
	retryCfg.Logger = logger
	err = retry.Do(context.Background(), retryCfg, func(ctx context.Context) error {
		var dbErr error
		db, dbErr = repository.InitDB(&cfg.Database, logger)
		return dbErr
	})
	if err != nil {
		logger.Fatalf("Failed to init database: %v", err)
	}
	logger.Info("Database connected successfully")

	// 5. 初始化仓库与分组服务 (服务启动时从存储预热应用归属索引)
	groupRepo := repository.NewGroupRepository(db, logger)
	groupService, err := service.NewGroupService(groupRepo, logger)
	if err != nil {
		logger.Fatalf("Failed to init group service: %v", err)
	}

	// 6. 初始化类解析缓存并预热配置的挂钩目标
	classCache := resolver.New[string](cfg.Cache.Capacity, func(class, loader string) (string, error) {
		sig, ok := hookTargets[class]
		if !ok {
			return "", fmt.Errorf("class %s not a hook target", class)
		}
		return sig, nil
	}, logger)

	preload := cfg.Cache.PreloadClasses
	if len(preload) == 0 {
		for class := range hookTargets {
			preload = append(preload, class)
		}
	}
	loaded := classCache.Preload("boot", preload...)
	logger.WithFields(logrus.Fields{
		"requested": len(preload),
		"loaded":    loaded,
	}).Info("Class resolution cache preloaded")

	// 7. 初始化 Prometheus 指标与内存监控
	promMetrics := middleware.NewPrometheusMetrics(logger, "device_spoof")

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	memMonitor := middleware.NewMemoryMonitor(logger, promMetrics, 30*time.Second)
	memMonitor.Start(rootCtx)
	logger.Info("Memory monitor started")

	// 指标更新协程: 数据库连接、缓存统计、分组计数
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err == nil {
					dbStats := sqlDB.Stats()
					promMetrics.UpdateDBStats(dbStats.OpenConnections, dbStats.Idle, dbStats.InUse)
				}

				promMetrics.UpdateCacheStats(classCache.Stats())

				groups, apps, err := groupRepo.Counts(rootCtx)
				if err != nil {
					logger.WithError(err).Warn("Failed to count groups for metrics")
					continue
				}
				promMetrics.SetGroupCounts(groups, apps)
			}
		}
	}()

	// 8. 启动分组档案导入监控
	importDir := cfg.Profiles.ImportDir
	if importDir == "" {
		importDir = "./profiles"
	}
	profileWatcher, err := watcher.NewProfileWatcher(importDir, groupService, logger)
	if err != nil {
		logger.Fatalf("Failed to create profile watcher: %v", err)
	}
	defer profileWatcher.Stop()

	if err := profileWatcher.Start(rootCtx); err != nil {
		logger.Fatalf("Failed to start profile watcher: %v", err)
	}
	logger.Infof("Profile watcher started for directory: %s", importDir)

	// 9. 设置 HTTP Server
	router := api.SetupRouter(cfg, logger, groupService, groupRepo, memMonitor, promMetrics)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 10. 启动 HTTP Server
	go func() {
		logger.Infof("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	// 11. 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down gracefully...")
	rootCancel()

	// 12. 优雅关闭 (30秒超时)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("HTTP server shutdown error: %v", err)
	}

	sqlDB, _ := db.DB()
	sqlDB.Close()

	logger.Info("Server stopped")
}

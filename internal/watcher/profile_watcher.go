package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/device-spoof/device-spoof-go/internal/domain"
	"github.com/device-spoof/device-spoof-go/internal/service"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// GroupProfile 导入文件格式
// 把 JSON 档案放进导入目录即可批量建组, 无需走 HTTP 接口
type GroupProfile struct {
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Packages     []string `json:"packages"`
}

// ProfileWatcher 分组档案导入监控器
type ProfileWatcher struct {
	watcher      *fsnotify.Watcher
	importDir    string
	groupService service.GroupService
	logger       *logrus.Logger
	debounce     time.Duration
	processing   map[string]bool
	stopChan     chan struct{}
}

// NewProfileWatcher 创建档案导入监控器
func NewProfileWatcher(importDir string, groupService service.GroupService, logger *logrus.Logger) (*ProfileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// 确保导入目录存在
	if err := os.MkdirAll(importDir, 0755); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to create import directory: %w", err)
	}

	if err := watcher.Add(importDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to add import directory: %w", err)
	}

	pw := &ProfileWatcher{
		watcher:      watcher,
		importDir:    importDir,
		groupService: groupService,
		logger:       logger,
		debounce:     2 * time.Second,
		processing:   make(map[string]bool),
		stopChan:     make(chan struct{}),
	}

	logger.WithField("import_dir", importDir).Info("Profile watcher created")
	return pw, nil
}

// Start 启动监控, 先处理目录里已有的档案再进入事件循环
func (pw *ProfileWatcher) Start(ctx context.Context) error {
	pw.logger.Info("Starting profile watcher")

	if err := pw.scanExisting(ctx); err != nil {
		pw.logger.WithError(err).Warn("Failed to scan existing profiles")
	}

	go pw.eventLoop(ctx)

	pw.logger.Info("Profile watcher started successfully")
	return nil
}

func (pw *ProfileWatcher) scanExisting(ctx context.Context) error {
	entries, err := os.ReadDir(pw.importDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !isProfileFile(entry.Name()) {
			continue
		}
		pw.logger.WithField("file", entry.Name()).Info("Found existing profile")
		pw.handleProfile(ctx, filepath.Join(pw.importDir, entry.Name()))
	}
	return nil
}

func (pw *ProfileWatcher) eventLoop(ctx context.Context) {
	debounceTimer := make(map[string]*time.Timer)

	for {
		select {
		case <-ctx.Done():
			pw.logger.Info("Profile watcher context done")
			return
		case <-pw.stopChan:
			pw.logger.Info("Profile watcher stopped")
			return
		case event, ok := <-pw.watcher.Events:
			if !ok {
				pw.logger.Warn("Watcher events channel closed")
				return
			}

			if event.Op&fsnotify.Create != fsnotify.Create &&
				event.Op&fsnotify.Write != fsnotify.Write {
				continue
			}

			if !isProfileFile(filepath.Base(event.Name)) {
				continue
			}

			pw.logger.WithFields(logrus.Fields{
				"event": event.Op.String(),
				"file":  filepath.Base(event.Name),
			}).Debug("Profile event detected")

			// 防抖: 同一文件短时间内多次写入只导入一次
			if timer, exists := debounceTimer[event.Name]; exists {
				timer.Stop()
			}
			debounceTimer[event.Name] = time.AfterFunc(pw.debounce, func() {
				delete(debounceTimer, event.Name)
				pw.handleProfile(ctx, event.Name)
			})

		case err, ok := <-pw.watcher.Errors:
			if !ok {
				pw.logger.Warn("Watcher errors channel closed")
				return
			}
			pw.logger.WithError(err).Error("Watcher error")
		}
	}
}

// handleProfile 导入单个档案文件
// 成功后把文件改名为 .imported, 重启时不会重复建组
func (pw *ProfileWatcher) handleProfile(ctx context.Context, filePath string) {
	if pw.processing[filePath] {
		pw.logger.WithField("file", filePath).Debug("Profile is already being processed")
		return
	}
	pw.processing[filePath] = true
	defer delete(pw.processing, filePath)

	if err := pw.waitForFileReady(filePath); err != nil {
		pw.logger.WithError(err).WithField("file", filePath).Error("Profile not ready")
		return
	}

	pw.logger.WithField("file", filePath).Info("Importing profile")

	if err := pw.importProfile(ctx, filePath); err != nil {
		pw.logger.WithError(err).WithField("file", filePath).Error("Failed to import profile")
		return
	}

	if err := os.Rename(filePath, filePath+".imported"); err != nil {
		pw.logger.WithError(err).WithField("file", filePath).Warn("Failed to mark profile as imported")
	}

	pw.logger.WithField("file", filePath).Info("Profile imported successfully")
}

func (pw *ProfileWatcher) importProfile(ctx context.Context, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("读取档案文件失败: %w", err)
	}

	var profile GroupProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return fmt.Errorf("解析档案文件失败: %w", err)
	}
	if profile.Name == "" {
		return fmt.Errorf("档案缺少分组名称")
	}

	group, err := pw.groupService.CreateGroup(ctx, profile.Name, profile.Manufacturer)
	if err != nil {
		return err
	}

	for _, pkg := range profile.Packages {
		if err := pw.groupService.AssignApp(ctx, group.ID, pkg); err != nil {
			// 已归属其他分组的应用跳过, 不让单个冲突中断整个导入
			var conflict *domain.ConflictError
			if errors.As(err, &conflict) {
				pw.logger.WithFields(logrus.Fields{
					"package":       pkg,
					"current_group": conflict.GroupID,
				}).Warn("Package already assigned, skipping")
				continue
			}
			return err
		}
	}

	pw.logger.WithFields(logrus.Fields{
		"group_id": group.ID,
		"name":     profile.Name,
		"packages": len(profile.Packages),
	}).Info("Group created from profile")

	return nil
}

// waitForFileReady 等待文件写入完成 (大小稳定)
func (pw *ProfileWatcher) waitForFileReady(filePath string) error {
	maxAttempts := 10
	for i := 0; i < maxAttempts; i++ {
		info1, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("file does not exist")
			}
			time.Sleep(200 * time.Millisecond)
			continue
		}

		time.Sleep(200 * time.Millisecond)

		info2, err := os.Stat(filePath)
		if err != nil {
			return err
		}

		if info1.Size() == info2.Size() && info1.Size() > 0 {
			return nil
		}
	}

	return fmt.Errorf("file not ready after %d attempts", maxAttempts)
}

func isProfileFile(fileName string) bool {
	return strings.HasSuffix(strings.ToLower(fileName), ".json")
}

// Stop 停止监控
func (pw *ProfileWatcher) Stop() error {
	pw.logger.Info("Stopping profile watcher")
	close(pw.stopChan)

	if pw.watcher != nil {
		return pw.watcher.Close()
	}
	return nil
}

package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/device-spoof/device-spoof-go/internal/domain"
	"github.com/device-spoof/device-spoof-go/internal/identity"
	"github.com/device-spoof/device-spoof-go/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// GroupService 伪装分组服务接口
type GroupService interface {
	// 创建分组并一次性生成全部标识值
	CreateGroup(ctx context.Context, name string, manufacturer string) (*domain.SpoofGroup, error)

	// 获取分组
	GetGroup(ctx context.Context, groupID string) (*domain.SpoofGroup, error)

	// 获取分组列表
	ListGroups(ctx context.Context) ([]*domain.SpoofGroup, error)

	// 重命名分组
	RenameGroup(ctx context.Context, groupID string, name string) error

	// 分配应用到分组: 已归属其他分组时返回 ConflictError, 同组重复分配幂等
	AssignApp(ctx context.Context, groupID string, packageName string) error

	// 解除应用归属: 不是成员时为空操作
	UnassignApp(ctx context.Context, groupID string, packageName string) error

	// 判断应用是否属于指定分组
	IsAppAssigned(groupID string, packageName string) bool

	// 按包名查找所属分组, 供挂钩分发层调用; 未分配返回 ErrAppNotAssigned
	GroupForApp(ctx context.Context, packageName string) (*domain.SpoofGroup, error)

	// 按类别读取分组标识值
	IdentifierValue(ctx context.Context, groupID string, kind identity.Kind) (string, error)

	// 重新生成单个标识值, 其余字段和归属不受影响
	RegenerateValue(ctx context.Context, groupID string, kind identity.Kind) (string, error)

	// 删除分组及其全部归属
	DeleteGroup(ctx context.Context, groupID string) error
}

type groupService struct {
	repo   repository.GroupRepository
	logger *logrus.Logger
	rng    io.Reader

	// appIndex 是"一个应用至多属于一个分组"的唯一权威反向索引,
	// 与每个分组的正向成员集合在同一临界区内一起更新
	// mu 串行化所有变更操作; 读取走仓库快照, 不会观察到撕裂的归属状态
	mu       sync.Mutex
	appIndex map[string]string // 包名 → 分组ID
}

// NewGroupService 创建分组服务并从存储预热反向索引
func NewGroupService(repo repository.GroupRepository, logger *logrus.Logger) (GroupService, error) {
	index, err := repo.ListMemberships(context.Background())
	if err != nil {
		return nil, fmt.Errorf("加载应用归属索引失败: %w", err)
	}

	logger.WithField("assigned_apps", len(index)).Info("Group service initialized, app index warmed")

	return &groupService{
		repo:     repo,
		logger:   logger,
		rng:      rand.Reader,
		appIndex: index,
	}, nil
}

func (s *groupService) CreateGroup(ctx context.Context, name string, manufacturer string) (*domain.SpoofGroup, error) {
	if name == "" {
		return nil, fmt.Errorf("分组名称不能为空")
	}

	// 标识值生成在锁外完成, 临界区只做存储写入和索引更新
	values, err := identity.GenerateAll(manufacturer, s.rng)
	if err != nil {
		s.logger.WithError(err).Error("Failed to generate identifier values")
		return nil, fmt.Errorf("生成标识值失败: %w", err)
	}

	group := &domain.SpoofGroup{
		ID:           uuid.New().String(),
		Name:         name,
		Manufacturer: manufacturer,
	}
	for _, kind := range identity.AllKinds() {
		group.Values = append(group.Values, domain.GroupValue{
			GroupID: group.ID,
			Kind:    kind,
			Value:   values[kind],
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Create(ctx, group); err != nil {
		s.logger.WithError(err).Error("Failed to create group")
		return nil, fmt.Errorf("创建分组失败: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"group_id":     group.ID,
		"name":         name,
		"manufacturer": manufacturer,
	}).Info("Spoof group created")

	return group, nil
}

func (s *groupService) GetGroup(ctx context.Context, groupID string) (*domain.SpoofGroup, error) {
	group, err := s.repo.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrGroupNotFound
		}
		return nil, fmt.Errorf("获取分组失败: %w", err)
	}
	return group, nil
}

func (s *groupService) ListGroups(ctx context.Context) ([]*domain.SpoofGroup, error) {
	groups, err := s.repo.List(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list groups")
		return nil, fmt.Errorf("获取分组列表失败: %w", err)
	}
	return groups, nil
}

func (s *groupService) RenameGroup(ctx context.Context, groupID string, name string) error {
	if name == "" {
		return fmt.Errorf("分组名称不能为空")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Rename(ctx, groupID, name); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrGroupNotFound
		}
		return fmt.Errorf("重命名分组失败: %w", err)
	}
	return nil
}

func (s *groupService) AssignApp(ctx context.Context, groupID string, packageName string) error {
	if packageName == "" {
		return fmt.Errorf("应用包名不能为空")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.appIndex[packageName]; ok {
		if owner == groupID {
			// 重复分配到同一分组是幂等操作
			return nil
		}
		// 调用方必须先显式解除归属; 这里不做隐式迁移
		return &domain.ConflictError{PackageName: packageName, GroupID: owner}
	}

	// 确认目标分组存在, 避免写出指向不存在分组的归属
	if _, err := s.repo.FindByID(ctx, groupID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrGroupNotFound
		}
		return fmt.Errorf("分配应用失败: %w", err)
	}

	if err := s.repo.AddApp(ctx, groupID, packageName); err != nil {
		return fmt.Errorf("分配应用失败: %w", err)
	}
	s.appIndex[packageName] = groupID

	s.logger.WithFields(logrus.Fields{
		"group_id": groupID,
		"package":  packageName,
	}).Info("App assigned to spoof group")

	return nil
}

func (s *groupService) UnassignApp(ctx context.Context, groupID string, packageName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 不是该分组的成员时为空操作
	if owner, ok := s.appIndex[packageName]; !ok || owner != groupID {
		return nil
	}

	if err := s.repo.RemoveApp(ctx, groupID, packageName); err != nil {
		return fmt.Errorf("解除应用归属失败: %w", err)
	}
	delete(s.appIndex, packageName)

	s.logger.WithFields(logrus.Fields{
		"group_id": groupID,
		"package":  packageName,
	}).Info("App unassigned from spoof group")

	return nil
}

func (s *groupService) IsAppAssigned(groupID string, packageName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appIndex[packageName] == groupID
}

func (s *groupService) GroupForApp(ctx context.Context, packageName string) (*domain.SpoofGroup, error) {
	s.mu.Lock()
	groupID, ok := s.appIndex[packageName]
	s.mu.Unlock()

	if !ok {
		// 未分配不是错误场景的特殊情况: 挂钩层据此回落到原始行为
		return nil, domain.ErrAppNotAssigned
	}

	group, err := s.repo.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrGroupNotFound
		}
		return nil, fmt.Errorf("查找应用所属分组失败: %w", err)
	}
	return group, nil
}

func (s *groupService) IdentifierValue(ctx context.Context, groupID string, kind identity.Kind) (string, error) {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return "", err
	}

	value, ok := group.Value(kind)
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrValueNotFound, kind)
	}
	return value, nil
}

func (s *groupService) RegenerateValue(ctx context.Context, groupID string, kind identity.Kind) (string, error) {
	if !identity.IsValidKind(kind) {
		return "", fmt.Errorf("未知标识符类别: %s", kind)
	}

	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return "", err
	}

	// 生成在锁外完成
	value, err := identity.Generate(kind, group.Manufacturer, s.rng)
	if err != nil {
		s.logger.WithError(err).WithField("kind", kind).Error("Failed to regenerate identifier value")
		return "", fmt.Errorf("重新生成标识值失败: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.UpdateValue(ctx, groupID, kind, value); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: %s", domain.ErrValueNotFound, kind)
		}
		return "", fmt.Errorf("重新生成标识值失败: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"group_id": groupID,
		"kind":     kind,
	}).Info("Identifier value regenerated")

	return value, nil
}

func (s *groupService) DeleteGroup(ctx context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 存储层在单事务内删除分组、标识值和归属;
	// 索引在同一临界区内清理, 不会出现指向已删除分组的残留条目
	if err := s.repo.Delete(ctx, groupID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrGroupNotFound
		}
		return fmt.Errorf("删除分组失败: %w", err)
	}

	for pkg, owner := range s.appIndex {
		if owner == groupID {
			delete(s.appIndex, pkg)
		}
	}

	s.logger.WithField("group_id", groupID).Info("Spoof group deleted")
	return nil
}

package repository

import (
	"context"
	"time"

	"github.com/device-spoof/device-spoof-go/internal/domain"
	"github.com/device-spoof/device-spoof-go/internal/identity"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type GroupRepository interface {
	// 创建分组（连同标识值, 单事务）
	Create(ctx context.Context, group *domain.SpoofGroup) error
	// 按 ID 查找（预加载标识值和应用归属）
	FindByID(ctx context.Context, id string) (*domain.SpoofGroup, error)
	// 按应用包名查找所属分组
	FindByPackage(ctx context.Context, packageName string) (*domain.SpoofGroup, error)
	// 列出全部分组
	List(ctx context.Context) ([]*domain.SpoofGroup, error)
	// 重命名分组
	Rename(ctx context.Context, id string, name string) error
	// 删除分组及其全部标识值和应用归属（单事务, 不留悬挂归属）
	Delete(ctx context.Context, id string) error
	// 添加应用归属（包名全表唯一索引兜底跨组唯一性）
	AddApp(ctx context.Context, groupID string, packageName string) error
	// 移除应用归属
	RemoveApp(ctx context.Context, groupID string, packageName string) error
	// 替换单个标识值（仅显式重新生成时调用）
	UpdateValue(ctx context.Context, groupID string, kind identity.Kind, value string) error
	// 全量归属表: 包名 → 分组ID, 服务启动时预热反向索引
	ListMemberships(ctx context.Context) (map[string]string, error)
	// 分组与归属数量统计
	Counts(ctx context.Context) (groups int64, apps int64, err error)
}

type groupRepo struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewGroupRepository(db *gorm.DB, logger *logrus.Logger) GroupRepository {
	return &groupRepo{
		db:     db,
		logger: logger,
	}
}

func (r *groupRepo) Create(ctx context.Context, group *domain.SpoofGroup) error {
	group.CreatedAt = time.Now().UTC()
	// gorm 在同一事务内创建分组和关联的标识值
	return r.db.WithContext(ctx).Create(group).Error
}

func (r *groupRepo) FindByID(ctx context.Context, id string) (*domain.SpoofGroup, error) {
	var group domain.SpoofGroup
	err := r.db.WithContext(ctx).
		Preload("Values").
		Preload("Apps").
		First(&group, "id = ?", id).Error

	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *groupRepo) FindByPackage(ctx context.Context, packageName string) (*domain.SpoofGroup, error) {
	var membership domain.GroupApp
	err := r.db.WithContext(ctx).
		First(&membership, "package_name = ?", packageName).Error
	if err != nil {
		return nil, err
	}

	return r.FindByID(ctx, membership.GroupID)
}

func (r *groupRepo) List(ctx context.Context) ([]*domain.SpoofGroup, error) {
	var groups []*domain.SpoofGroup
	err := r.db.WithContext(ctx).
		Preload("Values").
		Preload("Apps").
		Order("created_at ASC").
		Find(&groups).Error

	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *groupRepo) Rename(ctx context.Context, id string, name string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.SpoofGroup{}).
		Where("id = ?", id).
		Update("name", name)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *groupRepo) Delete(ctx context.Context, id string) error {
	// 分组、标识值和应用归属在同一事务内删除,
	// 并发读要么看到完整分组, 要么什么都看不到
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&domain.SpoofGroup{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if err := tx.Delete(&domain.GroupValue{}, "group_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.GroupApp{}, "group_id = ?", id).Error
	})
}

func (r *groupRepo) AddApp(ctx context.Context, groupID string, packageName string) error {
	membership := &domain.GroupApp{
		GroupID:     groupID,
		PackageName: packageName,
		CreatedAt:   time.Now().UTC(),
	}

	err := r.db.WithContext(ctx).Create(membership).Error
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"group_id": groupID,
			"package":  packageName,
		}).Error("Failed to add app membership")
	}
	return err
}

func (r *groupRepo) RemoveApp(ctx context.Context, groupID string, packageName string) error {
	return r.db.WithContext(ctx).
		Delete(&domain.GroupApp{}, "group_id = ? AND package_name = ?", groupID, packageName).Error
}

func (r *groupRepo) UpdateValue(ctx context.Context, groupID string, kind identity.Kind, value string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.GroupValue{}).
		Where("group_id = ? AND kind = ?", groupID, kind).
		Update("value", value)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *groupRepo) ListMemberships(ctx context.Context) (map[string]string, error) {
	var memberships []domain.GroupApp
	if err := r.db.WithContext(ctx).Find(&memberships).Error; err != nil {
		return nil, err
	}

	index := make(map[string]string, len(memberships))
	for i := range memberships {
		index[memberships[i].PackageName] = memberships[i].GroupID
	}
	return index, nil
}

func (r *groupRepo) Counts(ctx context.Context) (int64, int64, error) {
	var groups, apps int64
	if err := r.db.WithContext(ctx).Model(&domain.SpoofGroup{}).Count(&groups).Error; err != nil {
		return 0, 0, err
	}
	if err := r.db.WithContext(ctx).Model(&domain.GroupApp{}).Count(&apps).Error; err != nil {
		return 0, 0, err
	}
	return groups, apps, nil
}

package domain

import (
	"time"

	"github.com/device-spoof/device-spoof-go/internal/identity"
)

// SpoofGroup 伪装分组
// 同组应用观察到完全一致的伪造标识, 不同组互不关联
// 标识值在创建时生成一次, 此后只能通过显式重新生成或删除分组改变
type SpoofGroup struct {
	ID           string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name         string       `gorm:"type:varchar(255);not null" json:"name"`
	Manufacturer string       `gorm:"type:varchar(64);not null;default:''" json:"manufacturer"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`

	// 关联
	Values []GroupValue `gorm:"foreignKey:GroupID;references:ID" json:"values,omitempty"`
	Apps   []GroupApp   `gorm:"foreignKey:GroupID;references:ID" json:"apps,omitempty"`
}

func (SpoofGroup) TableName() string {
	return "spoof_groups"
}

// Value 按类别读取分组的标识值
func (g *SpoofGroup) Value(kind identity.Kind) (string, bool) {
	for i := range g.Values {
		if g.Values[i].Kind == kind {
			return g.Values[i].Value, true
		}
	}
	return "", false
}

// IdentifierValues 以映射形式返回全部标识值, 供挂钩分发层读取
func (g *SpoofGroup) IdentifierValues() map[identity.Kind]string {
	values := make(map[identity.Kind]string, len(g.Values))
	for i := range g.Values {
		values[g.Values[i].Kind] = g.Values[i].Value
	}
	return values
}

// HasApp 判断应用是否属于该分组
func (g *SpoofGroup) HasApp(packageName string) bool {
	for i := range g.Apps {
		if g.Apps[i].PackageName == packageName {
			return true
		}
	}
	return false
}

// PackageNames 返回分组内全部应用包名
func (g *SpoofGroup) PackageNames() []string {
	names := make([]string, 0, len(g.Apps))
	for i := range g.Apps {
		names = append(names, g.Apps[i].PackageName)
	}
	return names
}

// GroupValue 分组标识值表
// (group_id, kind) 唯一: 每个分组每个类别只保存一个值
type GroupValue struct {
	ID        uint          `gorm:"primaryKey;autoIncrement" json:"id"`
	GroupID   string        `gorm:"type:varchar(36);uniqueIndex:uk_group_kind;not null" json:"group_id"`
	Kind      identity.Kind `gorm:"type:varchar(20);uniqueIndex:uk_group_kind;not null" json:"kind"`
	Value     string        `gorm:"type:varchar(64);not null" json:"value"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (GroupValue) TableName() string {
	return "spoof_group_values"
}

// GroupApp 应用归属表
// package_name 全表唯一索引是"一个应用至多属于一个分组"的数据库层兜底,
// 服务层的反向索引在此之上提供快路径和明确的冲突错误
type GroupApp struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	GroupID     string    `gorm:"type:varchar(36);index:idx_group_id;not null" json:"group_id"`
	PackageName string    `gorm:"type:varchar(255);uniqueIndex:uk_package;not null" json:"package_name"`
	CreatedAt   time.Time `json:"created_at"`
}

func (GroupApp) TableName() string {
	return "spoof_group_apps"
}

package domain

import (
	"errors"
	"fmt"
)

// ErrGroupNotFound 分组不存在
var ErrGroupNotFound = errors.New("spoof group not found")

// ErrAppNotAssigned 应用未分配到任何分组
var ErrAppNotAssigned = errors.New("app is not assigned to any group")

// ErrValueNotFound 分组缺少指定类别的标识值
var ErrValueNotFound = errors.New("identifier value not found for kind")

// ConflictError 应用已被其他分组占用
// 可恢复错误: 调用方必须先显式解除原有归属再重新分配
type ConflictError struct {
	PackageName string
	GroupID     string // 当前占用该应用的分组
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("package %s is already assigned to group %s", e.PackageName, e.GroupID)
}

// IsConflict 判断错误链中是否包含归属冲突
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}

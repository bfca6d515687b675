package handlers

import (
	"errors"
	"net/http"

	"github.com/device-spoof/device-spoof-go/internal/domain"
	"github.com/device-spoof/device-spoof-go/internal/identity"
	"github.com/device-spoof/device-spoof-go/internal/middleware"
	"github.com/device-spoof/device-spoof-go/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// GroupHandler 伪装分组处理器
type GroupHandler struct {
	groupService service.GroupService
	logger       *logrus.Logger
	metrics      *middleware.PrometheusMetrics
}

// NewGroupHandler 创建分组处理器实例, metrics 可为 nil
func NewGroupHandler(groupService service.GroupService, logger *logrus.Logger, metrics *middleware.PrometheusMetrics) *GroupHandler {
	return &GroupHandler{
		groupService: groupService,
		logger:       logger,
		metrics:      metrics,
	}
}

type createGroupRequest struct {
	Name         string `json:"name" binding:"required"`
	Manufacturer string `json:"manufacturer"`
}

type renameGroupRequest struct {
	Name string `json:"name" binding:"required"`
}

type assignAppRequest struct {
	PackageName string `json:"package_name" binding:"required"`
}

// CreateGroup 创建分组
// POST /api/groups
// 厂商可以是任意字符串; 未知厂商回落到通用格式, 不报错
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "请求参数无效: " + err.Error(),
		})
		return
	}

	group, err := h.groupService.CreateGroup(c.Request.Context(), req.Name, req.Manufacturer)
	if err != nil {
		h.logger.WithError(err).Error("Failed to create group")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "创建分组失败",
		})
		return
	}

	if h.metrics != nil {
		h.metrics.RecordGroupCreated()
	}

	c.JSON(http.StatusCreated, group)
}

// ListGroups 获取分组列表
// GET /api/groups
func (h *GroupHandler) ListGroups(c *gin.Context) {
	groups, err := h.groupService.ListGroups(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list groups")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "获取分组列表失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"groups": groups,
		"total":  len(groups),
	})
}

// GetGroup 获取分组详情
// GET /api/groups/:id
func (h *GroupHandler) GetGroup(c *gin.Context) {
	group, err := h.groupService.GetGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "分组不存在"})
			return
		}
		h.logger.WithError(err).Error("Failed to get group")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取分组失败"})
		return
	}

	c.JSON(http.StatusOK, group)
}

// RenameGroup 重命名分组
// PUT /api/groups/:id
func (h *GroupHandler) RenameGroup(c *gin.Context) {
	var req renameGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "请求参数无效: " + err.Error(),
		})
		return
	}

	if err := h.groupService.RenameGroup(c.Request.Context(), c.Param("id"), req.Name); err != nil {
		if errors.Is(err, domain.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "分组不存在"})
			return
		}
		h.logger.WithError(err).Error("Failed to rename group")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "重命名分组失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "分组已重命名"})
}

// DeleteGroup 删除分组及其全部归属
// DELETE /api/groups/:id
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	if err := h.groupService.DeleteGroup(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, domain.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "分组不存在"})
			return
		}
		h.logger.WithError(err).Error("Failed to delete group")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除分组失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "分组已删除"})
}

// AssignApp 分配应用到分组
// POST /api/groups/:id/apps
// 应用已属于其他分组时返回 409, 附带当前归属; 同组重复分配幂等返回 200
func (h *GroupHandler) AssignApp(c *gin.Context) {
	var req assignAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "请求参数无效: " + err.Error(),
		})
		return
	}

	err := h.groupService.AssignApp(c.Request.Context(), c.Param("id"), req.PackageName)
	if err != nil {
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			if h.metrics != nil {
				h.metrics.RecordAssignConflict()
			}
			c.JSON(http.StatusConflict, gin.H{
				"error":            "应用已属于其他分组, 请先解除归属",
				"package_name":     conflict.PackageName,
				"current_group_id": conflict.GroupID,
			})
			return
		}
		if errors.Is(err, domain.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "分组不存在"})
			return
		}
		h.logger.WithError(err).Error("Failed to assign app")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "分配应用失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "应用已分配到分组"})
}

// UnassignApp 解除应用归属
// DELETE /api/groups/:id/apps/:package
func (h *GroupHandler) UnassignApp(c *gin.Context) {
	if err := h.groupService.UnassignApp(c.Request.Context(), c.Param("id"), c.Param("package")); err != nil {
		h.logger.WithError(err).Error("Failed to unassign app")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "解除应用归属失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "应用归属已解除"})
}

// GetValue 按类别读取分组标识值
// GET /api/groups/:id/values/:kind
func (h *GroupHandler) GetValue(c *gin.Context) {
	kind := identity.Kind(c.Param("kind"))
	if !identity.IsValidKind(kind) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "未知标识符类别: " + c.Param("kind")})
		return
	}

	value, err := h.groupService.IdentifierValue(c.Request.Context(), c.Param("id"), kind)
	if err != nil {
		if errors.Is(err, domain.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "分组不存在"})
			return
		}
		if errors.Is(err, domain.ErrValueNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "标识值不存在"})
			return
		}
		h.logger.WithError(err).Error("Failed to get identifier value")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取标识值失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"group_id": c.Param("id"),
		"kind":     kind,
		"value":    value,
	})
}

// RegenerateValue 重新生成单个标识值
// POST /api/groups/:id/values/:kind/regenerate
// 只替换目标类别的值, 其余值和应用归属不受影响
func (h *GroupHandler) RegenerateValue(c *gin.Context) {
	kind := identity.Kind(c.Param("kind"))
	if !identity.IsValidKind(kind) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "未知标识符类别: " + c.Param("kind")})
		return
	}

	value, err := h.groupService.RegenerateValue(c.Request.Context(), c.Param("id"), kind)
	if err != nil {
		if errors.Is(err, domain.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "分组不存在"})
			return
		}
		if errors.Is(err, domain.ErrValueNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "标识值不存在"})
			return
		}
		h.logger.WithError(err).Error("Failed to regenerate identifier value")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "重新生成标识值失败"})
		return
	}

	if h.metrics != nil {
		h.metrics.RecordRegeneration(kind)
	}

	c.JSON(http.StatusOK, gin.H{
		"group_id": c.Param("id"),
		"kind":     kind,
		"value":    value,
	})
}

// GetAppGroup 按包名查找所属分组, 挂钩分发层的主要查询入口
// GET /api/apps/:package/group
// 未分配返回 404, 挂钩层据此回落到原始行为
func (h *GroupHandler) GetAppGroup(c *gin.Context) {
	group, err := h.groupService.GroupForApp(c.Request.Context(), c.Param("package"))
	if err != nil {
		if errors.Is(err, domain.ErrAppNotAssigned) {
			c.JSON(http.StatusNotFound, gin.H{"error": "应用未分配到任何分组"})
			return
		}
		if errors.Is(err, domain.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "分组不存在"})
			return
		}
		h.logger.WithError(err).Error("Failed to find group for app")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查找应用所属分组失败"})
		return
	}

	c.JSON(http.StatusOK, group)
}

// GetManufacturers 列出已知厂商, 供控制界面下拉选择
// GET /api/manufacturers
func (h *GroupHandler) GetManufacturers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"manufacturers": identity.KnownManufacturers(),
	})
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/device-spoof/device-spoof-go/internal/domain"
	"github.com/device-spoof/device-spoof-go/internal/identity"
	"github.com/device-spoof/device-spoof-go/internal/repository"
	"github.com/device-spoof/device-spoof-go/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// MockGroupService Mock Service
type MockGroupService struct {
	mock.Mock
}

func (m *MockGroupService) CreateGroup(ctx context.Context, name string, manufacturer string) (*domain.SpoofGroup, error) {
	args := m.Called(name, manufacturer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SpoofGroup), args.Error(1)
}

func (m *MockGroupService) GetGroup(ctx context.Context, groupID string) (*domain.SpoofGroup, error) {
	args := m.Called(groupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SpoofGroup), args.Error(1)
}

func (m *MockGroupService) ListGroups(ctx context.Context) ([]*domain.SpoofGroup, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SpoofGroup), args.Error(1)
}

func (m *MockGroupService) RenameGroup(ctx context.Context, groupID string, name string) error {
	args := m.Called(groupID, name)
	return args.Error(0)
}

func (m *MockGroupService) AssignApp(ctx context.Context, groupID string, packageName string) error {
	args := m.Called(groupID, packageName)
	return args.Error(0)
}

func (m *MockGroupService) UnassignApp(ctx context.Context, groupID string, packageName string) error {
	args := m.Called(groupID, packageName)
	return args.Error(0)
}

func (m *MockGroupService) IsAppAssigned(groupID string, packageName string) bool {
	args := m.Called(groupID, packageName)
	return args.Bool(0)
}

func (m *MockGroupService) GroupForApp(ctx context.Context, packageName string) (*domain.SpoofGroup, error) {
	args := m.Called(packageName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SpoofGroup), args.Error(1)
}

func (m *MockGroupService) IdentifierValue(ctx context.Context, groupID string, kind identity.Kind) (string, error) {
	args := m.Called(groupID, kind)
	return args.String(0), args.Error(1)
}

func (m *MockGroupService) RegenerateValue(ctx context.Context, groupID string, kind identity.Kind) (string, error) {
	args := m.Called(groupID, kind)
	return args.String(0), args.Error(1)
}

func (m *MockGroupService) DeleteGroup(ctx context.Context, groupID string) error {
	args := m.Called(groupID)
	return args.Error(0)
}

// setupTestRouter 设置测试路由
func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// TestGroupHandler_GetGroup 测试获取分组详情
func TestGroupHandler_GetGroup(t *testing.T) {
	mockService := new(MockGroupService)
	handler := NewGroupHandler(mockService, quietLogger(), nil)
	router := setupTestRouter()
	router.GET("/api/groups/:id", handler.GetGroup)

	expected := &domain.SpoofGroup{
		ID:           "group-001",
		Name:         "work profile",
		Manufacturer: "samsung",
	}
	mockService.On("GetGroup", "group-001").Return(expected, nil)

	req := httptest.NewRequest("GET", "/api/groups/group-001", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response domain.SpoofGroup
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, expected.ID, response.ID)
	assert.Equal(t, expected.Name, response.Name)

	mockService.AssertExpectations(t)
}

// TestGroupHandler_GetGroup_NotFound 分组不存在返回 404
func TestGroupHandler_GetGroup_NotFound(t *testing.T) {
	mockService := new(MockGroupService)
	handler := NewGroupHandler(mockService, quietLogger(), nil)
	router := setupTestRouter()
	router.GET("/api/groups/:id", handler.GetGroup)

	mockService.On("GetGroup", "missing").Return(nil, domain.ErrGroupNotFound)

	req := httptest.NewRequest("GET", "/api/groups/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockService.AssertExpectations(t)
}

// TestGroupHandler_AssignApp_Conflict 跨组分配返回 409 并附带当前归属
func TestGroupHandler_AssignApp_Conflict(t *testing.T) {
	mockService := new(MockGroupService)
	handler := NewGroupHandler(mockService, quietLogger(), nil)
	router := setupTestRouter()
	router.POST("/api/groups/:id/apps", handler.AssignApp)

	mockService.On("AssignApp", "group-002", "com.example.app").
		Return(&domain.ConflictError{PackageName: "com.example.app", GroupID: "group-001"})

	body, _ := json.Marshal(map[string]string{"package_name": "com.example.app"})
	req := httptest.NewRequest("POST", "/api/groups/group-002/apps", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "group-001", response["current_group_id"])
	assert.Equal(t, "com.example.app", response["package_name"])

	mockService.AssertExpectations(t)
}

// TestGroupHandler_RegenerateValue_UnknownKind 未知类别返回 400, 不触达服务层
func TestGroupHandler_RegenerateValue_UnknownKind(t *testing.T) {
	mockService := new(MockGroupService)
	handler := NewGroupHandler(mockService, quietLogger(), nil)
	router := setupTestRouter()
	router.POST("/api/groups/:id/values/:kind/regenerate", handler.RegenerateValue)

	req := httptest.NewRequest("POST", "/api/groups/group-001/values/mac_address/regenerate", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "RegenerateValue")
}

// TestGroupHandler_GetAppGroup_NotAssigned 未分配的应用返回 404
func TestGroupHandler_GetAppGroup_NotAssigned(t *testing.T) {
	mockService := new(MockGroupService)
	handler := NewGroupHandler(mockService, quietLogger(), nil)
	router := setupTestRouter()
	router.GET("/api/apps/:package/group", handler.GetAppGroup)

	mockService.On("GroupForApp", "com.example.free").Return(nil, domain.ErrAppNotAssigned)

	req := httptest.NewRequest("GET", "/api/apps/com.example.free/group", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockService.AssertExpectations(t)
}

// setupRealStack 用内存数据库搭建完整服务栈
func setupRealStack(t *testing.T) service.GroupService {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.SpoofGroup{}, &domain.GroupValue{}, &domain.GroupApp{}))

	repo := repository.NewGroupRepository(db, quietLogger())
	svc, err := service.NewGroupService(repo, quietLogger())
	require.NoError(t, err)
	return svc
}

// TestGroupHandler_EndToEnd 创建分组、分配应用、按包名查询、重新生成的完整流程
func TestGroupHandler_EndToEnd(t *testing.T) {
	svc := setupRealStack(t)
	handler := NewGroupHandler(svc, quietLogger(), nil)

	router := setupTestRouter()
	router.POST("/api/groups", handler.CreateGroup)
	router.POST("/api/groups/:id/apps", handler.AssignApp)
	router.GET("/api/apps/:package/group", handler.GetAppGroup)
	router.POST("/api/groups/:id/values/:kind/regenerate", handler.RegenerateValue)

	// 创建分组
	body, _ := json.Marshal(map[string]string{"name": "test", "manufacturer": "samsung"})
	req := httptest.NewRequest("POST", "/api/groups", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var group domain.SpoofGroup
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &group))
	require.NotEmpty(t, group.ID)
	assert.Len(t, group.Values, len(identity.AllKinds()))

	// 分配应用
	body, _ = json.Marshal(map[string]string{"package_name": "com.example.app"})
	req = httptest.NewRequest("POST", "/api/groups/"+group.ID+"/apps", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// 按包名查询, 返回的分组和标识值与创建时一致
	req = httptest.NewRequest("GET", "/api/apps/com.example.app/group", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var found domain.SpoofGroup
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &found))
	assert.Equal(t, group.ID, found.ID)
	assert.Equal(t, group.IdentifierValues(), found.IdentifierValues())

	// 重新生成 IMEI
	req = httptest.NewRequest("POST", "/api/groups/"+group.ID+"/values/imei/regenerate", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var regen map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &regen))
	assert.True(t, identity.ValidateLuhn(regen["value"]))

	oldIMEI := group.IdentifierValues()[identity.KindIMEI]
	assert.NotEqual(t, oldIMEI, regen["value"])
}

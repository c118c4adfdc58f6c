package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bitfantasy/nimo-warranty/internal/middleware"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/entity"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/events"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/repository"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/repository/memory"
	"github.com/bitfantasy/nimo-warranty/internal/warranty/service"
)

const (
	TestSchema = "test_warranty"
	JWTSecret  = "nimo-warranty-test-secret"
)

// 种子数据
const (
	VIN             = "LNBSCU3H5JR000001"
	ModelID         = "model-s"
	WarehouseCenter = "wh-sc-01"
	WarehouseHQ     = "wh-hq"
	TypeBattery     = "tc-battery"
	TypePump        = "tc-pump"
	TechA           = "tech-a"
	TechB           = "tech-b"
)

// TestEnv 内存驱动的完整服务
type TestEnv struct {
	Store    *memory.Store
	Services *service.Services
	Events   *events.Recorder
	Router   *gin.Engine
}

// projectRoot returns the project root directory by looking for go.mod
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func loadEnv() {
	if root := projectRoot(); root != "" {
		godotenv.Load(filepath.Join(root, ".env"))
	}
}

// SetupTestDB 每个测试独立 schema，结束后删除。未配置 DB_HOST 时跳过。
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()
	if os.Getenv("DB_HOST") == "" {
		t.Skip("DB_HOST not set, skipping postgres test")
	}

	baseDSN := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnv("DB_HOST", "127.0.0.1"),
		getEnv("DB_PORT", "5432"),
		getEnv("DB_USER", "nimo"),
		getEnv("DB_PASSWORD", "nimo123"),
		getEnv("DB_NAME", "nimo_warranty"),
	)
	schemaName := fmt.Sprintf("%s_%d", TestSchema, time.Now().UnixNano()%1000000)

	setupDB, err := gorm.Open(postgres.Open(baseDSN), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("Failed to connect to database for schema setup: %v", err)
	}
	setupDB.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName))
	sqlSetup, _ := setupDB.DB()
	sqlSetup.Close()

	db, err := gorm.Open(postgres.Open(fmt.Sprintf("%s search_path=%s", baseDSN, schemaName)), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := entity.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, _ := db.DB(); sqlDB != nil {
			sqlDB.Close()
		}
		cleanDB, err := gorm.Open(postgres.Open(baseDSN), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err == nil {
			cleanDB.Exec(fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schemaName))
			if sqlClean, _ := cleanDB.DB(); sqlClean != nil {
				sqlClean.Close()
			}
		}
	})
	return db
}

// Seed 写入车型、车辆、配件类型、仓库与技师
func Seed(t *testing.T, store repository.Store) {
	t.Helper()
	ctx := context.Background()
	purchased := time.Now().AddDate(-1, 0, 0)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	must(store.Catalog().CreateModel(ctx, &entity.VehicleModel{ID: ModelID, Name: "Nimo S", GeneralWarrantyDuration: 36, GeneralWarrantyMileage: 100000}))
	must(store.Catalog().CreateVehicle(ctx, &entity.Vehicle{VIN: VIN, ModelID: ModelID, OwnerName: "张三", PurchaseDate: &purchased}))
	must(store.Catalog().CreateTypeComponent(ctx, &entity.TypeComponent{ID: TypeBattery, SKU: "BAT-75", Name: "动力电池模组", Category: "battery"}))
	must(store.Catalog().CreateTypeComponent(ctx, &entity.TypeComponent{ID: TypePump, SKU: "PMP-01", Name: "冷却水泵", Category: "thermal"}))
	must(store.Catalog().CreateWarrantyComponent(ctx, &entity.WarrantyComponent{
		ID: "wc-battery", VehicleModelID: ModelID, TypeComponentID: TypeBattery, Quantity: 2, DurationMonth: 96, MileageLimit: 160000,
	}))
	must(store.Warehouses().Create(ctx, &entity.Warehouse{ID: WarehouseCenter, Name: "上海服务中心", Context: entity.WarehouseContextServiceCenter, Priority: 50}))
	must(store.Warehouses().Create(ctx, &entity.Warehouse{ID: WarehouseHQ, Name: "总部中心仓", Context: entity.WarehouseContextCompany, Priority: 100}))
	must(store.Technicians().Create(ctx, &entity.Technician{ID: TechA, Name: "李工", WarehouseID: WarehouseCenter, Active: true}))
	must(store.Technicians().Create(ctx, &entity.Technician{ID: TechB, Name: "王工", WarehouseID: WarehouseCenter, Active: true}))
}

// NewTestEnv 内存存储 + 种子数据 + 已注册路由
func NewTestEnv(t *testing.T, register func(rg *gin.RouterGroup, svc *service.Services)) *TestEnv {
	t.Helper()
	store := memory.NewStore()
	Seed(t, store)
	rec := events.NewRecorder()
	svc := service.NewServices(service.Deps{
		Store:     store,
		Reader:    store,
		Publisher: rec,
		Logger:    zap.NewNop(),
	}, service.Options{})

	r := SetupRouter()
	register(AuthGroup(r, "/api/v1/warranty"), svc)
	return &TestEnv{Store: store, Services: svc, Events: rec, Router: r}
}

// SetupRouter creates a gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup API group with JWT auth middleware
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken creates a valid JWT token for testing
func GenerateTestToken(userID, name string, roles, permissions []string) string {
	if roles == nil {
		roles = []string{}
	}
	if permissions == nil {
		permissions = []string{}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":          userID,
		"uid":          userID,
		"name":         name,
		"warehouse_id": WarehouseCenter,
		"roles":        roles,
		"perms":        permissions,
		"iss":          "nimo-warranty",
		"iat":          now.Unix(),
		"exp":          now.Add(24 * time.Hour).Unix(),
		"jti":          fmt.Sprintf("test-jti-%d", now.UnixNano()),
	}
	tokenString, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(JWTSecret))
	return tokenString
}

// DefaultTestToken 服务顾问，无运维权限
func DefaultTestToken() string {
	return GenerateTestToken("advisor-001", "Test Advisor", []string{"service_advisor"}, []string{"warranty:read", "warranty:write"})
}

// AdminTestToken 拥有全部权限
func AdminTestToken() string {
	return GenerateTestToken("admin-001", "Test Admin", []string{middleware.AdminRole}, []string{"*"})
}

// DoRequest executes an HTTP request against the test router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the JSON response body into a map
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// Data 取响应中的 data 对象
func Data(w *httptest.ResponseRecorder) map[string]interface{} {
	data, _ := ParseResponse(w)["data"].(map[string]interface{})
	return data
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

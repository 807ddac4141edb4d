package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coopledger/internal/authz"
	"github.com/coopledger/internal/config"
	"github.com/coopledger/internal/constants"
	"github.com/coopledger/internal/models"
	"github.com/coopledger/internal/provider"
	"github.com/coopledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type routerFixture struct {
	engine    *gin.Engine
	container *provider.Container
	coop      models.Cooperative
	land      models.Land
}

type apiEnvelope struct {
	StatusCode int             `json:"status_code"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
}

func setupRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := models.MigrateAll(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	cfg := &config.Config{
		Server: config.ServerConfig{Mode: "debug"},
		JWT:    config.JWTConfig{SecretKey: "router-test-secret", ExpireHours: 1, Issuer: "coopledger"},
		Ledger: config.LedgerConfig{
			Retry:           config.RetryConfig{MaxAttempts: 3, InitialIntervalMS: 1, MaxIntervalMS: 5},
			MaxLineageDepth: 16,
		},
	}
	c := provider.NewLedgerContainer(cfg, db, nil)
	authzService, err := authz.NewService(db)
	if err != nil {
		t.Fatalf("new authz service failed: %v", err)
	}
	if err := authzService.BootstrapBuiltinRoles(); err != nil {
		t.Fatalf("bootstrap roles failed: %v", err)
	}
	c.AuthzService = authzService

	fx := &routerFixture{container: c}
	fx.coop = models.Cooperative{Code: "DL01", Name: "Dak Lak Highlands", Province: "Dak Lak"}
	if err := db.Create(&fx.coop).Error; err != nil {
		t.Fatalf("create cooperative failed: %v", err)
	}
	farmer := models.Farmer{CooperativeID: fx.coop.ID, Name: "Y Bih", Status: constants.FarmerStatusActive}
	if err := db.Create(&farmer).Error; err != nil {
		t.Fatalf("create farmer failed: %v", err)
	}
	fx.land = models.Land{FarmerID: farmer.ID, Name: "North slope", AreaHectares: models.NewQuantity(decimal.NewFromInt(2))}
	if err := db.Create(&fx.land).Error; err != nil {
		t.Fatalf("create land failed: %v", err)
	}

	fx.engine = SetupRouter(cfg, c)
	return fx
}

func (fx *routerFixture) token(t *testing.T, scope service.Scope) string {
	t.Helper()
	token, _, err := fx.container.ScopeTokenService.Issue(scope)
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	return token
}

func (fx *routerFixture) do(t *testing.T, token, method, path string, body interface{}) apiEnvelope {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body failed: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	fx.engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("%s %s: http status want 200 got %d", method, path, w.Code)
	}
	var resp apiEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: unmarshal response failed: %v (%s)", method, path, err, w.Body.String())
	}
	return resp
}

func TestLedgerAPIFlow(t *testing.T) {
	fx := setupRouterFixture(t)
	operator := fx.token(t, service.Scope{Subject: "operator@dl01", Role: constants.RoleCooperativeOperator, CooperativeID: fx.coop.ID})

	resp := fx.do(t, operator, http.MethodPost, "/api/v1/batches", gin.H{
		"code":           "CHERRY-001",
		"cooperative_id": fx.coop.ID,
		"product_type":   constants.ProductCherry,
	})
	if resp.StatusCode != 0 {
		t.Fatalf("create batch failed: %d %s", resp.StatusCode, resp.Msg)
	}

	resp = fx.do(t, operator, http.MethodPost, "/api/v1/transactions/receipts", gin.H{
		"batch_code": "CHERRY-001",
		"quantity":   "480",
		"date":       "2026-03-01",
		"land_id":    fx.land.ID,
	})
	if resp.StatusCode != 0 {
		t.Fatalf("record receipt failed: %d %s", resp.StatusCode, resp.Msg)
	}

	resp = fx.do(t, operator, http.MethodPost, "/api/v1/transactions/dispatches", gin.H{
		"batch_code": "CHERRY-001",
		"quantity":   "900",
		"date":       "2026-03-02",
		"buyer":      "Roaster",
	})
	if resp.StatusCode != 422 {
		t.Fatalf("overdraw should be rejected with 422, got %d %s", resp.StatusCode, resp.Msg)
	}
	var rejected struct {
		Reason struct {
			Available string `json:"available"`
			Requested string `json:"requested"`
		} `json:"reason"`
	}
	if err := json.Unmarshal(resp.Data, &rejected); err != nil {
		t.Fatalf("unmarshal stock error failed: %v", err)
	}
	if stockErr := rejected.Reason; stockErr.Available != "480.000" || stockErr.Requested != "900.000" {
		t.Fatalf("unexpected stock error payload: %+v", stockErr)
	}

	resp = fx.do(t, operator, http.MethodPost, "/api/v1/transformations", gin.H{
		"source_batch_code":   "CHERRY-001",
		"source_quantity_out": "100",
		"outputs":             []gin.H{{"batch_code": "GREENBEAN-001", "quantity": "100"}},
		"date":                "2026-03-05",
	})
	if resp.StatusCode != 0 {
		t.Fatalf("record transformation failed: %d %s", resp.StatusCode, resp.Msg)
	}

	var stock service.StockView
	resp = fx.do(t, operator, http.MethodGet, "/api/v1/batches/CHERRY-001/stock", nil)
	if err := json.Unmarshal(resp.Data, &stock); err != nil {
		t.Fatalf("unmarshal stock failed: %v", err)
	}
	if stock.Quantity.String() != "380.000" {
		t.Fatalf("source stock want 380.000 got %s", stock.Quantity.String())
	}

	var child models.Batch
	resp = fx.do(t, operator, http.MethodGet, "/api/v1/batches/GREENBEAN-001", nil)
	if err := json.Unmarshal(resp.Data, &child); err != nil {
		t.Fatalf("unmarshal batch failed: %v", err)
	}
	if child.ParentCode() != "CHERRY-001" || child.ProductType != constants.ProductGreenBean {
		t.Fatalf("unexpected child batch: %+v", child)
	}

	var trace service.TraceabilityReport
	resp = fx.do(t, operator, http.MethodGet, "/api/v1/batches/GREENBEAN-001/trace", nil)
	if resp.StatusCode != 0 {
		t.Fatalf("trace failed: %d %s", resp.StatusCode, resp.Msg)
	}
	if err := json.Unmarshal(resp.Data, &trace); err != nil {
		t.Fatalf("unmarshal trace failed: %v", err)
	}
	if len(trace.Lineage) != 2 || trace.Lineage[0] != "CHERRY-001" {
		t.Fatalf("unexpected lineage: %v", trace.Lineage)
	}
}

func TestLedgerAPIScopeAndRBAC(t *testing.T) {
	fx := setupRouterFixture(t)
	operator := fx.token(t, service.Scope{Subject: "operator@dl01", Role: constants.RoleCooperativeOperator, CooperativeID: fx.coop.ID})
	resp := fx.do(t, operator, http.MethodPost, "/api/v1/batches", gin.H{
		"code":           "CHERRY-002",
		"cooperative_id": fx.coop.ID,
		"product_type":   constants.ProductCherry,
	})
	if resp.StatusCode != 0 {
		t.Fatalf("create batch failed: %d %s", resp.StatusCode, resp.Msg)
	}

	if resp := fx.do(t, "", http.MethodGet, "/api/v1/batches/CHERRY-002", nil); resp.StatusCode != 401 {
		t.Fatalf("missing token want 401 got %d", resp.StatusCode)
	}

	outsider := fx.token(t, service.Scope{Subject: "analyst@gia-lai", Role: constants.RoleProvincialAnalyst, Province: "Gia Lai"})
	if resp := fx.do(t, outsider, http.MethodGet, "/api/v1/batches/CHERRY-002", nil); resp.StatusCode != 403 {
		t.Fatalf("analyst outside province want 403 got %d", resp.StatusCode)
	}

	analyst := fx.token(t, service.Scope{Subject: "analyst@dak-lak", Role: constants.RoleProvincialAnalyst, Province: "Dak Lak"})
	if resp := fx.do(t, analyst, http.MethodGet, "/api/v1/batches/CHERRY-002", nil); resp.StatusCode != 0 {
		t.Fatalf("analyst in province should read batch, got %d %s", resp.StatusCode, resp.Msg)
	}
	resp = fx.do(t, analyst, http.MethodPost, "/api/v1/transactions/receipts", gin.H{"batch_code": "CHERRY-002", "quantity": "10"})
	if resp.StatusCode != 403 {
		t.Fatalf("analyst write should be forbidden by RBAC, got %d", resp.StatusCode)
	}
	if resp := fx.do(t, operator, http.MethodPost, "/api/v1/audits", nil); resp.StatusCode != 403 {
		t.Fatalf("operator should not run audits, got %d", resp.StatusCode)
	}

	admin := fx.token(t, service.Scope{Subject: "admin@national", Role: constants.RoleNationalAdmin})
	resp = fx.do(t, admin, http.MethodPost, "/api/v1/audits", nil)
	if resp.StatusCode != 0 {
		t.Fatalf("admin audit failed: %d %s", resp.StatusCode, resp.Msg)
	}
	var report service.AuditReport
	if err := json.Unmarshal(resp.Data, &report); err != nil {
		t.Fatalf("unmarshal audit report failed: %v", err)
	}
	if report.BatchesScanned != 1 || len(report.Issues) != 0 {
		t.Fatalf("unexpected audit report: %+v", report)
	}
}

func TestDateOnlyQueryBoundsIncludeNamedDay(t *testing.T) {
	fx := setupRouterFixture(t)
	operator := fx.token(t, service.Scope{Subject: "operator@dl01", Role: constants.RoleCooperativeOperator, CooperativeID: fx.coop.ID})
	resp := fx.do(t, operator, http.MethodPost, "/api/v1/batches", gin.H{
		"code":           "CHERRY-010",
		"cooperative_id": fx.coop.ID,
		"product_type":   constants.ProductCherry,
	})
	if resp.StatusCode != 0 {
		t.Fatalf("create batch failed: %d %s", resp.StatusCode, resp.Msg)
	}
	resp = fx.do(t, operator, http.MethodPost, "/api/v1/transactions/receipts", gin.H{
		"batch_code": "CHERRY-010",
		"quantity":   "480",
		"date":       "2026-03-01T10:00:00Z",
		"land_id":    fx.land.ID,
	})
	if resp.StatusCode != 0 {
		t.Fatalf("record receipt failed: %d %s", resp.StatusCode, resp.Msg)
	}

	var stock service.StockView
	resp = fx.do(t, operator, http.MethodGet, "/api/v1/batches/CHERRY-010/stock?as_of=2026-03-01", nil)
	if err := json.Unmarshal(resp.Data, &stock); err != nil {
		t.Fatalf("unmarshal stock failed: %v", err)
	}
	if stock.Quantity.String() != "480.000" {
		t.Fatalf("entry dated on as_of day should count, got %s", stock.Quantity.String())
	}
	resp = fx.do(t, operator, http.MethodGet, "/api/v1/batches/CHERRY-010/stock?as_of=2026-02-28", nil)
	if err := json.Unmarshal(resp.Data, &stock); err != nil {
		t.Fatalf("unmarshal stock failed: %v", err)
	}
	if !stock.Quantity.IsZero() {
		t.Fatalf("stock before the receipt day want 0 got %s", stock.Quantity.String())
	}

	var rollup service.RollupResult
	resp = fx.do(t, operator, http.MethodGet,
		"/api/v1/reports/rollup?level=cooperative&metric=harvestTotal&from=2026-03-01&to=2026-03-01", nil)
	if resp.StatusCode != 0 {
		t.Fatalf("rollup failed: %d %s", resp.StatusCode, resp.Msg)
	}
	if err := json.Unmarshal(resp.Data, &rollup); err != nil {
		t.Fatalf("unmarshal rollup failed: %v", err)
	}
	if len(rollup.Entries) != 1 || rollup.Entries[0].Value == nil || !rollup.Entries[0].Value.Equal(decimal.NewFromInt(480)) {
		t.Fatalf("rollup to a date-only day should include that day: %+v", rollup.Entries)
	}
}

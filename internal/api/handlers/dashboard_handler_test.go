package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cobrapyme/morosidad/internal/api/handlers"
	"cobrapyme/morosidad/internal/currency"
	"cobrapyme/morosidad/internal/models"
	"cobrapyme/morosidad/internal/portfolio"
	"cobrapyme/morosidad/internal/utils"
)

func setupDashboardRouter(mockDashboardSvc *MockDashboardService, mockInvoiceSvc *MockInvoiceService, mockCustomerSvc *MockCustomerService, mockReminderSvc *MockReminderService, userID utils.SixID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := handlers.NewDashboardHandler(mockDashboardSvc, mockInvoiceSvc, mockCustomerSvc, mockReminderSvc)
	r := gin.New()
	r.GET("/v1/currencies", handler.Currencies)
	authed := r.Group("/v1", asUser(userID))
	authed.GET("/dashboard", handler.Summary)
	authed.GET("/reminder-config", handler.GetReminderConfig)
	authed.PUT("/reminder-config", handler.UpdateReminderConfig)
	authed.GET("/export/xlsx", handler.ExportXLSX)
	return r
}

func TestDashboardHandler_Summary(t *testing.T) {
	mockDashboardSvc := new(MockDashboardService)
	ownerID := utils.NewSixID()
	r := setupDashboardRouter(mockDashboardSvc, new(MockInvoiceService), new(MockCustomerService), new(MockReminderService), ownerID)

	summary := &portfolio.Summary{
		TotalInvoices:    3,
		TotalOutstanding: 600000,
		Buckets: map[models.Bucket]portfolio.BucketStat{
			models.BucketOverdue: {Count: 1, Amount: 200000},
		},
	}
	mockDashboardSvc.On("Summary", mock.Anything, ownerID, mock.Anything).Return(summary, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/dashboard", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody portfolio.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Equal(t, 3, respBody.TotalInvoices)
	assert.Equal(t, 600000.0, respBody.TotalOutstanding)
	mockDashboardSvc.AssertExpectations(t)
}

func TestDashboardHandler_Currencies(t *testing.T) {
	r := setupDashboardRouter(new(MockDashboardService), new(MockInvoiceService), new(MockCustomerService), new(MockReminderService), utils.NewSixID())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/currencies", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var respBody map[string][]currency.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	codes := make([]string, 0, len(respBody["currencies"]))
	for _, info := range respBody["currencies"] {
		codes = append(codes, info.Code)
	}
	assert.Contains(t, codes, "CLP")
	assert.Contains(t, codes, "USD")
}

func TestDashboardHandler_ReminderConfig(t *testing.T) {
	mockReminderSvc := new(MockReminderService)
	ownerID := utils.NewSixID()
	r := setupDashboardRouter(new(MockDashboardService), new(MockInvoiceService), new(MockCustomerService), mockReminderSvc, ownerID)

	cfg := &models.ReminderConfig{OwnerID: ownerID, EmailEnabled: true, LeadDays: 3}
	mockReminderSvc.On("GetOrCreateConfig", mock.Anything, ownerID).Return(cfg, nil)
	mockReminderSvc.On("UpdateConfig", mock.Anything, ownerID,
		map[string]interface{}{"lead_days": float64(7)}).
		Return(&models.ReminderConfig{OwnerID: ownerID, EmailEnabled: true, LeadDays: 7}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/reminder-config", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = requestJSON(r, "PUT", "/v1/reminder-config", gin.H{"lead_days": 7})
	assert.Equal(t, http.StatusOK, w.Code)

	var respBody map[string]models.ReminderConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &respBody))
	assert.Equal(t, 7, respBody["config"].LeadDays)
	mockReminderSvc.AssertExpectations(t)
}

func TestDashboardHandler_ExportXLSX(t *testing.T) {
	mockInvoiceSvc := new(MockInvoiceService)
	mockCustomerSvc := new(MockCustomerService)
	ownerID := utils.NewSixID()
	r := setupDashboardRouter(new(MockDashboardService), mockInvoiceSvc, mockCustomerSvc, new(MockReminderService), ownerID)

	customerID := utils.NewSixID()
	invoices := []models.Invoice{{
		Base:            models.NewBase(),
		OwnerID:         ownerID,
		CustomerID:      customerID,
		Number:          "1001",
		Currency:        "CLP",
		Status:          models.InvoiceStatusPending,
		DueDate:         time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		Total:           1000000,
		AmountRemaining: 1000000,
	}}
	customers := []models.Customer{{
		Base: models.Base{ID: customerID}, OwnerID: ownerID, Name: "Comercial Andina SpA", RUT: "76.543.210-3",
	}}

	mockInvoiceSvc.On("ListInvoices", mock.Anything, ownerID, "pending", mock.Anything).Return(invoices, nil)
	mockCustomerSvc.On("ListCustomers", mock.Anything, ownerID, true).Return(customers, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/export/xlsx?filter=pending", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "cartera_")
	// XLSX files are zip archives.
	body := w.Body.Bytes()
	require.True(t, len(body) > 4)
	assert.Equal(t, []byte{'P', 'K'}, body[:2])

	mockInvoiceSvc.AssertExpectations(t)
	mockCustomerSvc.AssertExpectations(t)
}

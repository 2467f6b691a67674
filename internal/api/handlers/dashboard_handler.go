package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"cobrapyme/morosidad/internal/currency"
	"cobrapyme/morosidad/internal/models"
	"cobrapyme/morosidad/internal/report"
	"cobrapyme/morosidad/internal/services"
	"cobrapyme/morosidad/internal/utils"
)

// DashboardHandler serves the portfolio overview, reminder configuration,
// currency metadata and the XLSX export.
type DashboardHandler struct {
	dashboardService services.IDashboardService
	invoiceService   services.IInvoiceService
	customerService  services.ICustomerService
	reminderService  services.IReminderService
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(dashboardService services.IDashboardService, invoiceService services.IInvoiceService, customerService services.ICustomerService, reminderService services.IReminderService) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: dashboardService,
		invoiceService:   invoiceService,
		customerService:  customerService,
		reminderService:  reminderService,
	}
}

// Summary handles GET /v1/dashboard.
func (h *DashboardHandler) Summary(c *gin.Context) {
	ownerID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.dashboardService.Summary(c.Request.Context(), ownerID, requestToday())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build dashboard"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Currencies handles GET /v1/currencies.
func (h *DashboardHandler) Currencies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"currencies": currency.Codes()})
}

// GetReminderConfig handles GET /v1/reminder-config.
func (h *DashboardHandler) GetReminderConfig(c *gin.Context) {
	ownerID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	config, err := h.reminderService.GetOrCreateConfig(c.Request.Context(), ownerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load reminder config"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": config})
}

// UpdateReminderConfig handles PUT /v1/reminder-config.
func (h *DashboardHandler) UpdateReminderConfig(c *gin.Context) {
	ownerID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	config, err := h.reminderService.UpdateConfig(c.Request.Context(), ownerID, updates)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": config})
}

// ExportXLSX handles GET /v1/export/xlsx?filter=.
func (h *DashboardHandler) ExportXLSX(c *gin.Context) {
	ownerID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	today := requestToday()
	filter := c.DefaultQuery("filter", "all")
	invoices, err := h.invoiceService.ListInvoices(c.Request.Context(), ownerID, filter, today)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	customerList, err := h.customerService.ListCustomers(c.Request.Context(), ownerID, true)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load customers"})
		return
	}
	customers := make(map[utils.SixID]models.Customer, len(customerList))
	for _, customer := range customerList {
		customers[customer.ID] = customer
	}

	var buf bytes.Buffer
	if err := report.WritePortfolioXLSX(&buf, invoices, customers, today); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build export"})
		return
	}

	filename := fmt.Sprintf("cartera_%s.xlsx", today.Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

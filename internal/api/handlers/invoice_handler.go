package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"cobrapyme/morosidad/internal/models"
	"cobrapyme/morosidad/internal/services"
	"cobrapyme/morosidad/internal/utils"
)

// InvoiceHandler handles REST requests for invoices and per-invoice reminders.
type InvoiceHandler struct {
	invoiceService  services.IInvoiceService
	customerService services.ICustomerService
	reminderService services.IReminderService
}

// NewInvoiceHandler creates a new InvoiceHandler.
func NewInvoiceHandler(invoiceService services.IInvoiceService, customerService services.ICustomerService, reminderService services.IReminderService) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService:  invoiceService,
		customerService: customerService,
		reminderService: reminderService,
	}
}

type createInvoiceRequest struct {
	CustomerID  string  `json:"customer_id" binding:"required"`
	Number      string  `json:"number" binding:"required"`
	Currency    string  `json:"currency"`
	IssueDate   string  `json:"issue_date" binding:"required"`
	DueDate     string  `json:"due_date"`
	Net         float64 `json:"net"`
	Tax         float64 `json:"tax"`
	Exempt      float64 `json:"exempt"`
	Total       float64 `json:"total" binding:"required"`
	Description string  `json:"description"`
	DTEType     int     `json:"dte_type"`
}

// Create handles POST /v1/invoices.
func (h *InvoiceHandler) Create(c *gin.Context) {
	ownerID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	customerID, err := utils.ParseSixID(req.CustomerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer ID"})
		return
	}
	if _, err := h.customerService.FindCustomerByID(c.Request.Context(), customerID, ownerID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "customer not found"})
		return
	}

	issueDate, err := time.Parse("2006-01-02", req.IssueDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid issue_date, expected YYYY-MM-DD"})
		return
	}
	var dueDate time.Time
	if req.DueDate != "" {
		dueDate, err = time.Parse("2006-01-02", req.DueDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid due_date, expected YYYY-MM-DD"})
			return
		}
	}

	invoice, err := h.invoiceService.CreateInvoice(c.Request.Context(), ownerID, services.InvoiceInput{
		CustomerID:  customerID,
		Number:      req.Number,
		Currency:    req.Currency,
		IssueDate:   issueDate,
		DueDate:     dueDate,
		Net:         req.Net,
		Tax:         req.Tax,
		Exempt:      req.Exempt,
		Total:       req.Total,
		Description: req.Description,
		DTEType:     req.DTEType,
	}, requestToday())
	if err != nil {
		if errors.Is(err, services.ErrDuplicateNumber) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"invoice": invoice})
}

// List handles GET /v1/invoices?filter=.
func (h *InvoiceHandler) List(c *gin.Context) {
	ownerID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	filter := c.DefaultQuery("filter", "all")
	invoices, err := h.invoiceService.ListInvoices(c.Request.Context(), ownerID, filter, requestToday())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

// Get handles GET /v1/invoices/:id.
func (h *InvoiceHandler) Get(c *gin.Context) {
	ownerID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	invoiceID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice ID"})
		return
	}

	invoice, err := h.invoiceService.FindInvoiceByID(c.Request.Context(), invoiceID, ownerID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "invoice not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load invoice"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoice": invoice})
}

// MarkPaid handles POST /v1/invoices/:id/pay.
func (h *InvoiceHandler) MarkPaid(c *gin.Context) {
	ownerID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	invoiceID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice ID"})
		return
	}

	invoice, err := h.invoiceService.MarkPaid(c.Request.Context(), invoiceID, ownerID, requestToday())
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "pending invoice not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark invoice paid"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoice": invoice})
}

// Void handles POST /v1/invoices/:id/void.
func (h *InvoiceHandler) Void(c *gin.Context) {
	ownerID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	invoiceID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice ID"})
		return
	}

	if err := h.invoiceService.VoidInvoice(c.Request.Context(), invoiceID, ownerID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "invoice not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to void invoice"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "void"})
}

type sendReminderRequest struct {
	Channel string `json:"channel"`
}

// SendReminder handles POST /v1/invoices/:id/reminder.
func (h *InvoiceHandler) SendReminder(c *gin.Context) {
	ownerID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	invoiceID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice ID"})
		return
	}

	var req sendReminderRequest
	// Body is optional: no channel means every enabled channel.
	_ = c.ShouldBindJSON(&req)

	invoice, err := h.invoiceService.FindInvoiceByID(c.Request.Context(), invoiceID, ownerID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "invoice not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load invoice"})
		return
	}

	customer, err := h.customerService.FindCustomerByID(c.Request.Context(), invoice.CustomerID, ownerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load customer"})
		return
	}

	logs, err := h.reminderService.SendReminder(c.Request.Context(), invoice, customer,
		models.ReminderChannel(req.Channel), requestToday())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reminders": logs})
}

// ReminderHistory handles GET /v1/invoices/:id/reminders.
func (h *InvoiceHandler) ReminderHistory(c *gin.Context) {
	ownerID, err := currentUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	invoiceID, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice ID"})
		return
	}

	// Confirm ownership before exposing the history.
	if _, err := h.invoiceService.FindInvoiceByID(c.Request.Context(), invoiceID, ownerID); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "invoice not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load invoice"})
		return
	}

	logs, err := h.reminderService.ListHistory(c.Request.Context(), invoiceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load reminder history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reminders": logs})
}

package handlers_test

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"

	"cobrapyme/morosidad/internal/api/middleware"
	"cobrapyme/morosidad/internal/importer"
	"cobrapyme/morosidad/internal/models"
	"cobrapyme/morosidad/internal/portfolio"
	"cobrapyme/morosidad/internal/services"
	"cobrapyme/morosidad/internal/utils"
)

// --- Mocks ---

// MockUserService
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Register(ctx context.Context, email, password, name string) (*models.User, error) {
	args := m.Called(ctx, email, password, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *MockUserService) Authenticate(ctx context.Context, email, password string) (string, *models.User, error) {
	args := m.Called(ctx, email, password)
	var user *models.User
	if args.Get(1) != nil {
		user = args.Get(1).(*models.User)
	}
	return args.String(0), user, args.Error(2)
}
func (m *MockUserService) FindUserByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

// MockCustomerService
type MockCustomerService struct {
	mock.Mock
}

func (m *MockCustomerService) CreateCustomer(ctx context.Context, ownerID utils.SixID, name, rawRUT, email, phone, notes string) (*models.Customer, error) {
	args := m.Called(ctx, ownerID, name, rawRUT, email, phone, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Customer), args.Error(1)
}
func (m *MockCustomerService) UpdateCustomer(ctx context.Context, customerID, ownerID utils.SixID, updates map[string]interface{}) (*models.Customer, error) {
	args := m.Called(ctx, customerID, ownerID, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Customer), args.Error(1)
}
func (m *MockCustomerService) FindCustomerByID(ctx context.Context, customerID, ownerID utils.SixID) (*models.Customer, error) {
	args := m.Called(ctx, customerID, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Customer), args.Error(1)
}
func (m *MockCustomerService) ListCustomers(ctx context.Context, ownerID utils.SixID, includeInactive bool) ([]models.Customer, error) {
	args := m.Called(ctx, ownerID, includeInactive)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Customer), args.Error(1)
}
func (m *MockCustomerService) DeactivateCustomer(ctx context.Context, customerID, ownerID utils.SixID) error {
	args := m.Called(ctx, customerID, ownerID)
	return args.Error(0)
}
func (m *MockCustomerService) FindOrCreateByRUT(ctx context.Context, ownerID utils.SixID, canonicalRUT, name string) (*models.Customer, error) {
	args := m.Called(ctx, ownerID, canonicalRUT, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Customer), args.Error(1)
}

// MockInvoiceService
type MockInvoiceService struct {
	mock.Mock
}

func (m *MockInvoiceService) CreateInvoice(ctx context.Context, ownerID utils.SixID, input services.InvoiceInput, today time.Time) (*models.Invoice, error) {
	args := m.Called(ctx, ownerID, input, today)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}
func (m *MockInvoiceService) FindInvoiceByID(ctx context.Context, invoiceID, ownerID utils.SixID) (*models.Invoice, error) {
	args := m.Called(ctx, invoiceID, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}
func (m *MockInvoiceService) ListInvoices(ctx context.Context, ownerID utils.SixID, filter string, today time.Time) ([]models.Invoice, error) {
	args := m.Called(ctx, ownerID, filter, today)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Invoice), args.Error(1)
}
func (m *MockInvoiceService) MarkPaid(ctx context.Context, invoiceID, ownerID utils.SixID, today time.Time) (*models.Invoice, error) {
	args := m.Called(ctx, invoiceID, ownerID, today)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}
func (m *MockInvoiceService) VoidInvoice(ctx context.Context, invoiceID, ownerID utils.SixID) error {
	args := m.Called(ctx, invoiceID, ownerID)
	return args.Error(0)
}
func (m *MockInvoiceService) CreateOrUpdateByNumber(ctx context.Context, ownerID utils.SixID, invoice *models.Invoice, today time.Time) (bool, error) {
	args := m.Called(ctx, ownerID, invoice, today)
	return args.Bool(0), args.Error(1)
}
func (m *MockInvoiceService) SweepBuckets(ctx context.Context, ownerID utils.SixID, today time.Time) (int, error) {
	args := m.Called(ctx, ownerID, today)
	return args.Int(0), args.Error(1)
}
func (m *MockInvoiceService) FindPendingByOwner(ctx context.Context, ownerID utils.SixID) ([]models.Invoice, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Invoice), args.Error(1)
}
func (m *MockInvoiceService) FindDueWithin(ctx context.Context, today time.Time, leadDays int) ([]models.Invoice, error) {
	args := m.Called(ctx, today, leadDays)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Invoice), args.Error(1)
}
func (m *MockInvoiceService) ExistingNumbers(ctx context.Context, ownerID utils.SixID, numbers []string) (map[string]bool, error) {
	args := m.Called(ctx, ownerID, numbers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]bool), args.Error(1)
}

// MockReminderService
type MockReminderService struct {
	mock.Mock
}

func (m *MockReminderService) GetOrCreateConfig(ctx context.Context, ownerID utils.SixID) (*models.ReminderConfig, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReminderConfig), args.Error(1)
}
func (m *MockReminderService) UpdateConfig(ctx context.Context, ownerID utils.SixID, updates map[string]interface{}) (*models.ReminderConfig, error) {
	args := m.Called(ctx, ownerID, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ReminderConfig), args.Error(1)
}
func (m *MockReminderService) SendReminder(ctx context.Context, invoice *models.Invoice, customer *models.Customer, channel models.ReminderChannel, today time.Time) ([]models.ReminderLog, error) {
	args := m.Called(ctx, invoice, customer, channel, today)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ReminderLog), args.Error(1)
}
func (m *MockReminderService) ListHistory(ctx context.Context, invoiceID utils.SixID) ([]models.ReminderLog, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ReminderLog), args.Error(1)
}
func (m *MockReminderService) RemindedToday(ctx context.Context, invoiceID utils.SixID, today time.Time) (bool, error) {
	args := m.Called(ctx, invoiceID, today)
	return args.Bool(0), args.Error(1)
}

// MockImportService
type MockImportService struct {
	mock.Mock
}

func (m *MockImportService) Preview(ctx context.Context, ownerID utils.SixID, filename string, data []byte) (*services.ImportPreview, error) {
	args := m.Called(ctx, ownerID, filename, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ImportPreview), args.Error(1)
}
func (m *MockImportService) Commit(ctx context.Context, ownerID utils.SixID, previewID string, today time.Time) (*services.CommitSummary, error) {
	args := m.Called(ctx, ownerID, previewID, today)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.CommitSummary), args.Error(1)
}
func (m *MockImportService) CommitRows(ctx context.Context, ownerID utils.SixID, rows []importer.Row, today time.Time) (*services.CommitSummary, error) {
	args := m.Called(ctx, ownerID, rows, today)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.CommitSummary), args.Error(1)
}

// MockDashboardService
type MockDashboardService struct {
	mock.Mock
}

func (m *MockDashboardService) Summary(ctx context.Context, ownerID utils.SixID, today time.Time) (*portfolio.Summary, error) {
	args := m.Called(ctx, ownerID, today)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*portfolio.Summary), args.Error(1)
}

// --- Helpers ---

// asUser fakes the auth middleware: it injects the user ID the way
// AuthMiddleware does after validating a token.
func asUser(userID utils.SixID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, userID.String())
		c.Next()
	}
}

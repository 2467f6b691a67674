package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cobrapyme/morosidad/internal/config"
	"cobrapyme/morosidad/internal/models"
	"cobrapyme/morosidad/internal/utils"
)

type capturedEmail struct {
	To      []string
	Subject string
	Message []byte
}

// recordingSender captures outgoing emails instead of sending them.
type recordingSender struct {
	sent    []capturedEmail
	failErr error
}

func (r *recordingSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if r.failErr != nil {
		return r.failErr
	}
	r.sent = append(r.sent, capturedEmail{To: to, Subject: subject, Message: rawMessage})
	return nil
}

func setupReminderServiceTest(t *testing.T, cfg *config.Config, sender *recordingSender) (IReminderService, func()) {
	dbName := fmt.Sprintf("testdb_reminder_service_%d", time.Now().UnixNano())
	database, cleanup := setupTestDB(t, dbName)
	return NewReminderService(database, cfg, sender), cleanup
}

func reminderTestInvoice(ownerID utils.SixID) *models.Invoice {
	return &models.Invoice{
		Base:            models.NewBase(),
		OwnerID:         ownerID,
		CustomerID:      utils.NewSixID(),
		Number:          "1234",
		Currency:        "CLP",
		DueDate:         time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC),
		Status:          models.InvoiceStatusPending,
		Total:           1500000,
		AmountRemaining: 1500000,
	}
}

func reminderTestCustomer() *models.Customer {
	return &models.Customer{
		Base:  models.NewBase(),
		Name:  "Comercial Andina SpA",
		Email: "pagos@andina.cl",
		Phone: "+56912345678",
	}
}

func TestRenderReminder(t *testing.T) {
	invoice := reminderTestInvoice(utils.NewSixID())
	customer := reminderTestCustomer()

	text := RenderReminder("Hola {cliente}, la factura {numero} por {monto} vence el {fecha}.", invoice, customer)
	assert.Equal(t, "Hola Comercial Andina SpA, la factura 1234 por $1.500.000 vence el 10-06-2026.", text)
}

func TestReminderService_GetOrCreateConfig(t *testing.T) {
	svc, cleanup := setupReminderServiceTest(t, testConfig(), &recordingSender{})
	defer cleanup()
	ownerID := utils.NewSixID()

	cfg, err := svc.GetOrCreateConfig(context.Background(), ownerID)
	require.NoError(t, err)
	assert.True(t, cfg.EmailEnabled)
	assert.False(t, cfg.WhatsAppEnabled)
	assert.Equal(t, 3, cfg.LeadDays)
	assert.Equal(t, models.DefaultEmailTemplate, cfg.EmailTemplate)
	assert.Equal(t, models.DefaultWhatsAppTemplate, cfg.WhatsAppTemplate)

	// Idempotent: the same document comes back on the next call.
	again, err := svc.GetOrCreateConfig(context.Background(), ownerID)
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, again.ID)
}

func TestReminderService_UpdateConfig(t *testing.T) {
	svc, cleanup := setupReminderServiceTest(t, testConfig(), &recordingSender{})
	defer cleanup()
	ownerID := utils.NewSixID()

	updated, err := svc.UpdateConfig(context.Background(), ownerID, map[string]interface{}{
		"whatsapp_enabled": true,
		"lead_days":        float64(7), // JSON numbers decode as float64
		"email_template":   "Plantilla nueva {numero}",
	})
	require.NoError(t, err)
	assert.True(t, updated.WhatsAppEnabled)
	assert.Equal(t, 7, updated.LeadDays)
	assert.Equal(t, "Plantilla nueva {numero}", updated.EmailTemplate)

	_, err = svc.UpdateConfig(context.Background(), ownerID, map[string]interface{}{"lead_days": 99})
	assert.Error(t, err)

	_, err = svc.UpdateConfig(context.Background(), ownerID, map[string]interface{}{"owner_id": "x"})
	assert.Error(t, err)

	_, err = svc.UpdateConfig(context.Background(), ownerID, map[string]interface{}{})
	assert.Error(t, err)
}

func TestReminderService_SendReminderEmail(t *testing.T) {
	sender := &recordingSender{}
	svc, cleanup := setupReminderServiceTest(t, testConfig(), sender)
	defer cleanup()
	ownerID := utils.NewSixID()
	invoice := reminderTestInvoice(ownerID)
	customer := reminderTestCustomer()
	today := time.Date(2026, 6, 8, 15, 0, 0, 0, time.UTC)

	logs, err := svc.SendReminder(context.Background(), invoice, customer, "", today)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ReminderChannelEmail, logs[0].Channel)
	assert.True(t, logs[0].Success)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"pagos@andina.cl"}, sender.sent[0].To)
	assert.Contains(t, sender.sent[0].Subject, "1234")
	assert.Contains(t, string(sender.sent[0].Message), "Comercial Andina SpA")

	history, err := svc.ListHistory(context.Background(), invoice.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Success)

	reminded, err := svc.RemindedToday(context.Background(), invoice.ID, today)
	require.NoError(t, err)
	assert.True(t, reminded)

	reminded, err = svc.RemindedToday(context.Background(), invoice.ID, today.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.False(t, reminded)
}

func TestReminderService_SendReminderFailureIsLogged(t *testing.T) {
	sender := &recordingSender{failErr: fmt.Errorf("smtp down")}
	svc, cleanup := setupReminderServiceTest(t, testConfig(), sender)
	defer cleanup()
	ownerID := utils.NewSixID()
	invoice := reminderTestInvoice(ownerID)
	today := time.Now().UTC()

	logs, err := svc.SendReminder(context.Background(), invoice, reminderTestCustomer(), models.ReminderChannelEmail, today)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
	assert.Contains(t, logs[0].ErrorText, "smtp down")

	// Failed attempts never count as reminded.
	reminded, err := svc.RemindedToday(context.Background(), invoice.ID, today)
	require.NoError(t, err)
	assert.False(t, reminded)
}

func TestReminderService_SendReminderMissingEmail(t *testing.T) {
	svc, cleanup := setupReminderServiceTest(t, testConfig(), &recordingSender{})
	defer cleanup()
	invoice := reminderTestInvoice(utils.NewSixID())
	customer := reminderTestCustomer()
	customer.Email = ""

	logs, err := svc.SendReminder(context.Background(), invoice, customer, models.ReminderChannelEmail, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
	assert.Contains(t, logs[0].ErrorText, "no email")
}

func TestReminderService_SendReminderNotPending(t *testing.T) {
	svc, cleanup := setupReminderServiceTest(t, testConfig(), &recordingSender{})
	defer cleanup()
	invoice := reminderTestInvoice(utils.NewSixID())
	invoice.Status = models.InvoiceStatusPaid

	_, err := svc.SendReminder(context.Background(), invoice, reminderTestCustomer(), "", time.Now().UTC())
	assert.Error(t, err)
}

func TestReminderService_SendReminderUnknownChannel(t *testing.T) {
	svc, cleanup := setupReminderServiceTest(t, testConfig(), &recordingSender{})
	defer cleanup()
	invoice := reminderTestInvoice(utils.NewSixID())

	_, err := svc.SendReminder(context.Background(), invoice, reminderTestCustomer(), "paloma", time.Now().UTC())
	assert.Error(t, err)
}

func TestReminderService_SendReminderWhatsAppWebhook(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.WhatsAppWebhookURL = server.URL
	svc, cleanup := setupReminderServiceTest(t, cfg, &recordingSender{})
	defer cleanup()
	invoice := reminderTestInvoice(utils.NewSixID())

	logs, err := svc.SendReminder(context.Background(), invoice, reminderTestCustomer(), models.ReminderChannelWhatsApp, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)

	require.NotNil(t, received)
	assert.Equal(t, "+56912345678", received["phone"])
	assert.Contains(t, received["message"], "1234")
}

func TestReminderService_HistoryNewestFirst(t *testing.T) {
	svc, cleanup := setupReminderServiceTest(t, testConfig(), &recordingSender{})
	defer cleanup()
	invoice := reminderTestInvoice(utils.NewSixID())
	customer := reminderTestCustomer()

	_, err := svc.SendReminder(context.Background(), invoice, customer, models.ReminderChannelEmail, time.Now().UTC())
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = svc.SendReminder(context.Background(), invoice, customer, models.ReminderChannelEmail, time.Now().UTC())
	require.NoError(t, err)

	history, err := svc.ListHistory(context.Background(), invoice.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, !history[0].SentAt.Before(history[1].SentAt))
}

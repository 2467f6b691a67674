package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cobrapyme/morosidad/internal/config"
	"cobrapyme/morosidad/internal/currency"
	"cobrapyme/morosidad/internal/db"
	"cobrapyme/morosidad/internal/email"
	"cobrapyme/morosidad/internal/models"
	"cobrapyme/morosidad/internal/utils"
)

// IReminderService owns reminder preferences, message rendering and the
// outbound send paths. Every send attempt, successful or not, lands in the
// reminder log.
type IReminderService interface {
	GetOrCreateConfig(ctx context.Context, ownerID utils.SixID) (*models.ReminderConfig, error)
	UpdateConfig(ctx context.Context, ownerID utils.SixID, updates map[string]interface{}) (*models.ReminderConfig, error)
	// SendReminder renders and sends over every enabled channel (or just the
	// requested one) and returns the resulting log entries.
	SendReminder(ctx context.Context, invoice *models.Invoice, customer *models.Customer, channel models.ReminderChannel, today time.Time) ([]models.ReminderLog, error)
	ListHistory(ctx context.Context, invoiceID utils.SixID) ([]models.ReminderLog, error)
	// RemindedToday reports whether the invoice already got a reminder today,
	// so the daily dispatcher never double-sends.
	RemindedToday(ctx context.Context, invoiceID utils.SixID, today time.Time) (bool, error)
}

const (
	reminderConfigsCollection = "reminder_configs"
	reminderLogsCollection    = "reminder_logs"
)

type reminderService struct {
	db         *mongo.Database
	cfg        *config.Config
	sender     email.Sender
	httpClient *http.Client
}

// NewReminderService creates a new ReminderService.
func NewReminderService(database *mongo.Database, cfg *config.Config, sender email.Sender) IReminderService {
	return &reminderService{
		db:         database,
		cfg:        cfg,
		sender:     sender,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *reminderService) GetOrCreateConfig(ctx context.Context, ownerID utils.SixID) (*models.ReminderConfig, error) {
	collection := s.db.Collection(reminderConfigsCollection)
	var config models.ReminderConfig

	operation := func() error {
		return collection.FindOneAndUpdate(ctx,
			bson.M{"owner_id": ownerID},
			bson.M{"$setOnInsert": bson.M{
				"_id":               utils.NewSixID(),
				"owner_id":          ownerID,
				"email_enabled":     true,
				"whatsapp_enabled":  false,
				"lead_days":         s.cfg.ReminderLeadDays,
				"email_template":    models.DefaultEmailTemplate,
				"whatsapp_template": models.DefaultWhatsAppTemplate,
			}},
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		).Decode(&config)
	}

	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to load reminder config for owner %s: %w", ownerID.String(), err)
	}
	return &config, nil
}

func (s *reminderService) UpdateConfig(ctx context.Context, ownerID utils.SixID, updates map[string]interface{}) (*models.ReminderConfig, error) {
	// Config must exist before an update so defaults never get lost.
	if _, err := s.GetOrCreateConfig(ctx, ownerID); err != nil {
		return nil, err
	}

	allowed := map[string]bool{
		"email_enabled": true, "whatsapp_enabled": true, "lead_days": true,
		"email_template": true, "whatsapp_template": true,
	}
	set := bson.M{}
	for key, value := range updates {
		if !allowed[key] {
			return nil, fmt.Errorf("field %q cannot be updated", key)
		}
		if key == "lead_days" {
			days := 0
			switch v := value.(type) {
			case int:
				days = v
			case float64:
				days = int(v)
			default:
				return nil, fmt.Errorf("lead_days must be a number")
			}
			if days < 0 || days > 60 {
				return nil, fmt.Errorf("lead_days must be between 0 and 60")
			}
			set[key] = days
			continue
		}
		set[key] = value
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no updatable fields provided")
	}

	var updated models.ReminderConfig
	err := s.db.Collection(reminderConfigsCollection).FindOneAndUpdate(ctx,
		bson.M{"owner_id": ownerID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		return nil, fmt.Errorf("failed to update reminder config for owner %s: %w", ownerID.String(), err)
	}
	return &updated, nil
}

// RenderReminder fills the template placeholders from the invoice and
// customer. Exposed so the config UI can preview a template.
func RenderReminder(template string, invoice *models.Invoice, customer *models.Customer) string {
	replacer := strings.NewReplacer(
		"{cliente}", customer.Name,
		"{numero}", invoice.Number,
		"{monto}", currency.Format(invoice.Outstanding(), invoice.Currency, false),
		"{fecha}", invoice.DueDate.Format("02-01-2006"),
	)
	return replacer.Replace(template)
}

func (s *reminderService) SendReminder(ctx context.Context, invoice *models.Invoice, customer *models.Customer, channel models.ReminderChannel, today time.Time) ([]models.ReminderLog, error) {
	if invoice.Status != models.InvoiceStatusPending {
		return nil, fmt.Errorf("invoice %s is not pending, nothing to remind", invoice.Number)
	}

	config, err := s.GetOrCreateConfig(ctx, invoice.OwnerID)
	if err != nil {
		return nil, err
	}

	var channels []models.ReminderChannel
	switch channel {
	case models.ReminderChannelEmail, models.ReminderChannelWhatsApp:
		channels = []models.ReminderChannel{channel}
	case "":
		if config.EmailEnabled {
			channels = append(channels, models.ReminderChannelEmail)
		}
		if config.WhatsAppEnabled {
			channels = append(channels, models.ReminderChannelWhatsApp)
		}
	default:
		return nil, fmt.Errorf("unknown reminder channel %q", channel)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("no reminder channels enabled for owner %s", invoice.OwnerID.String())
	}

	logs := make([]models.ReminderLog, 0, len(channels))
	for _, ch := range channels {
		entry := models.ReminderLog{
			Base:      models.NewBase(),
			InvoiceID: invoice.ID,
			Channel:   ch,
			SentAt:    time.Now().UTC(),
			Success:   true,
		}

		var sendErr error
		switch ch {
		case models.ReminderChannelEmail:
			sendErr = s.sendEmail(ctx, config, invoice, customer)
		case models.ReminderChannelWhatsApp:
			sendErr = s.sendWhatsApp(ctx, config, invoice, customer)
		}
		if sendErr != nil {
			entry.Success = false
			entry.ErrorText = sendErr.Error()
			log.Printf("Reminder for invoice %s over %s failed: %v", invoice.Number, ch, sendErr)
		}

		if _, err := s.db.Collection(reminderLogsCollection).InsertOne(ctx, entry); err != nil {
			return logs, fmt.Errorf("failed to record reminder log for invoice %s: %w", invoice.ID.String(), err)
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

func (s *reminderService) sendEmail(ctx context.Context, config *models.ReminderConfig, invoice *models.Invoice, customer *models.Customer) error {
	if customer.Email == "" {
		return errors.New("customer has no email address")
	}
	body := RenderReminder(config.EmailTemplate, invoice, customer)
	subject := fmt.Sprintf("Recordatorio de pago: factura %s", invoice.Number)
	msg := email.BuildReminderMessage(s.cfg.SmtpFromAddress, []string{customer.Email}, subject, body)
	return s.sender.Send(ctx, []string{customer.Email}, subject, msg)
}

func (s *reminderService) sendWhatsApp(ctx context.Context, config *models.ReminderConfig, invoice *models.Invoice, customer *models.Customer) error {
	if customer.Phone == "" {
		return errors.New("customer has no phone number")
	}
	text := RenderReminder(config.WhatsAppTemplate, invoice, customer)
	if s.cfg.WhatsAppWebhookURL == "" {
		// No gateway configured: log the message so development still shows it.
		log.Printf("--- WhatsApp Reminder (Logged) ---\nTo: %s\n%s\n--- End ---", customer.Phone, text)
		return nil
	}

	payload, err := json.Marshal(map[string]string{"phone": customer.Phone, "message": text})
	if err != nil {
		return fmt.Errorf("failed to encode whatsapp payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WhatsAppWebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp webhook error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *reminderService) ListHistory(ctx context.Context, invoiceID utils.SixID) ([]models.ReminderLog, error) {
	cursor, err := s.db.Collection(reminderLogsCollection).Find(ctx,
		bson.M{"invoice_id": invoiceID},
		options.Find().SetSort(bson.D{{Key: "sent_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("error listing reminder history for invoice %s: %w", invoiceID.String(), err)
	}
	defer cursor.Close(ctx)

	logs := []models.ReminderLog{}
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("error decoding reminder logs: %w", err)
	}
	return logs, nil
}

func (s *reminderService) RemindedToday(ctx context.Context, invoiceID utils.SixID, today time.Time) (bool, error) {
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	count, err := s.db.Collection(reminderLogsCollection).CountDocuments(ctx, bson.M{
		"invoice_id": invoiceID,
		"sent_at":    bson.M{"$gte": start, "$lt": start.AddDate(0, 0, 1)},
		"success":    true,
	})
	if err != nil {
		return false, fmt.Errorf("error checking reminder history for invoice %s: %w", invoiceID.String(), err)
	}
	return count > 0, nil
}

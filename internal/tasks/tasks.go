package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"cobrapyme/morosidad/internal/config"
	"cobrapyme/morosidad/internal/email"
	"cobrapyme/morosidad/internal/models"
	"cobrapyme/morosidad/internal/services"
	"cobrapyme/morosidad/internal/utils"
)

// Task types handled by the background worker.
const (
	TypeAgingSweep      = "aging:sweep"
	TypeReminderDueSoon = "reminder:due_soon"
	TypeEmailDelivery   = "email:deliver"
)

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}
	return asynq.NewClient(clientOpt)
}

// --- Task Server (Processing tasks) ---

// TaskProcessor holds the dependencies task handlers need.
type TaskProcessor struct {
	cfg             *config.Config
	emailSender     email.Sender
	invoiceService  services.IInvoiceService
	customerService services.ICustomerService
	reminderService services.IReminderService
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	invoiceService services.IInvoiceService,
	customerService services.ICustomerService,
	reminderService services.IReminderService,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:             cfg,
		emailSender:     emailSender,
		invoiceService:  invoiceService,
		customerService: customerService,
		reminderService: reminderService,
	}
}

// SetupServer configures and runs an Asynq server instance. Blocks until the
// server stops.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) *asynq.Server {
	serverOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeAgingSweep, processor.HandleAgingSweepTask)
	mux.HandleFunc(TypeReminderDueSoon, processor.HandleReminderDueSoonTask)
	mux.HandleFunc(TypeEmailDelivery, processor.HandleEmailDeliveryTask)
	log.Println("Registered background task handlers.")

	if err := srv.Run(mux); err != nil {
		log.Fatalf("Could not run Asynq server: %v", err)
	}
	return srv
}

// NewScheduler wires the periodic jobs: the hourly aging sweep and the daily
// reminder dispatch, with intervals taken from the config.
func NewScheduler(rdb *redis.Client, cfg *config.Config) (*asynq.Scheduler, error) {
	schedulerOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}
	scheduler := asynq.NewScheduler(schedulerOpt, &asynq.SchedulerOpts{})

	if _, err := scheduler.Register(
		fmt.Sprintf("@every %s", cfg.AgingSweepInterval),
		asynq.NewTask(TypeAgingSweep, nil),
	); err != nil {
		return nil, fmt.Errorf("failed to register aging sweep schedule: %w", err)
	}
	if _, err := scheduler.Register(
		fmt.Sprintf("@every %s", cfg.ReminderRunInterval),
		asynq.NewTask(TypeReminderDueSoon, nil),
	); err != nil {
		return nil, fmt.Errorf("failed to register reminder schedule: %w", err)
	}
	return scheduler, nil
}

// --- Task Handlers ---

// HandleAgingSweepTask reclassifies every pending invoice across all owners.
func (p *TaskProcessor) HandleAgingSweepTask(ctx context.Context, t *asynq.Task) error {
	today := time.Now().UTC()
	changed, err := p.invoiceService.SweepBuckets(ctx, utils.SixID{}, today)
	if err != nil {
		log.Printf("Aging sweep failed: %v", err)
		return err
	}
	log.Printf("Aging sweep finished. Reclassified %d invoices.", changed)
	return nil
}

// HandleReminderDueSoonTask sends reminders for invoices approaching their
// due date, honoring each owner's lead-day setting and skipping invoices
// already reminded today.
func (p *TaskProcessor) HandleReminderDueSoonTask(ctx context.Context, t *asynq.Task) error {
	today := time.Now().UTC()

	// Over-fetch with the widest allowed lead, then narrow per owner.
	const maxLeadDays = 60
	due, err := p.invoiceService.FindDueWithin(ctx, today, maxLeadDays)
	if err != nil {
		log.Printf("Reminder dispatch: failed to load due invoices: %v", err)
		return err
	}

	sent := 0
	for i := range due {
		invoice := &due[i]

		config, err := p.reminderService.GetOrCreateConfig(ctx, invoice.OwnerID)
		if err != nil {
			log.Printf("Reminder dispatch: config load failed for owner %s: %v", invoice.OwnerID.String(), err)
			continue
		}
		daysToDue := models.DaysBetween(today, invoice.DueDate)
		if daysToDue > config.LeadDays {
			continue
		}

		already, err := p.reminderService.RemindedToday(ctx, invoice.ID, today)
		if err != nil {
			log.Printf("Reminder dispatch: history check failed for invoice %s: %v", invoice.ID.String(), err)
			continue
		}
		if already {
			continue
		}

		customer, err := p.customerService.FindCustomerByID(ctx, invoice.CustomerID, invoice.OwnerID)
		if err != nil {
			log.Printf("Reminder dispatch: customer %s not found for invoice %s: %v",
				invoice.CustomerID.String(), invoice.Number, err)
			continue
		}

		if _, err := p.reminderService.SendReminder(ctx, invoice, customer, "", today); err != nil {
			log.Printf("Reminder dispatch: send failed for invoice %s: %v", invoice.Number, err)
			continue
		}
		sent++
	}

	log.Printf("Reminder dispatch finished. Sent reminders for %d invoices.", sent)
	return nil
}

// EmailTaskPayload carries one fully rendered email through the queue.
type EmailTaskPayload struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// HandleEmailDeliveryTask delivers a rendered email enqueued by the API.
func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}
	if len(payload.To) == 0 {
		return fmt.Errorf("email task has no recipients: %w", asynq.SkipRetry)
	}

	// Body holds the complete message, headers included, as the enqueuer
	// built it.
	if err := p.emailSender.Send(ctx, payload.To, payload.Subject, []byte(payload.Body)); err != nil {
		log.Printf("Email delivery task failed for %v: %v", payload.To, err)
		return err
	}
	return nil
}

// AsynqEmailSender implements email.Sender by enqueuing delivery tasks, so
// API-mode processes never block a request on SMTP.
type AsynqEmailSender struct {
	client *asynq.Client
}

func NewAsynqEmailSender(client *asynq.Client) email.Sender {
	return &AsynqEmailSender{client: client}
}

func (s *AsynqEmailSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	payload, err := json.Marshal(EmailTaskPayload{To: to, Subject: subject, Body: string(rawMessage)})
	if err != nil {
		return fmt.Errorf("failed to encode email task: %w", err)
	}
	_, err = s.client.EnqueueContext(ctx, asynq.NewTask(TypeEmailDelivery, payload), asynq.Queue("default"))
	if err != nil {
		return fmt.Errorf("failed to enqueue email delivery: %w", err)
	}
	return nil
}

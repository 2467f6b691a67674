package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"cobrapyme/morosidad/internal/aging"
	"cobrapyme/morosidad/internal/config"
	"cobrapyme/morosidad/internal/db"
	"cobrapyme/morosidad/internal/models"
	"cobrapyme/morosidad/internal/utils"
)

// IInvoiceService defines the interface for invoice operations. Methods that
// depend on the calendar take today explicitly so the aging math is
// deterministic under test.
type IInvoiceService interface {
	CreateInvoice(ctx context.Context, ownerID utils.SixID, input InvoiceInput, today time.Time) (*models.Invoice, error)
	FindInvoiceByID(ctx context.Context, invoiceID, ownerID utils.SixID) (*models.Invoice, error)
	ListInvoices(ctx context.Context, ownerID utils.SixID, filter string, today time.Time) ([]models.Invoice, error)
	MarkPaid(ctx context.Context, invoiceID, ownerID utils.SixID, today time.Time) (*models.Invoice, error)
	VoidInvoice(ctx context.Context, invoiceID, ownerID utils.SixID) error
	// CreateOrUpdateByNumber upserts on the (number, owner) natural key.
	// Returns whether a new document was created.
	CreateOrUpdateByNumber(ctx context.Context, ownerID utils.SixID, invoice *models.Invoice, today time.Time) (bool, error)
	// SweepBuckets reclassifies every pending invoice of the owner (or of all
	// owners when ownerID is zero) and persists changed buckets.
	SweepBuckets(ctx context.Context, ownerID utils.SixID, today time.Time) (int, error)
	FindPendingByOwner(ctx context.Context, ownerID utils.SixID) ([]models.Invoice, error)
	// FindDueWithin returns pending invoices due within leadDays of today,
	// across all owners, for the reminder dispatcher.
	FindDueWithin(ctx context.Context, today time.Time, leadDays int) ([]models.Invoice, error)
	// ExistingNumbers reports which of the given invoice numbers the owner
	// already has, for duplicate flagging in import previews.
	ExistingNumbers(ctx context.Context, ownerID utils.SixID, numbers []string) (map[string]bool, error)
}

// InvoiceInput carries the caller-authored fields of a new invoice.
type InvoiceInput struct {
	CustomerID  utils.SixID
	Number      string
	Currency    string
	IssueDate   time.Time
	DueDate     time.Time
	Net         float64
	Tax         float64
	Exempt      float64
	Total       float64
	Description string
	DTEType     int
}

const invoicesCollection = "invoices"

var ErrDuplicateNumber = errors.New("an invoice with this number already exists")

type invoiceService struct {
	db  *mongo.Database
	cfg *config.Config
}

// NewInvoiceService creates a new InvoiceService.
func NewInvoiceService(db *mongo.Database, cfg *config.Config) IInvoiceService {
	return &invoiceService{db: db, cfg: cfg}
}

func (s *invoiceService) CreateInvoice(ctx context.Context, ownerID utils.SixID, input InvoiceInput, today time.Time) (*models.Invoice, error) {
	number := strings.TrimSpace(input.Number)
	if number == "" {
		return nil, fmt.Errorf("invoice number is required")
	}
	if input.Total <= 0 {
		return nil, fmt.Errorf("invoice total must be positive")
	}
	if input.IssueDate.IsZero() {
		return nil, fmt.Errorf("issue date is required")
	}

	currency := input.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	dueDate := input.DueDate
	if dueDate.IsZero() {
		dueDate = input.IssueDate.AddDate(0, 0, s.cfg.DefaultDueDays)
	}

	invoice := &models.Invoice{
		Base:            models.NewBase(),
		OwnerID:         ownerID,
		CustomerID:      input.CustomerID,
		Number:          number,
		Currency:        currency,
		IssueDate:       input.IssueDate,
		DueDate:         dueDate,
		Status:          models.InvoiceStatusPending,
		Net:             input.Net,
		Tax:             input.Tax,
		Exempt:          input.Exempt,
		Total:           input.Total,
		AmountRemaining: input.Total,
		Description:     input.Description,
		DTEType:         input.DTEType,
		CreatedAt:       time.Now().UTC(),
	}
	invoice.Bucket = aging.Classify(today, invoice.DueDate, invoice.Status)

	_, err := s.db.Collection(invoicesCollection).InsertOne(ctx, invoice)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateNumber
		}
		return nil, fmt.Errorf("failed to insert invoice %s for owner %s: %w", number, ownerID.String(), err)
	}
	return invoice, nil
}

func (s *invoiceService) FindInvoiceByID(ctx context.Context, invoiceID, ownerID utils.SixID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := s.db.Collection(invoicesCollection).FindOne(ctx,
		bson.M{"_id": invoiceID, "owner_id": ownerID}).Decode(&invoice)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding invoice %s: %w", invoiceID.String(), err)
	}
	return &invoice, nil
}

// ListInvoices returns the owner's invoices under a named filter: "all",
// "pending", "paid", "overdue", "due_soon", or "bucket:<name>". Buckets are
// recomputed against today before filtering, so a list is never served from
// stale sweep results.
func (s *invoiceService) ListInvoices(ctx context.Context, ownerID utils.SixID, filter string, today time.Time) ([]models.Invoice, error) {
	query := bson.M{"owner_id": ownerID}
	switch {
	case filter == "" || filter == "all":
	case filter == "pending":
		query["status"] = models.InvoiceStatusPending
	case filter == "paid":
		query["status"] = models.InvoiceStatusPaid
	case filter == "overdue", filter == "due_soon", strings.HasPrefix(filter, "bucket:"):
		query["status"] = models.InvoiceStatusPending
	default:
		return nil, fmt.Errorf("unknown invoice filter %q", filter)
	}

	cursor, err := s.db.Collection(invoicesCollection).Find(ctx, query,
		options.Find().SetSort(bson.D{{Key: "due_date", Value: 1}, {Key: "number", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("error listing invoices for owner %s: %w", ownerID.String(), err)
	}
	defer cursor.Close(ctx)

	invoices := []models.Invoice{}
	if err := cursor.All(ctx, &invoices); err != nil {
		return nil, fmt.Errorf("error decoding invoices: %w", err)
	}

	for i := range invoices {
		invoices[i].Bucket = aging.Classify(today, invoices[i].DueDate, invoices[i].Status)
	}

	var want models.Bucket
	switch {
	case filter == "overdue":
		// Everything past due regardless of severity.
		filtered := invoices[:0]
		for _, inv := range invoices {
			if inv.DaysOverdue(today) > 0 {
				filtered = append(filtered, inv)
			}
		}
		return filtered, nil
	case filter == "due_soon":
		want = models.BucketDueSoon
	case strings.HasPrefix(filter, "bucket:"):
		want = models.Bucket(strings.TrimPrefix(filter, "bucket:"))
	default:
		return invoices, nil
	}

	filtered := invoices[:0]
	for _, inv := range invoices {
		if inv.Bucket != nil && *inv.Bucket == want {
			filtered = append(filtered, inv)
		}
	}
	return filtered, nil
}

// MarkPaid settles the invoice in full: remaining goes to exactly zero, paid
// equals the total, the bucket clears and the payment date is today.
func (s *invoiceService) MarkPaid(ctx context.Context, invoiceID, ownerID utils.SixID, today time.Time) (*models.Invoice, error) {
	var updated models.Invoice
	err := s.db.Collection(invoicesCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": invoiceID, "owner_id": ownerID, "status": models.InvoiceStatusPending},
		mongo.Pipeline{
			{{Key: "$set", Value: bson.M{
				"status":           models.InvoiceStatusPaid,
				"payment_date":     today,
				"amount_paid":      "$total",
				"amount_remaining": 0.0,
			}}},
			{{Key: "$unset", Value: "bucket"}},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("failed to mark invoice %s paid: %w", invoiceID.String(), err)
	}
	return &updated, nil
}

func (s *invoiceService) VoidInvoice(ctx context.Context, invoiceID, ownerID utils.SixID) error {
	result, err := s.db.Collection(invoicesCollection).UpdateOne(ctx,
		bson.M{"_id": invoiceID, "owner_id": ownerID},
		bson.M{
			"$set":   bson.M{"status": models.InvoiceStatusVoid},
			"$unset": bson.M{"bucket": ""},
		})
	if err != nil {
		return fmt.Errorf("failed to void invoice %s: %w", invoiceID.String(), err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// CreateOrUpdateByNumber reconciles one imported row against the store. An
// existing invoice keeps its identity and customer but takes the imported
// amounts, dates and status; a paid invoice is never touched by an import.
func (s *invoiceService) CreateOrUpdateByNumber(ctx context.Context, ownerID utils.SixID, invoice *models.Invoice, today time.Time) (bool, error) {
	collection := s.db.Collection(invoicesCollection)

	created := false
	operation := func() error {
		var existing models.Invoice
		err := collection.FindOne(ctx,
			bson.M{"owner_id": ownerID, "number": invoice.Number}).Decode(&existing)
		if errors.Is(err, mongo.ErrNoDocuments) {
			invoice.GenIDIfEmpty()
			invoice.OwnerID = ownerID
			invoice.SIIImported = true
			invoice.CreatedAt = time.Now().UTC()
			invoice.Bucket = aging.Classify(today, invoice.DueDate, invoice.Status)
			// Losing an insert race surfaces as a duplicate key here and the
			// retry takes the update path instead.
			if _, err := collection.InsertOne(ctx, invoice); err != nil {
				return err
			}
			created = true
			return nil
		}
		if err != nil {
			return err
		}

		if existing.Status == models.InvoiceStatusPaid {
			created = false
			return nil
		}

		// Imports only ever move status towards paid; a void invoice keeps
		// its state but takes the corrected amounts.
		status := existing.Status
		if invoice.Status == models.InvoiceStatusPaid {
			status = models.InvoiceStatusPaid
		}

		set := bson.M{
			"customer_id":      invoice.CustomerID,
			"currency":         invoice.Currency,
			"issue_date":       invoice.IssueDate,
			"due_date":         invoice.DueDate,
			"status":           status,
			"net":              invoice.Net,
			"tax":              invoice.Tax,
			"exempt":           invoice.Exempt,
			"total":            invoice.Total,
			"amount_paid":      invoice.AmountPaid,
			"amount_remaining": invoice.AmountRemaining,
			"dte_type":         invoice.DTEType,
			"sii_imported":     true,
		}
		if status == models.InvoiceStatusPaid && invoice.PaymentDate != nil {
			set["payment_date"] = invoice.PaymentDate
		}

		update := bson.M{"$set": set}
		if bucket := aging.Classify(today, invoice.DueDate, status); bucket != nil {
			set["bucket"] = *bucket
		} else {
			update["$unset"] = bson.M{"bucket": ""}
		}

		_, err = collection.UpdateOne(ctx, bson.M{"_id": existing.ID}, update)
		return err
	}

	if err := db.Try(operation); err != nil {
		return false, fmt.Errorf("failed to upsert invoice %s for owner %s: %w", invoice.Number, ownerID.String(), err)
	}
	return created, nil
}

func (s *invoiceService) SweepBuckets(ctx context.Context, ownerID utils.SixID, today time.Time) (int, error) {
	filter := bson.M{"status": models.InvoiceStatusPending}
	if ownerID != (utils.SixID{}) {
		filter["owner_id"] = ownerID
	}

	cursor, err := s.db.Collection(invoicesCollection).Find(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("error loading pending invoices for sweep: %w", err)
	}
	defer cursor.Close(ctx)

	changed := 0
	for cursor.Next(ctx) {
		var invoice models.Invoice
		if err := cursor.Decode(&invoice); err != nil {
			return changed, fmt.Errorf("error decoding invoice during sweep: %w", err)
		}

		bucket := aging.Classify(today, invoice.DueDate, invoice.Status)
		if bucketsEqual(bucket, invoice.Bucket) {
			continue
		}

		update := bson.M{"$unset": bson.M{"bucket": ""}}
		if bucket != nil {
			update = bson.M{"$set": bson.M{"bucket": *bucket}}
		}
		if _, err := s.db.Collection(invoicesCollection).UpdateOne(ctx,
			bson.M{"_id": invoice.ID}, update); err != nil {
			return changed, fmt.Errorf("error updating bucket of invoice %s: %w", invoice.ID.String(), err)
		}
		changed++
	}
	if err := cursor.Err(); err != nil {
		return changed, fmt.Errorf("error iterating invoices during sweep: %w", err)
	}
	return changed, nil
}

func (s *invoiceService) FindPendingByOwner(ctx context.Context, ownerID utils.SixID) ([]models.Invoice, error) {
	cursor, err := s.db.Collection(invoicesCollection).Find(ctx,
		bson.M{"owner_id": ownerID, "status": models.InvoiceStatusPending})
	if err != nil {
		return nil, fmt.Errorf("error loading pending invoices for owner %s: %w", ownerID.String(), err)
	}
	defer cursor.Close(ctx)

	invoices := []models.Invoice{}
	if err := cursor.All(ctx, &invoices); err != nil {
		return nil, fmt.Errorf("error decoding pending invoices: %w", err)
	}
	return invoices, nil
}

func (s *invoiceService) FindDueWithin(ctx context.Context, today time.Time, leadDays int) ([]models.Invoice, error) {
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, leadDays+1)

	cursor, err := s.db.Collection(invoicesCollection).Find(ctx, bson.M{
		"status":   models.InvoiceStatusPending,
		"due_date": bson.M{"$gte": start, "$lt": end},
	})
	if err != nil {
		return nil, fmt.Errorf("error loading invoices due within %d days: %w", leadDays, err)
	}
	defer cursor.Close(ctx)

	invoices := []models.Invoice{}
	if err := cursor.All(ctx, &invoices); err != nil {
		return nil, fmt.Errorf("error decoding due invoices: %w", err)
	}
	return invoices, nil
}

func (s *invoiceService) ExistingNumbers(ctx context.Context, ownerID utils.SixID, numbers []string) (map[string]bool, error) {
	existing := map[string]bool{}
	if len(numbers) == 0 {
		return existing, nil
	}

	cursor, err := s.db.Collection(invoicesCollection).Find(ctx,
		bson.M{"owner_id": ownerID, "number": bson.M{"$in": numbers}},
		options.Find().SetProjection(bson.M{"number": 1}))
	if err != nil {
		return nil, fmt.Errorf("error checking existing invoice numbers: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc struct {
			Number string `bson:"number"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("error decoding invoice number: %w", err)
		}
		existing[doc.Number] = true
	}
	return existing, cursor.Err()
}

func bucketsEqual(a, b *models.Bucket) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

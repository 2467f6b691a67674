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

	"cobrapyme/morosidad/internal/db"
	"cobrapyme/morosidad/internal/models"
	"cobrapyme/morosidad/internal/rut"
	"cobrapyme/morosidad/internal/utils"
)

// ICustomerService defines the interface for customer operations. Everything
// is scoped by owner: a customer is never visible outside the account that
// created it.
type ICustomerService interface {
	CreateCustomer(ctx context.Context, ownerID utils.SixID, name, rawRUT, email, phone, notes string) (*models.Customer, error)
	UpdateCustomer(ctx context.Context, customerID, ownerID utils.SixID, updates map[string]interface{}) (*models.Customer, error)
	FindCustomerByID(ctx context.Context, customerID, ownerID utils.SixID) (*models.Customer, error)
	ListCustomers(ctx context.Context, ownerID utils.SixID, includeInactive bool) ([]models.Customer, error)
	DeactivateCustomer(ctx context.Context, customerID, ownerID utils.SixID) error
	// FindOrCreateByRUT resolves the import reconciliation key (rut, owner),
	// refreshing the stored name when the import carries a newer one.
	FindOrCreateByRUT(ctx context.Context, ownerID utils.SixID, canonicalRUT, name string) (*models.Customer, error)
}

const customersCollection = "customers"

type customerService struct {
	db *mongo.Database
}

// NewCustomerService creates a new CustomerService.
func NewCustomerService(db *mongo.Database) ICustomerService {
	return &customerService{db: db}
}

func (s *customerService) CreateCustomer(ctx context.Context, ownerID utils.SixID, name, rawRUT, email, phone, notes string) (*models.Customer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("customer name is required")
	}

	canonicalRUT := ""
	if strings.TrimSpace(rawRUT) != "" {
		normalized, err := rut.Normalize(rawRUT)
		if err != nil {
			return nil, fmt.Errorf("invalid RUT %q: %w", rawRUT, err)
		}
		canonicalRUT = normalized
	}

	customer := &models.Customer{
		Base:      models.NewBase(),
		OwnerID:   ownerID,
		Name:      name,
		RUT:       canonicalRUT,
		Email:     strings.TrimSpace(email),
		Phone:     strings.TrimSpace(phone),
		Notes:     notes,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.Collection(customersCollection).InsertOne(ctx, customer)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("a customer with RUT %s already exists", canonicalRUT)
		}
		return nil, fmt.Errorf("failed to insert customer for owner %s: %w", ownerID.String(), err)
	}
	return customer, nil
}

func (s *customerService) UpdateCustomer(ctx context.Context, customerID, ownerID utils.SixID, updates map[string]interface{}) (*models.Customer, error) {
	allowed := map[string]bool{"name": true, "rut": true, "email": true, "phone": true, "notes": true, "active": true}
	set := bson.M{}
	for key, value := range updates {
		if !allowed[key] {
			return nil, fmt.Errorf("field %q cannot be updated", key)
		}
		if key == "rut" {
			raw, _ := value.(string)
			if strings.TrimSpace(raw) == "" {
				set["rut"] = ""
				continue
			}
			normalized, err := rut.Normalize(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid RUT %q: %w", raw, err)
			}
			set["rut"] = normalized
			continue
		}
		set[key] = value
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no updatable fields provided")
	}

	var updated models.Customer
	err := s.db.Collection(customersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": customerID, "owner_id": ownerID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("failed to update customer %s: %w", customerID.String(), err)
	}
	return &updated, nil
}

func (s *customerService) FindCustomerByID(ctx context.Context, customerID, ownerID utils.SixID) (*models.Customer, error) {
	var customer models.Customer
	err := s.db.Collection(customersCollection).FindOne(ctx,
		bson.M{"_id": customerID, "owner_id": ownerID}).Decode(&customer)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mongo.ErrNoDocuments
		}
		return nil, fmt.Errorf("error finding customer %s: %w", customerID.String(), err)
	}
	return &customer, nil
}

func (s *customerService) ListCustomers(ctx context.Context, ownerID utils.SixID, includeInactive bool) ([]models.Customer, error) {
	filter := bson.M{"owner_id": ownerID}
	if !includeInactive {
		filter["active"] = true
	}

	cursor, err := s.db.Collection(customersCollection).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("error listing customers for owner %s: %w", ownerID.String(), err)
	}
	defer cursor.Close(ctx)

	customers := []models.Customer{}
	if err := cursor.All(ctx, &customers); err != nil {
		return nil, fmt.Errorf("error decoding customers: %w", err)
	}
	return customers, nil
}

// DeactivateCustomer soft-deletes: invoices keep their customer reference and
// history stays queryable.
func (s *customerService) DeactivateCustomer(ctx context.Context, customerID, ownerID utils.SixID) error {
	result, err := s.db.Collection(customersCollection).UpdateOne(ctx,
		bson.M{"_id": customerID, "owner_id": ownerID},
		bson.M{"$set": bson.M{"active": false}})
	if err != nil {
		return fmt.Errorf("failed to deactivate customer %s: %w", customerID.String(), err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (s *customerService) FindOrCreateByRUT(ctx context.Context, ownerID utils.SixID, canonicalRUT, name string) (*models.Customer, error) {
	if canonicalRUT == "" {
		return nil, fmt.Errorf("RUT is required to reconcile a customer")
	}

	collection := s.db.Collection(customersCollection)
	var customer models.Customer

	// Upsert keyed on (rut, owner). A concurrent commit of the same file can
	// lose the insert race; the retry then lands on the update path.
	operation := func() error {
		err := collection.FindOneAndUpdate(ctx,
			bson.M{"owner_id": ownerID, "rut": canonicalRUT},
			bson.M{
				"$set": bson.M{"name": name},
				"$setOnInsert": bson.M{
					"_id":        utils.NewSixID(),
					"owner_id":   ownerID,
					"rut":        canonicalRUT,
					"email":      "",
					"active":     true,
					"created_at": time.Now().UTC(),
				},
			},
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		).Decode(&customer)
		return err
	}

	if err := db.Try(operation); err != nil {
		return nil, fmt.Errorf("failed to find-or-create customer %s for owner %s: %w", canonicalRUT, ownerID.String(), err)
	}
	return &customer, nil
}

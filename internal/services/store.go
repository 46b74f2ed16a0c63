package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ufaas-io/payment-gobackend/internal/apperr"
	"github.com/ufaas-io/payment-gobackend/internal/models"
)

// ListFilter narrows payment listings. Zero values mean no filtering.
type ListFilter struct {
	Status    models.Status
	UserID    string
	StartDate string // RFC3339
	EndDate   string // RFC3339
}

// PaymentStore is the persistence boundary of the orchestrator. One document
// per payment; Update replaces the whole document so a verify pass is
// written in a single read-modify-write.
type PaymentStore interface {
	Insert(ctx context.Context, p *models.Payment) error
	Get(ctx context.Context, businessName, id string) (*models.Payment, error)
	Update(ctx context.Context, p *models.Payment) error
	List(ctx context.Context, businessName string, filter ListFilter) ([]models.Payment, error)
}

type MongoPaymentStore struct {
	collection *mongo.Collection
}

func NewMongoPaymentStore(db *mongo.Database) *MongoPaymentStore {
	return &MongoPaymentStore{collection: db.Collection("payments")}
}

// EnsureIndexes creates the indexes the read paths depend on.
func (s *MongoPaymentStore) EnsureIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "business_name", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "business_name", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
	_, err := s.collection.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		log.Printf("Failed to create payment indexes: %v", err)
		return fmt.Errorf("failed to create payment indexes: %v", err)
	}
	return nil
}

func (s *MongoPaymentStore) Insert(ctx context.Context, p *models.Payment) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	_, err := s.collection.InsertOne(ctx, p)
	if err != nil {
		log.Printf("Failed to save payment: %v", err)
		return fmt.Errorf("failed to save payment: %v", err)
	}
	return nil
}

func (s *MongoPaymentStore) Get(ctx context.Context, businessName, id string) (*models.Payment, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.New(http.StatusBadRequest, apperr.KindValidation, "invalid payment id %q", id)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var payment models.Payment
	if err := s.collection.FindOne(ctx, bson.M{"_id": objID, "business_name": businessName}).Decode(&payment); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.New(http.StatusNotFound, apperr.KindPaymentNotFound, "payment %s not found", id)
		}
		log.Printf("Failed to fetch payment %s: %v", id, err)
		return nil, fmt.Errorf("failed to fetch payment: %v", err)
	}
	return &payment, nil
}

func (s *MongoPaymentStore) Update(ctx context.Context, p *models.Payment) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	p.UpdatedAt = time.Now()
	res, err := s.collection.ReplaceOne(ctx, bson.M{"_id": p.ID}, p)
	if err != nil {
		log.Printf("Failed to update payment %s: %v", p.ID.Hex(), err)
		return fmt.Errorf("failed to update payment: %v", err)
	}
	if res.MatchedCount == 0 {
		return apperr.New(http.StatusNotFound, apperr.KindPaymentNotFound, "payment %s not found", p.ID.Hex())
	}
	return nil
}

func (s *MongoPaymentStore) List(ctx context.Context, businessName string, filter ListFilter) ([]models.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := bson.M{"business_name": businessName}

	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, apperr.New(http.StatusBadRequest, apperr.KindValidation, "invalid status filter %q", filter.Status)
		}
		query["status"] = filter.Status
	}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}

	if filter.StartDate != "" && filter.EndDate != "" {
		start, err := time.Parse(time.RFC3339, filter.StartDate)
		if err != nil {
			return nil, apperr.New(http.StatusBadRequest, apperr.KindValidation, "invalid start_date: %v", err)
		}
		end, err := time.Parse(time.RFC3339, filter.EndDate)
		if err != nil {
			return nil, apperr.New(http.StatusBadRequest, apperr.KindValidation, "invalid end_date: %v", err)
		}
		query["created_at"] = bson.M{"$gte": start, "$lte": end}
	}

	cur, err := s.collection.Find(ctx, query, options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		log.Printf("Failed to fetch payments: %v", err)
		return nil, fmt.Errorf("failed to fetch payments: %v", err)
	}
	defer cur.Close(ctx)

	var payments []models.Payment
	if err := cur.All(ctx, &payments); err != nil {
		log.Printf("Failed to decode payments: %v", err)
		return nil, fmt.Errorf("failed to decode payments: %v", err)
	}
	return payments, nil
}

package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ufaas-io/payment-gobackend/internal/apperr"
	"github.com/ufaas-io/payment-gobackend/internal/clients"
	"github.com/ufaas-io/payment-gobackend/internal/models"
)

// BusinessService resolves tenants and their payment configuration, and
// mints the service tokens handed to the gateway and wallet clients.
type BusinessService struct {
	businesses *mongo.Collection
	configs    *mongo.Collection
}

func NewBusinessService(db *mongo.Database) *BusinessService {
	return &BusinessService{
		businesses: db.Collection("businesses"),
		configs:    db.Collection("configurations"),
	}
}

func (s *BusinessService) GetByName(ctx context.Context, name string) (*models.Business, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var biz models.Business
	if err := s.businesses.FindOne(ctx, bson.M{"name": name}).Decode(&biz); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.New(http.StatusNotFound, apperr.KindBusinessNotFound, "business %q not found", name)
		}
		log.Printf("Failed to fetch business %s: %v", name, err)
		return nil, fmt.Errorf("failed to fetch business: %v", err)
	}
	return &biz, nil
}

// GetByDomain resolves a tenant from a request host.
func (s *BusinessService) GetByDomain(ctx context.Context, domain string) (*models.Business, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var biz models.Business
	if err := s.businesses.FindOne(ctx, bson.M{"domain": domain}).Decode(&biz); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.New(http.StatusNotFound, apperr.KindBusinessNotFound, "no business for domain %q", domain)
		}
		log.Printf("Failed to fetch business for domain %s: %v", domain, err)
		return nil, fmt.Errorf("failed to fetch business: %v", err)
	}
	return &biz, nil
}

// GetConfig returns the tenant's payment configuration. A tenant without a
// configuration document gets the defaults (no settlement wallet, single
// "ipg" gateway).
func (s *BusinessService) GetConfig(ctx context.Context, businessName string) (*models.Configuration, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var cfg models.Configuration
	err := s.configs.FindOne(ctx, bson.M{"business_name": businessName}).Decode(&cfg)
	if err == mongo.ErrNoDocuments {
		return &models.Configuration{BusinessName: businessName, IPGs: []string{"ipg"}}, nil
	}
	if err != nil {
		log.Printf("Failed to fetch configuration for %s: %v", businessName, err)
		return nil, fmt.Errorf("failed to fetch configuration: %v", err)
	}
	if len(cfg.IPGs) == 0 {
		cfg.IPGs = []string{"ipg"}
	}
	return &cfg, nil
}

// AccessToken mints a short-lived service token for calls made on behalf of
// the tenant.
func (s *BusinessService) AccessToken(biz *models.Business) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"business": biz.Name,
		"iat":      now.Unix(),
		"exp":      now.Add(5 * time.Minute).Unix(),
	})
	signed, err := token.SignedString([]byte(biz.APISecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %v", err)
	}
	return signed, nil
}

// Tenant assembles the per-request client context for a business.
func (s *BusinessService) Tenant(biz *models.Business) (clients.Tenant, error) {
	token, err := s.AccessToken(biz)
	if err != nil {
		return clients.Tenant{}, err
	}
	return clients.Tenant{
		APIOSURL: biz.APIOSURL,
		CoreURL:  biz.CoreURL,
		Token:    token,
	}, nil
}

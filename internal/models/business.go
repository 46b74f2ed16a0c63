package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Business is a tenant document. The two base URLs locate the tenant's
// gateway catalog (api_os_url) and wallet/ledger service (core_url); the
// api secret signs the short-lived bearer tokens sent to both.
type Business struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Domain    string             `bson:"domain" json:"domain"`
	APIOSURL  string             `bson:"api_os_url" json:"api_os_url"`
	CoreURL   string             `bson:"core_url" json:"core_url"`
	APISecret string             `bson:"api_secret" json:"-"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// Configuration holds per-tenant payment defaults: the settlement wallet
// credited on success and the default gateway list.
type Configuration struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BusinessName string             `bson:"business_name" json:"business_name"`
	WalletID     string             `bson:"wallet_id" json:"wallet_id"`
	IPGs         []string           `bson:"ipgs" json:"ipgs"`
}

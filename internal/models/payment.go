package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status is shared by payments and purchase attempts.
type Status string

const (
	StatusInit     Status = "INIT"
	StatusPending  Status = "PENDING"
	StatusFailed   Status = "FAILED"
	StatusSuccess  Status = "SUCCESS"
	StatusRefunded Status = "REFUNDED"
)

// IsOpen reports whether the status still accepts verification results.
func (s Status) IsOpen() bool {
	return s == StatusInit || s == StatusPending
}

func (s Status) Valid() bool {
	switch s {
	case StatusInit, StatusPending, StatusFailed, StatusSuccess, StatusRefunded:
		return true
	}
	return false
}

// PurchaseAttempt records one call to one gateway. Attempts are embedded in
// the payment document, append-only, and mutated only by verification.
type PurchaseAttempt struct {
	UID           string     `bson:"uid" json:"uid"`
	IPG           string     `bson:"ipg" json:"ipg"`
	UserID        string     `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Phone         string     `bson:"phone,omitempty" json:"phone,omitempty"`
	Status        Status     `bson:"status" json:"status"`
	FailureReason string     `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	VerifiedAt    *time.Time `bson:"verified_at,omitempty" json:"verified_at,omitempty"`
	CreatedAt     time.Time  `bson:"created_at" json:"created_at"`
}

// Payment is the aggregate: one document per payment with the full attempt
// history under tries.
type Payment struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BusinessName string             `bson:"business_name" json:"business_name"`
	UserID       string             `bson:"user_id,omitempty" json:"user_id,omitempty"`
	WalletID     string             `bson:"wallet_id,omitempty" json:"wallet_id,omitempty"`
	BasketID     string             `bson:"basket_id,omitempty" json:"basket_id,omitempty"`

	Amount      Amount `bson:"amount" json:"amount"`
	Currency    string `bson:"currency" json:"currency"`
	Description string `bson:"description" json:"description"`
	VoucherCode string `bson:"voucher_code,omitempty" json:"voucher_code,omitempty"`

	CallbackURL   string   `bson:"callback_url" json:"callback_url"`
	AvailableIPGs []string `bson:"available_ipgs,omitempty" json:"available_ipgs,omitempty"`
	AcceptWallet  bool     `bson:"accept_wallet" json:"accept_wallet"`
	IsTest        bool     `bson:"is_test" json:"is_test"`

	Status        Status            `bson:"status" json:"status"`
	Tries         []PurchaseAttempt `bson:"tries" json:"tries"`
	FailureReason string            `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	VerifiedAt    *time.Time        `bson:"verified_at,omitempty" json:"verified_at,omitempty"`

	// Duration is the validity window in seconds. Default 3600.
	Duration  int64     `bson:"duration" json:"duration"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// DefaultDuration is the payment validity window when the caller sets none.
const DefaultDuration = 3600

func (p *Payment) IsOverdue(now time.Time) bool {
	return now.After(p.CreatedAt.Add(time.Duration(p.Duration) * time.Second))
}

func (p *Payment) IsSuccessful() bool {
	return p.Status == StatusSuccess
}

func (p *Payment) HasOpenTries() bool {
	for i := range p.Tries {
		if p.Tries[i].Status.IsOpen() {
			return true
		}
	}
	return false
}

// Try returns the attempt with the given gateway uid, or nil.
func (p *Payment) Try(uid string) *PurchaseAttempt {
	for i := range p.Tries {
		if p.Tries[i].UID == uid {
			return &p.Tries[i]
		}
	}
	return nil
}

// RecordSuccess applies a successful verification result for one attempt.
// The first success resolves the payment: status SUCCESS, verified_at set
// once. A later attempt reporting success after that is tagged REFUNDED so
// that at most one attempt ever carries SUCCESS; the extra charge has to be
// refunded out of band. Returns whether the payment newly became SUCCESS.
func (p *Payment) RecordSuccess(uid string, now time.Time) bool {
	try := p.Try(uid)
	if try == nil {
		return false
	}
	if p.Status == StatusSuccess {
		try.Status = StatusRefunded
		try.FailureReason = "succeeded after payment was already resolved"
		try.VerifiedAt = &now
		return false
	}
	try.Status = StatusSuccess
	try.VerifiedAt = &now
	p.Status = StatusSuccess
	p.VerifiedAt = &now
	return true
}

// RecordFailure applies a failed verification result for one attempt. The
// payment itself stays open; overdue handling is the caller's decision after
// the full verify pass.
func (p *Payment) RecordFailure(uid, reason string, now time.Time) {
	try := p.Try(uid)
	if try == nil {
		return
	}
	try.Status = StatusFailed
	try.FailureReason = reason
	try.VerifiedAt = &now
}

// Fail moves the payment to FAILED with the given reason.
func (p *Payment) Fail(reason string) {
	p.Status = StatusFailed
	p.FailureReason = reason
}

package services

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/ufaas-io/payment-gobackend/internal/apperr"
	"github.com/ufaas-io/payment-gobackend/internal/clients"
	"github.com/ufaas-io/payment-gobackend/internal/models"
)

// verifyLeaseTTL bounds how long a crashed verify pass can hold its lease.
const verifyLeaseTTL = 30 * time.Second

// TenantContext is the explicit per-request tenant state. Handlers resolve
// it once and pass it into every orchestrator operation; nothing is looked
// up ambiently.
type TenantContext struct {
	Business *models.Business
	Config   *models.Configuration
	Tenant   clients.Tenant
}

type CreatePaymentRequest struct {
	UserID        string        `json:"user_id,omitempty"`
	WalletID      string        `json:"wallet_id,omitempty"`
	BasketID      string        `json:"basket_id,omitempty"`
	Amount        models.Amount `json:"amount"`
	Currency      string        `json:"currency,omitempty"`
	Description   string        `json:"description"`
	CallbackURL   string        `json:"callback_url"`
	IsTest        bool          `json:"is_test,omitempty"`
	AvailableIPGs []string      `json:"available_ipgs,omitempty"`
	AcceptWallet  *bool         `json:"accept_wallet,omitempty"`
	VoucherCode   string        `json:"voucher_code,omitempty"`
	Duration      int64         `json:"duration,omitempty"`
}

type StartOptions struct {
	IPG    string
	Amount *models.Amount
	UserID string
	Phone  string
}

// PaymentService orchestrates the payment lifecycle: create, gateway start,
// verification polling and exactly-once settlement.
type PaymentService struct {
	store    PaymentStore
	gateway  clients.GatewayClient
	wallets  clients.WalletClient
	locks    Locker
	basePath string
}

// NewPaymentService wires the orchestrator. locks may be nil; verification
// then relies on first-success-wins alone.
func NewPaymentService(store PaymentStore, gateway clients.GatewayClient, wallets clients.WalletClient, locks Locker, basePath string) *PaymentService {
	return &PaymentService{
		store:    store,
		gateway:  gateway,
		wallets:  wallets,
		locks:    locks,
		basePath: basePath,
	}
}

// Create validates the request and persists a new payment in INIT with no
// attempts. Nothing external is called yet.
func (s *PaymentService) Create(ctx context.Context, tc *TenantContext, req CreatePaymentRequest) (*models.Payment, error) {
	if req.UserID == "" && req.WalletID == "" {
		return nil, apperr.New(http.StatusBadRequest, apperr.KindValidation, "user_id or wallet_id should be set")
	}
	if !req.Amount.IsPositive() {
		return nil, apperr.New(http.StatusBadRequest, apperr.KindValidation, "amount must be positive")
	}
	if req.Description == "" {
		return nil, apperr.New(http.StatusBadRequest, apperr.KindValidation, "description is required")
	}
	if err := validateCallbackURL(req.CallbackURL); err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = "IRR"
	}
	duration := req.Duration
	if duration <= 0 {
		duration = models.DefaultDuration
	}
	ipgs := req.AvailableIPGs
	if len(ipgs) == 0 {
		ipgs = tc.Config.IPGs
	}
	acceptWallet := true
	if req.AcceptWallet != nil {
		acceptWallet = *req.AcceptWallet
	}

	now := time.Now()
	payment := &models.Payment{
		BusinessName:  tc.Business.Name,
		UserID:        req.UserID,
		WalletID:      req.WalletID,
		BasketID:      req.BasketID,
		Amount:        req.Amount,
		Currency:      currency,
		Description:   req.Description,
		VoucherCode:   req.VoucherCode,
		CallbackURL:   req.CallbackURL,
		AvailableIPGs: ipgs,
		AcceptWallet:  acceptWallet,
		IsTest:        req.IsTest,
		Status:        models.StatusInit,
		Tries:         []models.PurchaseAttempt{},
		Duration:      duration,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Insert(ctx, payment); err != nil {
		return nil, err
	}
	log.Printf("Payment created: id=%s business=%s amount=%s %s", payment.ID.Hex(), payment.BusinessName, payment.Amount.String(), payment.Currency)
	return payment, nil
}

// Start begins one gateway purchase attempt and returns the redirect URL the
// payer is sent to. A gateway failure leaves the payment untouched so the
// caller may retry with another gateway.
func (s *PaymentService) Start(ctx context.Context, tc *TenantContext, id string, opts StartOptions) (string, error) {
	payment, err := s.store.Get(ctx, tc.Business.Name, id)
	if err != nil {
		return "", err
	}

	now := time.Now()
	if payment.Status.IsOpen() && payment.IsOverdue(now) {
		payment.Fail("overdue")
		if err := s.store.Update(ctx, payment); err != nil {
			return "", err
		}
		log.Printf("Payment %s failed: overdue on start", id)
		return "", apperr.New(http.StatusBadRequest, apperr.KindPaymentOverdue, "payment is overdue")
	}
	if !payment.Status.IsOpen() {
		return "", apperr.New(http.StatusBadRequest, apperr.KindInvalidPayment, "payment was %s", payment.Status)
	}

	ipg := opts.IPG
	if ipg == "" && len(payment.AvailableIPGs) > 0 {
		ipg = payment.AvailableIPGs[0]
	}
	if ipg == "" {
		return "", apperr.New(http.StatusBadRequest, apperr.KindValidation, "no gateway selected")
	}
	if len(payment.AvailableIPGs) > 0 && !contains(payment.AvailableIPGs, ipg) {
		return "", apperr.New(http.StatusBadRequest, apperr.KindIPGNotAllowed, "gateway %q is not allowed for this payment", ipg)
	}

	amount := payment.Amount
	if opts.Amount != nil {
		amount = *opts.Amount
	}
	if !amount.IsPositive() {
		return "", apperr.New(http.StatusBadRequest, apperr.KindValidation, "amount must be positive")
	}

	receipt, err := s.gateway.CreatePurchase(ctx, tc.Tenant, ipg, clients.PurchaseRequest{
		UserID:      opts.UserID,
		WalletID:    payment.WalletID,
		Amount:      amount,
		Currency:    payment.Currency,
		Description: payment.Description,
		Phone:       opts.Phone,
		CallbackURL: s.verifyCallbackURL(tc.Business, id),
	})
	if err != nil {
		log.Printf("Gateway %s purchase creation failed for payment %s: %v", ipg, id, err)
		return "", apperr.Wrap(err, http.StatusBadGateway, apperr.KindGatewayError, "gateway %s purchase creation failed", ipg)
	}

	payment.Tries = append(payment.Tries, models.PurchaseAttempt{
		UID:       receipt.UID,
		IPG:       ipg,
		UserID:    opts.UserID,
		Phone:     opts.Phone,
		Status:    models.StatusInit,
		CreatedAt: now,
	})
	payment.Status = models.StatusPending
	if err := s.store.Update(ctx, payment); err != nil {
		return "", err
	}

	log.Printf("Payment %s: started purchase %s on gateway %s", id, receipt.UID, ipg)
	return receipt.StartURL, nil
}

// Verify polls every open attempt in insertion order, applies the results,
// persists the payment once, and triggers settlement exactly once on the
// pass that resolved the payment to SUCCESS. It is idempotent and safe to
// call from both the payer redirect and the gateway callback.
func (s *PaymentService) Verify(ctx context.Context, tc *TenantContext, id string) (*models.Payment, error) {
	if s.locks != nil {
		key := "payments:verify:" + id
		acquired, err := s.locks.Acquire(ctx, key, verifyLeaseTTL)
		if err != nil {
			log.Printf("Verify lease for payment %s unavailable, proceeding without: %v", id, err)
		} else if !acquired {
			// Another verify pass owns the payment; hand back the current
			// document and let the caller re-poll.
			return s.store.Get(ctx, tc.Business.Name, id)
		} else {
			defer func() {
				if err := s.locks.Release(context.WithoutCancel(ctx), key); err != nil {
					log.Printf("Failed to release verify lease for payment %s: %v", id, err)
				}
			}()
		}
	}

	payment, err := s.store.Get(ctx, tc.Business.Name, id)
	if err != nil {
		return nil, err
	}
	if !payment.Status.IsOpen() {
		return payment, nil
	}

	now := time.Now()
	newlyResolved := false

	for i := range payment.Tries {
		try := &payment.Tries[i]
		if !try.Status.IsOpen() {
			continue
		}

		state, err := s.gateway.GetPurchaseStatus(ctx, tc.Tenant, try.IPG, try.UID)
		if err != nil {
			// The attempt stays open and is retried on the next verify call.
			log.Printf("Payment %s: status check for purchase %s on %s failed: %v", id, try.UID, try.IPG, err)
			continue
		}

		switch {
		case state.Status.IsOpen():
			continue
		case state.Status == models.StatusSuccess:
			if payment.RecordSuccess(try.UID, now) {
				newlyResolved = true
				log.Printf("Payment %s: purchase %s on %s succeeded, payment resolved", id, try.UID, try.IPG)
			} else {
				log.Printf("Payment %s: purchase %s on %s succeeded after resolution, tagged for refund", id, try.UID, try.IPG)
			}
		default:
			reason := state.FailureReason
			if reason == "" {
				reason = fmt.Sprintf("gateway reported %s", state.Status)
			}
			payment.RecordFailure(try.UID, reason, now)
			log.Printf("Payment %s: purchase %s on %s failed: %s", id, try.UID, try.IPG, reason)
		}
	}

	// Gateway results win over the window: a payment that just resolved is
	// never failed as overdue, a still-open one past its window always is.
	if payment.Status.IsOpen() && payment.IsOverdue(now) {
		payment.Fail("overdue")
		log.Printf("Payment %s failed: overdue on verify", id)
	}

	if err := s.store.Update(ctx, payment); err != nil {
		return nil, err
	}

	if newlyResolved {
		if err := s.settle(ctx, tc, payment); err != nil {
			// Settlement is at-least-once-attempted: the payment keeps its
			// committed SUCCESS status and the failure goes to the caller.
			log.Printf("Settlement for payment %s failed: %v", id, err)
			return payment, err
		}
	}
	return payment, nil
}

// settle creates the two-line ledger transfer for a freshly successful
// payment: debit the payer wallet, credit the tenant settlement wallet.
func (s *PaymentService) settle(ctx context.Context, tc *TenantContext, payment *models.Payment) error {
	if payment.UserID == "" {
		return apperr.New(http.StatusBadGateway, apperr.KindSettlementFailed, "payment has no payer to settle from")
	}
	if tc.Config.WalletID == "" {
		return apperr.New(http.StatusBadGateway, apperr.KindSettlementFailed, "business %s has no settlement wallet configured", tc.Business.Name)
	}

	wallets, err := s.wallets.ListWallets(ctx, tc.Tenant, payment.UserID)
	if err != nil {
		return apperr.Wrap(err, http.StatusBadGateway, apperr.KindSettlementFailed, "failed to list payer wallets")
	}

	var payerWallet *clients.Wallet
	for i := range wallets {
		if wallets[i].UID == payment.WalletID {
			payerWallet = &wallets[i]
			break
		}
	}
	if payerWallet == nil {
		return apperr.New(http.StatusNotFound, apperr.KindWalletNotFound, "wallet %s not found for payer", payment.WalletID)
	}
	if balance, ok := payerWallet.Balance[payment.Currency]; !ok || balance.Less(payment.Amount) {
		log.Printf("Payment %s: insufficient funds in wallet %s: have %s, need %s %s",
			payment.ID.Hex(), payment.WalletID, balance.String(), payment.Amount.String(), payment.Currency)
		return apperr.New(http.StatusPaymentRequired, apperr.KindInsufficientFunds, "not enough balance in the wallet")
	}

	proposal := clients.Proposal{
		Amount:      payment.Amount,
		Description: payment.Description,
		Currency:    payment.Currency,
		TaskStatus:  "init",
		Participants: []clients.Participant{
			{WalletID: payment.WalletID, Amount: payment.Amount.Neg()},
			{WalletID: tc.Config.WalletID, Amount: payment.Amount},
		},
		MetaData: map[string]any{
			"payment_id": payment.ID.Hex(),
			"reference":  uuid.NewString(),
		},
	}
	if err := s.wallets.SubmitTransfer(ctx, tc.Tenant, proposal); err != nil {
		return apperr.Wrap(err, http.StatusBadGateway, apperr.KindSettlementFailed, "ledger transfer submission failed")
	}

	log.Printf("Payment %s settled: %s %s from wallet %s to wallet %s",
		payment.ID.Hex(), payment.Amount.String(), payment.Currency, payment.WalletID, tc.Config.WalletID)
	return nil
}

// Options lists the installed gateways available to one payment.
func (s *PaymentService) Options(ctx context.Context, tc *TenantContext, payment *models.Payment) ([]clients.Extension, error) {
	installed, err := s.gateway.ListInstalled(ctx, tc.Tenant)
	if err != nil {
		return nil, apperr.Wrap(err, http.StatusBadGateway, apperr.KindGatewayError, "failed to list installed gateways")
	}
	if len(payment.AvailableIPGs) == 0 {
		return installed, nil
	}
	var filtered []clients.Extension
	for _, ext := range installed {
		if contains(payment.AvailableIPGs, ext.Name) {
			filtered = append(filtered, ext)
		}
	}
	return filtered, nil
}

// Wallets lists the caller's wallets for the retrieve enrichment.
func (s *PaymentService) Wallets(ctx context.Context, tc *TenantContext, userID string) ([]clients.Wallet, error) {
	return s.wallets.ListWallets(ctx, tc.Tenant, userID)
}

func (s *PaymentService) Get(ctx context.Context, tc *TenantContext, id string) (*models.Payment, error) {
	return s.store.Get(ctx, tc.Business.Name, id)
}

func (s *PaymentService) List(ctx context.Context, tc *TenantContext, filter ListFilter) ([]models.Payment, error) {
	return s.store.List(ctx, tc.Business.Name, filter)
}

func (s *PaymentService) verifyCallbackURL(biz *models.Business, id string) string {
	return fmt.Sprintf("https://%s%s/payments/%s/verify", biz.Domain, s.basePath, id)
}

func validateCallbackURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return apperr.New(http.StatusBadRequest, apperr.KindValidation, "invalid callback URL %q", raw)
	}
	return nil
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/ufaas-io/payment-gobackend/internal/apperr"
	"github.com/ufaas-io/payment-gobackend/internal/clients"
	"github.com/ufaas-io/payment-gobackend/internal/models"
	"github.com/ufaas-io/payment-gobackend/internal/services"
)

// BusinessResolver is the slice of the business service the handlers need
// to build a tenant context.
type BusinessResolver interface {
	GetByName(ctx context.Context, name string) (*models.Business, error)
	GetByDomain(ctx context.Context, domain string) (*models.Business, error)
	GetConfig(ctx context.Context, businessName string) (*models.Configuration, error)
	Tenant(biz *models.Business) (clients.Tenant, error)
}

type PaymentHandler struct {
	service          *services.PaymentService
	businesses       BusinessResolver
	jwtSecret        []byte
	fallbackBusiness string
}

// NewPaymentHandler wires the HTTP surface. The JWT secret and the fallback
// business name come from main after the environment is loaded; nothing is
// read ambiently per request.
func NewPaymentHandler(service *services.PaymentService, businesses BusinessResolver, jwtSecret []byte, fallbackBusiness string) *PaymentHandler {
	return &PaymentHandler{
		service:          service,
		businesses:       businesses,
		jwtSecret:        jwtSecret,
		fallbackBusiness: fallbackBusiness,
	}
}

// resolveTenant builds the per-request tenant context: token claim first,
// then the request host, then the configured fallback business.
func (h *PaymentHandler) resolveTenant(r *http.Request, caller *CallerContext) (*services.TenantContext, error) {
	var biz *models.Business
	var err error

	switch {
	case caller.BusinessName != "":
		biz, err = h.businesses.GetByName(r.Context(), caller.BusinessName)
	default:
		host := r.Host
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		biz, err = h.businesses.GetByDomain(r.Context(), host)
		if err != nil && apperr.IsKind(err, apperr.KindBusinessNotFound) && h.fallbackBusiness != "" {
			biz, err = h.businesses.GetByName(r.Context(), h.fallbackBusiness)
		}
	}
	if err != nil {
		return nil, err
	}

	cfg, err := h.businesses.GetConfig(r.Context(), biz.Name)
	if err != nil {
		return nil, err
	}
	tenant, err := h.businesses.Tenant(biz)
	if err != nil {
		return nil, err
	}
	return &services.TenantContext{Business: biz, Config: cfg, Tenant: tenant}, nil
}

func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	caller, err := h.callerContext(r)
	if err != nil {
		writeError(w, apperr.New(http.StatusUnauthorized, apperr.KindUnauthorized, "invalid token"))
		return
	}
	if caller.UserID == "" {
		writeError(w, apperr.New(http.StatusUnauthorized, apperr.KindUnauthorized, "authentication required"))
		return
	}
	tc, err := h.resolveTenant(r, caller)
	if err != nil {
		writeError(w, err)
		return
	}

	var req services.CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(http.StatusBadRequest, apperr.KindValidation, "invalid request body"))
		return
	}
	if req.UserID == "" {
		req.UserID = caller.UserID
	}

	payment, err := h.service.Create(r.Context(), tc, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (h *PaymentHandler) GetPayments(w http.ResponseWriter, r *http.Request) {
	caller, err := h.callerContext(r)
	if err != nil {
		writeError(w, apperr.New(http.StatusUnauthorized, apperr.KindUnauthorized, "invalid token"))
		return
	}
	tc, err := h.resolveTenant(r, caller)
	if err != nil {
		writeError(w, err)
		return
	}

	filter := services.ListFilter{
		Status:    models.Status(r.URL.Query().Get("status")),
		UserID:    r.URL.Query().Get("user_id"),
		StartDate: r.URL.Query().Get("start_date"),
		EndDate:   r.URL.Query().Get("end_date"),
	}
	payments, err := h.service.List(r.Context(), tc, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

// paymentRetrieveResponse enriches a payment with the gateways the payer can
// pick from and, for authenticated callers, their wallets.
type paymentRetrieveResponse struct {
	*models.Payment
	IPGs    []clients.Extension `json:"ipgs,omitempty"`
	Wallets []clients.Wallet    `json:"wallets,omitempty"`
}

func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	caller, err := h.callerContext(r)
	if err != nil {
		writeError(w, apperr.New(http.StatusUnauthorized, apperr.KindUnauthorized, "invalid token"))
		return
	}
	tc, err := h.resolveTenant(r, caller)
	if err != nil {
		writeError(w, err)
		return
	}

	payment, err := h.service.Get(r.Context(), tc, mux.Vars(r)["paymentID"])
	if err != nil {
		writeError(w, err)
		return
	}

	resp := paymentRetrieveResponse{Payment: payment}
	if options, err := h.service.Options(r.Context(), tc, payment); err != nil {
		log.Printf("Failed to list gateway options for payment %s: %v", payment.ID.Hex(), err)
	} else {
		resp.IPGs = options
	}
	if caller.UserID != "" {
		if wallets, err := h.service.Wallets(r.Context(), tc, caller.UserID); err != nil {
			log.Printf("Failed to list wallets for user %s: %v", caller.UserID, err)
		} else {
			resp.Wallets = wallets
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PaymentHandler) StartPayment(w http.ResponseWriter, r *http.Request) {
	caller, err := h.callerContext(r)
	if err != nil {
		writeError(w, apperr.New(http.StatusUnauthorized, apperr.KindUnauthorized, "invalid token"))
		return
	}
	tc, err := h.resolveTenant(r, caller)
	if err != nil {
		writeError(w, err)
		return
	}

	opts := services.StartOptions{
		IPG:    r.URL.Query().Get("ipg"),
		UserID: caller.UserID,
		Phone:  r.URL.Query().Get("phone"),
	}
	if raw := r.URL.Query().Get("amount"); raw != "" {
		amount, err := models.NewAmount(raw)
		if err != nil {
			writeError(w, apperr.New(http.StatusBadRequest, apperr.KindValidation, "invalid amount %q", raw))
			return
		}
		opts.Amount = &amount
	}

	startURL, err := h.service.Start(r.Context(), tc, mux.Vars(r)["paymentID"], opts)
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, startURL, http.StatusSeeOther)
}

// StartDirectPayment creates a payment from query parameters and immediately
// starts it, for callers that want a single redirect link.
func (h *PaymentHandler) StartDirectPayment(w http.ResponseWriter, r *http.Request) {
	caller, err := h.callerContext(r)
	if err != nil {
		writeError(w, apperr.New(http.StatusUnauthorized, apperr.KindUnauthorized, "invalid token"))
		return
	}
	if caller.UserID == "" {
		writeError(w, apperr.New(http.StatusUnauthorized, apperr.KindUnauthorized, "authentication required"))
		return
	}
	tc, err := h.resolveTenant(r, caller)
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	amount, err := models.NewAmount(q.Get("amount"))
	if err != nil {
		writeError(w, apperr.New(http.StatusBadRequest, apperr.KindValidation, "invalid amount %q", q.Get("amount")))
		return
	}
	isTest, _ := strconv.ParseBool(q.Get("test"))

	payment, err := h.service.Create(r.Context(), tc, services.CreatePaymentRequest{
		UserID:      caller.UserID,
		WalletID:    q.Get("wallet_id"),
		Amount:      amount,
		Description: q.Get("description"),
		CallbackURL: q.Get("callback_url"),
		IsTest:      isTest,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	startURL, err := h.service.Start(r.Context(), tc, payment.ID.Hex(), services.StartOptions{
		IPG:    q.Get("ipg"),
		UserID: caller.UserID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, startURL, http.StatusSeeOther)
}

func (h *PaymentHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	caller, err := h.callerContext(r)
	if err != nil {
		// Gateways call back without our tokens; treat a bad one as anonymous.
		caller = &CallerContext{}
	}
	tc, err := h.resolveTenant(r, caller)
	if err != nil {
		writeError(w, err)
		return
	}

	payment, err := h.service.Verify(r.Context(), tc, mux.Vars(r)["paymentID"])
	if err != nil {
		// Either the verify pass itself failed, or settlement failed after
		// the payment resolved. Both are surfaced, never swallowed.
		writeError(w, err)
		return
	}

	if payment.Status.IsOpen() {
		writeJSON(w, http.StatusOK, payment)
		return
	}
	http.Redirect(w, r, callbackRedirectURL(payment), http.StatusSeeOther)
}

// callbackRedirectURL appends success=<bool> to the payment's callback URL.
func callbackRedirectURL(p *models.Payment) string {
	u, err := url.Parse(p.CallbackURL)
	if err != nil {
		return p.CallbackURL
	}
	q := u.Query()
	q.Set("success", strconv.FormatBool(p.IsSuccessful()))
	u.RawQuery = q.Encode()
	return u.String()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	ae := apperr.From(err)
	if ae.Status >= http.StatusInternalServerError {
		log.Printf("Request failed: %v", err)
	}
	writeJSON(w, ae.Status, ae)
}

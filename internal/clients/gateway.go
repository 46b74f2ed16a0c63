// Package clients holds the HTTP clients for the two external collaborators
// of the payment core: the per-tenant gateway catalog (IPG purchases) and the
// wallet/ledger service. Both are consumed through narrow interfaces so the
// orchestrator can be tested against fakes.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ufaas-io/payment-gobackend/internal/models"
)

// Tenant carries the per-request tenant context: resolved base URLs and a
// bearer token. It is built once per request, never looked up ambiently.
type Tenant struct {
	APIOSURL string
	CoreURL  string
	Token    string
}

// Extension describes one installed gateway from the tenant catalog.
type Extension struct {
	UID    string `json:"uid"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Type   string `json:"type"`
}

// PurchaseRequest is the uniform body sent to every gateway's purchase
// resource.
type PurchaseRequest struct {
	UserID      string        `json:"user_id,omitempty"`
	WalletID    string        `json:"wallet_id"`
	Amount      models.Amount `json:"amount"`
	Currency    string        `json:"currency"`
	Description string        `json:"description"`
	Phone       string        `json:"phone,omitempty"`
	CallbackURL string        `json:"callback_url"`
}

// PurchaseReceipt is returned on purchase creation: the gateway-assigned
// attempt uid and the URL the payer is redirected to.
type PurchaseReceipt struct {
	UID      string
	StartURL string
}

// PurchaseState is one attempt's current status as reported by its gateway.
type PurchaseState struct {
	UID           string        `json:"uid"`
	Status        models.Status `json:"status"`
	FailureReason string        `json:"failure_reason,omitempty"`
	VerifiedAt    *time.Time    `json:"verified_at,omitempty"`
}

// GatewayError is any non-2xx or malformed answer from a gateway call.
type GatewayError struct {
	IPG        string
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s error: status %d: %s", e.IPG, e.StatusCode, e.Body)
}

type GatewayClient interface {
	ListInstalled(ctx context.Context, t Tenant) ([]Extension, error)
	CreatePurchase(ctx context.Context, t Tenant, ipg string, req PurchaseRequest) (*PurchaseReceipt, error)
	GetPurchaseStatus(ctx context.Context, t Tenant, ipg, uid string) (*PurchaseState, error)
}

type HTTPGatewayClient struct {
	client *http.Client
}

func NewHTTPGatewayClient() *HTTPGatewayClient {
	return &HTTPGatewayClient{client: &http.Client{Timeout: 10 * time.Second}}
}

// PurchaseURL is the purchase resource root for one gateway in the tenant
// catalog.
func PurchaseURL(t Tenant, ipg string) string {
	return strings.TrimSuffix(t.APIOSURL, "/") + "/" + ipg + "/purchases/"
}

func (c *HTTPGatewayClient) ListInstalled(ctx context.Context, t Tenant) ([]Extension, error) {
	u := strings.TrimSuffix(t.APIOSURL, "/") + "/installeds/?" + url.Values{
		"type":  {"ipg"},
		"limit": {"100"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+t.Token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &GatewayError{IPG: "installeds", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var paged struct {
		Items []Extension `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&paged); err != nil {
		return nil, fmt.Errorf("failed to decode installed gateways: %v", err)
	}
	return paged.Items, nil
}

func (c *HTTPGatewayClient) CreatePurchase(ctx context.Context, t Tenant, ipg string, preq PurchaseRequest) (*PurchaseReceipt, error) {
	body, err := json.Marshal(preq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal purchase request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, PurchaseURL(t, ipg), bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.Token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &GatewayError{IPG: ipg, StatusCode: 0, Body: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &GatewayError{IPG: ipg, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result struct {
		UID string `json:"uid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &GatewayError{IPG: ipg, StatusCode: resp.StatusCode, Body: "malformed purchase response: " + err.Error()}
	}
	if result.UID == "" {
		return nil, &GatewayError{IPG: ipg, StatusCode: resp.StatusCode, Body: "purchase response without uid"}
	}

	return &PurchaseReceipt{
		UID:      result.UID,
		StartURL: PurchaseURL(t, ipg) + result.UID + "/start/",
	}, nil
}

func (c *HTTPGatewayClient) GetPurchaseStatus(ctx context.Context, t Tenant, ipg, uid string) (*PurchaseState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, PurchaseURL(t, ipg)+uid, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+t.Token)
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &GatewayError{IPG: ipg, StatusCode: 0, Body: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &GatewayError{IPG: ipg, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var state PurchaseState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, &GatewayError{IPG: ipg, StatusCode: resp.StatusCode, Body: "malformed purchase status: " + err.Error()}
	}
	if !state.Status.Valid() {
		return nil, &GatewayError{IPG: ipg, StatusCode: resp.StatusCode, Body: fmt.Sprintf("unknown purchase status %q", state.Status)}
	}
	if state.UID == "" {
		state.UID = uid
	}
	return &state, nil
}

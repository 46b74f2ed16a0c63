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

// Wallet is one payer wallet as listed by the ledger service, balances keyed
// by currency code.
type Wallet struct {
	UID          string                   `json:"uid"`
	Balance      map[string]models.Amount `json:"balance"`
	WalletType   string                   `json:"wallet_type"`
	MainCurrency string                   `json:"main_currency"`
}

// Participant is one signed line of a ledger transfer.
type Participant struct {
	WalletID string        `json:"wallet_id"`
	Amount   models.Amount `json:"amount"`
}

// Proposal is a ledger transfer request. Lines must balance: the payer
// wallet is debited with a negative amount, the settlement wallet credited
// with the positive amount.
type Proposal struct {
	Amount       models.Amount  `json:"amount"`
	Description  string         `json:"description,omitempty"`
	Note         string         `json:"note,omitempty"`
	Currency     string         `json:"currency"`
	TaskStatus   string         `json:"task_status"`
	Participants []Participant  `json:"participants"`
	MetaData     map[string]any `json:"meta_data,omitempty"`
}

type WalletClient interface {
	ListWallets(ctx context.Context, t Tenant, userID string) ([]Wallet, error)
	SubmitTransfer(ctx context.Context, t Tenant, p Proposal) error
}

type HTTPWalletClient struct {
	client *http.Client
}

func NewHTTPWalletClient() *HTTPWalletClient {
	return &HTTPWalletClient{client: &http.Client{Timeout: 10 * time.Second}}
}

func (c *HTTPWalletClient) ListWallets(ctx context.Context, t Tenant, userID string) ([]Wallet, error) {
	u := strings.TrimSuffix(t.CoreURL, "/") + "/api/v1/wallets/?" + url.Values{
		"user_id": {userID},
		"limit":   {"100"},
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
		return nil, fmt.Errorf("wallet list failed: status %d: %s", resp.StatusCode, string(body))
	}

	var paged struct {
		Items []Wallet `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&paged); err != nil {
		return nil, fmt.Errorf("failed to decode wallets: %v", err)
	}
	return paged.Items, nil
}

func (c *HTTPWalletClient) SubmitTransfer(ctx context.Context, t Tenant, p Proposal) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal proposal: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(t.CoreURL, "/")+"/api/v1/proposals/", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.Token)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("proposal submission failed: status %d: %s", resp.StatusCode, string(respBody))
	}

	// The ledger reports some rejections inside a 2xx body.
	var ack struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil && err != io.EOF {
		return fmt.Errorf("failed to decode proposal response: %v", err)
	}
	if ack.Error != "" {
		return fmt.Errorf("proposal rejected: %s", ack.Error)
	}
	return nil
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/require"

	"github.com/ufaas-io/payment-gobackend/internal/apperr"
	"github.com/ufaas-io/payment-gobackend/internal/clients"
	"github.com/ufaas-io/payment-gobackend/internal/models"
)

type fakeResolver struct {
	byName   map[string]*models.Business
	byDomain map[string]*models.Business
	named    []string
}

func (f *fakeResolver) GetByName(_ context.Context, name string) (*models.Business, error) {
	f.named = append(f.named, name)
	if biz, ok := f.byName[name]; ok {
		return biz, nil
	}
	return nil, apperr.New(http.StatusNotFound, apperr.KindBusinessNotFound, "business %q not found", name)
}

func (f *fakeResolver) GetByDomain(_ context.Context, domain string) (*models.Business, error) {
	if biz, ok := f.byDomain[domain]; ok {
		return biz, nil
	}
	return nil, apperr.New(http.StatusNotFound, apperr.KindBusinessNotFound, "no business for domain %q", domain)
}

func (f *fakeResolver) GetConfig(_ context.Context, businessName string) (*models.Configuration, error) {
	return &models.Configuration{BusinessName: businessName, IPGs: []string{"ipg"}}, nil
}

func (f *fakeResolver) Tenant(biz *models.Business) (clients.Tenant, error) {
	return clients.Tenant{APIOSURL: biz.APIOSURL, CoreURL: biz.CoreURL, Token: "token"}, nil
}

func mintToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return signed
}

// The secret is injected through the constructor, so tokens signed with a
// secret loaded after process start are accepted.
func TestCallerContext(t *testing.T) {
	secret := []byte("supersecret")
	h := NewPaymentHandler(nil, &fakeResolver{}, secret, "")

	r := httptest.NewRequest(http.MethodGet, "/api/payments", nil)
	r.Header.Set("Authorization", "Bearer "+mintToken(t, secret, jwt.MapClaims{
		"sub":      "user-1",
		"business": "acme",
	}))

	caller, err := h.callerContext(r)
	require.NoError(t, err)
	require.Equal(t, "user-1", caller.UserID)
	require.Equal(t, "acme", caller.BusinessName)
}

func TestCallerContextAnonymous(t *testing.T) {
	h := NewPaymentHandler(nil, &fakeResolver{}, []byte("supersecret"), "")

	r := httptest.NewRequest(http.MethodGet, "/api/payments", nil)
	caller, err := h.callerContext(r)
	require.NoError(t, err)
	require.Empty(t, caller.UserID)
	require.Empty(t, caller.BusinessName)
}

func TestCallerContextWrongKey(t *testing.T) {
	h := NewPaymentHandler(nil, &fakeResolver{}, []byte("supersecret"), "")

	r := httptest.NewRequest(http.MethodGet, "/api/payments", nil)
	r.Header.Set("Authorization", "Bearer "+mintToken(t, []byte("other-key"), jwt.MapClaims{"sub": "user-1"}))

	_, err := h.callerContext(r)
	require.Error(t, err)
}

func TestResolveTenantByClaim(t *testing.T) {
	acme := &models.Business{Name: "acme", Domain: "acme.example.com"}
	resolver := &fakeResolver{byName: map[string]*models.Business{"acme": acme}}
	h := NewPaymentHandler(nil, resolver, []byte("supersecret"), "")

	r := httptest.NewRequest(http.MethodGet, "/api/payments", nil)
	tc, err := h.resolveTenant(r, &CallerContext{BusinessName: "acme"})
	require.NoError(t, err)
	require.Equal(t, "acme", tc.Business.Name)
	require.Equal(t, []string{"ipg"}, tc.Config.IPGs)
}

func TestResolveTenantByHost(t *testing.T) {
	acme := &models.Business{Name: "acme", Domain: "acme.example.com"}
	resolver := &fakeResolver{byDomain: map[string]*models.Business{"acme.example.com": acme}}
	h := NewPaymentHandler(nil, resolver, []byte("supersecret"), "")

	r := httptest.NewRequest(http.MethodGet, "/api/payments", nil)
	r.Host = "acme.example.com:8080"
	tc, err := h.resolveTenant(r, &CallerContext{})
	require.NoError(t, err)
	require.Equal(t, "acme", tc.Business.Name)
}

// An unknown host falls back to the business name configured at startup.
func TestResolveTenantFallback(t *testing.T) {
	acme := &models.Business{Name: "acme", Domain: "acme.example.com"}
	resolver := &fakeResolver{byName: map[string]*models.Business{"acme": acme}}
	h := NewPaymentHandler(nil, resolver, []byte("supersecret"), "acme")

	r := httptest.NewRequest(http.MethodGet, "/api/payments", nil)
	r.Host = "unknown.example.com"
	tc, err := h.resolveTenant(r, &CallerContext{})
	require.NoError(t, err)
	require.Equal(t, "acme", tc.Business.Name)
	require.Equal(t, []string{"acme"}, resolver.named)
}

func TestResolveTenantNoFallback(t *testing.T) {
	h := NewPaymentHandler(nil, &fakeResolver{}, []byte("supersecret"), "")

	r := httptest.NewRequest(http.MethodGet, "/api/payments", nil)
	r.Host = "unknown.example.com"
	_, err := h.resolveTenant(r, &CallerContext{})
	require.True(t, apperr.IsKind(err, apperr.KindBusinessNotFound), "got %v", err)
}

func TestCreatePaymentRequiresAuth(t *testing.T) {
	h := NewPaymentHandler(nil, &fakeResolver{}, []byte("supersecret"), "")

	r := httptest.NewRequest(http.MethodPost, "/api/payments", nil)
	w := httptest.NewRecorder()
	h.CreatePayment(w, r)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	var body struct {
		Kind string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Equal(t, apperr.KindUnauthorized, body.Kind)
}

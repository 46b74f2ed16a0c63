package services_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/require"

	"github.com/ufaas-io/payment-gobackend/internal/models"
	"github.com/ufaas-io/payment-gobackend/internal/services"
)

func TestAccessToken(t *testing.T) {
	biz := &models.Business{
		Name:      "acme",
		APISecret: "super-secret",
	}

	signed, err := (&services.BusinessService{}).AccessToken(biz)
	require.NoError(t, err)

	token, err := jwt.Parse(signed, func(token *jwt.Token) (interface{}, error) {
		require.IsType(t, &jwt.SigningMethodHMAC{}, token.Method)
		return []byte(biz.APISecret), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)

	claims := token.Claims.(jwt.MapClaims)
	require.Equal(t, "acme", claims["business"])
	exp := int64(claims["exp"].(float64))
	require.Greater(t, exp, time.Now().Unix())
}

func TestTenant(t *testing.T) {
	biz := &models.Business{
		Name:      "acme",
		APIOSURL:  "https://os.acme.example.com",
		CoreURL:   "https://core.acme.example.com",
		APISecret: "super-secret",
	}

	tenant, err := (&services.BusinessService{}).Tenant(biz)
	require.NoError(t, err)
	require.Equal(t, biz.APIOSURL, tenant.APIOSURL)
	require.Equal(t, biz.CoreURL, tenant.CoreURL)
	require.NotEmpty(t, tenant.Token)
}

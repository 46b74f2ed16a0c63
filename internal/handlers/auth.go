package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt"
)

// CallerContext is the authenticated caller of one request. Anonymous
// callers get a zero value; write paths check UserID themselves.
type CallerContext struct {
	UserID       string
	BusinessName string
}

// callerContext parses an optional Authorization bearer token. A missing
// header is anonymous, not an error; a present but invalid token is.
func (h *PaymentHandler) callerContext(r *http.Request) (*CallerContext, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return &CallerContext{}, nil
	}

	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return h.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	caller := &CallerContext{}
	if claims, ok := token.Claims.(jwt.MapClaims); ok {
		if sub, ok := claims["sub"].(string); ok {
			caller.UserID = sub
		}
		if business, ok := claims["business"].(string); ok {
			caller.BusinessName = business
		}
	}
	return caller, nil
}

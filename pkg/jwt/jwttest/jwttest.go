// Package jwttest emite tokens no formato do Supabase Auth para testes.
// Em produção os tokens vêm do Supabase; o serviço só valida (pkg/jwt.Parse).
package jwttest

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgjwt "github.com/jhoicas/emissor-fiscal/pkg/jwt"
)

// Generate emite um token HS256 com sub = accountID.
func Generate(secret, accountID, email, issuer string, expMinutes int) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt: secret vazio")
	}
	now := time.Now()
	claims := pkgjwt.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expMinutes) * time.Minute)),
		},
		Email: email,
		Role:  "authenticated",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

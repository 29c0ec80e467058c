package jwt

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims claims dos tokens do Supabase Auth. Cada conta é um emitente (single-tenant por conta).
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"` // "authenticated" para usuários logados
}

// Parse valida assinatura, expiração e (se informado) o issuer; devolve o id da conta (sub).
func Parse(secret, issuer, tokenString string) (accountID string, err error) {
	if secret == "" {
		return "", fmt.Errorf("jwt: secret vazio")
	}
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("método de assinatura inesperado: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("claims inválidos")
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("jwt: sub ausente")
	}
	return claims.Subject, nil
}

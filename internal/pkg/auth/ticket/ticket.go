/*
Package ticket verifies the signed identity tickets minted by the external
auth layer.

The chat core never authenticates users itself. When a ticket secret is
configured, a join handshake may carry a short-lived HS256 token whose claim
supplies the authenticated display name; this package parses and validates
that token. Generate exists for the auth layer and for tests.
*/
package ticket

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	// Expiration is the validity window for an identity ticket. Tickets are
	// consumed once, at join time, so the window stays short.
	Expiration = 15 * time.Minute

	// Issuer identifies the issuing service.
	Issuer = "DevsConnect"
)

// Claims carries the authenticated identity inside a ticket.
type Claims struct {
	jwt.StandardClaims

	// Name is the authenticated display name of the participant.
	Name string `json:"name"`
}

// Generate creates and signs an identity ticket for the given display name.
func Generate(name string, secretKey string) (string, error) {
	now := time.Now()

	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: now.Add(Expiration).Unix(),
			IssuedAt:  now.Unix(),
			Issuer:    Issuer,
		},
		Name: name,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(secretKey))
}

// Parse validates the ticket string and returns its claims.
func Parse(tokenString string, secretKey string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secretKey), nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid or expired ticket")
	}

	if claims.Name == "" {
		return nil, errors.New("ticket is missing the name claim")
	}

	return claims, nil
}

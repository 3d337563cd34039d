package session

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Identity is the current user as established by the external identity service.
// It is resolved synchronously from the session token and stays stable for the
// lifetime of the session.
type Identity struct {
	ID   uuid.UUID
	Name string
}

// FromToken parses an HS256 session token issued by the identity service and
// returns the identity carried in its claims.
func FromToken(tokenStr, secret string) (Identity, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("parse session token: %w", err)
	}
	if !token.Valid {
		return Identity{}, fmt.Errorf("invalid session token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, fmt.Errorf("invalid claims")
	}

	rawID, ok := claims["user_id"].(string)
	if !ok {
		return Identity{}, fmt.Errorf("missing user_id claim")
	}
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return Identity{}, fmt.Errorf("parse user_id claim: %w", err)
	}

	name, _ := claims["name"].(string)

	return Identity{ID: userID, Name: name}, nil
}

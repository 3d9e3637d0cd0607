package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/medlink/doctor-referrals/internal/referral"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Actor is the authenticated caller as asserted by the session provider.
type Actor struct {
	ID   uuid.UUID
	Role referral.ActorRole
}

// IssueToken mints an HS256 bearer token for an actor. Used by the seed tool
// and tests; production tokens come from the platform's auth service with
// the same claim shape.
func IssueToken(secret []byte, actor Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  actor.ID.String(),
		"role": string(actor.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken validates a bearer token and extracts the actor identity.
func ParseToken(secret []byte, tokenString string) (Actor, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return Actor{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Actor{}, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return Actor{}, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: sub is not a UUID", ErrInvalidToken)
	}

	roleStr, _ := claims["role"].(string)
	role := referral.ActorRole(roleStr)
	if role != referral.RoleDoctor && role != referral.RolePatient {
		return Actor{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, roleStr)
	}

	return Actor{ID: id, Role: role}, nil
}

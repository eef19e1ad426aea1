package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"github.com/Cross4solution/MedGama-sub003/internal/models"
)

const (
	ActorIDKey   = "actorID"
	ActorTypeKey = "actorType"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the bearer token payload issued by the marketplace backend.
type Claims struct {
	ActorType string `json:"actorType,omitempty"`
	jwt.RegisteredClaims
}

// TokenValidator checks HS256 bearer tokens against a shared secret.
type TokenValidator struct {
	secret []byte
}

func NewTokenValidator(secret string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret)}
}

// Validate returns the actor id (subject) and, when present, the actor kind.
func (v *TokenValidator) Validate(token string) (string, models.ActorKind, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", "", ErrInvalidToken
	}

	var kind models.ActorKind
	if claims.ActorType != "" {
		if kind, err = models.ParseActorKind(claims.ActorType); err != nil {
			return "", "", ErrInvalidToken
		}
	}
	return claims.Subject, kind, nil
}

// AuthMiddleware validates the Authorization header and stores the actor in the context.
func AuthMiddleware(validator *TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		actorID, actorType, err := validator.Validate(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ActorIDKey, actorID)
		if actorType != "" {
			c.Set(ActorTypeKey, actorType)
		}
		c.Next()
	}
}

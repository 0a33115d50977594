package security

import (
	"errors"
	"strings"

	apperrors "github.com/digipath/maturity-diagnosis/internal/errors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// OwnerKey is the gin context key holding the authenticated owner id.
const OwnerKey = "owner_id"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Secret string
	Issuer string // optional; checked when set
}

// Claims are the fields read from tokens issued by the auth service.
type Claims struct {
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 tokens. Tokens are issued elsewhere; only
// the subject is used, as the diagnosis owner id.
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
}

// NewAuthenticator returns an error when no secret is configured.
func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &Authenticator{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(opts...),
	}, nil
}

// Verify parses the token and returns its subject.
func (a *Authenticator) Verify(tokenString string) (string, error) {
	claims := &Claims{}
	token, err := a.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", ErrInvalidToken
	}
	return subject, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// owner id under OwnerKey.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			apperrors.Respond(c, apperrors.NewUnauthorizedError("Missing bearer token", ErrMissingToken))
			return
		}

		owner, err := a.Verify(token)
		if err != nil {
			apperrors.Respond(c, apperrors.NewUnauthorizedError("Invalid or expired token", err))
			return
		}

		c.Set(OwnerKey, owner)
		c.Next()
	}
}

// OwnerID returns the authenticated owner, or "" outside the auth group.
func OwnerID(c *gin.Context) string {
	return c.GetString(OwnerKey)
}

func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

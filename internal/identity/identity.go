package identity

import (
	"context"
	"errors"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrMissingToken  = errors.New("missing_token")
	ErrInvalidToken  = errors.New("invalid_token")
	ErrNotConfigured = errors.New("identity_not_configured")
)

const contextKey = "donara.identity"

var Module = fx.Module("identity",
	fx.Provide(NewVerifier),
)

// Identity is the verified donor behind a bearer token.
type Identity struct {
	UID   string
	Email string
	Name  string
	Phone string
}

type Verifier interface {
	VerifyIDToken(ctx context.Context, token string) (Identity, error)
}

type tokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

type firebaseVerifier struct {
	client tokenVerifier
	log    *zap.Logger
}

// NewVerifier wraps the Firebase auth client. Without one every token is rejected.
func NewVerifier(client *auth.Client, log *zap.Logger) Verifier {
	log = log.Named("identity")
	if client == nil {
		log.Warn("firebase auth client unavailable, donor routes will reject all tokens")
		return &firebaseVerifier{log: log}
	}
	return &firebaseVerifier{client: client, log: log}
}

func (v *firebaseVerifier) VerifyIDToken(ctx context.Context, token string) (Identity, error) {
	if v.client == nil {
		return Identity{}, ErrNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrMissingToken
	}
	decoded, err := v.client.VerifyIDToken(ctx, token)
	if err != nil {
		v.log.Debug("id token rejected", zap.Error(err))
		return Identity{}, ErrInvalidToken
	}
	return identityFromToken(decoded), nil
}

func identityFromToken(token *auth.Token) Identity {
	identity := Identity{UID: token.UID}
	if token.Claims == nil {
		return identity
	}
	identity.Email, _ = token.Claims["email"].(string)
	identity.Name, _ = token.Claims["name"].(string)
	identity.Phone, _ = token.Claims["phone_number"].(string)
	return identity
}

// BearerToken extracts the token from an "Authorization: Bearer ..." header.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Middleware verifies the bearer token and stores the identity on the gin context.
// onError receives the failure so the caller can render it.
func Middleware(verifier Verifier, onError func(c *gin.Context, err error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			onError(c, ErrMissingToken)
			return
		}
		identity, err := verifier.VerifyIDToken(c.Request.Context(), token)
		if err != nil {
			onError(c, err)
			return
		}
		c.Set(contextKey, identity)
		c.Next()
	}
}

func FromContext(c *gin.Context) (Identity, bool) {
	value, ok := c.Get(contextKey)
	if !ok {
		return Identity{}, false
	}
	identity, ok := value.(Identity)
	return identity, ok && identity.UID != ""
}

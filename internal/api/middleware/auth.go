package middleware

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/coreos/go-oidc"
	"github.com/gin-gonic/gin"

	"github.com/CloudCabinet/Drive-Service/internal/models"
)

var verifier *oidc.IDTokenVerifier

// expectedClient is the authorized party every login token must carry.
const expectedClient = "frontend"

// InitAuth wires the OIDC verifier used to check login tokens.
func InitAuth(issuerURL string) error {
	provider, err := oidc.NewProvider(context.Background(), issuerURL)
	if err != nil {
		return err
	}
	verifier = provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	log.Printf("[AUTH] OIDC verifier initialized (SkipClientIDCheck: true)")
	return nil
}

// VerifyLoginToken resolves an identity-provider token into a user. Used
// once at login; afterwards requests carry an opaque session token.
func VerifyLoginToken(ctx context.Context, tokenStr string) (models.User, error) {
	if verifier == nil {
		return models.User{}, fmt.Errorf("oidc verifier not initialized")
	}

	idToken, err := verifier.Verify(ctx, tokenStr)
	if err != nil {
		log.Printf("[AUTH] VERIFY FAILED: %v", err)
		return models.User{}, fmt.Errorf("invalid token")
	}

	var claims struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Role  string `json:"role"`
		Azp   string `json:"azp"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return models.User{}, fmt.Errorf("claim parse failed")
	}

	if claims.Azp != expectedClient {
		log.Printf("[AUTH] REJECTED: azp=%s (expected %q)", claims.Azp, expectedClient)
		return models.User{}, fmt.Errorf("invalid client")
	}

	return models.User{ID: claims.Sub, Email: claims.Email, Role: claims.Role}, nil
}

// SessionResolver turns an opaque session token back into a session.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (models.Session, bool)
}

// RequireSession authenticates requests with a bearer session token and
// sets user_id into the gin context.
func RequireSession(sessions SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(401, gin.H{"error": "missing auth"})
			return
		}

		tokenStr := strings.TrimPrefix(auth, "Bearer ")
		if tokenStr == auth {
			c.AbortWithStatusJSON(401, gin.H{"error": "invalid format"})
			return
		}

		session, ok := sessions.Resolve(c.Request.Context(), tokenStr)
		if !ok {
			c.AbortWithStatusJSON(401, gin.H{"error": "invalid or expired session"})
			return
		}

		c.Set("user_id", session.UserID)
		c.Set("user_role", session.Role)
		c.Next()
	}
}

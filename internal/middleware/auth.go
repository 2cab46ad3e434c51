package middleware

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/auth"
	"messaging-service/internal/errs"
	"messaging-service/internal/models"
)

// Verifier turns a bearer token into the identity it carries.
type Verifier interface {
	Verify(token string) (auth.Identity, error)
}

// ProfileRecorder stores the caller's display identity.
type ProfileRecorder interface {
	RememberProfile(ctx context.Context, profile models.Profile) error
}

// AuthMiddleware verifies the bearer token, records the caller's profile
// and exposes the identity on both the gin and the request context.
func AuthMiddleware(verifier Verifier, profiles ProfileRecorder, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.TokenFromHeader(c.GetHeader("Authorization"))
		if !ok {
			abort(c, errs.Unauthenticated)
			return
		}

		identity, err := verifier.Verify(token)
		if err != nil {
			abort(c, err)
			return
		}

		ctx := auth.ContextWithIdentity(c.Request.Context(), identity)
		c.Request = c.Request.WithContext(ctx)
		c.Set("userID", identity.UserID)

		if profiles != nil {
			if err := profiles.RememberProfile(ctx, identity.Profile()); err != nil && logger != nil {
				logger.WarnContext(ctx, "failed to store profile", "user_id", identity.UserID, "error", err)
			}
		}
		c.Next()
	}
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errs.HTTPStatus(err), gin.H{"error": errs.Public(err)})
}
